// Package session 保存向导填写的凭据和已完成步骤
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"aliyun_voice_wizard/internal/apperr"
)

// 存储键
const (
	ConfigKey         = "aliyun_voice_config"
	CompletedStepsKey = "aliyun_voice_completed_steps"
)

// 已知字段
const (
	FieldAppKey          = "appKey"
	FieldAccessKeyID     = "accessKeyId"
	FieldAccessKeySecret = "accessKeySecret"
	FieldZhipuAPIKey     = "zhipuApiKey"
)

// KnownFields 全部已知字段
var KnownFields = []string{FieldAppKey, FieldAccessKeyID, FieldAccessKeySecret, FieldZhipuAPIKey}

var (
	ErrUnknownField  = errors.New("未知的配置字段")
	ErrInvalidImport = errors.New("配置文件格式错误")
)

// Store 配置存储，每次修改立即持久化
type Store struct {
	mu        sync.RWMutex
	storage   Storage
	logger    *zap.SugaredLogger
	values    map[string]string
	completed map[int]bool
}

// NewStore 创建配置存储并加载已保存的内容，加载失败只记录日志
func NewStore(storage Storage, logger *zap.SugaredLogger) *Store {
	s := &Store{
		storage:   storage,
		logger:    logger,
		values:    make(map[string]string),
		completed: make(map[int]bool),
	}
	s.load()
	return s
}

func isKnown(field string) bool {
	for _, f := range KnownFields {
		if f == field {
			return true
		}
	}
	return false
}

func (s *Store) load() {
	if raw, ok, err := s.storage.Get(ConfigKey); err != nil {
		s.logger.Warnw("加载配置失败", "error", err)
	} else if ok {
		var values map[string]string
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			s.logger.Warnw("解析已保存配置失败", "error", err)
		} else {
			for k, v := range values {
				if isKnown(k) {
					s.values[k] = v
				}
			}
		}
	}

	if raw, ok, err := s.storage.Get(CompletedStepsKey); err != nil {
		s.logger.Warnw("加载已完成步骤失败", "error", err)
	} else if ok {
		var steps []int
		if err := json.Unmarshal([]byte(raw), &steps); err != nil {
			s.logger.Warnw("解析已完成步骤失败", "error", err)
		} else {
			for _, step := range steps {
				s.completed[step] = true
			}
		}
	}
}

// Get 读取字段，未设置时返回空字符串
func (s *Store) Get(field string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[field]
}

// Set 设置字段并持久化
func (s *Store) Set(field, value string) error {
	if !isKnown(field) {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[field] = value
	return s.saveValues()
}

// All 返回全部字段的副本
func (s *Store) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(KnownFields))
	for _, f := range KnownFields {
		out[f] = s.values[f]
	}
	return out
}

// HasFields 所有字段都非空
func (s *Store) HasFields(fields []string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range fields {
		if strings.TrimSpace(s.values[f]) == "" {
			return false
		}
	}
	return true
}

// MarkCompleted 记录步骤已完成
func (s *Store) MarkCompleted(step int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed[step] {
		return
	}
	s.completed[step] = true
	if err := s.saveCompleted(); err != nil {
		s.logger.Warnw("保存已完成步骤失败", "step", step, "error", err)
	}
}

// UnmarkCompleted 清除步骤的完成记录
func (s *Store) UnmarkCompleted(step int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.completed[step] {
		return
	}
	delete(s.completed, step)
	if err := s.saveCompleted(); err != nil {
		s.logger.Warnw("保存已完成步骤失败", "step", step, "error", err)
	}
}

// IsCompleted 步骤是否曾经完成
func (s *Store) IsCompleted(step int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completed[step]
}

// CompletedSteps 已完成步骤，升序
func (s *Store) CompletedSteps() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completedList()
}

func (s *Store) completedList() []int {
	steps := make([]int, 0, len(s.completed))
	for step := range s.completed {
		steps = append(steps, step)
	}
	sort.Ints(steps)
	return steps
}

// Clear 清空全部字段和完成记录
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
	s.completed = make(map[int]bool)
	if err := s.storage.Remove(ConfigKey); err != nil {
		return err
	}
	return s.storage.Remove(CompletedStepsKey)
}

// Validate 检查阿里云三个字段均已填写
func (s *Store) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var missing []string
	if strings.TrimSpace(s.values[FieldAppKey]) == "" {
		missing = append(missing, "AppKey不能为空")
	}
	if strings.TrimSpace(s.values[FieldAccessKeyID]) == "" {
		missing = append(missing, "AccessKey ID不能为空")
	}
	if strings.TrimSpace(s.values[FieldAccessKeySecret]) == "" {
		missing = append(missing, "AccessKey Secret不能为空")
	}
	if len(missing) == 0 {
		return nil
	}
	return &apperr.ValidationError{Message: strings.Join(missing, ", ")}
}

// Export 导出配置，只包含必填字段全部填写的步骤的字段
func (s *Store) Export(requiredFields map[int][]string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps := make([]int, 0, len(requiredFields))
	for step := range requiredFields {
		steps = append(steps, step)
	}
	sort.Ints(steps)

	out := make(map[string]string)
	for _, step := range steps {
		fields := requiredFields[step]
		if len(fields) == 0 {
			continue
		}
		complete := true
		for _, f := range fields {
			if s.values[f] == "" {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		for _, f := range fields {
			out[f] = s.values[f]
		}
	}
	return json.MarshalIndent(out, "", "  ")
}

// Import 导入配置，只接受已知字段，非字符串值按空字符串处理
func (s *Store) Import(doc []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(doc, &raw); err != nil || raw == nil {
		return ErrInvalidImport
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range KnownFields {
		v, ok := raw[f]
		if !ok {
			continue
		}
		str, _ := v.(string)
		s.values[f] = str
	}
	return s.saveValues()
}

func (s *Store) saveValues() error {
	data, err := json.Marshal(s.values)
	if err != nil {
		return err
	}
	if err := s.storage.Set(ConfigKey, string(data)); err != nil {
		return fmt.Errorf("保存配置失败: %w", err)
	}
	return nil
}

func (s *Store) saveCompleted() error {
	data, err := json.Marshal(s.completedList())
	if err != nil {
		return err
	}
	return s.storage.Set(CompletedStepsKey, string(data))
}

// Preview 掩码显示密钥，超过6个字符时只保留首尾各3个
func Preview(value string) string {
	runes := []rune(value)
	if len(runes) == 0 {
		return ""
	}
	if len(runes) <= 6 {
		return value
	}
	return string(runes[:3]) + "..." + string(runes[len(runes)-3:])
}

// InfoItem 导出信息列表的一项
type InfoItem struct {
	Label string
	Value string
}

// Summary 已填写字段的掩码列表
func (s *Store) Summary() []InfoItem {
	labels := map[string]string{
		FieldAppKey:          "AppKey",
		FieldAccessKeyID:     "AccessKey ID",
		FieldAccessKeySecret: "AccessKey Secret",
		FieldZhipuAPIKey:     "智谱AI API Key",
	}
	values := s.All()
	var items []InfoItem
	for _, f := range KnownFields {
		if values[f] == "" {
			continue
		}
		items = append(items, InfoItem{Label: labels[f], Value: Preview(values[f])})
	}
	return items
}
