package wizard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"aliyun_voice_wizard/internal/apperr"
	"aliyun_voice_wizard/internal/audio"
	"aliyun_voice_wizard/internal/clients/gateway"
	"aliyun_voice_wizard/internal/clients/zhipu"
	"aliyun_voice_wizard/internal/config"
	"aliyun_voice_wizard/internal/models"
	"aliyun_voice_wizard/internal/session"
)

// 步骤编号
const (
	StepService = iota + 1
	StepAppKey
	StepRAMUser
	StepAccessKey
	StepRecording
	StepZhipu
)

// RecognizeSampleRate 提交识别的采样率
const RecognizeSampleRate = 16000

var (
	ErrNoArtifact = errors.New("没有可保存的录音")
	ErrChatClosed = errors.New("请先完成智谱AI验证")
	ErrEmptyChat  = errors.New("消息不能为空")
)

// Gateway 网关客户端
type Gateway interface {
	GetToken(ctx context.Context, req models.TokenRequest) (*models.TokenResponse, error)
	Recognize(ctx context.Context, audio []byte, opts gateway.RecognizeOptions) (*models.RecognizeResponse, error)
	ClearToken()
}

// ChatClient 大模型对话客户端
type ChatClient interface {
	Chat(ctx context.Context, apiKey string, messages []zhipu.Message) (string, error)
}

// Recorder 录音会话
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (*audio.Artifact, error)
	IsRecording() bool
	RawSamples() []float32
	SampleRate() int
	LastArtifact() *audio.Artifact
	OnAutoStop(fn func(*audio.Artifact, error))
}

// Listener 接收识别结果和对话回复
type Listener interface {
	TranscriptReady(text string)
	ChatReply(reply string)
}

// Deps 向导依赖
type Deps struct {
	Config    config.WizardConfig
	// RecognizeRate 提交识别前重采样的目标采样率，默认16000
	RecognizeRate int
	Store     *session.Store
	Gateway   Gateway
	Chat      ChatClient
	Recorder  Recorder
	Presenter Presenter
	Listener  Listener
	Logger    *zap.SugaredLogger
}

// Wizard 六步配置向导
type Wizard struct {
	cfg      config.WizardConfig
	rate     int
	store    *session.Store
	gateway  Gateway
	chat     ChatClient
	recorder Recorder
	listener Listener
	logger   *zap.SugaredLogger

	orch  *Orchestrator
	guard *Guard

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	transcript string
	chatOpen   bool
	history    []zhipu.Message
}

// NewWizard 创建向导
func NewWizard(deps Deps) *Wizard {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	rate := deps.RecognizeRate
	if rate <= 0 {
		rate = RecognizeSampleRate
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Wizard{
		cfg:      deps.Config,
		rate:     rate,
		store:    deps.Store,
		gateway:  deps.Gateway,
		chat:     deps.Chat,
		recorder: deps.Recorder,
		listener: deps.Listener,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	w.orch = New(w.steps(), deps.Store, Options{
		SettleDelay: deps.Config.SettleDelay,
		Presenter:   deps.Presenter,
		Logger:      logger,
	})
	w.guard = NewGuard(w.orch)
	if w.recorder != nil {
		w.recorder.OnAutoStop(w.handleAutoStop)
	}
	return w
}

func (w *Wizard) steps() []Step {
	return []Step{
		{
			Name:           "服务开通",
			AutoJump:       true,
			Validate:       func(context.Context, *StepContext) error { return nil },
			SuccessMessage: "服务开通步骤已完成",
		},
		{
			Name:           "AppKey配置",
			RequiredFields: []string{session.FieldAppKey},
			AutoJump:       true,
			Validate:       w.validateAppKey,
			SuccessMessage: "AppKey配置已完成，请继续配置AccessKey",
		},
		{
			Name:           "用户创建",
			AutoJump:       true,
			Validate:       func(context.Context, *StepContext) error { return nil },
			SuccessMessage: "用户创建步骤已完成",
		},
		{
			Name:           "AccessKey配置",
			RequiredFields: []string{session.FieldAccessKeyID, session.FieldAccessKeySecret},
			AutoJump:       true,
			Validate:       w.validateAccessKey,
			SuccessMessage: MsgAccessKeyVerified,
		},
		{
			Name:  "录音测试",
			Reset: w.resetRecording,
		},
		{
			Name:           "智谱AI配置",
			RequiredFields: []string{session.FieldZhipuAPIKey},
			AutoJump:       true,
			Validate:       w.validateZhipu,
			SuccessMessage: MsgZhipuVerified,
			Reset:          func(bool) { w.closeChat() },
		},
	}
}

// RequiredFields 每个步骤的必填字段
func (w *Wizard) RequiredFields() map[int][]string {
	out := make(map[int][]string)
	for i := 1; i <= w.orch.Total(); i++ {
		def, _ := w.orch.Definition(i)
		out[i] = def.RequiredFields
	}
	return out
}

// Orchestrator 步骤编排器
func (w *Wizard) Orchestrator() *Orchestrator { return w.orch }

// Guard 异步操作守卫
func (w *Wizard) Guard() *Guard { return w.guard }

// Start 激活第一步，并从第一步开始自动跳过已完成的步骤
func (w *Wizard) Start(ctx context.Context) error {
	if err := w.orch.Activate(StepService); err != nil {
		return err
	}
	if err := sleep(ctx, w.cfg.StartupDelay); err != nil {
		return err
	}
	return w.orch.AutoJumpFrom(ctx, StepService)
}

// Next 验证当前步骤
func (w *Wizard) Next(ctx context.Context) error {
	return w.orch.Validate(ctx, w.orch.Current())
}

// SetField 保存字段
func (w *Wizard) SetField(field, value string) error {
	return w.store.Set(field, strings.TrimSpace(value))
}

// GoBack 回到之前的步骤，正在录音时先停止录音
func (w *Wizard) GoBack(step int, resetPending bool) error {
	w.stopRecording()
	return w.orch.GoBack(step, resetPending)
}

func (w *Wizard) validateAppKey(_ context.Context, _ *StepContext) error {
	if w.store.Get(session.FieldAppKey) == "" {
		return &apperr.ValidationError{Field: session.FieldAppKey, Message: MsgAppKeyRequired}
	}
	return nil
}

func (w *Wizard) validateAccessKey(ctx context.Context, sc *StepContext) error {
	if err := w.store.Validate(); err != nil {
		return err
	}
	sc.Info(MsgVerifyingAccessKey)

	opID := NewID("token")
	w.guard.Register(opID, sc.Step)
	defer w.guard.Unregister(opID)

	resp, err := w.gateway.GetToken(ctx, models.TokenRequest{
		AppKey:          w.store.Get(session.FieldAppKey),
		AccessKeyID:     w.store.Get(session.FieldAccessKeyID),
		AccessKeySecret: w.store.Get(session.FieldAccessKeySecret),
	})
	if !w.guard.IsValid(opID) {
		return ErrStale
	}
	if err != nil {
		w.logger.Warnw("AccessKey验证请求失败", "error", err)
		return &apperr.NetworkError{Op: MsgNetworkFailed, Err: err}
	}
	if !resp.Success && resp.ErrorType == models.ErrorTypeNetwork {
		w.logger.Warnw("AccessKey验证网络错误", "error", resp.Error, "code", resp.Code)
		return &apperr.NetworkError{Op: MsgNetworkFailed, Err: errors.New(resp.Error)}
	}
	if !resp.Success {
		w.logger.Warnw("AccessKey验证失败", "error", resp.Error, "code", resp.Code)
		return &apperr.CredentialError{Code: resp.Code, Message: FriendlyCredentialMessage(resp.Error)}
	}
	return nil
}

func (w *Wizard) validateZhipu(ctx context.Context, sc *StepContext) error {
	apiKey := w.store.Get(session.FieldZhipuAPIKey)
	if apiKey == "" {
		return &apperr.ValidationError{Field: session.FieldZhipuAPIKey, Message: MsgZhipuKeyRequired}
	}
	transcript := w.Transcript()
	if transcript == "" {
		return &apperr.ValidationError{Message: MsgNeedTranscript}
	}
	sc.Info(MsgVerifyingZhipu)

	prompt := zhipu.Message{Role: "user", Content: fmt.Sprintf(SummaryPromptTemplate, transcript)}
	reply, err := w.chat.Chat(ctx, apiKey, []zhipu.Message{prompt})
	if err != nil {
		w.logger.Warnw("智谱AI验证失败", "error", err)
		if errors.Is(err, zhipu.ErrInvalidAPIKey) {
			return &apperr.CredentialError{Message: MsgZhipuInvalidKey}
		}
		return &apperr.NetworkError{Op: MsgZhipuFailed, Err: err}
	}
	if !sc.Token.IsCurrent() {
		return ErrStale
	}

	w.mu.Lock()
	w.chatOpen = true
	w.history = []zhipu.Message{prompt, {Role: "assistant", Content: reply}}
	w.mu.Unlock()
	if w.listener != nil {
		w.listener.ChatReply(reply)
	}
	return nil
}

// Transcript 第五步的识别结果
func (w *Wizard) Transcript() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.transcript
}

func (w *Wizard) setTranscript(text string) {
	w.mu.Lock()
	w.transcript = text
	w.mu.Unlock()
}

// resetRecording 第五步重新激活：停止录音，未完成过时清除识别结果
func (w *Wizard) resetRecording(wasCompleted bool) {
	w.stopRecording()
	if !wasCompleted {
		w.setTranscript("")
	}
}

func (w *Wizard) stopRecording() {
	if w.recorder == nil || !w.recorder.IsRecording() {
		return
	}
	if _, err := w.recorder.Stop(); err != nil {
		w.logger.Warnw("停止录音失败", "error", err)
	}
}

// IsRecording 是否正在录音
func (w *Wizard) IsRecording() bool {
	return w.recorder != nil && w.recorder.IsRecording()
}

// ToggleRecording 开始录音，正在录音时停止并提交识别
func (w *Wizard) ToggleRecording(ctx context.Context) error {
	if w.orch.Current() != StepRecording {
		return fmt.Errorf("%w: %d", ErrStepNotActive, StepRecording)
	}
	if w.recorder.IsRecording() {
		artifact, err := w.recorder.Stop()
		if artifact == nil && err == nil {
			// 自动停止已经接管了这次录音
			return nil
		}
		return w.processRecording(ctx, artifact, err)
	}

	if state := w.orch.State(StepRecording); state == StateError || state == StateCompleted {
		if err := w.orch.Activate(StepRecording, WithoutReset()); err != nil {
			return err
		}
	}
	if err := w.recorder.Start(ctx); err != nil {
		w.logger.Errorw("开始录音失败", "error", err)
		_ = w.orch.Fail(StepRecording, apperr.UserMessage(err))
		return err
	}
	w.orch.SetStatus(StepRecording, MsgRecording, LevelInfo)
	return nil
}

// handleAutoStop 录音达到时长上限后自动提交识别
func (w *Wizard) handleAutoStop(artifact *audio.Artifact, err error) {
	w.wg.Add(1)
	defer w.wg.Done()
	if err := w.processRecording(w.ctx, artifact, err); err != nil {
		w.logger.Infow("自动停止后识别未完成", "error", err)
	}
}

// processRecording 重采样到16kHz后提交识别，结果只在第五步仍是当前激活时生效
func (w *Wizard) processRecording(ctx context.Context, artifact *audio.Artifact, recErr error) error {
	if recErr != nil {
		w.logger.Errorw("录音处理失败", "error", recErr)
		msg := MsgRecordFailed
		var encErr *apperr.EncodingError
		if errors.As(recErr, &encErr) {
			msg = apperr.UserMessage(recErr)
		}
		_ = w.orch.Fail(StepRecording, msg)
		return recErr
	}
	if artifact != nil {
		w.logger.Infow("录音完成", "format", artifact.Format, "bytes", artifact.Size(), "duration", artifact.Duration)
	}

	opID := NewID("recognize")
	w.guard.Register(opID, StepRecording)
	defer w.guard.Unregister(opID)
	token := w.orch.Token()

	samples := audio.Resample(w.recorder.RawSamples(), w.recorder.SampleRate(), w.rate)
	pcm := audio.Float32ToPCM16LE(samples)
	w.orch.SetStatusIfCurrent(token, MsgRecognizing, LevelInfo)

	resp, err := w.gateway.Recognize(ctx, pcm, gateway.RecognizeOptions{
		Format:          "pcm",
		SampleRate:      w.rate,
		AppKey:          w.store.Get(session.FieldAppKey),
		AccessKeyID:     w.store.Get(session.FieldAccessKeyID),
		AccessKeySecret: w.store.Get(session.FieldAccessKeySecret),
	})
	if !w.guard.IsValid(opID) {
		w.logger.Infow("步骤已切换，丢弃识别结果", "op", opID)
		return ErrStale
	}
	if err != nil {
		w.logger.Warnw("语音识别失败", "error", err)
		w.orch.SetStatusIfCurrent(token, RecognizeFailure(apperr.UserMessage(err)), LevelError)
		return err
	}
	if !resp.Success {
		w.orch.SetStatusIfCurrent(token, RecognizeFailure(resp.Error), LevelError)
		return fmt.Errorf("语音识别失败: %s", resp.Error)
	}

	text := strings.TrimSpace(resp.Result)
	w.logger.Infow("语音识别结果", "text", text, "length", len([]rune(text)))
	if len([]rune(text)) <= w.cfg.MinTranscriptLength {
		w.orch.SetStatusIfCurrent(token, MsgTranscriptTooShort, LevelError)
		return &apperr.ValidationError{Message: MsgTranscriptTooShort}
	}

	w.setTranscript(text)
	if w.listener != nil {
		w.listener.TranscriptReady(text)
	}
	if err := w.orch.CompleteIfCurrentWithoutAdvance(token, MsgRecognized); err != nil {
		return err
	}
	w.scheduleZhipuJump(token)
	return nil
}

// scheduleZhipuJump 识别成功后延迟激活第六步，第五步期间被重新激活则放弃；
// 第六步激活后再等待片刻检查能否自动跳过
func (w *Wizard) scheduleZhipuJump(recording Token) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := sleep(w.ctx, w.cfg.AdvanceDelay); err != nil {
			return
		}
		if err := w.orch.AdvanceIfCurrent(recording); err != nil {
			w.logger.Debugw("第五步已切换，不再激活第六步", "error", err)
			return
		}
		token := w.orch.Token()
		if err := sleep(w.ctx, w.cfg.SettleDelay); err != nil {
			return
		}
		if token.Step != StepZhipu || !token.IsCurrent() || !w.orch.CanAutoJump(StepZhipu) {
			return
		}
		if err := w.orch.Validate(w.ctx, StepZhipu); err != nil {
			w.logger.Infow("第六步自动验证未通过", "error", err)
		}
	}()
}

// ChatOpen 对话是否可用
func (w *Wizard) ChatOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chatOpen
}

func (w *Wizard) closeChat() {
	w.mu.Lock()
	w.chatOpen = false
	w.history = nil
	w.mu.Unlock()
}

// SendChat 在第六步验证成功后继续对话，步骤切换后回复被丢弃
func (w *Wizard) SendChat(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyChat
	}
	w.mu.Lock()
	if !w.chatOpen {
		w.mu.Unlock()
		return "", ErrChatClosed
	}
	history := append(append([]zhipu.Message(nil), w.history...), zhipu.Message{Role: "user", Content: message})
	w.mu.Unlock()

	opID := NewID("chat")
	w.guard.Register(opID, StepZhipu)
	defer w.guard.Unregister(opID)

	reply, err := w.chat.Chat(ctx, w.store.Get(session.FieldZhipuAPIKey), history)
	if !w.guard.IsValid(opID) {
		return "", ErrStale
	}
	if err != nil {
		return "", err
	}

	w.mu.Lock()
	if w.chatOpen {
		w.history = append(history, zhipu.Message{Role: "assistant", Content: reply})
	}
	w.mu.Unlock()
	if w.listener != nil {
		w.listener.ChatReply(reply)
	}
	return reply, nil
}

// Import 导入配置：重置所有步骤，回到第一步并自动跳过已完成的步骤
func (w *Wizard) Import(ctx context.Context, doc []byte) error {
	if err := w.store.Import(doc); err != nil {
		return err
	}
	w.logger.Infow("配置已导入", "fields", len(w.store.Summary()))
	w.gateway.ClearToken()
	w.guard.Clear()
	w.orch.ResetAll()
	if err := w.GoBack(StepService, false); err != nil {
		return err
	}
	return w.orch.AutoJumpFrom(ctx, StepService)
}

// Export 导出配置
func (w *Wizard) Export() ([]byte, error) {
	return w.store.Export(w.RequiredFields())
}

// Summary 已保存配置的掩码列表
func (w *Wizard) Summary() []session.InfoItem {
	return w.store.Summary()
}

// Clear 清除全部配置和完成记录，回到第一步
func (w *Wizard) Clear() error {
	w.stopRecording()
	if err := w.store.Clear(); err != nil {
		return err
	}
	w.gateway.ClearToken()
	w.guard.Clear()
	w.setTranscript("")
	w.closeChat()
	w.orch.ResetAll()
	return w.orch.Activate(StepService)
}

// SaveArtifact 把最近一次录音写入文件
func (w *Wizard) SaveArtifact(path string) (*audio.Artifact, error) {
	artifact := w.recorder.LastArtifact()
	if artifact == nil {
		return nil, ErrNoArtifact
	}
	if err := os.WriteFile(path, artifact.Data, 0o644); err != nil {
		return nil, fmt.Errorf("保存录音失败: %w", err)
	}
	return artifact, nil
}

// Close 停止录音并等待后台任务结束
func (w *Wizard) Close() {
	w.cancel()
	w.stopRecording()
	w.wg.Wait()
}
