// Package config 提供配置加载和管理功能
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath 配置文件路径环境变量
const EnvConfigPath = "VOICE_WIZARD_CONFIG"

// Config 应用程序配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Aliyun    AliyunConfig    `yaml:"aliyun"`
	Zhipu     ZhipuConfig     `yaml:"zhipu"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Wizard    WizardConfig    `yaml:"wizard"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig HTTP服务器配置
type ServerConfig struct {
	Host            string        `yaml:"host"`             // 服务器监听地址
	Port            int           `yaml:"port"`             // 服务器监听端口，0表示自动分配
	StaticDir       string        `yaml:"static_dir"`       // 静态文件目录
	AutoOpen        bool          `yaml:"auto_open"`        // 启动后自动打开浏览器
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // 优雅关闭超时
}

// AliyunConfig 阿里云智能语音交互配置
type AliyunConfig struct {
	Region         string        `yaml:"region"`          // 地域
	TokenDomain    string        `yaml:"token_domain"`    // CreateToken接口域名
	TokenVersion   string        `yaml:"token_version"`   // CreateToken接口版本
	RecognizeURL   string        `yaml:"recognize_url"`   // 一句话识别REST地址
	StreamURL      string        `yaml:"stream_url"`      // 实时识别WebSocket地址
	RequestTimeout time.Duration `yaml:"request_timeout"` // 请求超时
	StartTimeout   time.Duration `yaml:"start_timeout"`   // 实时识别启动超时
}

// ZhipuConfig 智谱AI配置
type ZhipuConfig struct {
	BaseURL     string        `yaml:"base_url"`    // 接口地址
	Model       string        `yaml:"model"`       // 模型名称
	Temperature float64       `yaml:"temperature"` // 温度参数
	Timeout     time.Duration `yaml:"timeout"`     // 请求超时
}

// RecorderConfig 录音配置
type RecorderConfig struct {
	SampleRate       int           `yaml:"sample_rate"`        // 采集采样率
	BlockSize        int           `yaml:"block_size"`         // 每块样本数
	MaxDuration      time.Duration `yaml:"max_duration"`       // 最长录音时间
	Format           string        `yaml:"format"`             // 输出格式 mp3/wav
	Bitrate          int           `yaml:"bitrate"`            // MP3码率(kbps)，编码器固定为128
	QueueSize        int           `yaml:"queue_size"`         // 采集队列长度
	TargetSampleRate int           `yaml:"target_sample_rate"` // 识别采样率
}

// WizardConfig 向导流程配置
type WizardConfig struct {
	APIBaseURL          string        `yaml:"api_base_url"`          // 网关地址
	MinTranscriptLength int           `yaml:"min_transcript_length"` // 识别结果最少字数(不含)
	AdvanceDelay        time.Duration `yaml:"advance_delay"`         // 识别成功后跳转延迟
	SettleDelay         time.Duration `yaml:"settle_delay"`          // 自动跳转步骤间隔
	StartupDelay        time.Duration `yaml:"startup_delay"`         // 启动后自动跳转延迟
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size"`  // 读缓冲区大小
	WriteBufferSize int           `yaml:"write_buffer_size"` // 写缓冲区大小
	PingPeriod      time.Duration `yaml:"ping_period"`       // 心跳间隔
	PongWait        time.Duration `yaml:"pong_wait"`         // 等待Pong响应的超时时间
}

// StorageConfig 会话存储配置
type StorageConfig struct {
	Driver string      `yaml:"driver"` // memory/file/redis
	Dir    string      `yaml:"dir"`    // file驱动的目录
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string        `yaml:"host"`     // Redis主机地址
	Port     int           `yaml:"port"`     // Redis端口
	Password string        `yaml:"password"` // Redis密码
	DB       int           `yaml:"db"`       // Redis数据库编号
	Prefix   string        `yaml:"prefix"`   // 键前缀
	TTL      time.Duration `yaml:"ttl"`      // 会话过期时间
}

// Addr Redis地址
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`        // debug/info/warn/error
	Format     string `yaml:"format"`       // console/json
	File       string `yaml:"file"`         // 日志文件，为空只输出到标准输出
	MaxSizeMB  int    `yaml:"max_size_mb"`  // 单个文件大小
	MaxBackups int    `yaml:"max_backups"`  // 保留文件数
	MaxAgeDays int    `yaml:"max_age_days"` // 保留天数
}

// Default 返回带默认值的配置
func Default() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

// Load 从文件加载配置，filename为空时使用默认配置
func Load(filename string) (*Config, error) {
	var config Config
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	applyDefaults(&config)
	if err := applyEnv(&config); err != nil {
		return nil, err
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// ResolvePath 按命令行参数、环境变量的顺序确定配置文件路径
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvConfigPath)
}

func applyEnv(config *Config) error {
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidPort, port)
		}
		config.Server.Port = p
	}
	return nil
}

// applyDefaults 设置默认值
func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Server.StaticDir == "" {
		config.Server.StaticDir = "public"
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 5 * time.Second
	}

	if config.Aliyun.Region == "" {
		config.Aliyun.Region = "cn-shanghai"
	}
	if config.Aliyun.TokenDomain == "" {
		config.Aliyun.TokenDomain = "nls-meta.cn-shanghai.aliyuncs.com"
	}
	if config.Aliyun.TokenVersion == "" {
		config.Aliyun.TokenVersion = "2019-02-28"
	}
	if config.Aliyun.RecognizeURL == "" {
		config.Aliyun.RecognizeURL = "https://nls-gateway.cn-shanghai.aliyuncs.com/stream/v1/asr"
	}
	if config.Aliyun.StreamURL == "" {
		config.Aliyun.StreamURL = "wss://nls-gateway.cn-shanghai.aliyuncs.com/ws/v1"
	}
	if config.Aliyun.RequestTimeout == 0 {
		config.Aliyun.RequestTimeout = 30 * time.Second
	}
	if config.Aliyun.StartTimeout == 0 {
		config.Aliyun.StartTimeout = 6 * time.Second
	}

	if config.Zhipu.BaseURL == "" {
		config.Zhipu.BaseURL = "https://open.bigmodel.cn/api/paas/v4"
	}
	if config.Zhipu.Model == "" {
		config.Zhipu.Model = "glm-4.5-flash"
	}
	if config.Zhipu.Temperature == 0 {
		config.Zhipu.Temperature = 0.6
	}
	if config.Zhipu.Timeout == 0 {
		config.Zhipu.Timeout = 60 * time.Second
	}

	if config.Recorder.SampleRate == 0 {
		config.Recorder.SampleRate = 44100
	}
	if config.Recorder.BlockSize == 0 {
		config.Recorder.BlockSize = 4096
	}
	if config.Recorder.MaxDuration == 0 {
		config.Recorder.MaxDuration = 30 * time.Second
	}
	if config.Recorder.Format == "" {
		config.Recorder.Format = "mp3"
	}
	if config.Recorder.Bitrate == 0 {
		config.Recorder.Bitrate = 128
	}
	if config.Recorder.QueueSize == 0 {
		config.Recorder.QueueSize = 256
	}
	if config.Recorder.TargetSampleRate == 0 {
		config.Recorder.TargetSampleRate = 16000
	}

	if config.Wizard.APIBaseURL == "" {
		config.Wizard.APIBaseURL = "http://localhost:3000"
	}
	if config.Wizard.MinTranscriptLength == 0 {
		config.Wizard.MinTranscriptLength = 10
	}
	if config.Wizard.AdvanceDelay == 0 {
		config.Wizard.AdvanceDelay = time.Second
	}
	if config.Wizard.SettleDelay == 0 {
		config.Wizard.SettleDelay = 500 * time.Millisecond
	}
	if config.Wizard.StartupDelay == 0 {
		config.Wizard.StartupDelay = time.Second
	}

	if config.WebSocket.ReadBufferSize == 0 {
		config.WebSocket.ReadBufferSize = 1024
	}
	if config.WebSocket.WriteBufferSize == 0 {
		config.WebSocket.WriteBufferSize = 1024
	}
	if config.WebSocket.PingPeriod == 0 {
		config.WebSocket.PingPeriod = 30 * time.Second
	}
	if config.WebSocket.PongWait == 0 {
		config.WebSocket.PongWait = 60 * time.Second
	}

	if config.Storage.Driver == "" {
		config.Storage.Driver = "memory"
	}
	if config.Storage.Dir == "" {
		config.Storage.Dir = ".voice_wizard"
	}
	if config.Storage.Redis.Host == "" {
		config.Storage.Redis.Host = "localhost"
	}
	if config.Storage.Redis.Port == 0 {
		config.Storage.Redis.Port = 6379
	}
	if config.Storage.Redis.Prefix == "" {
		config.Storage.Redis.Prefix = "voice_wizard:"
	}
	if config.Storage.Redis.TTL == 0 {
		config.Storage.Redis.TTL = 24 * time.Hour
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "console"
	}
	if config.Log.MaxSizeMB == 0 {
		config.Log.MaxSizeMB = 50
	}
	if config.Log.MaxBackups == 0 {
		config.Log.MaxBackups = 3
	}
	if config.Log.MaxAgeDays == 0 {
		config.Log.MaxAgeDays = 7
	}
}

// validateConfig 验证配置是否有效
func validateConfig(config *Config) error {
	if config.Server.Port < 0 || config.Server.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, config.Server.Port)
	}

	if config.Recorder.SampleRate <= 0 || config.Recorder.TargetSampleRate <= 0 {
		return ErrInvalidSampleRate
	}
	if config.Recorder.BlockSize <= 0 {
		return ErrInvalidBlockSize
	}
	if config.Recorder.MaxDuration <= 0 {
		return ErrInvalidDuration
	}
	switch config.Recorder.Format {
	case "mp3", "wav":
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, config.Recorder.Format)
	}
	if config.Recorder.Format == "mp3" && config.Recorder.Bitrate != 128 {
		return fmt.Errorf("%w: %d", ErrInvalidBitrate, config.Recorder.Bitrate)
	}

	switch config.Storage.Driver {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("%w: %s", ErrUnknownStorage, config.Storage.Driver)
	}

	if config.Wizard.MinTranscriptLength < 0 {
		return fmt.Errorf("识别结果最少字数不能为负数")
	}

	return nil
}
