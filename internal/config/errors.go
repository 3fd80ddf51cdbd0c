package config

import "errors"

// 配置相关错误
var (
	ErrInvalidPort       = errors.New("服务器端口无效")
	ErrInvalidSampleRate = errors.New("采样率必须大于0")
	ErrInvalidBlockSize  = errors.New("采集块大小必须大于0")
	ErrInvalidDuration   = errors.New("最长录音时间必须大于0")
	ErrUnsupportedFormat = errors.New("不支持的录音格式")
	ErrInvalidBitrate    = errors.New("MP3码率仅支持128kbps")
	ErrUnknownStorage    = errors.New("未知的存储驱动")
)
