package aliyun

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// StatusSuccess 识别成功的状态码
const StatusSuccess = 20000000

// RecognizeParams 一句话识别参数
type RecognizeParams struct {
	AppKey     string
	Token      string
	Format     string
	SampleRate int
}

// Recognition 识别结果
type Recognition struct {
	TaskID string
	Text   string
}

// Recognizer 一句话识别REST客户端
type Recognizer struct {
	endpoint string
	client   *resty.Client
}

// NewRecognizer 创建识别客户端
func NewRecognizer(endpoint string, timeout time.Duration) *Recognizer {
	return &Recognizer{
		endpoint: endpoint,
		client:   resty.New().SetTimeout(timeout),
	}
}

type recognizeResponse struct {
	TaskID     string `json:"task_id"`
	Result     string `json:"result"`
	Text       string `json:"text"`
	Transcript string `json:"transcript"`
	Content    string `json:"content"`
	Status     int    `json:"status"`
	Message    string `json:"message"`
}

func (r recognizeResponse) text() string {
	for _, s := range []string{r.Result, r.Text, r.Transcript, r.Content} {
		if s != "" {
			return s
		}
	}
	return ""
}

// Recognize 发送整段音频并返回识别文本
func (r *Recognizer) Recognize(ctx context.Context, params RecognizeParams, audio []byte) (*Recognition, error) {
	if params.Format == "" {
		params.Format = "pcm"
	}
	if params.SampleRate == 0 {
		params.SampleRate = 16000
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"appkey":                            params.AppKey,
			"token":                             params.Token,
			"format":                            params.Format,
			"sample_rate":                       strconv.Itoa(params.SampleRate),
			"enable_punctuation_prediction":     "true",
			"enable_inverse_text_normalization": "true",
		}).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(audio).
		Post(r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("请求阿里云识别接口失败: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("阿里云API错误: %d - %s", resp.StatusCode(), resp.String())
	}

	var result recognizeResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("解析识别结果失败: %w", err)
	}
	if result.Status != StatusSuccess {
		msg := result.Message
		if msg == "" {
			msg = "未知错误"
		}
		return nil, fmt.Errorf("阿里云识别失败: %s", msg)
	}

	return &Recognition{TaskID: result.TaskID, Text: result.text()}, nil
}
