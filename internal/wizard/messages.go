package wizard

import (
	"strings"

	"aliyun_voice_wizard/internal/apperr"
)

// 向导展示给用户的固定信息
const (
	MsgAppKeyRequired      = "请输入AppKey"
	MsgVerifyingAccessKey  = "正在验证AccessKey..."
	MsgAccessKeyVerified   = "AccessKey验证成功！Token已获取"
	MsgNetworkFailed       = "网络连接失败，请检查网络后重试"
	MsgVerifyFailedGeneric = "验证失败，请检查AccessKey ID和Secret是否正确"

	MsgRecording          = "正在录音，再次执行record结束录音"
	MsgRecognizing        = "正在识别语音..."
	MsgRecordFailed       = "录音失败，请重新尝试"
	MsgRecognized         = "语音识别成功！识别结果已显示。"
	MsgTranscriptTooShort = "识别结果过短，请重新录制更长的语音。"
	MsgRecognizeDefault   = "请检查网络或重新录制，至少说10个字"

	MsgZhipuKeyRequired   = "请输入智谱AI API Key"
	MsgNeedTranscript     = "请先完成第五步的录音和语音识别，再进行智谱API验证"
	MsgVerifyingZhipu     = "正在验证智谱AI API Key..."
	MsgZhipuInvalidKey    = "API Key无效，请检查是否正确"
	MsgZhipuFailed        = "智谱AI连接失败，请检查API Key是否正确或网络连接"
	MsgZhipuVerified      = "智谱AI验证成功！您可以继续对话测试。"
	SummaryPromptTemplate = "请总结如下录音结果：「%s」当中的信息，50字以内"
)

// credentialRewrites 按顺序匹配的服务端错误片段
var credentialRewrites = []struct {
	match   string
	message string
}{
	{"Specified signature is not matched", "AccessKey Secret错误，请检查是否正确复制"},
	{"InvalidAccessKeyId", "AccessKey ID不存在，请检查是否正确"},
	{"SignatureDoesNotMatch", "AccessKey Secret错误，请重新复制正确的密钥"},
	{"InvalidTimeStamp", "系统时间错误，请检查设备时间设置"},
	{"Forbidden", "AccessKey权限不足，请检查RAM用户权限配置"},
}

// FriendlyCredentialMessage 把凭据验证的技术性错误转换为用户能看懂的信息
func FriendlyCredentialMessage(raw string) string {
	if raw == "" {
		raw = "未知错误"
	}
	for _, r := range credentialRewrites {
		if strings.Contains(raw, r.match) {
			return r.message
		}
	}
	return apperr.Truncate(raw, apperr.MaxMessageLength, MsgVerifyFailedGeneric)
}

// RecognizeFailure 识别失败时的状态信息
func RecognizeFailure(reason string) string {
	if reason == "" {
		reason = MsgRecognizeDefault
	}
	return "语音识别失败: " + reason
}
