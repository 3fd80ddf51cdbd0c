package wizard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aliyun_voice_wizard/internal/apperr"
	"aliyun_voice_wizard/internal/audio"
	"aliyun_voice_wizard/internal/clients/gateway"
	"aliyun_voice_wizard/internal/clients/zhipu"
	"aliyun_voice_wizard/internal/config"
	"aliyun_voice_wizard/internal/models"
	"aliyun_voice_wizard/internal/session"
)

type fakeGateway struct {
	mu          sync.Mutex
	tokenResp   *models.TokenResponse
	tokenErr    error
	recognize   func(ctx context.Context) (*models.RecognizeResponse, error)
	lastAudio   []byte
	tokenCalls  int
	clearTokens int
}

func (g *fakeGateway) GetToken(ctx context.Context, req models.TokenRequest) (*models.TokenResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokenCalls++
	return g.tokenResp, g.tokenErr
}

func (g *fakeGateway) Recognize(ctx context.Context, audio []byte, opts gateway.RecognizeOptions) (*models.RecognizeResponse, error) {
	g.mu.Lock()
	g.lastAudio = audio
	fn := g.recognize
	g.mu.Unlock()
	return fn(ctx)
}

func (g *fakeGateway) ClearToken() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clearTokens++
}

type fakeChat struct {
	mu       sync.Mutex
	reply    string
	err      error
	messages [][]zhipu.Message
}

func (c *fakeChat) Chat(ctx context.Context, apiKey string, messages []zhipu.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, messages)
	return c.reply, c.err
}

type fakeRecorder struct {
	mu         sync.Mutex
	recording  bool
	startErr   error
	stopErr    error
	samples    []float32
	artifact   *audio.Artifact
	onAutoStop func(*audio.Artifact, error)
	// autoStopped 为true时Stop表现为自动停止已先一步结束录音
	autoStopped bool
}

func (r *fakeRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.recording = true
	return nil
}

func (r *fakeRecorder) Stop() (*audio.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return nil, nil
	}
	r.recording = false
	if r.autoStopped {
		return nil, nil
	}
	if r.stopErr != nil {
		return nil, r.stopErr
	}
	return r.artifact, nil
}

func (r *fakeRecorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *fakeRecorder) RawSamples() []float32 { return r.samples }

func (r *fakeRecorder) SampleRate() int { return 44100 }

func (r *fakeRecorder) LastArtifact() *audio.Artifact { return r.artifact }

func (r *fakeRecorder) OnAutoStop(fn func(*audio.Artifact, error)) { r.onAutoStop = fn }

type flowFixture struct {
	wizard   *Wizard
	store    *session.Store
	gateway  *fakeGateway
	chat     *fakeChat
	recorder *fakeRecorder
}

func newFlow(t *testing.T, opts ...func(*config.WizardConfig)) *flowFixture {
	t.Helper()
	cfg := config.WizardConfig{
		MinTranscriptLength: 10,
		AdvanceDelay:        time.Millisecond,
		SettleDelay:         time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	f := &flowFixture{
		store:   newTestStore(),
		gateway: &fakeGateway{tokenResp: &models.TokenResponse{Success: true, Token: "tok", ExpireTime: time.Now().Add(time.Hour).Unix()}},
		chat:    &fakeChat{reply: "这是一段总结"},
		recorder: &fakeRecorder{
			samples:  make([]float32, 44100),
			artifact: &audio.Artifact{Data: []byte("ID3"), Format: "mp3"},
		},
	}
	f.gateway.recognize = func(context.Context) (*models.RecognizeResponse, error) {
		return &models.RecognizeResponse{Success: true, Result: "今天天气很好我们一起去公园散步吧"}, nil
	}
	f.wizard = NewWizard(Deps{
		Config:   cfg,
		Store:    f.store,
		Gateway:  f.gateway,
		Chat:     f.chat,
		Recorder: f.recorder,
	})
	t.Cleanup(f.wizard.Close)
	return f
}

func (f *flowFixture) fillAliyun(t *testing.T) {
	t.Helper()
	require.NoError(t, f.wizard.SetField(session.FieldAppKey, "app-key"))
	require.NoError(t, f.wizard.SetField(session.FieldAccessKeyID, "LTAI5tExample"))
	require.NoError(t, f.wizard.SetField(session.FieldAccessKeySecret, "secret-value"))
}

// toRecording 依次完成前四步
func (f *flowFixture) toRecording(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	f.fillAliyun(t)
	require.NoError(t, f.wizard.Start(ctx))
	for step := 1; step <= 4; step++ {
		require.NoError(t, f.wizard.Next(ctx))
	}
	require.Equal(t, StepRecording, f.wizard.Orchestrator().Current())
}

func TestAppKeyRequired(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	require.NoError(t, f.wizard.Start(ctx))
	require.NoError(t, f.wizard.Next(ctx))

	err := f.wizard.Next(ctx)

	assert.Error(t, err)
	o := f.wizard.Orchestrator()
	assert.Equal(t, StateActive, o.State(StepAppKey))
	assert.Equal(t, Status{Message: MsgAppKeyRequired, Level: LevelError}, o.Status(StepAppKey))
}

func TestAccessKeyValidationMessages(t *testing.T) {
	tests := []struct {
		name     string
		resp     *models.TokenResponse
		err      error
		expected string
	}{
		{
			name:     "签名错误",
			resp:     &models.TokenResponse{Success: false, Error: "SignatureDoesNotMatch: bad"},
			expected: "AccessKey Secret错误，请重新复制正确的密钥",
		},
		{
			name:     "密钥不存在",
			resp:     &models.TokenResponse{Success: false, Error: "InvalidAccessKeyId.NotFound"},
			expected: "AccessKey ID不存在，请检查是否正确",
		},
		{
			name:     "网络错误",
			err:      errors.New("dial tcp: connection refused"),
			expected: MsgNetworkFailed,
		},
		{
			name:     "网关返回网络错误",
			resp:     &models.TokenResponse{Success: false, Error: "Post \"https://nls-meta.cn-shanghai.aliyuncs.com\": i/o timeout", ErrorType: models.ErrorTypeNetwork},
			expected: MsgNetworkFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFlow(t)
			f.gateway.tokenResp, f.gateway.tokenErr = tt.resp, tt.err
			f.fillAliyun(t)
			ctx := context.Background()
			require.NoError(t, f.wizard.Start(ctx))
			for step := 1; step <= 3; step++ {
				require.NoError(t, f.wizard.Next(ctx))
			}

			assert.Error(t, f.wizard.Next(ctx))
			o := f.wizard.Orchestrator()
			assert.Equal(t, StateActive, o.State(StepAccessKey))
			assert.Equal(t, tt.expected, o.Status(StepAccessKey).Message)
			assert.False(t, f.store.IsCompleted(StepAccessKey))
		})
	}
}

func TestAccessKeyMissingFields(t *testing.T) {
	f := newFlow(t)
	require.NoError(t, f.wizard.SetField(session.FieldAppKey, "app"))
	ctx := context.Background()
	require.NoError(t, f.wizard.Start(ctx))
	for step := 1; step <= 3; step++ {
		require.NoError(t, f.wizard.Next(ctx))
	}

	assert.Error(t, f.wizard.Next(ctx))
	assert.Equal(t, "AccessKey ID不能为空, AccessKey Secret不能为空", f.wizard.Orchestrator().Status(StepAccessKey).Message)
	assert.Equal(t, 0, f.gateway.tokenCalls)
}

func TestRecordingCompletesStep(t *testing.T) {
	f := newFlow(t)
	f.toRecording(t)
	ctx := context.Background()

	require.NoError(t, f.wizard.ToggleRecording(ctx))
	assert.True(t, f.wizard.IsRecording())
	require.NoError(t, f.wizard.ToggleRecording(ctx))

	o := f.wizard.Orchestrator()
	assert.Equal(t, StateCompleted, o.State(StepRecording))
	assert.Equal(t, Status{Message: MsgRecognized, Level: LevelSuccess}, o.Status(StepRecording))
	assert.Equal(t, "今天天气很好我们一起去公园散步吧", f.wizard.Transcript())
	assert.Len(t, f.gateway.lastAudio, 16000*2)

	assert.Eventually(t, func() bool { return o.State(StepZhipu) == StateActive }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StepZhipu, o.Current())
}

func TestRecognitionWaitsBeforeAdvancing(t *testing.T) {
	f := newFlow(t, func(c *config.WizardConfig) { c.AdvanceDelay = time.Hour })
	f.toRecording(t)
	ctx := context.Background()
	o := f.wizard.Orchestrator()

	require.NoError(t, f.wizard.ToggleRecording(ctx))
	require.NoError(t, f.wizard.ToggleRecording(ctx))

	assert.Equal(t, StateCompleted, o.State(StepRecording))
	assert.Equal(t, StatePending, o.State(StepZhipu))
	assert.Equal(t, StepRecording, o.Current())
	assert.True(t, f.store.IsCompleted(StepRecording))

	// 等待期间重新录音，旧的识别结果不再推进到第六步
	require.NoError(t, f.wizard.ToggleRecording(ctx))
	assert.True(t, f.wizard.IsRecording())
	assert.Equal(t, StateActive, o.State(StepRecording))
	assert.Equal(t, Status{Message: MsgRecording, Level: LevelInfo}, o.Status(StepRecording))
	assert.Equal(t, "今天天气很好我们一起去公园散步吧", f.wizard.Transcript())
}

func TestRecognitionAdvanceCancelledByReactivation(t *testing.T) {
	f := newFlow(t, func(c *config.WizardConfig) { c.AdvanceDelay = 50 * time.Millisecond })
	f.toRecording(t)
	ctx := context.Background()
	o := f.wizard.Orchestrator()

	require.NoError(t, f.wizard.ToggleRecording(ctx))
	require.NoError(t, f.wizard.ToggleRecording(ctx))
	require.NoError(t, f.wizard.GoBack(StepRecording, false))

	assert.Never(t, func() bool { return o.State(StepZhipu) != StatePending }, 150*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, StateActive, o.State(StepRecording))
}

func TestStopAfterAutoStopIsIgnored(t *testing.T) {
	f := newFlow(t)
	f.toRecording(t)
	ctx := context.Background()
	o := f.wizard.Orchestrator()

	require.NoError(t, f.wizard.ToggleRecording(ctx))
	f.recorder.autoStopped = true
	require.NoError(t, f.wizard.ToggleRecording(ctx))

	assert.Nil(t, f.gateway.lastAudio)
	assert.False(t, f.wizard.IsRecording())
	assert.Equal(t, StateActive, o.State(StepRecording))
	assert.Empty(t, f.wizard.Transcript())
}

func TestShortTranscriptDoesNotComplete(t *testing.T) {
	f := newFlow(t)
	f.gateway.recognize = func(context.Context) (*models.RecognizeResponse, error) {
		return &models.RecognizeResponse{Success: true, Result: " 一二三四五六七八九十 "}, nil
	}
	f.toRecording(t)
	ctx := context.Background()

	require.NoError(t, f.wizard.ToggleRecording(ctx))
	err := f.wizard.ToggleRecording(ctx)

	var validErr *apperr.ValidationError
	assert.True(t, errors.As(err, &validErr))
	o := f.wizard.Orchestrator()
	assert.Equal(t, StateActive, o.State(StepRecording))
	assert.Equal(t, MsgTranscriptTooShort, o.Status(StepRecording).Message)
	assert.False(t, f.store.IsCompleted(StepRecording))
	assert.Empty(t, f.wizard.Transcript())
}

func TestRecognitionFailureStatus(t *testing.T) {
	f := newFlow(t)
	f.gateway.recognize = func(context.Context) (*models.RecognizeResponse, error) {
		return &models.RecognizeResponse{Success: false}, nil
	}
	f.toRecording(t)
	ctx := context.Background()

	require.NoError(t, f.wizard.ToggleRecording(ctx))
	assert.Error(t, f.wizard.ToggleRecording(ctx))

	assert.Equal(t, Status{Message: "语音识别失败: " + MsgRecognizeDefault, Level: LevelError},
		f.wizard.Orchestrator().Status(StepRecording))
}

func TestRecordingDeviceErrorFailsStep(t *testing.T) {
	f := newFlow(t)
	f.recorder.startErr = &apperr.DeviceError{Reason: apperr.DevicePermissionDenied}
	f.toRecording(t)
	ctx := context.Background()

	assert.Error(t, f.wizard.ToggleRecording(ctx))
	o := f.wizard.Orchestrator()
	assert.Equal(t, StateError, o.State(StepRecording))
	assert.Equal(t, "麦克风权限被拒绝，请允许访问麦克风", o.Status(StepRecording).Message)

	f.recorder.startErr = nil
	require.NoError(t, f.wizard.ToggleRecording(ctx))
	assert.Equal(t, StateActive, o.State(StepRecording))
}

func TestRecordingEncodingErrorFailsStep(t *testing.T) {
	f := newFlow(t)
	f.recorder.stopErr = &apperr.EncodingError{Err: audio.ErrEmptyCapture}
	f.toRecording(t)
	ctx := context.Background()

	require.NoError(t, f.wizard.ToggleRecording(ctx))
	assert.Error(t, f.wizard.ToggleRecording(ctx))

	o := f.wizard.Orchestrator()
	assert.Equal(t, StateError, o.State(StepRecording))
	assert.Equal(t, "录音处理失败，请重新尝试", o.Status(StepRecording).Message)
}

func TestStaleRecognitionDiscarded(t *testing.T) {
	f := newFlow(t)
	f.toRecording(t)
	ctx := context.Background()
	o := f.wizard.Orchestrator()

	f.gateway.recognize = func(context.Context) (*models.RecognizeResponse, error) {
		require.NoError(t, o.Activate(StepZhipu))
		return &models.RecognizeResponse{Success: true, Result: "今天天气很好我们一起去公园散步吧"}, nil
	}

	require.NoError(t, f.wizard.ToggleRecording(ctx))
	assert.ErrorIs(t, f.wizard.ToggleRecording(ctx), ErrStale)

	assert.Equal(t, StatePending, o.State(StepRecording))
	assert.False(t, f.store.IsCompleted(StepRecording))
	assert.Empty(t, f.wizard.Transcript())
}

func TestRecordingRequiresRecordingStep(t *testing.T) {
	f := newFlow(t)
	require.NoError(t, f.wizard.Start(context.Background()))
	assert.ErrorIs(t, f.wizard.ToggleRecording(context.Background()), ErrStepNotActive)
}

func TestZhipuAutoJumpAfterRecognition(t *testing.T) {
	f := newFlow(t)
	require.NoError(t, f.wizard.SetField(session.FieldZhipuAPIKey, "zhipu-key"))
	f.store.MarkCompleted(StepZhipu)
	f.toRecording(t)
	ctx := context.Background()

	require.NoError(t, f.wizard.ToggleRecording(ctx))
	require.NoError(t, f.wizard.ToggleRecording(ctx))

	o := f.wizard.Orchestrator()
	assert.Eventually(t, func() bool { return o.State(StepZhipu) == StateCompleted }, time.Second, 5*time.Millisecond)
	assert.True(t, f.wizard.ChatOpen())
	require.Len(t, f.chat.messages, 1)
	assert.Equal(t, "请总结如下录音结果：「今天天气很好我们一起去公园散步吧」当中的信息，50字以内", f.chat.messages[0][0].Content)
}

func TestZhipuValidation(t *testing.T) {
	f := newFlow(t)
	f.toRecording(t)
	ctx := context.Background()
	o := f.wizard.Orchestrator()
	require.NoError(t, o.Activate(StepZhipu))

	assert.Error(t, f.wizard.Next(ctx))
	assert.Equal(t, MsgZhipuKeyRequired, o.Status(StepZhipu).Message)

	require.NoError(t, f.wizard.SetField(session.FieldZhipuAPIKey, "zhipu-key"))
	assert.Error(t, f.wizard.Next(ctx))
	assert.Equal(t, MsgNeedTranscript, o.Status(StepZhipu).Message)

	f.wizard.setTranscript("今天天气很好我们一起去公园散步吧")
	f.chat.err = zhipu.ErrInvalidAPIKey
	assert.Error(t, f.wizard.Next(ctx))
	assert.Equal(t, MsgZhipuInvalidKey, o.Status(StepZhipu).Message)

	f.chat.err = errors.New("timeout")
	assert.Error(t, f.wizard.Next(ctx))
	assert.Equal(t, MsgZhipuFailed, o.Status(StepZhipu).Message)

	f.chat.err = nil
	require.NoError(t, f.wizard.Next(ctx))
	assert.Equal(t, StateCompleted, o.State(StepZhipu))
	assert.Equal(t, Status{Message: MsgZhipuVerified, Level: LevelSuccess}, o.Status(StepZhipu))
	assert.True(t, f.wizard.ChatOpen())
}

func TestSendChat(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()

	_, err := f.wizard.SendChat(ctx, "你好")
	assert.ErrorIs(t, err, ErrChatClosed)

	f.toRecording(t)
	require.NoError(t, f.wizard.SetField(session.FieldZhipuAPIKey, "zhipu-key"))
	f.wizard.setTranscript("今天天气很好我们一起去公园散步吧")
	require.NoError(t, f.wizard.Orchestrator().Activate(StepZhipu))
	require.NoError(t, f.wizard.Next(ctx))

	f.chat.reply = "你好！"
	reply, err := f.wizard.SendChat(ctx, "你好")
	require.NoError(t, err)
	assert.Equal(t, "你好！", reply)
	assert.Len(t, f.chat.messages[1], 3)

	_, err = f.wizard.SendChat(ctx, "  ")
	assert.ErrorIs(t, err, ErrEmptyChat)

	require.NoError(t, f.wizard.GoBack(StepZhipu, false))
	assert.False(t, f.wizard.ChatOpen())
}

func TestImportRestartsFromFirstStep(t *testing.T) {
	f := newFlow(t)
	for step := 1; step <= 4; step++ {
		f.store.MarkCompleted(step)
	}
	ctx := context.Background()
	require.NoError(t, f.wizard.Start(ctx))
	assert.Equal(t, StepAppKey, f.wizard.Orchestrator().Current())

	doc := []byte(`{"appKey":"app","accessKeyId":"id","accessKeySecret":"secret","apiBaseUrl":"ignored"}`)
	require.NoError(t, f.wizard.Import(ctx, doc))

	assert.Equal(t, StepRecording, f.wizard.Orchestrator().Current())
	assert.Equal(t, 1, f.gateway.clearTokens)
	assert.Equal(t, 0, f.wizard.Guard().Pending())

	assert.ErrorIs(t, f.wizard.Import(ctx, []byte(`[1,2]`)), session.ErrInvalidImport)
}

func TestExportOnlyCompleteSteps(t *testing.T) {
	f := newFlow(t)
	require.NoError(t, f.wizard.SetField(session.FieldAppKey, "app"))
	require.NoError(t, f.wizard.SetField(session.FieldAccessKeyID, "id"))

	data, err := f.wizard.Export()
	require.NoError(t, err)
	assert.JSONEq(t, `{"appKey":"app"}`, string(data))
}

func TestClearResetsWizard(t *testing.T) {
	f := newFlow(t)
	f.toRecording(t)

	require.NoError(t, f.wizard.Clear())

	assert.Equal(t, StepService, f.wizard.Orchestrator().Current())
	assert.Empty(t, f.store.CompletedSteps())
	assert.Empty(t, f.store.Get(session.FieldAppKey))
}

func TestSaveArtifact(t *testing.T) {
	f := newFlow(t)
	path := filepath.Join(t.TempDir(), "recording.mp3")

	artifact, err := f.wizard.SaveArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, "mp3", artifact.Format)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3"), data)

	f.recorder.artifact = nil
	_, err = f.wizard.SaveArtifact(path)
	assert.ErrorIs(t, err, ErrNoArtifact)
}

func TestAutoStopSubmitsRecognition(t *testing.T) {
	f := newFlow(t)
	f.toRecording(t)
	ctx := context.Background()
	require.NoError(t, f.wizard.ToggleRecording(ctx))

	artifact, err := f.recorder.Stop()
	f.recorder.onAutoStop(artifact, err)

	assert.Equal(t, StateCompleted, f.wizard.Orchestrator().State(StepRecording))
}
