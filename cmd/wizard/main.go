package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"aliyun_voice_wizard/internal/audio"
	"aliyun_voice_wizard/internal/clients/gateway"
	"aliyun_voice_wizard/internal/clients/zhipu"
	"aliyun_voice_wizard/internal/config"
	"aliyun_voice_wizard/internal/logger"
	"aliyun_voice_wizard/internal/session"
	"aliyun_voice_wizard/internal/wizard"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径")
	input := flag.String("input", "", "用WAV文件代替麦克风")
	flag.Parse()

	cfg, err := config.Load(config.ResolvePath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	storage, closeStorage, err := session.Open(cfg.Storage)
	if err != nil {
		log.Fatalw("打开会话存储失败", "driver", cfg.Storage.Driver, "error", err)
	}
	defer closeStorage() //nolint:errcheck

	codec, err := audio.CodecFor(cfg.Recorder.Format, cfg.Recorder.Bitrate)
	if err != nil {
		log.Fatalw("创建音频编码器失败", "format", cfg.Recorder.Format, "error", err)
	}

	var device audio.Device
	if *input != "" {
		device = audio.NewWAVFileDevice(*input, true)
		log.Infow("使用WAV文件作为录音输入", "path", *input)
	} else {
		device = newMicrophone()
	}

	recorder := audio.NewRecorder(device, audio.Options{
		SampleRate:  cfg.Recorder.SampleRate,
		BlockSize:   cfg.Recorder.BlockSize,
		MaxDuration: cfg.Recorder.MaxDuration,
		QueueSize:   cfg.Recorder.QueueSize,
		Codec:       codec,
	}, log)

	term := newTerminal(os.Stdout)
	w := wizard.NewWizard(wizard.Deps{
		Config:        cfg.Wizard,
		RecognizeRate: cfg.Recorder.TargetSampleRate,
		Store:         session.NewStore(storage, log),
		Gateway:       gateway.NewClient(cfg.Wizard.APIBaseURL, cfg.Aliyun.RequestTimeout),
		Chat: zhipu.NewClient(zhipu.Config{
			BaseURL:     cfg.Zhipu.BaseURL,
			Model:       cfg.Zhipu.Model,
			Temperature: cfg.Zhipu.Temperature,
			Timeout:     cfg.Zhipu.Timeout,
		}),
		Recorder:  recorder,
		Presenter: term,
		Listener:  term,
		Logger:    log,
	})
	defer w.Close()
	term.bind(w.Orchestrator())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infow("阿里云语音识别配置向导启动", "gateway", cfg.Wizard.APIBaseURL, "storage", cfg.Storage.Driver)
	if err := w.Start(ctx); err != nil {
		log.Warnw("自动跳转中断", "error", err)
	}

	cli := &commandLoop{ctx: ctx, wizard: w, recorder: recorder, out: term}
	cli.run(os.Stdin)
}
