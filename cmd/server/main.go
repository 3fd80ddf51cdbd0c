package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aliyun_voice_wizard/internal/clients/aliyun"
	"aliyun_voice_wizard/internal/clients/nls"
	"aliyun_voice_wizard/internal/config"
	"aliyun_voice_wizard/internal/handlers"
	"aliyun_voice_wizard/internal/logger"
	"aliyun_voice_wizard/internal/metrics"
	"aliyun_voice_wizard/internal/middleware"
	"aliyun_voice_wizard/internal/routes"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径")
	autoOpen := flag.Bool("open", false, "启动后自动打开浏览器")
	flag.BoolVar(autoOpen, "o", false, "同 -open")
	flag.Parse()

	cfg, err := config.Load(config.ResolvePath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *autoOpen {
		cfg.Server.AutoOpen = true
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Errorw("服务异常退出", "error", err)
		os.Exit(1)
	}
}

// newEngine 组装网关的路由和中间件
func newEngine(cfg *config.Config, log *zap.SugaredLogger, m *metrics.Metrics) *gin.Engine {
	issuer := aliyun.NewSDKTokenIssuer(aliyun.TokenConfig{
		Region:  cfg.Aliyun.Region,
		Domain:  cfg.Aliyun.TokenDomain,
		Version: cfg.Aliyun.TokenVersion,
	})
	recognizer := aliyun.NewRecognizer(cfg.Aliyun.RecognizeURL, cfg.Aliyun.RequestTimeout)
	dialer := &handlers.NLSDialer{
		Config: nls.Config{
			URL:              cfg.Aliyun.StreamURL,
			HandshakeTimeout: cfg.Aliyun.RequestTimeout,
			StartTimeout:     cfg.Aliyun.StartTimeout,
		},
		Logger: log,
	}

	r := gin.New()
	middleware.Setup(r, log, m)
	routes.RegisterRoutes(r, routes.Handlers{
		Token:     handlers.NewTokenHandler(issuer, log, m),
		Recognize: handlers.NewRecognizeHandler(recognizer, log, m),
		Stream:    handlers.NewStreamHandler(dialer, cfg.WebSocket, log, m),
		Metrics:   m,
		StaticDir: cfg.Server.StaticDir,
	})
	return r
}

func run(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) error {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("监听端口失败: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	url := fmt.Sprintf("http://localhost:%d", port)

	srv := &http.Server{Handler: newEngine(cfg, log, m)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("阿里云语音识别服务器启动成功", "url", url)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP服务异常: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Infow("正在关闭服务器")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Server.AutoOpen {
		log.Infow("正在自动打开浏览器", "url", url)
		if err := openBrowser(url); err != nil {
			log.Warnw("自动打开浏览器失败，请手动访问", "url", url, "error", err)
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Infow("服务器已关闭")
	return nil
}
