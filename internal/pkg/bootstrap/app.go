// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"ecoquiz/internal/pkg/logger"
	"ecoquiz/internal/pkg/nacos"
	"ecoquiz/internal/pkg/tracing"
)

// AppCtx 传递给路由注册回调的上下文。
type AppCtx struct {
	Mux *http.ServeMux
}

// AppInfo 包含了启动一个服务所需的全部信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx)
	// OnShutdown 在 HTTP 服务器关闭前按注册顺序的逆序执行，
	// 用于停掉消费者、关闭连接池等。
	OnShutdown []func(ctx context.Context)
}

// StartService 封装了服务的通用启动和优雅关停逻辑：
// 日志、追踪、可选的 Nacos 注册、HTTP 服务器、信号处理。
// 该函数会阻塞直到收到退出信号。
func StartService(info AppInfo) {
	logger.Init(info.ServiceName)
	cfg := GetCurrentConfig()

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	var nacosClient *nacos.Client
	var ip string
	if cfg.Infra.Nacos.Enabled {
		nacosClient, err = nacos.NewClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to initialize nacos client")
		}
		ip, err = outboundIP()
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to determine outbound IP")
		}
		if err := nacosClient.Register(info.ServiceName, ip, info.Port); err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to register service with nacos")
		}
	}

	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux})
	}
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(info.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Logger.Info().Msgf("%s listening on %s", info.ServiceName, server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Logger.Info().Msgf("Shutting down service %s...", info.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 关停顺序：先摘流量，再停业务组件，最后停服务器和追踪
	if nacosClient != nil {
		if err := nacosClient.Deregister(info.ServiceName, ip, info.Port); err != nil {
			logger.Logger.Error().Err(err).Msg("error deregistering from nacos")
		}
	}

	for i := len(info.OnShutdown) - 1; i >= 0; i-- {
		info.OnShutdown[i](ctx)
	}

	if err := server.Shutdown(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("error shutting down http server")
	}
	if err := tp.Shutdown(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("error shutting down tracer provider")
	}

	logger.Logger.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}

// outboundIP 通过一次 UDP "连接" 探测本机对外 IP，不产生真实流量。
func outboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}
