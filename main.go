package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nameishyam/code-together/api"
	"github.com/nameishyam/code-together/config"
	"github.com/nameishyam/code-together/hub"
	"github.com/nameishyam/code-together/metrics"
	"github.com/nameishyam/code-together/protocol"
	ws "github.com/nameishyam/code-together/websocket"
)

var logLevel = new(slog.LevelVar)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	configPath := flag.String("config", os.Getenv("RELAY_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel)

	broadcaster := hub.New()
	collector := metrics.NewCollector()
	handler := protocol.NewHandler(broadcaster, protocol.WithRecorder(collector))
	origins := config.NewOrigins(cfg.AllowedOrigins)

	wsServer := ws.NewServer(handler, ws.Options{
		CheckOrigin:    origins.CheckOrigin,
		SendBuffer:     cfg.SendBuffer,
		MaxMessageSize: cfg.MaxMessageBytes,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		Drops:          collector,
	})

	apiHandler := api.New(broadcaster, wsServer, collector, origins)

	server := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: routes(cfg.WSPath, wsServer, apiHandler),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, func(next *config.Config) {
				origins.Set(next.AllowedOrigins)
				setupLogger(next.LogLevel)
			})
			if err != nil {
				slog.Error("config watch stopped", "error", err)
			}
		}()
	}

	go func() {
		slog.Info("server starting",
			"port", cfg.Port,
			"ws_path", cfg.WSPath,
			"allowed_origins", origins.List(),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	// Hijacked websocket connections are not tracked by http.Server.
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("websocket shutdown error", "error", err)
	}
	rooms, clients := broadcaster.Stats()
	slog.Info("server stopped", "rooms", rooms, "clients", clients)
}

// routes mounts the websocket endpoint at wsPath and the HTTP API everywhere
// else, behind the CORS middleware.
func routes(wsPath string, wsServer http.Handler, apiHandler *api.API) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(wsPath, wsServer)
	apiHandler.Register(mux)
	return apiHandler.CORS(mux)
}

func setupLogger(level string) {
	switch level {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "warn":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}
