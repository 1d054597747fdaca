package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/cursormirror/cursormirrord/internal/auth"
	"github.com/cursormirror/cursormirrord/internal/capture"
	"github.com/cursormirror/cursormirrord/internal/clock"
	"github.com/cursormirror/cursormirrord/internal/config"
	"github.com/cursormirror/cursormirrord/internal/encoder"
	"github.com/cursormirror/cursormirrord/internal/frame"
	internalhttp "github.com/cursormirror/cursormirrord/internal/http"
	"github.com/cursormirror/cursormirrord/internal/http/handlers"
	"github.com/cursormirror/cursormirrord/internal/http/middleware"
	"github.com/cursormirror/cursormirrord/internal/observability"
	"github.com/cursormirror/cursormirrord/internal/quality"
	"github.com/cursormirror/cursormirrord/internal/ratelimit"
	"github.com/cursormirror/cursormirrord/internal/segment"
	"github.com/cursormirror/cursormirrord/internal/session"
	"github.com/cursormirror/cursormirrord/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cursormirrord streaming daemon",
	Long: `Start the cursormirrord HTTP server.

The server:
- Encodes a desktop capture source as H.264 at one or more qualities
- Segments the encoded stream into rolling MPEG-TS files per quality
- Serves master/media playlists and segments over HTTP as HLS
- Exposes health, version and admin-stats endpoints`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// qualityPipeline bundles one configured quality's Encoder and its
// encoder->engine Pump together with the resolution it resizes frames to
// before submission.
type qualityPipeline struct {
	quality quality.Quality
	enc     *encoder.Encoder
	pump    *segment.Pump
	width   int
	height  int
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.Default()
	observability.SetRequestLogging(cfg.Logging.LogRequests)

	qualities, err := cfg.Encoder.Qualities()
	if err != nil {
		return fmt.Errorf("resolving configured qualities: %w", err)
	}

	engine, err := segment.NewEngine(segment.Config{
		BaseDir:        cfg.Encoder.SegmentDir,
		Retention:      cfg.Encoder.Retention,
		TargetDuration: cfg.Encoder.TargetDuration(),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("initializing segment engine: %w", err)
	}

	pipelines := make([]*qualityPipeline, 0, len(qualities))
	widest, tallest := 0, 0
	for _, q := range qualities {
		s := q.Settings()
		if s.Width > widest {
			widest = s.Width
		}
		if s.Height > tallest {
			tallest = s.Height
		}
		pipelines = append(pipelines, &qualityPipeline{
			quality: q,
			enc:     encoder.New(cfg.Encoder.FFmpegBinaryPath, logger),
			width:   s.Width,
			height:  s.Height,
		})
	}

	authMgr := auth.New(auth.Config{
		Methods:         []auth.Method{auth.Method(cfg.Auth.Method)},
		Username:        cfg.Auth.Username,
		Password:        cfg.Auth.Password,
		APIKey:          cfg.Auth.APIKey,
		SessionDuration: cfg.Auth.TokenTTL(),
		Clock:           clock.Real(),
	})

	sessionMgr := session.New(session.Config{
		IdleTimeout:      cfg.Auth.IdleTimeout(),
		SingleViewerOnly: cfg.Auth.SingleViewerOnly,
		Clock:            clock.Real(),
	})

	limiter := ratelimit.New(ratelimit.Config{
		Enabled:                cfg.RateLimit.Enabled,
		RequestsPerMinute:      cfg.RateLimit.RequestsPerMinute,
		ExcludedPaths:          cfg.RateLimit.ExcludedPaths,
		AuthEndpointMultiplier: cfg.RateLimit.AuthEndpointMultiplier,
		CleanupInterval:        cfg.RateLimit.CleanupInterval(),
		Clock:                  clock.Real(),
	})

	serverCfg := internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	server := internalhttp.NewServer(serverCfg, logger, version.Version)

	registerRoutes(server, cfg, qualities, engine, pipelines, authMgr, sessionMgr, limiter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	var src frame.Source
	if cfg.Server.AutoStart {
		src, err = startPipeline(ctx, logger, engine, pipelines, widest, tallest)
		if err != nil {
			return fmt.Errorf("starting capture pipeline: %w", err)
		}
		defer func() {
			src.Stop()
			for _, p := range pipelines {
				p.enc.Stop()
				p.pump.Close()
				engine.Stop(p.quality)
			}
		}()
	} else {
		logger.Info("auto_start disabled, serving HTTP without an active capture pipeline")
	}

	go runJanitor(ctx, sessionMgr, limiter, logger)

	logger.Info("starting cursormirrord server",
		slog.String("host", serverCfg.Host),
		slog.Int("port", serverCfg.Port),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}

// startPipeline starts the segment engine and one Encoder per configured
// quality, then launches the capture→resize→submit pump. The capture
// source itself is a synthetic test pattern: real desktop capture is an
// external collaborator (see the FrameSource module) that plugs in here via
// frame.PushBridge in place of capture.NewSynthetic.
func startPipeline(ctx context.Context, logger *slog.Logger, engine *segment.Engine, pipelines []*qualityPipeline, width, height int) (frame.Source, error) {
	for _, p := range pipelines {
		if err := engine.Start(p.quality); err != nil {
			return nil, fmt.Errorf("starting segment engine for %s: %w", p.quality, err)
		}
		frameRate := p.quality.Settings().FrameRate
		frameInterval := time.Second
		if frameRate > 0 {
			frameInterval = time.Duration(float64(time.Second) / frameRate)
		}
		pump := segment.NewPump(engine, frameInterval, logger)
		p.pump = pump
		if err := p.enc.Start(ctx, encoder.Settings{
			Quality:          p.quality,
			Width:            p.width,
			Height:           p.height,
			PixelFormat:      frame.PixelFormatBGRA,
			BitrateBPS:       p.quality.Settings().BitrateBPS,
			FrameRate:        frameRate,
			KeyframeInterval: p.quality.Settings().KeyframeInterval,
		}, pump.Push); err != nil {
			return nil, fmt.Errorf("starting encoder for %s: %w", p.quality, err)
		}
	}

	src := capture.NewSynthetic(width, height, 30, frame.PixelFormatBGRA)
	go pump(ctx, logger, src, pipelines)
	return src, nil
}

// pump reads frames from src and, for every configured quality, resizes to
// that quality's target resolution and submits to its Encoder. One
// capture source feeds every quality's encoder.
func pump(ctx context.Context, logger *slog.Logger, src frame.Source, pipelines []*qualityPipeline) {
	for {
		f, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("capture source failed", slog.String("error", err.Error()))
			}
			return
		}
		if f == nil {
			return
		}
		for _, p := range pipelines {
			scaled := frame.Resize(f, p.width, p.height)
			if err := p.enc.Submit(scaled); err != nil {
				logger.Warn("encoder submit failed", slog.String("quality", string(p.quality)), slog.String("error", err.Error()))
			}
		}
	}
}

// runJanitor periodically reaps idle stream sessions and stale rate-limit
// identities, per the janitor task described in the concurrency model.
func runJanitor(ctx context.Context, sessionMgr *session.Manager, limiter *ratelimit.Limiter, logger *slog.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := sessionMgr.Reap(); evicted > 0 {
				logger.Debug("reaped idle stream sessions", slog.Int("count", evicted))
			}
			if removed := limiter.Cleanup(); removed > 0 {
				logger.Debug("cleaned up rate-limit identities", slog.Int("count", removed))
			}
		}
	}
}

func registerRoutes(
	server *internalhttp.Server,
	cfg *config.Config,
	qualities []quality.Quality,
	engine *segment.Engine,
	pipelines []*qualityPipeline,
	authMgr *auth.Manager,
	sessionMgr *session.Manager,
	limiter *ratelimit.Limiter,
) {
	var primaryEncoder *encoder.Encoder
	if len(pipelines) > 0 {
		primaryEncoder = pipelines[0].enc
	}

	docsHandler := handlers.NewDocsHandler("cursormirrord API", "/openapi.yaml", handlers.WithSystemTheme())
	server.Router().Get("/docs", docsHandler.ServeHTTP)

	healthHandler := handlers.NewHealthHandler(version.Version, qualities, engine, primaryEncoder)
	healthHandler.Register(server.API())

	versionHandler := &handlers.VersionHandler{}
	versionHandler.Register(server.API())

	adminHandler := handlers.NewAdminHandler(qualities, primaryEncoder, engine, sessionMgr, limiter, server.RequestLog())
	adminAPI := server.MountAPI("/admin", "cursormirrord admin",
		middleware.RateLimit(limiter, "/admin"),
		middleware.Auth(authMgr, cfg.Auth.RequireAdminAuth),
		middleware.Brotli(),
	)
	adminHandler.Register(adminAPI)

	streamHandler := handlers.NewStreamHandler(engine, qualities, cfg.Encoder.BaseURL)
	server.Router().Route("/stream", func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter))
		r.Use(middleware.Auth(authMgr, cfg.Auth.RequireStreamAuth))
		r.Use(middleware.Session(sessionMgr))
		r.Get("/master.m3u8", streamHandler.Master)
		r.Get("/{quality}/index.m3u8", streamHandler.Media)
		r.Get("/{quality}/{segment}", streamHandler.Segment)
	})
}
