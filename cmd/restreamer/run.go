package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"restreamer/internal/platform/config"
	"restreamer/internal/platform/logger"
	"restreamer/internal/platform/metrics"
	"restreamer/internal/platform/sdnotify"
	"restreamer/internal/restreamer"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start and stop the pipeline according to the schedule",
		Long: `Polls the schedule every SLEEP_TIME seconds and keeps exactly one pipeline
running while a window is active. When the pipeline looks broken the process
exits with status 1 so that the service manager restarts it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Resolve(opts.configFile)
			if err != nil {
				return err
			}
			log := logger.New(settings.LogLevel, settings.LogFormat)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, settings, log)
		},
	}
}

// run wires the supervisor, event loop and status server and blocks until
// ctx is cancelled or the loop requests a restart.
func run(ctx context.Context, s config.Settings, log *slog.Logger) error {
	sched, err := s.Schedule()
	if err != nil {
		return err
	}
	launcher, err := restreamer.NewShellLauncher(s.PipelineCommand, restreamer.PipelineParams{
		InputURL: s.InputURL,
		Params:   s.FFmpegParams,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	log.Info("restreamer starting",
		slog.Int("windows", sched.Len()),
		slog.String("timezone", s.Timezone),
		slog.Int("buffer_minutes", s.ServiceBuffer),
		slog.Duration("poll_interval", s.PollInterval()),
		slog.Duration("shutdown_grace", s.ShutdownGraceDuration()),
		slog.String("input_url_sha256", config.Fingerprint(s.InputURL)),
		slog.String("ffmpeg_params_sha256", config.Fingerprint(s.FFmpegParams)),
		slog.String("status_addr", s.StatusAddr),
	)
	for _, w := range sched.Windows() {
		log.Info("service window", slog.String("window", w.String()))
	}

	met := metrics.New()
	status := restreamer.NewStatusStore()
	notifier := sdnotify.New(log)
	if wd := notifier.WatchdogInterval(); wd > 0 && wd < s.PollInterval() {
		log.Warn("watchdog interval is shorter than the poll interval",
			slog.Duration("watchdog", wd),
			slog.Duration("poll_interval", s.PollInterval()))
	}

	sup := restreamer.NewSupervisor(launcher, log, met,
		restreamer.WithShutdownGrace(s.ShutdownGraceDuration()))
	loop := restreamer.NewLoop(sched, sup, s.PollInterval(), log,
		restreamer.WithMetrics(met),
		restreamer.WithStatusStore(status),
		restreamer.WithHeartbeat(notifier.Heartbeat))

	g, gctx := errgroup.WithContext(ctx)

	var srv *http.Server
	if s.StatusAddr != "" {
		ln, err := net.Listen("tcp", s.StatusAddr)
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		staleAfter := 3*s.PollInterval() + s.ShutdownGraceDuration() + restreamer.DefaultJoinTimeout
		h := restreamer.NewHandler(status, log, met, staleAfter)
		srv = &http.Server{Handler: h.Routes(), ReadHeaderTimeout: 5 * time.Second}

		log.Info("status server listening", slog.String("addr", ln.Addr().String()))
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		notifier.Ready()
		err := loop.Run(gctx)
		notifier.Stopping()

		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				log.Error("status server shutdown", slog.String("error", serr.Error()))
			}
		}
		return err
	})

	err = g.Wait()
	if err == nil {
		log.Info("restreamer stopped")
	}
	return err
}
