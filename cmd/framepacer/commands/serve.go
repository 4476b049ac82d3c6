package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/FramePacer/internal/api"
	"github.com/bryanchriswhite/FramePacer/internal/clock"
	"github.com/bryanchriswhite/FramePacer/internal/config"
	"github.com/bryanchriswhite/FramePacer/internal/engine"
	"github.com/bryanchriswhite/FramePacer/internal/inhibit"
	"github.com/bryanchriswhite/FramePacer/internal/logger"
	"github.com/bryanchriswhite/FramePacer/internal/output"
	"github.com/bryanchriswhite/FramePacer/internal/overlay"
	"github.com/bryanchriswhite/FramePacer/internal/source"
	_ "github.com/bryanchriswhite/FramePacer/internal/source/gstsrc"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the FramePacer server",
	Long: `Start decoding the configured source into the frame pool, present the
frames on the configured output and serve the control API.`,
	Example: `  # Start server on default port (8080)
  framepacer serve

  # Start server on custom port
  framepacer serve --port 9090

  # Play a file through GStreamer
  framepacer serve --source gst --uri file:///tmp/movie.mkv

  # Start with debug logging
  framepacer serve --log-level debug`,
	RunE: runServe,
}

var (
	serveSource string
	serveURI    string
	serveDriver string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveSource, "source", "", "source kind (pattern, gst or x11grab)")
	serveCmd.Flags().StringVar(&serveURI, "uri", "", "media uri for the gst source")
	serveCmd.Flags().StringVar(&serveDriver, "driver", "", "output driver (mjpeg, x11 or null)")
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Println("FramePacer - frame pool and presentation scheduler")
	fmt.Println("==================================================")

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}

	// Override port from flag if provided
	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			configMgr.SetPort(port)
		}
	}

	// Override log level from flag if provided
	if viper.IsSet("log_level") {
		if logLevel := viper.GetString("log_level"); logLevel != "" {
			configMgr.SetLogLevel(logLevel)
		}
	}

	cfg := configMgr.Get()
	if serveSource != "" {
		cfg.Source.Kind = serveSource
	}
	if serveURI != "" {
		cfg.Source.URI = serveURI
	}
	if serveDriver != "" {
		cfg.Output.Driver = serveDriver
	}

	logger.Init(cfg.LogLevel, cfg.LogPretty)
	log := logger.WithComponent("serve")
	log.Info().
		Str("path", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	master := clock.NewMaster()

	drv, err := output.New(cfg.Output.Driver, output.Config{
		Width:   cfg.Output.Width,
		Height:  cfg.Output.Height,
		Quality: cfg.Output.Quality,
		Title:   cfg.Output.Title,
	})
	if err != nil {
		return err
	}
	if err := drv.Open(); err != nil {
		return fmt.Errorf("failed to open %s output: %w", drv.Name(), err)
	}
	defer drv.Close()

	eng := engine.New(master, drv, engine.OptionsFromConfig(cfg.Engine))
	defer eng.Close()

	overlayMgr := overlay.NewManager()
	overlayMgr.SetEnabled(cfg.Overlay.Enabled)
	overlayMgr.LoadFromConfig(cfg.Overlay.Widgets)
	if cfg.Overlay.Stats {
		if _, exists := overlayMgr.GetWidget("stats"); !exists {
			if w, err := overlayMgr.CreateWidget("stats", "stats", nil); err == nil {
				overlayMgr.AddWidget(w)
			}
		}
	}
	eng.SetOverlay(overlayMgr)

	srcCfg, err := source.FromConfig(cfg.Source, cfg.Engine)
	if err != nil {
		return err
	}
	src, err := source.New(eng, srcCfg)
	if err != nil {
		return err
	}

	if cfg.InhibitScreensaver {
		if inh := startInhibitor(master, log); inh != nil {
			defer inh.Close()
		}
	}

	configMgr.Watch(func(c *config.Config) {
		zerolog.SetGlobalLevel(logger.ParseLevel(c.LogLevel))
		overlayMgr.SetEnabled(c.Overlay.Enabled)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		if err := src.Run(ctx); err != nil {
			errCh <- fmt.Errorf("%s source: %w", src.Name(), err)
			return
		}
		log.Info().Str("source", src.Name()).Msg("Source finished")
	}()
	go runStatsOverlay(ctx, eng, overlayMgr)

	mjpeg, _ := drv.(*output.MJPEGDriver)
	server := api.NewServer(eng, configMgr, overlayMgr, mjpeg)
	go func() {
		if err := server.Start(cfg.ServerPort); err != nil {
			errCh <- fmt.Errorf("server: %w", err)
		}
	}()

	log.Info().
		Int("port", cfg.ServerPort).
		Str("source", src.Name()).
		Str("driver", drv.Name()).
		Msgf("FramePacer is running, API at http://localhost:%d/api", cfg.ServerPort)

	select {
	case <-ctx.Done():
	case err = <-errCh:
		log.Error().Err(err).Msg("Shutting down after error")
	}

	log.Info().Msg("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil && !errors.Is(serr, context.DeadlineExceeded) {
		log.Warn().Err(serr).Msg("Server shutdown")
	}
	return err
}

// startInhibitor keeps the screensaver off while the clock runs at normal
// speed. It returns nil when no session bus is available.
func startInhibitor(master *clock.Master, log *zerolog.Logger) *inhibit.Inhibitor {
	bus, err := inhibit.Connect()
	if err != nil {
		log.Warn().Err(err).Msg("Screensaver inhibition unavailable")
		return nil
	}
	inh := inhibit.New(bus, "framepacer")
	master.OnSpeedChange(inh.FollowSpeed)
	inh.FollowSpeed(clock.SpeedPause, master.Speed())
	return inh
}

// runStatsOverlay refreshes the stats widgets twice a second
func runStatsOverlay(ctx context.Context, e *engine.Engine, m *overlay.Manager) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var prev engine.Stats
	prevAt := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s := e.Stats()
			m.UpdateStats(statsLines(s, prev, now.Sub(prevAt)))
			prev, prevAt = s, now
		}
	}
}

// statsLines formats the overlay text from two snapshots taken elapsed apart
func statsLines(s, prev engine.Stats, elapsed time.Duration) []string {
	fps := 0.0
	if elapsed > 0 && s.Displayed >= prev.Displayed {
		fps = float64(s.Displayed-prev.Displayed) / elapsed.Seconds()
	}
	return []string{
		fmt.Sprintf("%s  %.1f fps", s.State.ModeName, fps),
		fmt.Sprintf("pool %d/%d free  queued %d", s.Free, s.PoolSize, s.DisplayQueued),
		fmt.Sprintf("shown %d  skipped %d  discarded %d", s.Displayed, s.Skipped, s.Discarded),
		fmt.Sprintf("clock %.3fs", clock.Duration(s.Clock).Seconds()),
	}
}
