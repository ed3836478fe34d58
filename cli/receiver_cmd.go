package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hxlab/hxstream/internal/config"
	"github.com/hxlab/hxstream/internal/display"
	"github.com/hxlab/hxstream/internal/engine"
	"github.com/hxlab/hxstream/internal/logging"
	"github.com/hxlab/hxstream/internal/metrics"
)

// ReceiverCommand listens for a stream and reports or displays it.
func ReceiverCommand() *cobra.Command {
	var (
		configPath string
		logLevel   string
		withViewer bool
	)

	cmd := &cobra.Command{
		Use:   "receiver",
		Short: "Receive a screen stream and display or report it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadReceiver(configPath)
			if err != nil {
				return fmt.Errorf("load receiver config: %w", err)
			}
			applyReceiverFlags(cmd, cfg)
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("display") {
				cfg.Display = withViewer
			}
			if err := logging.Configure(cfg.LogLevel); err != nil {
				logging.Warn("invalid log level, defaulting to info", logging.Fields{
					logging.FieldError: err.Error(),
				})
			}

			protocol, err := engine.ParseProtocol(cfg.Protocol)
			if err != nil {
				return err
			}

			localID := cfg.ReceiverID
			if localID == "" {
				localID = fmt.Sprintf("receiver-%s", uuid.NewString()[:8])
			}

			settings := engine.Settings{
				Address:       cfg.BindAddress,
				Port:          cfg.Port,
				Protocol:      protocol,
				Width:         cfg.Width,
				Height:        cfg.Height,
				FPSCeiling:    cfg.FPSCeiling,
				Quality:       1, // unused on the receive path
				SocketTimeout: time.Duration(cfg.SocketTimeoutSeconds) * time.Second,
				SignalingURL:  cfg.SignalingURL,
				LocalID:       localID,
			}

			collector := metrics.NewCollector("receiver")
			if cfg.MetricsAddr != "" {
				go func() {
					if err := collector.Serve(cfg.MetricsAddr); err != nil {
						logging.Warn("metrics server failed", logging.Fields{
							logging.FieldAddr:  cfg.MetricsAddr,
							logging.FieldError: err.Error(),
						})
					}
				}()
			}

			logging.Info("starting receiver", logging.Fields{
				logging.FieldAddr:     cfg.BindAddress,
				logging.FieldPort:     cfg.Port,
				logging.FieldProtocol: cfg.Protocol,
			})

			if err := config.SaveReceiver(cfg, ""); err != nil {
				logging.Debug("persist settings", logging.Fields{logging.FieldError: err.Error()})
			}

			if cfg.Display {
				return runWithViewer(settings, collector)
			}
			return runHeadless(settings, collector)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to receiver config file (TOML)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	cmd.Flags().BoolVar(&withViewer, "display", false, "Show the stream in a viewer window")
	cmd.Flags().String("addr", "", "Bind address")
	cmd.Flags().Int("port", 0, "Listen port")
	cmd.Flags().String("protocol", "", "Transport: tcp, udp, or webrtc")
	cmd.Flags().Int("width", 0, "Resize frames to this width (0 = native)")
	cmd.Flags().Int("height", 0, "Resize frames to this height (0 = native)")
	cmd.Flags().Int("fps", 0, "Delivery frames-per-second ceiling")
	cmd.Flags().Int("timeout", 0, "Socket timeout in seconds")
	cmd.Flags().String("signaling", "", "Signaling server URL (webrtc)")
	cmd.Flags().String("receiver-id", "", "Signaling ID to register as (webrtc)")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

func runHeadless(settings engine.Settings, collector *metrics.Collector) error {
	events := engine.Events{
		OnStatus: func(text string) {
			logging.Info(text, nil)
		},
		OnThroughput: func(fps int) {
			logging.Debug("throughput sample", logging.Fields{logging.FieldFPS: fps})
		},
		OnPeerChange: func(identity string) {
			logging.Info("peer changed", logging.Fields{logging.FieldPeer: identity})
		},
	}

	receiver := engine.NewReceiver(settings, events, collector)
	if err := receiver.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logging.Info("shutting down", nil)
		receiver.Stop()
		<-receiver.Done()
	case <-receiver.Done():
	}
	return nil
}

func runWithViewer(settings engine.Settings, collector *metrics.Collector) error {
	viewer := display.NewViewer("hxstream receiver")

	events := engine.Events{
		OnFrame: viewer.SetFrame,
		OnStatus: func(text string) {
			logging.Info(text, nil)
			viewer.SetStatus(text)
		},
		OnThroughput: viewer.SetThroughput,
		OnPeerChange: func(identity string) {
			logging.Info("peer changed", logging.Fields{logging.FieldPeer: identity})
			viewer.SetPeer(identity)
		},
	}

	receiver := engine.NewReceiver(settings, events, collector)
	if err := receiver.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			receiver.Stop()
		case <-receiver.Done():
		}
		viewer.Shutdown()
	}()

	// RunGame must stay on the main goroutine.
	err := viewer.Run()
	receiver.Stop()
	<-receiver.Done()
	return err
}

func applyReceiverFlags(cmd *cobra.Command, cfg *config.ReceiverConfig) {
	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.BindAddress, _ = f.GetString("addr")
	}
	if f.Changed("port") {
		cfg.Port, _ = f.GetInt("port")
	}
	if f.Changed("protocol") {
		cfg.Protocol, _ = f.GetString("protocol")
	}
	if f.Changed("width") {
		cfg.Width, _ = f.GetInt("width")
	}
	if f.Changed("height") {
		cfg.Height, _ = f.GetInt("height")
	}
	if f.Changed("fps") {
		cfg.FPSCeiling, _ = f.GetInt("fps")
	}
	if f.Changed("timeout") {
		cfg.SocketTimeoutSeconds, _ = f.GetInt("timeout")
	}
	if f.Changed("signaling") {
		cfg.SignalingURL, _ = f.GetString("signaling")
	}
	if f.Changed("receiver-id") {
		cfg.ReceiverID, _ = f.GetString("receiver-id")
	}
	if f.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = f.GetString("metrics-addr")
	}
}
