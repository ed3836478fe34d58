package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hxlab/hxstream/internal/capture"
	"github.com/hxlab/hxstream/internal/config"
	"github.com/hxlab/hxstream/internal/engine"
	"github.com/hxlab/hxstream/internal/logging"
	"github.com/hxlab/hxstream/internal/metrics"
)

// SenderCommand streams the local display to a peer.
func SenderCommand() *cobra.Command {
	var (
		configPath   string
		logLevel     string
		displayIndex int
	)

	cmd := &cobra.Command{
		Use:   "sender",
		Short: "Capture the local screen and stream it to a peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadSender(configPath)
			if err != nil {
				return fmt.Errorf("load sender config: %w", err)
			}
			applySenderFlags(cmd, cfg)
			if logLevel != "" {
				cfg.LogLevel = logLevel
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

			settings := engine.Settings{
				Address:       cfg.PeerAddress,
				Port:          cfg.Port,
				Protocol:      protocol,
				Width:         cfg.Width,
				Height:        cfg.Height,
				Quality:       cfg.Quality,
				FPSCeiling:    cfg.FPSCeiling,
				SocketTimeout: time.Duration(cfg.SocketTimeoutSeconds) * time.Second,
				SignalingURL:  cfg.SignalingURL,
				LocalID:       fmt.Sprintf("sender-%s", uuid.NewString()[:8]),
				PeerID:        cfg.PeerID,
			}

			provider, err := capture.NewScreenProvider(displayIndex)
			if err != nil {
				return fmt.Errorf("capture init: %w", err)
			}

			collector := metrics.NewCollector("sender")
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

			events := engine.Events{
				OnStatus: func(text string) {
					logging.Info(text, nil)
				},
				OnThroughput: func(fps int) {
					logging.Debug("throughput sample", logging.Fields{logging.FieldFPS: fps})
				},
			}

			sender := engine.NewSender(settings, provider, events, collector)

			logging.Info("starting sender", logging.Fields{
				logging.FieldAddr:     cfg.PeerAddress,
				logging.FieldPort:     cfg.Port,
				logging.FieldProtocol: cfg.Protocol,
				logging.FieldQuality:  cfg.Quality,
				logging.FieldFPS:      cfg.FPSCeiling,
			})

			if err := sender.Start(); err != nil {
				return err
			}
			if err := config.SaveSender(cfg, ""); err != nil {
				logging.Debug("persist settings", logging.Fields{logging.FieldError: err.Error()})
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-sigCh:
				logging.Info("shutting down", nil)
				sender.Stop()
				<-sender.Done()
			case <-sender.Done():
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to sender config file (TOML)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	cmd.Flags().IntVar(&displayIndex, "display-index", 0, "Display to capture (0 = primary)")
	cmd.Flags().String("addr", "", "Peer address to stream to")
	cmd.Flags().Int("port", 0, "Peer port")
	cmd.Flags().String("protocol", "", "Transport: tcp, udp, or webrtc")
	cmd.Flags().Int("width", 0, "Capture crop width")
	cmd.Flags().Int("height", 0, "Capture crop height")
	cmd.Flags().Int("quality", 0, "JPEG quality (1-100)")
	cmd.Flags().Int("fps", 0, "Frames-per-second ceiling")
	cmd.Flags().Int("timeout", 0, "Socket timeout in seconds")
	cmd.Flags().String("signaling", "", "Signaling server URL (webrtc)")
	cmd.Flags().String("peer-id", "", "Receiver signaling ID (webrtc)")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

func applySenderFlags(cmd *cobra.Command, cfg *config.SenderConfig) {
	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.PeerAddress, _ = f.GetString("addr")
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
	if f.Changed("quality") {
		cfg.Quality, _ = f.GetInt("quality")
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
	if f.Changed("peer-id") {
		cfg.PeerID, _ = f.GetString("peer-id")
	}
	if f.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = f.GetString("metrics-addr")
	}
}
