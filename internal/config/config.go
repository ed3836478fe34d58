package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Defaults shared by both sides, matching the historical desktop app.
const (
	DefaultPort         = 7878
	DefaultWidth        = 256
	DefaultHeight       = 256
	DefaultQuality      = 80
	DefaultFPSCeiling   = 120
	DefaultTimeoutSecs  = 3
	DefaultProtocol     = "tcp"
	DefaultSignalingURL = "ws://localhost:8080"

	defaultDirName     = ".hxstream"
	senderConfigName   = "sender"
	receiverConfigName = "receiver"
)

// SenderConfig holds persisted sender settings. CLI flags override the file
// and HXSTREAM_SENDER_* environment variables.
type SenderConfig struct {
	PeerAddress          string `mapstructure:"peer_address"`
	Port                 int    `mapstructure:"port"`
	Protocol             string `mapstructure:"protocol"`
	Width                int    `mapstructure:"width"`
	Height               int    `mapstructure:"height"`
	Quality              int    `mapstructure:"quality"`
	FPSCeiling           int    `mapstructure:"fps_ceiling"`
	SocketTimeoutSeconds int    `mapstructure:"socket_timeout_seconds"`
	SignalingURL         string `mapstructure:"signaling_url"`
	PeerID               string `mapstructure:"peer_id"`
	LogLevel             string `mapstructure:"log_level"`
	MetricsAddr          string `mapstructure:"metrics_addr"`
}

// ReceiverConfig holds persisted receiver settings.
type ReceiverConfig struct {
	BindAddress          string `mapstructure:"bind_address"`
	Port                 int    `mapstructure:"port"`
	Protocol             string `mapstructure:"protocol"`
	Width                int    `mapstructure:"width"`
	Height               int    `mapstructure:"height"`
	FPSCeiling           int    `mapstructure:"fps_ceiling"`
	SocketTimeoutSeconds int    `mapstructure:"socket_timeout_seconds"`
	SignalingURL         string `mapstructure:"signaling_url"`
	ReceiverID           string `mapstructure:"receiver_id"`
	LogLevel             string `mapstructure:"log_level"`
	MetricsAddr          string `mapstructure:"metrics_addr"`
	Display              bool   `mapstructure:"display"`
}

// LoadSender reads the sender config. An empty path uses
// ~/.hxstream/sender.toml, falling back to defaults when absent.
func LoadSender(configPath string) (*SenderConfig, error) {
	v, err := initViper(configPath, senderConfigName, "HXSTREAM_SENDER")
	if err != nil {
		return nil, err
	}

	v.SetDefault("peer_address", "127.0.0.1")
	v.SetDefault("port", DefaultPort)
	v.SetDefault("protocol", DefaultProtocol)
	v.SetDefault("width", DefaultWidth)
	v.SetDefault("height", DefaultHeight)
	v.SetDefault("quality", DefaultQuality)
	v.SetDefault("fps_ceiling", DefaultFPSCeiling)
	v.SetDefault("socket_timeout_seconds", DefaultTimeoutSecs)
	v.SetDefault("signaling_url", DefaultSignalingURL)
	v.SetDefault("log_level", "info")

	var cfg SenderConfig
	if err := readInto(v, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadReceiver reads the receiver config. Width/height of 0 mean "display at
// native frame size".
func LoadReceiver(configPath string) (*ReceiverConfig, error) {
	v, err := initViper(configPath, receiverConfigName, "HXSTREAM_RECEIVER")
	if err != nil {
		return nil, err
	}

	v.SetDefault("bind_address", "0.0.0.0")
	v.SetDefault("port", DefaultPort)
	v.SetDefault("protocol", DefaultProtocol)
	v.SetDefault("width", 0)
	v.SetDefault("height", 0)
	v.SetDefault("fps_ceiling", DefaultFPSCeiling)
	v.SetDefault("socket_timeout_seconds", DefaultTimeoutSecs)
	v.SetDefault("signaling_url", DefaultSignalingURL)
	v.SetDefault("log_level", "info")

	var cfg ReceiverConfig
	if err := readInto(v, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveSender persists cfg as TOML. An empty path writes
// ~/.hxstream/sender.toml.
func SaveSender(cfg *SenderConfig, path string) error {
	path, err := resolveSavePath(path, senderConfigName)
	if err != nil {
		return err
	}
	return writeTOML(path, map[string]any{
		"peer_address":           cfg.PeerAddress,
		"port":                   cfg.Port,
		"protocol":               cfg.Protocol,
		"width":                  cfg.Width,
		"height":                 cfg.Height,
		"quality":                cfg.Quality,
		"fps_ceiling":            cfg.FPSCeiling,
		"socket_timeout_seconds": cfg.SocketTimeoutSeconds,
		"signaling_url":          cfg.SignalingURL,
		"peer_id":                cfg.PeerID,
		"log_level":              cfg.LogLevel,
		"metrics_addr":           cfg.MetricsAddr,
	})
}

// SaveReceiver persists cfg as TOML. An empty path writes
// ~/.hxstream/receiver.toml.
func SaveReceiver(cfg *ReceiverConfig, path string) error {
	path, err := resolveSavePath(path, receiverConfigName)
	if err != nil {
		return err
	}
	return writeTOML(path, map[string]any{
		"bind_address":           cfg.BindAddress,
		"port":                   cfg.Port,
		"protocol":               cfg.Protocol,
		"width":                  cfg.Width,
		"height":                 cfg.Height,
		"fps_ceiling":            cfg.FPSCeiling,
		"socket_timeout_seconds": cfg.SocketTimeoutSeconds,
		"signaling_url":          cfg.SignalingURL,
		"receiver_id":            cfg.ReceiverID,
		"log_level":              cfg.LogLevel,
		"metrics_addr":           cfg.MetricsAddr,
		"display":                cfg.Display,
	})
}

func resolveSavePath(path, defaultName string) (string, error) {
	if path != "" {
		return path, nil
	}
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultName+".toml"), nil
}

func writeTOML(path string, values map[string]any) error {
	v := viper.New()
	v.SetConfigType("toml")
	for key, value := range values {
		v.Set(key, value)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// DefaultDir returns the hxstream config directory, creating it if needed.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, defaultDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func initViper(configPath, defaultName, envPrefix string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, defaultDirName))
		}
		v.AddConfigPath(".")
		v.SetConfigName(defaultName)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func readInto(v *viper.Viper, out any) error {
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}
