// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"time"

	"github.com/akzios/bpsr-tools-sub001/internal/core"
	"github.com/akzios/bpsr-tools-sub001/internal/log"
)

// Config is the top-level configuration. Maps to the root of the YAML
// config file.
type Config struct {
	Capture    CaptureConfig    `mapstructure:"capture"`
	Decoder    DecoderConfig    `mapstructure:"decoder"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Server     ServerConfig     `mapstructure:"server"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        log.LoggerConfig `mapstructure:"log"`
}

// CaptureConfig selects the capture source and the flow of interest.
type CaptureConfig struct {
	// Type is one of "pcap", "afpacket" or "file".
	Type   string `mapstructure:"type"`
	Device string `mapstructure:"device"`
	File   string `mapstructure:"file"`

	// ServerHost/ServerPort identify the game server side of the TCP
	// flow to tap. Empty host means capture any flow matching the port.
	ServerHost string `mapstructure:"server_host"`
	ServerPort uint16 `mapstructure:"server_port"`

	SnapLen      int `mapstructure:"snap_len"`
	BufferSizeMB int `mapstructure:"buffer_size_mb"`
	TimeoutMs    int `mapstructure:"timeout_ms"`
}

// DecoderConfig bounds frame decoding.
type DecoderConfig struct {
	MaxFrameBytes uint32 `mapstructure:"max_frame_bytes"`
}

// AggregatorConfig controls snapshot emission. The defaults are the
// protocol-level constants and normally should not be changed.
type AggregatorConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	WindowSize   int           `mapstructure:"window_size"`
	GapTimeout   time.Duration `mapstructure:"gap_timeout"`
	FlowIdle     time.Duration `mapstructure:"flow_idle"`
}

// ServerConfig configures the local websocket push server.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	switch c.Capture.Type {
	case "", "pcap":
		c.Capture.Type = "pcap"
		if c.Capture.Device == "" {
			return fmt.Errorf("%w: capture.device is required for pcap capture", core.ErrConfigInvalid)
		}
	case "afpacket":
		if c.Capture.Device == "" {
			return fmt.Errorf("%w: capture.device is required for afpacket capture", core.ErrConfigInvalid)
		}
	case "file":
		if c.Capture.File == "" {
			return fmt.Errorf("%w: capture.file is required for file capture", core.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown capture.type %q", core.ErrConfigInvalid, c.Capture.Type)
	}

	if c.Capture.ServerPort == 0 && c.Capture.Type != "file" {
		return fmt.Errorf("%w: capture.server_port is required", core.ErrConfigInvalid)
	}
	if c.Capture.SnapLen <= 0 {
		c.Capture.SnapLen = 65535
	}
	if c.Capture.BufferSizeMB <= 0 {
		c.Capture.BufferSizeMB = 8
	}
	if c.Capture.TimeoutMs <= 0 {
		c.Capture.TimeoutMs = 100
	}

	if c.Decoder.MaxFrameBytes == 0 {
		c.Decoder.MaxFrameBytes = 4 << 20
	}

	if c.Aggregator.TickInterval <= 0 {
		c.Aggregator.TickInterval = 100 * time.Millisecond
	}
	if c.Aggregator.WindowSize <= 0 {
		c.Aggregator.WindowSize = 60
	}
	if c.Aggregator.GapTimeout <= 0 {
		c.Aggregator.GapTimeout = 2 * time.Second
	}
	if c.Aggregator.FlowIdle <= 0 {
		c.Aggregator.FlowIdle = 90 * time.Second
	}

	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8989"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = "127.0.0.1:9290"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Pattern == "" {
		c.Log.Pattern = "%time [%level] %field %msg%n"
	}
	if c.Log.Time == "" {
		c.Log.Time = "2006-01-02 15:04:05.000"
	}
	return nil
}
