package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/akzios/bpsr-tools-sub001/internal/capture"
	"github.com/akzios/bpsr-tools-sub001/internal/combat"
	"github.com/akzios/bpsr-tools-sub001/internal/config"
	"github.com/akzios/bpsr-tools-sub001/internal/log"
	"github.com/akzios/bpsr-tools-sub001/internal/metrics"
	"github.com/akzios/bpsr-tools-sub001/internal/pipeline"
	"github.com/akzios/bpsr-tools-sub001/internal/server"
)

var (
	configFile string
	flagDevice string
	flagFile   string
	flagHost   string
	flagPort   uint16
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start capturing and aggregating combat traffic",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart()
	},
}

func init() {
	startCmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path (YAML)")
	startCmd.Flags().StringVar(&flagDevice, "device", "", "capture device, overrides config")
	startCmd.Flags().StringVar(&flagFile, "file", "", "pcap file to replay, overrides config")
	startCmd.Flags().StringVar(&flagHost, "server-host", "", "game server host, overrides config")
	startCmd.Flags().Uint16Var(&flagPort, "server-port", 0, "game server port, overrides config")
	rootCmd.AddCommand(startCmd)
}

func runStart() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Init(&cfg.Log)
	logger := log.GetLogger()
	logger.WithField("version", Version).Info("bpsr-meter starting")

	source, err := capture.NewSource(capture.Config{
		Type:         cfg.Capture.Type,
		Device:       cfg.Capture.Device,
		File:         cfg.Capture.File,
		SnapLen:      cfg.Capture.SnapLen,
		BufferSizeMB: cfg.Capture.BufferSizeMB,
		TimeoutMs:    cfg.Capture.TimeoutMs,
		ServerHost:   cfg.Capture.ServerHost,
		ServerPort:   cfg.Capture.ServerPort,
	})
	if err != nil {
		return err
	}

	agg := combat.NewAggregator(combat.Config{
		TickInterval: cfg.Aggregator.TickInterval,
		WindowSize:   cfg.Aggregator.WindowSize,
	})
	agg.Start()
	defer agg.Stop()

	p, err := pipeline.New(pipeline.Config{
		Source:        source,
		Aggregator:    agg,
		MaxFrameBytes: cfg.Decoder.MaxFrameBytes,
		GapTimeout:    cfg.Aggregator.GapTimeout,
		FlowIdle:      cfg.Aggregator.FlowIdle,
	})
	if err != nil {
		return err
	}
	if err := p.Start(); err != nil {
		return fmt.Errorf("pipeline start failed: %w", err)
	}
	defer p.Stop()

	ctx := context.Background()

	if cfg.Server.Enabled {
		srv := server.NewServer(cfg.Server.Addr, agg)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer srv.Stop(ctx)
	}

	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path)
		if err := ms.Start(ctx); err != nil {
			return err
		}
		defer ms.Stop(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.WithField("signal", sig.String()).Info("shutting down")
	return nil
}

// loadConfig reads the config file (if any) and layers CLI flag
// overrides on top before validation.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Read(configFile)
	if err != nil {
		return nil, err
	}

	if flagDevice != "" {
		cfg.Capture.Device = flagDevice
	}
	if flagFile != "" {
		cfg.Capture.File = flagFile
		cfg.Capture.Type = "file"
	}
	if flagHost != "" {
		cfg.Capture.ServerHost = flagHost
	}
	if flagPort != 0 {
		cfg.Capture.ServerPort = flagPort
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
