// Package pipeline wires the capture, reassembly, decoding and
// aggregation stages into one processing chain.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/gopacket"

	"github.com/akzios/bpsr-tools-sub001/internal/capture"
	"github.com/akzios/bpsr-tools-sub001/internal/clock"
	"github.com/akzios/bpsr-tools-sub001/internal/combat"
	"github.com/akzios/bpsr-tools-sub001/internal/core"
	"github.com/akzios/bpsr-tools-sub001/internal/log"
	"github.com/akzios/bpsr-tools-sub001/internal/metrics"
	"github.com/akzios/bpsr-tools-sub001/internal/protocol"
	"github.com/akzios/bpsr-tools-sub001/internal/stream"
)

// Config assembles a Pipeline. Source and Aggregator are required; the
// rest defaults.
type Config struct {
	Source        capture.Source
	Aggregator    *combat.Aggregator
	MaxFrameBytes uint32
	GapTimeout    time.Duration
	FlowIdle      time.Duration
	Clock         clock.Clock
	BufferSize    int // raw packet channel depth
}

type rawPacket struct {
	data []byte
	ci   gopacket.CaptureInfo
}

// Pipeline is a single capture-to-aggregation processing chain. Within
// one pipeline processing is strictly sequential: correctness depends
// on segment order, so there is nothing to parallelize per flow.
type Pipeline struct {
	source  capture.Source
	agg     *combat.Aggregator
	tracker *stream.Tracker
	cfg     Config
	log     log.Logger

	scanners []*protocol.FrameScanner
	rawCh    chan rawPacket

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a pipeline from cfg.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("pipeline: source is required")
	}
	if cfg.Aggregator == nil {
		return nil, fmt.Errorf("pipeline: aggregator is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		source: cfg.Source,
		agg:    cfg.Aggregator,
		cfg:    cfg,
		log:    log.GetLogger().WithField("component", "pipeline"),
		rawCh:  make(chan rawPacket, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	p.tracker = stream.NewTracker(p.newFlowOutput, stream.TrackerConfig{
		Reassembler: stream.Config{
			GapTimeout: cfg.GapTimeout,
			Clock:      cfg.Clock,
		},
		FlowIdle: cfg.FlowIdle,
	})
	return p, nil
}

// newFlowOutput builds the frame decoder for a newly tracked flow. Each
// flow gets its own scanner; events from all flows funnel into the one
// aggregator.
func (p *Pipeline) newFlowOutput(flow core.FlowKey) stream.Output {
	s := protocol.NewFrameScanner(p.agg.Ingest, p.cfg.MaxFrameBytes)
	p.scanners = append(p.scanners, s)
	return s
}

// Start opens the capture source and launches the processing
// goroutines. A source open failure is fatal and returned immediately;
// every later error is absorbed and logged.
func (p *Pipeline) Start() error {
	if err := p.source.Open(); err != nil {
		return err
	}
	p.log.Info("pipeline starting")

	p.wg.Add(1)
	go p.captureLoop()

	p.wg.Add(1)
	go p.processLoop()

	return nil
}

// Stop tears the pipeline down and waits for the goroutines to finish.
func (p *Pipeline) Stop() {
	p.log.Info("pipeline stopping")
	p.cancel()
	p.wg.Wait()
	p.tracker.Close()
	for _, s := range p.scanners {
		s.Close()
	}
	if err := p.source.Close(); err != nil {
		p.log.WithError(err).Warn("capture source close failed")
	}
	p.log.Info("pipeline stopped")
}

// captureLoop reads packets from the source into the raw channel.
func (p *Pipeline) captureLoop() {
	defer p.wg.Done()
	defer close(p.rawCh)

	for {
		if p.ctx.Err() != nil {
			return
		}
		data, ci, err := p.source.ReadPacket()
		switch {
		case err == nil:
		case err == capture.ErrReadTimeout:
			continue
		case err == io.EOF:
			p.log.Info("capture source exhausted")
			return
		default:
			if p.ctx.Err() == nil {
				p.log.WithError(err).Error("capture read failed")
				metrics.CaptureDropsTotal.WithLabelValues("read_error").Inc()
			}
			return
		}

		metrics.CapturePacketsTotal.Inc()
		// Copy out: capture handles may reuse the packet buffer.
		buf := make([]byte, len(data))
		copy(buf, data)

		select {
		case p.rawCh <- rawPacket{data: buf, ci: ci}:
		case <-p.ctx.Done():
			return
		}
	}
}

// processLoop decodes raw packets and drives reassembly. All stages
// downstream of capture run on this one goroutine, which keeps segment
// order intact without locks.
func (p *Pipeline) processLoop() {
	defer p.wg.Done()

	decoder := capture.NewSegmentDecoder(p.source.LinkType())
	for {
		select {
		case <-p.ctx.Done():
			return
		case raw, ok := <-p.rawCh:
			if !ok {
				return
			}
			seg, ok := decoder.Decode(raw.data, &raw.ci)
			if !ok {
				metrics.CaptureDropsTotal.WithLabelValues("not_tcp").Inc()
				continue
			}
			p.tracker.Push(seg)
		}
	}
}
