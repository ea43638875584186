// Package poller watches the archive for newly stored instances.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Outcome classifies one polling cycle.
type Outcome string

const (
	OutcomeNew       Outcome = "new"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeEmpty     Outcome = "empty"
	OutcomeError     Outcome = "error"
)

// Source lists instance IDs in storage order; the last one is the newest.
type Source interface {
	ListInstances(ctx context.Context) ([]string, error)
}

// Processor handles a newly seen instance.
type Processor interface {
	ProcessInstance(ctx context.Context, instanceID string) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, instanceID string) error

func (f ProcessorFunc) ProcessInstance(ctx context.Context, instanceID string) error {
	return f(ctx, instanceID)
}

type Config struct {
	Interval time.Duration
	// Observe, when set, is called once per cycle.
	Observe func(Outcome)
}

// Poller compares the archive's last instance ID against the last one it
// handed off. An instance is marked seen before it is processed, so a
// failing instance is not retried until a newer one arrives.
type Poller struct {
	source    Source
	processor Processor
	cfg       Config
	logger    zerolog.Logger

	mu       sync.Mutex
	lastSeen string
}

func New(source Source, processor Processor, cfg Config, logger zerolog.Logger) *Poller {
	return &Poller{
		source:    source,
		processor: processor,
		cfg:       cfg,
		logger:    logger.With().Str("component", "poller").Logger(),
	}
}

// LastSeen returns the most recent instance ID handed to the processor.
func (p *Poller) LastSeen() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

// Run polls immediately and then every Interval until ctx is cancelled. It
// returns nil on cancellation.
func (p *Poller) Run(ctx context.Context) error {
	if p.cfg.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", p.cfg.Interval)
	}

	p.logger.Info().Dur("interval", p.cfg.Interval).Msg("listening for new instances")

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		p.Poll(ctx)

		select {
		case <-ctx.Done():
			p.logger.Info().Msg("poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll runs a single cycle.
func (p *Poller) Poll(ctx context.Context) Outcome {
	outcome := p.poll(ctx)
	if p.cfg.Observe != nil {
		p.cfg.Observe(outcome)
	}
	return outcome
}

func (p *Poller) poll(ctx context.Context) Outcome {
	ids, err := p.source.ListInstances(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error().Err(err).Msg("error fetching instances")
		}
		return OutcomeError
	}
	if len(ids) == 0 {
		p.logger.Debug().Msg("no instances found")
		return OutcomeEmpty
	}

	latest := ids[len(ids)-1]
	p.mu.Lock()
	if latest == p.lastSeen {
		p.mu.Unlock()
		p.logger.Debug().Str("instance_id", latest).Msg("no new instance")
		return OutcomeUnchanged
	}
	p.lastSeen = latest
	p.mu.Unlock()

	p.logger.Info().Str("instance_id", latest).Int("instances", len(ids)).Msg("new instance found")
	if err := p.processor.ProcessInstance(ctx, latest); err != nil {
		p.logger.Error().Err(err).Str("instance_id", latest).Msg("error processing instance")
		return OutcomeError
	}
	return OutcomeNew
}
