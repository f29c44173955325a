package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/radar-pilot/internal/utils"
)

const DefaultInterval = time.Second

// Config wires a poller to one status query.
type Config[T any] struct {
	// Interval between the end of one query and the start of the next.
	Interval time.Duration
	// ID is passed to Query on every tick.
	ID string
	Query func(ctx context.Context, id string) (T, error)
	// Terminal stops polling after OnResult has seen the value.
	Terminal func(T) bool
	OnResult func(T)
	// OnError receives query failures. Polling continues afterwards.
	OnError func(error)
	Logger  *zap.Logger
}

// Poller runs Query on a fixed interval until Terminal reports true or Stop is
// called. At most one query is outstanding at any time.
type Poller[T any] struct {
	cfg Config[T]

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New[T any](cfg Config[T]) *Poller[T] {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Poller[T]{
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Start launches the loop. Only the first call has an effect, and a poller
// that was stopped before starting never runs.
func (p *Poller[T]) Start(parent context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.stopped {
		return
	}
	p.started = true

	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel

	go p.loop(ctx)
}

// Stop cancels the loop without waiting for it. Safe to call repeatedly.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	p.stopped = true

	if p.cancel != nil {
		p.cancel()
		return
	}

	close(p.done)
}

// Done is closed once the loop has exited.
func (p *Poller[T]) Done() <-chan struct{} {
	return p.done
}

func (p *Poller[T]) loop(ctx context.Context) {
	defer close(p.done)
	defer p.cancel()

	log := p.cfg.Logger.With(zap.String("poll_id", p.cfg.ID), zap.Duration("interval", p.cfg.Interval))
	log.Debug("poller started")

	for {
		if err := utils.WaitFor(ctx, p.cfg.Interval); err != nil {
			log.Debug("poller stopped", zap.Error(err))
			return
		}

		value, err := p.cfg.Query(ctx, p.cfg.ID)

		// A response that lands after Stop belongs to nobody.
		if ctx.Err() != nil {
			log.Debug("discarding response after stop")
			return
		}

		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Debug("status query failed", zap.Error(err))
			}
			if p.cfg.OnError != nil {
				p.cfg.OnError(err)
			}
			continue
		}

		if p.cfg.OnResult != nil {
			p.cfg.OnResult(value)
		}

		if p.cfg.Terminal != nil && p.cfg.Terminal(value) {
			log.Debug("terminal status observed")
			return
		}
	}
}
