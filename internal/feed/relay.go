// Package feed relays change events from one upstream channel to many
// realtime subscribers.
//
// One goroutine owns the subscriber registry: connects, disconnects and
// events all reach it over channels, and it alone adds or removes entries.
// Delivery never blocks; a subscriber that cannot take an event right away is
// dropped. Events that arrive while the upstream subscription is down are
// lost.
package feed

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
)

// State is the upstream connection state of a relay.
type State int32

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Subscriber is an opaque delivery handle.
type Subscriber interface {
	ID() string
	// Send hands payload over without blocking and reports whether it was accepted.
	Send(payload []byte) bool
	// Close releases the subscriber. It may be called more than once.
	Close()
}

// Observer receives relay metrics.
type Observer interface {
	FeedSubscribers(n int)
	FeedEvent()
	FeedDropped(n int)
	FeedConnected(connected, reconnect bool)
}

// Config configures a Relay.
type Config struct {
	Channel    string
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Relay bridges a Source to the registered subscribers.
type Relay struct {
	source   Source
	cfg      Config
	clock    clock.Clock
	logger   *slog.Logger
	observer Observer

	register   chan Subscriber
	unregister chan string
	events     chan []byte
	done       chan struct{}

	state atomic.Int32
	count atomic.Int64
}

// Option customises a Relay.
type Option func(*Relay)

// WithClock sets the clock used for backoff.
func WithClock(clk clock.Clock) Option {
	return func(r *Relay) { r.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(r *Relay) { r.observer = o }
}

// NewRelay constructs a Relay. Call Run to start it.
func NewRelay(source Source, cfg Config, opts ...Option) *Relay {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = cfg.MinBackoff
	}
	r := &Relay{
		source:     source,
		cfg:        cfg,
		clock:      clock.WallClock,
		logger:     slog.Default(),
		register:   make(chan Subscriber),
		unregister: make(chan string),
		events:     make(chan []byte),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drives the relay until ctx is cancelled. All subscribers are closed on return.
func (r *Relay) Run(ctx context.Context) error {
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		r.pump(ctx)
	}()
	r.loop(ctx)
	<-pumpDone
	return nil
}

// Register adds s to the registry. It returns false once the relay has stopped.
func (r *Relay) Register(s Subscriber) bool {
	select {
	case r.register <- s:
		return true
	case <-r.done:
		return false
	}
}

// Deregister removes s from the registry. Unknown or already removed
// subscribers are ignored.
func (r *Relay) Deregister(s Subscriber) {
	select {
	case r.unregister <- s.ID():
	case <-r.done:
	}
}

// State reports the upstream connection state.
func (r *Relay) State() State {
	return State(r.state.Load())
}

// SubscriberCount reports the registry size.
func (r *Relay) SubscriberCount() int {
	return int(r.count.Load())
}

func (r *Relay) loop(ctx context.Context) {
	subscribers := make(map[string]Subscriber)
	defer func() {
		close(r.done)
		for _, s := range subscribers {
			s.Close()
		}
		r.publishCount(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-r.register:
			subscribers[s.ID()] = s
			r.publishCount(len(subscribers))
		case id := <-r.unregister:
			if s, ok := subscribers[id]; ok {
				delete(subscribers, id)
				s.Close()
				r.publishCount(len(subscribers))
			}
		case payload := <-r.events:
			dropped := 0
			for id, s := range subscribers {
				if !s.Send(payload) {
					delete(subscribers, id)
					s.Close()
					dropped++
				}
			}
			if dropped > 0 {
				r.logger.Debug("dropped slow subscribers", slog.Int("count", dropped))
				r.publishCount(len(subscribers))
				if r.observer != nil {
					r.observer.FeedDropped(dropped)
				}
			}
		}
	}
}

func (r *Relay) publishCount(n int) {
	r.count.Store(int64(n))
	if r.observer != nil {
		r.observer.FeedSubscribers(n)
	}
}

// pump keeps one upstream subscription alive, resubscribing with backoff.
func (r *Relay) pump(ctx context.Context) {
	subscribed := false
	for {
		stream, err := r.subscribe(ctx)
		if err != nil {
			return
		}
		r.setState(Connected, subscribed)
		subscribed = true
		r.logger.Info("change feed subscribed", slog.String("channel", r.cfg.Channel))

		// Blocking reads do not all honour cancellation; closing the stream does.
		stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
		err = r.consume(ctx, stream)
		stop()
		_ = stream.Close()
		r.setState(Disconnected, false)
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("change feed lost", slog.String("channel", r.cfg.Channel), slog.Any("error", err))
	}
}

func (r *Relay) subscribe(ctx context.Context) (Stream, error) {
	var stream Stream
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			s, err := r.source.Subscribe(ctx, r.cfg.Channel)
			if err != nil {
				return err
			}
			stream = s
			return nil
		},
		IsFatalError: func(error) bool { return ctx.Err() != nil },
		NotifyFunc: func(err error, attempt int) {
			r.logger.Warn("change feed subscribe failed",
				slog.String("channel", r.cfg.Channel),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
		},
		Attempts:    -1,
		Delay:       r.cfg.MinBackoff,
		MaxDelay:    r.cfg.MaxBackoff,
		BackoffFunc: retry.ExpBackoff(r.cfg.MinBackoff, r.cfg.MaxBackoff, 2, true),
		Clock:       r.clock,
		Stop:        ctx.Done(),
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (r *Relay) consume(ctx context.Context, stream Stream) error {
	for {
		payload, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		if r.observer != nil {
			r.observer.FeedEvent()
		}
		select {
		case r.events <- payload:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Relay) setState(s State, reconnect bool) {
	r.state.Store(int32(s))
	if r.observer != nil {
		r.observer.FeedConnected(s == Connected, reconnect)
	}
}
