package feed

import (
	"context"
	"errors"
	"sync"
)

var errDropped = errors.New("upstream dropped")

// fakeSource hands out one fakeStream per subscription.
type fakeSource struct {
	mu            sync.Mutex
	current       *fakeStream
	subscriptions int
	failures      int
	gate          chan struct{}
}

func (s *fakeSource) Subscribe(ctx context.Context, _ string) (Stream, error) {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("connection refused")
	}
	s.subscriptions++
	s.current = &fakeStream{events: make(chan []byte, 16), closed: make(chan struct{})}
	return s.current, nil
}

// Publish delivers payload to the live subscription, if any.
func (s *fakeSource) Publish(payload string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false
	}
	s.current.events <- []byte(payload)
	return true
}

// Drop breaks the live subscription.
func (s *fakeSource) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Close()
		s.current = nil
	}
}

// Hold blocks new subscriptions until Release.
func (s *fakeSource) Hold() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
}

func (s *fakeSource) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
}

func (s *fakeSource) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriptions
}

type fakeStream struct {
	events chan []byte
	closed chan struct{}
	once   sync.Once
}

func (s *fakeStream) Next(ctx context.Context) ([]byte, error) {
	select {
	case p := <-s.events:
		return p, nil
	case <-s.closed:
		return nil, errDropped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// recorder is a Subscriber that keeps what it was sent.
type recorder struct {
	id     string
	mu     sync.Mutex
	got    []string
	reject bool
	closed bool
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(payload []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reject || r.closed {
		return false
	}
	r.got = append(r.got, string(payload))
	return true
}

func (r *recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *recorder) Received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func (r *recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *recorder) Fail() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reject = true
}
