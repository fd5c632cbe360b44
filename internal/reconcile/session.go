package reconcile

import (
	"context"
	"sync"
	"time"

	"trivia-sync-service/internal/broadcast"
	"trivia-sync-service/internal/domain"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Options tune a client session.
type Options struct {
	PollInterval time.Duration
	Clock        clockwork.Clock
	// Buffer is the capacity of the Updates channel.
	Buffer int
}

// Session is one client's reconciled view of a live session. It owns its broadcast
// subscription and poll timer; Close tears both down.
type Session struct {
	code       string
	reconciler *Reconciler
	poller     *Poller
	sub        broadcast.Subscription
	cancel     context.CancelFunc

	mu      sync.Mutex
	closed  bool
	updates chan View
}

// Open starts following the session identified by code. A failed subscription is
// logged and the session continues on polling alone.
func Open(ctx context.Context, code string, source SnapshotSource, subscriber broadcast.Subscriber, opts Options) *Session {
	if opts.Buffer <= 0 {
		opts.Buffer = 16
	}
	ctx, cancel := context.WithCancel(ctx)

	s := &Session{
		code:    code,
		cancel:  cancel,
		updates: make(chan View, opts.Buffer),
	}
	s.reconciler = NewReconciler(code, s.push)

	sub, err := subscriber.Subscribe(ctx, code, func(ev broadcast.Event) {
		s.reconciler.Apply(Input{Event: &ev})
	})
	if err != nil {
		log.Warn().Err(err).Str("code", code).Msg("broadcast subscribe failed; continuing with polling only")
		sub = broadcast.NewSubscription(nil)
	}
	s.sub = sub

	s.poller = NewPoller(source, code, opts.PollInterval, opts.Clock, func(snap domain.SessionSnapshot) {
		s.reconciler.Apply(Input{Snapshot: &snap})
	})
	s.poller.Start(ctx)
	return s
}

// Code is the session's join code.
func (s *Session) Code() string {
	return s.code
}

// View returns the latest view.
func (s *Session) View() View {
	return s.reconciler.View()
}

// Updates delivers every changed view in order. When the reader falls behind, the
// oldest pending view is dropped. The channel is closed by Close.
func (s *Session) Updates() <-chan View {
	return s.updates
}

func (s *Session) push(v View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.updates <- v:
	default:
		select {
		case <-s.updates:
		default:
		}
		s.updates <- v
	}
}

// Close unsubscribes and stops polling. It is safe to call more than once.
func (s *Session) Close() {
	s.poller.Stop()
	s.sub.Unsubscribe()
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.updates)
}
