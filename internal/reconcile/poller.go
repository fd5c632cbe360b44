package reconcile

import (
	"context"
	"sync"
	"time"

	"trivia-sync-service/internal/domain"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is used when no interval is configured.
const DefaultPollInterval = 2 * time.Second

// SnapshotSource reads the session projection from the store of record.
type SnapshotSource interface {
	Snapshot(ctx context.Context, code string) (domain.SessionSnapshot, error)
}

// tracked are the fields whose change makes a poll worth emitting.
type tracked struct {
	players        int
	status         domain.SessionStatus
	question       int
	showingResults bool
}

// Poller re-reads a session on a fixed interval and emits a snapshot only when a
// tracked field differs from the previous observation.
type Poller struct {
	source   SnapshotSource
	code     string
	interval time.Duration
	clock    clockwork.Clock
	emit     func(domain.SessionSnapshot)

	mu     sync.Mutex
	last   tracked
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(source SnapshotSource, code string, interval time.Duration, clock clockwork.Clock, emit func(domain.SessionSnapshot)) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{
		source:   source,
		code:     code,
		interval: interval,
		clock:    clock,
		emit:     emit,
		last:     tracked{players: -1, question: -1},
	}
}

// Start polls once immediately, then on every tick until Stop or ctx is done.
// Calling Start on a running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	ticker := p.clock.NewTicker(p.interval)

	go func(done chan struct{}) {
		defer close(done)
		defer ticker.Stop()

		p.Poll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				p.Poll(ctx)
			}
		}
	}(p.done)
}

// Stop halts polling and waits for the loop to exit. It is safe to call more than once
// and on a poller that was never started.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Poll performs a single read and reports whether a snapshot was emitted.
func (p *Poller) Poll(ctx context.Context) bool {
	snap, err := p.source.Snapshot(ctx, p.code)
	if err != nil {
		if ctx.Err() == nil {
			log.Debug().Err(err).Str("code", p.code).Msg("poll failed")
		}
		return false
	}

	seen := tracked{
		players:        len(snap.Players),
		status:         snap.Session.Status,
		question:       snap.Session.CurrentQuestion,
		showingResults: snap.Session.ShowingResults,
	}

	p.mu.Lock()
	if seen == p.last {
		p.mu.Unlock()
		return false
	}
	p.last = seen
	p.mu.Unlock()

	if p.emit != nil {
		p.emit(snap)
	}
	return true
}
