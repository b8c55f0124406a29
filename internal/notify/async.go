package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gosuda/audittrail/internal/capture"
	"github.com/gosuda/audittrail/internal/domain"
)

// DefaultSendTimeout bounds one asynchronous notification.
const DefaultSendTimeout = 10 * time.Second

// Async delivers notifications off the recording call. Matching entries are
// sent from their own goroutine under a timeout that outlives the caller's
// context; failures are logged.
type Async struct {
	notifier *Notifier
	timeout  time.Duration
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

var _ capture.Listener = (*Async)(nil) //nolint:gochecknoglobals // compile-time check

// NewAsync wraps n. A non-positive timeout uses DefaultSendTimeout.
func NewAsync(n *Notifier, timeout time.Duration, logger zerolog.Logger) *Async {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Async{notifier: n, timeout: timeout, logger: logger}
}

// EntryRecorded schedules the notification of e and returns immediately.
func (a *Async) EntryRecorded(ctx context.Context, e *domain.Entry) error {
	if !a.notifier.Wants(e) {
		return nil
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()

		if err := a.notifier.EntryRecorded(sendCtx, e); err != nil {
			a.logger.Error().Err(err).
				Str("entity_type", e.EntityType).
				Str("entity_key", e.EntityKey).
				Str("kind", string(e.Kind)).
				Msg("audit notification not delivered")
		}
	}()
	return nil
}

// Wait blocks until every scheduled notification has finished.
func (a *Async) Wait() {
	a.wg.Wait()
}
