package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/gosuda/audittrail/internal/capture"
	"github.com/gosuda/audittrail/internal/domain"
)

// Subscriber is the subscribing half of the Redis pub/sub store.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Consumer records events published by background producers (batch jobs,
// other services). Every event runs in a non-interactive context.
type Consumer struct {
	sub        Subscriber
	dispatcher *Dispatcher
	channel    string
	lang       language.Tag
	logger     zerolog.Logger
}

func NewConsumer(sub Subscriber, dispatcher *Dispatcher, channel string, lang language.Tag, logger zerolog.Logger) *Consumer {
	return &Consumer{
		sub:        sub,
		dispatcher: dispatcher,
		channel:    channel,
		lang:       lang,
		logger:     logger.With().Str("component", "ingest").Str("channel", channel).Logger(),
	}
}

// Run consumes events until ctx is cancelled or the subscription closes.
// Individual event failures are logged and do not stop the loop.
func (c *Consumer) Run(ctx context.Context) error {
	messages, cleanup, err := c.sub.Subscribe(ctx, c.channel)
	if err != nil {
		return fmt.Errorf("ingest.Consumer.Run: %w", err)
	}
	defer cleanup()

	c.logger.Info().Msg("consuming lifecycle events")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg []byte) {
	ev, err := Decode(msg)
	if err != nil {
		c.logger.Warn().Err(err).Msg("dropping malformed lifecycle event")
		return
	}

	log := c.logger.With().
		Stringer("event_id", ev.ID).
		Str("entity_type", ev.EntityType).
		Str("kind", string(ev.Kind)).
		Logger()

	ec := &capture.Background{Lang: capture.NewLocale(c.lang)}
	entry, err := c.dispatcher.Dispatch(ctx, ec, ev)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		log.Warn().Msg("no audit policy for entity type")
	case err != nil:
		log.Error().Err(err).Msg("lifecycle event not recorded")
	case entry == nil:
		log.Debug().Msg("lifecycle event produced no entry")
	default:
		log.Debug().Int64("entry_id", entry.ID).Msg("lifecycle event recorded")
	}
}
