// Package notify posts recorded audit entries to chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gosuda/audittrail/internal/capture"
	"github.com/gosuda/audittrail/internal/domain"
	"github.com/gosuda/audittrail/internal/messenger"
)

// ErrPlatformNotFound is returned when a messenger platform is not registered.
var ErrPlatformNotFound = errors.New("notify: platform not found") //nolint:gochecknoglobals // sentinel error

// MessengerRegistry maps platform names to Messenger implementations.
type MessengerRegistry interface {
	Get(platform string) (messenger.Messenger, bool)
}

// PolicyLookup resolves the policy an entry is rendered with.
type PolicyLookup interface {
	Get(entityType string) (*capture.Policy, error)
}

// Target is a channel on a messenger platform.
type Target struct {
	Platform string
	Channel  string
}

// Rules lists, per entity type, the entry kinds worth a notification.
type Rules map[string][]domain.EntryKind

// Notifier posts a notice for every recorded entry matching its rules.
// It is meant to be installed as a capture listener.
type Notifier struct {
	messengers MessengerRegistry
	policies   PolicyLookup
	rules      Rules
	targets    []Target
}

var _ capture.Listener = (*Notifier)(nil) //nolint:gochecknoglobals // compile-time check

// New creates a Notifier. policies may be nil, in which case values render
// as plain text and nothing is hidden.
func New(messengers MessengerRegistry, policies PolicyLookup, rules Rules, targets ...Target) *Notifier {
	return &Notifier{
		messengers: messengers,
		policies:   policies,
		rules:      rules,
		targets:    targets,
	}
}

// Wants reports whether e matches a rule.
func (n *Notifier) Wants(e *domain.Entry) bool {
	return slices.Contains(n.rules[e.EntityType], e.Kind)
}

// EntryRecorded sends e to every target when it matches a rule. Every target
// is attempted; failures are joined.
func (n *Notifier) EntryRecorded(ctx context.Context, e *domain.Entry) error {
	if !n.Wants(e) {
		return nil
	}

	notice, err := n.Compose(e)
	if err != nil {
		return fmt.Errorf("notify.Notifier.EntryRecorded: %w", err)
	}

	var errs []error
	for _, t := range n.targets {
		if err := n.send(ctx, t, notice); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify.Notifier.EntryRecorded: %w", err)
	}
	return nil
}

func (n *Notifier) send(ctx context.Context, t Target, notice messenger.Notice) error {
	msg, ok := n.messengers.Get(t.Platform)
	if !ok {
		return fmt.Errorf("platform %q: %w", t.Platform, ErrPlatformNotFound)
	}
	if _, err := msg.SendNotice(ctx, t.Channel, notice); err != nil {
		return fmt.Errorf("%s %s: %w", t.Platform, t.Channel, err)
	}
	return nil
}

// Compose builds the notice of e. Hidden attributes are left out and values
// go through the output rules of the entity type's policy.
func (n *Notifier) Compose(e *domain.Entry) (messenger.Notice, error) {
	var policy *capture.Policy
	if n.policies != nil {
		p, err := n.policies.Get(e.EntityType)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return messenger.Notice{}, err
		}
		policy = p
	}

	notice := messenger.Notice{
		Title:  fmt.Sprintf("*%s* `%s` %s", e.EntityType, e.EntityKey, verb(e.Kind)),
		Fields: make([]messenger.Field, 0, len(e.Changes)),
		Footer: footer(e),
	}

	for _, c := range e.Changes {
		if policy.Hidden(c.Field) {
			continue
		}

		var value string
		switch e.Kind {
		case domain.EntryKindUpdate:
			from, err := policy.FormatValue(c.Field, c.From)
			if err != nil {
				return messenger.Notice{}, err
			}
			to, err := policy.FormatValue(c.Field, c.To)
			if err != nil {
				return messenger.Notice{}, err
			}
			value = from + " → " + to
		case domain.EntryKindDelete:
			v, err := policy.FormatValue(c.Field, c.From)
			if err != nil {
				return messenger.Notice{}, err
			}
			value = v
		default:
			v, err := policy.FormatValue(c.Field, c.To)
			if err != nil {
				return messenger.Notice{}, err
			}
			value = v
		}

		notice.Fields = append(notice.Fields, messenger.Field{Label: c.Field, Value: value})
	}

	return notice, nil
}

func verb(kind domain.EntryKind) string {
	switch kind {
	case domain.EntryKindInsert:
		return "created"
	case domain.EntryKindUpdate:
		return "updated"
	case domain.EntryKindDelete:
		return "deleted"
	default:
		return string(kind)
	}
}

func footer(e *domain.Entry) string {
	parts := make([]string, 0, 4)

	if e.ActorID != nil {
		parts = append(parts, "by actor "+strconv.FormatInt(*e.ActorID, 10))
	} else {
		parts = append(parts, "by anonymous")
	}
	if e.ActorIP != nil {
		parts = append(parts, "from "+*e.ActorIP)
	}
	parts = append(parts, "at "+e.HappenedAt.UTC().Format(time.RFC3339))
	if e.Remark != nil {
		parts = append(parts, "remark: "+*e.Remark)
	}

	return strings.Join(parts, " | ")
}
