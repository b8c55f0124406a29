package v1

import (
	"fmt"
	"time"

	"github.com/gosuda/audittrail/internal/capture"
	"github.com/gosuda/audittrail/internal/domain"
)

// RenderedChange is one attribute row of a rendered entry.
type RenderedChange struct {
	Attribute string  `json:"attribute"`
	From      *string `json:"from,omitempty" doc:"Only present for updates"`
	To        string  `json:"to"`
}

// RenderedEntry is the human-oriented form of an entry.
type RenderedEntry struct {
	ID         int64            `json:"id"`
	EntityType string           `json:"entity_type"`
	EntityKey  string           `json:"entity_key"`
	Kind       domain.EntryKind `json:"kind"`
	HappenedAt time.Time        `json:"happened_at"`
	ActorID    *int64           `json:"actor_id"`
	ActorIP    *string          `json:"actor_ip"`
	Remark     *string          `json:"remark"`
	RequestURL *string          `json:"request_url"`
	Changes    []RenderedChange `json:"changes"`
}

// Render formats the changes of e through the output rules of policy.
// Hidden attributes are skipped. Inserts and deletes carry a single value,
// so the from column is left out for them. A nil policy renders as text.
func Render(e *domain.Entry, policy *capture.Policy) (*RenderedEntry, error) {
	out := &RenderedEntry{
		ID:         e.ID,
		EntityType: e.EntityType,
		EntityKey:  e.EntityKey,
		Kind:       e.Kind,
		HappenedAt: e.HappenedAt,
		ActorID:    e.ActorID,
		ActorIP:    e.ActorIP,
		Remark:     e.Remark,
		RequestURL: e.RequestURL,
		Changes:    make([]RenderedChange, 0, len(e.Changes)),
	}

	for _, c := range e.Changes {
		if policy.Hidden(c.Field) {
			continue
		}

		row := RenderedChange{Attribute: c.Field}

		value := c.To
		if e.Kind == domain.EntryKindDelete {
			value = c.From
		}
		to, err := policy.FormatValue(c.Field, value)
		if err != nil {
			return nil, fmt.Errorf("v1.Render: %w", err)
		}
		row.To = to

		if e.Kind == domain.EntryKindUpdate {
			from, err := policy.FormatValue(c.Field, c.From)
			if err != nil {
				return nil, fmt.Errorf("v1.Render: %w", err)
			}
			row.From = &from
		}

		out.Changes = append(out.Changes, row)
	}
	return out, nil
}
