// Package ingest turns lifecycle events arriving over the wire into capture
// engine calls.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/gosuda/audittrail/internal/capture"
	"github.com/gosuda/audittrail/internal/domain"
)

// Event is the wire representation of one entity lifecycle event.
type Event struct {
	ID         uuid.UUID        `json:"event_id"`
	EntityType string           `json:"entity_type"`
	Kind       domain.EntryKind `json:"kind"`
	Values     map[string]any   `json:"values"`
	// Changed holds the previous values of the fields that changed. Only
	// meaningful for updates.
	Changed  map[string]any `json:"changed,omitempty"`
	Scenario string         `json:"scenario,omitempty"`
	Remark   string         `json:"remark,omitempty"`
}

// Decode parses a JSON event. Numbers are kept as json.Number so integer
// keys survive unchanged into the entity key. A missing event id is
// assigned.
func Decode(data []byte) (*Event, error) {
	ev, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("ingest.Decode: %w", err)
	}
	return ev, nil
}

// DecodeBody parses an event body whose entity type is addressed out of
// band, such as by a URL path. Any entity_type in the body is overridden.
func DecodeBody(entityType string, data []byte) (*Event, error) {
	ev, err := decode(data, func(ev *Event) { ev.EntityType = entityType })
	if err != nil {
		return nil, fmt.Errorf("ingest.DecodeBody: %w", err)
	}
	return ev, nil
}

func decode(data []byte, adjust ...func(*Event)) (*Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var ev Event
	if err := dec.Decode(&ev); err != nil {
		return nil, err
	}
	for _, fn := range adjust {
		fn(&ev)
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (ev *Event) Validate() error {
	var errs domain.ValidationErrors
	if ev.EntityType == "" {
		errs = append(errs, domain.FieldError{Field: "entity_type", Message: "Entity Type cannot be blank."})
	}
	if !ev.Kind.Valid() {
		errs = append(errs, domain.FieldError{Field: "kind", Message: fmt.Sprintf("Kind %q is invalid.", ev.Kind)})
	}
	if ev.Values == nil {
		errs = append(errs, domain.FieldError{Field: "values", Message: "Values cannot be blank."})
	}
	if ev.Kind != domain.EntryKindUpdate && len(ev.Changed) > 0 {
		errs = append(errs, domain.FieldError{Field: "changed", Message: "Changed is only allowed for updates."})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Record returns the entity carried by the event.
func (ev *Event) Record() capture.Record {
	return capture.Record{Type: ev.EntityType, Fields: ev.Values, Tag: ev.Scenario}
}
