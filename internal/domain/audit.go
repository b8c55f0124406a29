package domain

import (
	"context"
	"fmt"
	"iter"
	"time"
	"unicode/utf8"
)

// MaxURLLength bounds Entry.RequestURL to the width of the request_url column.
const MaxURLLength = 255

type EntryKind string

const (
	EntryKindInsert EntryKind = "insert"
	EntryKindUpdate EntryKind = "update"
	EntryKindDelete EntryKind = "delete"
)

// EntryKinds lists every kind accepted by Entry.Validate.
var EntryKinds = []EntryKind{EntryKindInsert, EntryKindUpdate, EntryKindDelete} //nolint:gochecknoglobals // enum listing

// Valid reports whether k is one of the three lifecycle kinds.
func (k EntryKind) Valid() bool {
	switch k {
	case EntryKindInsert, EntryKindUpdate, EntryKindDelete:
		return true
	default:
		return false
	}
}

// ChangeSet holds the before/after values of one attribute.
// From is nil for inserts, To is nil for deletes.
type ChangeSet struct {
	Field string `json:"attr"`
	From  any    `json:"from"`
	To    any    `json:"to"`
}

// Timing carries the optional self-benchmark of a capture, in microseconds.
type Timing struct {
	CollectMicros int64 `json:"collect_micros"`
	ConvertMicros int64 `json:"convert_micros"`
}

// Entry is one audited lifecycle event. Entries are assembled by the capture
// engine and treated as immutable once handed to an AuditRepository.
type Entry struct {
	ID         int64       `json:"id"`
	EntityType string      `json:"entity_type"`
	EntityKey  string      `json:"entity_key"`
	Kind       EntryKind   `json:"kind"`
	HappenedAt time.Time   `json:"happened_at"`
	ActorID    *int64      `json:"actor_id"`
	ActorIP    *string     `json:"actor_ip"`
	Remark     *string     `json:"remark"`
	RequestURL *string     `json:"request_url"`
	Changes    []ChangeSet `json:"changes"`
	Timing     *Timing     `json:"timing,omitempty"`
}

// SetChange appends a change for field. Order of calls is the order stored.
func (e *Entry) SetChange(field string, from, to any) {
	e.Changes = append(e.Changes, ChangeSet{Field: field, From: from, To: to})
}

// Change returns the change recorded for field, if any.
func (e *Entry) Change(field string) (ChangeSet, bool) {
	for _, c := range e.Changes {
		if c.Field == field {
			return c, true
		}
	}
	return ChangeSet{}, false
}

// Validate checks the entry against the constraints of the persisted layout.
// It returns ValidationErrors, or nil when the entry can be stored.
func (e *Entry) Validate() error {
	var errs ValidationErrors

	if e.EntityType == "" {
		errs = append(errs, FieldError{Field: "entity_type", Message: "Entity Type cannot be blank."})
	}
	if e.EntityKey == "" {
		errs = append(errs, FieldError{Field: "entity_key", Message: "Entity Key cannot be blank."})
	}
	if !e.Kind.Valid() {
		errs = append(errs, FieldError{Field: "kind", Message: fmt.Sprintf("Kind %q is invalid.", e.Kind)})
	}
	if e.HappenedAt.IsZero() {
		errs = append(errs, FieldError{Field: "happened_at", Message: "Happened At cannot be blank."})
	}
	if e.RequestURL != nil && utf8.RuneCountInString(*e.RequestURL) > MaxURLLength {
		errs = append(errs, FieldError{Field: "request_url", Message: fmt.Sprintf("Request URL should contain at most %d characters.", MaxURLLength)})
	}
	if e.ActorIP != nil && utf8.RuneCountInString(*e.ActorIP) > 255 {
		errs = append(errs, FieldError{Field: "actor_ip", Message: "Actor IP should contain at most 255 characters."})
	}
	if e.Timing != nil && (e.Timing.CollectMicros < 0 || e.Timing.ConvertMicros < 0) {
		errs = append(errs, FieldError{Field: "timing", Message: "Timing must not be negative."})
	}
	for i, c := range e.Changes {
		if c.Field == "" {
			errs = append(errs, FieldError{Field: "changes", Message: fmt.Sprintf("Change #%d has no attribute name.", i)})
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// TruncateURL clamps a request URL to MaxURLLength characters.
func TruncateURL(u string) string {
	if utf8.RuneCountInString(u) <= MaxURLLength {
		return u
	}
	return string([]rune(u)[:MaxURLLength])
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// EntryFilter narrows a trail query. Zero values mean "no constraint".
// ID, ActorID, Kind and HappenedAt match exactly; EntityKey, ActorIP and
// Remark match as substrings.
type EntryFilter struct {
	ID         *int64
	EntityType string
	EntityKey  string
	ActorID    *int64
	ActorIP    string
	Remark     string
	Kind       EntryKind
	HappenedAt *int64 // unix seconds
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}

// Page returns the effective limit and offset.
func (f EntryFilter) Page() (limit, offset int) {
	limit = f.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	offset = f.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// AuditRepository is the durable, append-only store for entries.
type AuditRepository interface {
	// Write persists e and sets e.ID. Entries failing validation yield ValidationErrors.
	Write(ctx context.Context, e *Entry) error
	// QueryByEntity streams the trail of one entity, newest first.
	QueryByEntity(ctx context.Context, entityType, entityKey string) iter.Seq2[*Entry, error]
	// QueryAll streams one page of entries matching f, newest first.
	QueryAll(ctx context.Context, f EntryFilter) iter.Seq2[*Entry, error]
	Count(ctx context.Context, f EntryFilter) (int64, error)
	GetByID(ctx context.Context, id int64) (*Entry, error)
}
