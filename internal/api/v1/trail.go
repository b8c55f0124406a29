package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/audittrail/internal/domain"
)

type EntityTrailInput struct {
	EntityType string `path:"entityType" doc:"Entity type"`
	Key        string `query:"key" required:"true" doc:"Entity key as recorded, e.g. {\"id\":7}"`
}

type EntityTrailOutput struct {
	Body []*domain.Entry
}

type SearchTrailInput struct {
	ID         int64     `query:"id" doc:"Exact entry ID"`
	EntityType string    `query:"entity_type" doc:"Exact entity type"`
	EntityKey  string    `query:"entity_key" doc:"Entity key substring"`
	ActorID    int64     `query:"actor_id" doc:"Exact actor ID"`
	ActorIP    string    `query:"actor_ip" doc:"Actor IP substring"`
	Remark     string    `query:"remark" doc:"Remark substring"`
	Kind       string    `query:"kind" enum:"insert,update,delete" doc:"Exact kind"`
	HappenedAt int64     `query:"happened_at" doc:"Exact epoch second"`
	Since      time.Time `query:"since" doc:"Inclusive lower bound"`
	Until      time.Time `query:"until" doc:"Inclusive upper bound"`
	Limit      int       `query:"limit" minimum:"0" maximum:"100" doc:"Page size (default 10)"`
	Offset     int       `query:"offset" minimum:"0" doc:"Page offset"`
}

type SearchTrailOutput struct {
	Body struct {
		Total int64           `json:"total"`
		Items []*domain.Entry `json:"items"`
	}
}

type GetEntryInput struct {
	ID int64 `path:"id" doc:"Entry ID"`
}

type GetEntryOutput struct {
	Body *domain.Entry
}

type RenderEntryOutput struct {
	Body *RenderedEntry
}

// RegisterTrailRoutes registers the per-entity trail and entry lookups.
func RegisterTrailRoutes(api huma.API, reader TrailReader, policies PolicyLookup) {
	huma.Register(api, huma.Operation{
		OperationID: "entity-trail",
		Method:      http.MethodGet,
		Path:        "/trail/{entityType}",
		Summary:     "List the audit trail of one entity, newest first",
		Tags:        []string{"Trail"},
	}, func(ctx context.Context, input *EntityTrailInput) (*EntityTrailOutput, error) {
		entries := make([]*domain.Entry, 0)
		for e, err := range reader.QueryByEntity(ctx, input.EntityType, input.Key) {
			if err != nil {
				return nil, huma.Error500InternalServerError("failed to query trail", err)
			}
			entries = append(entries, e)
		}
		return &EntityTrailOutput{Body: entries}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-entry",
		Method:      http.MethodGet,
		Path:        "/trail/entries/{id}",
		Summary:     "Get an audit trail entry by ID",
		Tags:        []string{"Trail"},
	}, func(ctx context.Context, input *GetEntryInput) (*GetEntryOutput, error) {
		e, err := getEntry(ctx, reader, input.ID)
		if err != nil {
			return nil, err
		}
		return &GetEntryOutput{Body: e}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "render-entry",
		Method:      http.MethodGet,
		Path:        "/trail/entries/{id}/rendered",
		Summary:     "Render an audit trail entry for humans",
		Tags:        []string{"Trail"},
	}, func(ctx context.Context, input *GetEntryInput) (*RenderEntryOutput, error) {
		e, err := getEntry(ctx, reader, input.ID)
		if err != nil {
			return nil, err
		}

		policy, err := policies.Get(e.EntityType)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, huma.Error500InternalServerError("failed to resolve policy", err)
		}

		rendered, err := Render(e, policy)
		if err != nil {
			return nil, captureError(err)
		}
		return &RenderEntryOutput{Body: rendered}, nil
	})
}

// RegisterSearchRoutes registers the global trail search. Callers guard it
// with RequireAuditor.
func RegisterSearchRoutes(api huma.API, reader TrailReader) {
	huma.Register(api, huma.Operation{
		OperationID: "search-trail",
		Method:      http.MethodGet,
		Path:        "/trail",
		Summary:     "Search all audit trail entries",
		Tags:        []string{"Trail"},
	}, func(ctx context.Context, input *SearchTrailInput) (*SearchTrailOutput, error) {
		filter := input.filter()

		total, err := reader.Count(ctx, filter)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to count entries", err)
		}

		out := &SearchTrailOutput{}
		out.Body.Total = total
		out.Body.Items = make([]*domain.Entry, 0)
		for e, err := range reader.QueryAll(ctx, filter) {
			if err != nil {
				return nil, huma.Error500InternalServerError("failed to search trail", err)
			}
			out.Body.Items = append(out.Body.Items, e)
		}
		return out, nil
	})
}

func (in *SearchTrailInput) filter() domain.EntryFilter {
	f := domain.EntryFilter{
		EntityType: in.EntityType,
		EntityKey:  in.EntityKey,
		ActorIP:    in.ActorIP,
		Remark:     in.Remark,
		Kind:       domain.EntryKind(in.Kind),
		Limit:      in.Limit,
		Offset:     in.Offset,
	}
	if in.ID > 0 {
		f.ID = &in.ID
	}
	if in.ActorID > 0 {
		f.ActorID = &in.ActorID
	}
	if in.HappenedAt > 0 {
		f.HappenedAt = &in.HappenedAt
	}
	if !in.Since.IsZero() {
		f.Since = &in.Since
	}
	if !in.Until.IsZero() {
		f.Until = &in.Until
	}
	return f
}

func getEntry(ctx context.Context, reader TrailReader, id int64) (*domain.Entry, error) {
	e, err := reader.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, huma.Error404NotFound("entry not found")
		}
		return nil, huma.Error500InternalServerError("failed to get entry", err)
	}
	return e, nil
}
