package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/audittrail/internal/domain"
	"github.com/gosuda/audittrail/internal/ingest"
	"github.com/gosuda/audittrail/internal/server/middleware"
)

type RecordEventInput struct {
	EntityType string `path:"entityType" doc:"Entity type"`
	Body       struct {
		EventID  uuid.UUID      `json:"event_id,omitempty" doc:"Client supplied event ID for correlation"`
		Kind     string         `json:"kind" enum:"insert,update,delete" doc:"Lifecycle event kind"`
		Values   map[string]any `json:"values" doc:"Current field values of the entity"`
		Changed  map[string]any `json:"changed,omitempty" doc:"Previous values of changed fields (updates only)"`
		Scenario string         `json:"scenario,omitempty" doc:"Scenario the entity was saved under"`
		Remark   string         `json:"remark,omitempty" doc:"Change remark"`
	}
	// RawBody is decoded again with json.Number so 64-bit keys stay exact.
	RawBody []byte
}

type RecordEventOutput struct {
	Body struct {
		EventID  uuid.UUID     `json:"event_id"`
		Recorded bool          `json:"recorded" doc:"False when the event was filtered, discarded or vetoed"`
		Entry    *domain.Entry `json:"entry,omitempty"`
	}
}

func RegisterEventRoutes(api huma.API, recorder EventRecorder) {
	huma.Register(api, huma.Operation{
		OperationID: "record-event",
		Method:      http.MethodPost,
		Path:        "/entities/{entityType}/events",
		Summary:     "Record an entity lifecycle event",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *RecordEventInput) (*RecordEventOutput, error) {
		ec, ok := middleware.ExecutionFromContext(ctx)
		if !ok {
			return nil, huma.Error500InternalServerError("missing execution context")
		}

		ev, err := ingest.DecodeBody(input.EntityType, input.RawBody)
		if err != nil {
			return nil, captureError(err)
		}

		entry, err := recorder.Dispatch(ctx, ec, ev)
		if err != nil {
			return nil, captureError(err)
		}

		out := &RecordEventOutput{}
		out.Body.EventID = ev.ID
		out.Body.Recorded = entry != nil
		out.Body.Entry = entry
		return out, nil
	})
}
