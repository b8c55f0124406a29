package v1

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/audittrail/internal/domain"
)

// captureError maps capture and persistence failures to HTTP errors.
func captureError(err error) error {
	var ve domain.ValidationErrors
	switch {
	case errors.Is(err, domain.ErrPersistence):
		return huma.Error500InternalServerError(persistenceMessage(err))
	case errors.Is(err, domain.ErrNotFound):
		return huma.Error404NotFound("no audit policy for entity type")
	case errors.As(err, &ve):
		details := make([]error, 0, len(ve))
		for _, fe := range ve {
			details = append(details, &huma.ErrorDetail{Location: "body." + fe.Field, Message: fe.Message})
		}
		return huma.Error422UnprocessableEntity("invalid lifecycle event", details...)
	case errors.Is(err, domain.ErrConfiguration):
		var ce *domain.ConfigurationError
		if errors.As(err, &ce) {
			return huma.Error422UnprocessableEntity(ce.Error())
		}
		return huma.Error422UnprocessableEntity("invalid audit configuration")
	default:
		return huma.Error500InternalServerError("failed to record lifecycle event", err)
	}
}

func persistenceMessage(err error) string {
	var pe *domain.PersistenceError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	return "error while saving audit trail entry"
}
