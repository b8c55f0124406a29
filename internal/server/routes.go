package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/audittrail/internal/api/v1"
	"github.com/gosuda/audittrail/internal/api/ws"
)

func registerEventRoutes(api huma.API, deps Deps) {
	v1.RegisterEventRoutes(api, deps.Events)
}

func registerTrailRoutes(api huma.API, deps Deps) {
	v1.RegisterTrailRoutes(api, deps.Trail, deps.Policies)
}

func registerSearchRoutes(api huma.API, deps Deps) {
	v1.RegisterSearchRoutes(api, deps.Trail)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/trail/{entityType}", hub.ServeTrail)
}
