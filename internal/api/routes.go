package api

import (
	"github.com/dmitrijs2005/shopkeeper/internal/session"
)

func (s *Server) routes(d Deps) {
	h := &handlers{
		engine:    d.Engine,
		channel:   d.Channel,
		auth:      d.Auth,
		monitor:   d.Monitor,
		log:       d.Log,
		done:      s.done,
		heartbeat: s.heartbeat,
	}

	v1 := s.app.Group("/api/v1")

	authGroup := v1.Group("/auth")
	authGroup.Post("/login", h.login)
	authGroup.Post("/register", h.register)

	protected := v1.Group("/", authMiddleware(d.Auth.Authenticate))

	coll := protected.Group("/collections/:collection")
	coll.Get("/", h.list)
	coll.Post("/", h.create)
	coll.Get("/by/:attr/:value", h.byIndex)
	coll.Get("/:id", h.get)
	coll.Patch("/:id", h.update)
	coll.Delete("/:id", h.remove)

	protected.Post("/sync", h.sync)
	protected.Get("/status", h.status)
	protected.Put("/connectivity", requireRole(session.RoleAdmin), h.setConnectivity)

	protected.Get("/notifications", h.recentNotifications)
	protected.Post("/notifications", h.notify)
	protected.Get("/notifications/stream", h.stream)

	protected.Post("/checkout", h.checkout)
	protected.Post("/stock/adjust", h.adjustStock)
	protected.Post("/collectibles/:id/payments", h.recordPayment)
}
