package http_api

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/api/v1/health", s.health)
	s.router.GET("/api/v1/runs/last", s.lastRun)
	s.router.GET("/api/v1/policies/:address", s.policy)
	s.router.POST("/api/v1/authorizations/:address/deactivate", s.forceReauthorization)
}
