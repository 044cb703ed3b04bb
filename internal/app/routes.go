package app

// registerRoutes sets up all HTTP handlers for the application.
func (a *App) registerRoutes() {
	a.Mux.HandleFunc("/healthz", a.handleHealth)
	a.Mux.HandleFunc("/api/alerts", a.handleAlerts)
	a.Mux.HandleFunc("/api/latest", a.handleLatest)
	a.Mux.HandleFunc("/api/stats", a.handleStats)
	a.Mux.HandleFunc("/ws", a.handleWS)
}
