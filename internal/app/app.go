// Package app implements the receiver's operator surface: a small HTTP API
// over the most recent alerts and a websocket stream that pushes each new
// alert to connected clients.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"LoraFall/internal/model"
)

// DefaultHistory is the number of alerts kept for the API.
const DefaultHistory = 64

// StatsFunc reports pipeline counters for /api/stats.
type StatsFunc func() any

// App keeps recent alerts in memory and serves them over HTTP.
type App struct {
	Mux *http.ServeMux

	srvMu   sync.Mutex
	server  *http.Server
	stopped bool

	logger *zap.Logger
	stats  StatsFunc

	mu      sync.RWMutex
	recent  []model.Alert
	next    int
	count   int
	clients map[*wsClient]struct{}
	wsMu    sync.Mutex
}

// NewApp builds the app with room for history alerts (DefaultHistory if
// history <= 0). stats may be nil.
func NewApp(history int, stats StatsFunc, logger *zap.Logger) *App {
	if history <= 0 {
		history = DefaultHistory
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		Mux:     http.NewServeMux(),
		logger:  logger.With(zap.String("component", "app")),
		stats:   stats,
		recent:  make([]model.Alert, history),
		clients: map[*wsClient]struct{}{},
	}
	a.registerRoutes()
	return a
}

// Name implements core.Sink.
func (a *App) Name() string { return "app" }

// Deliver implements core.Sink: it records the alert and queues it for
// websocket clients. It never waits on a client.
func (a *App) Deliver(ctx context.Context, alert model.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	a.recent[a.next] = alert
	a.next = (a.next + 1) % len(a.recent)
	if a.count < len(a.recent) {
		a.count++
	}
	a.mu.Unlock()

	msg, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	a.broadcast(msg)
	return nil
}

// Alerts returns up to limit of the most recent alerts, oldest first.
// limit <= 0 returns everything held.
func (a *App) Alerts(limit int) []model.Alert {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := a.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.Alert, n)
	start := a.next - n
	for i := range out {
		out[i] = a.recent[(start+i+len(a.recent))%len(a.recent)]
	}
	return out
}

// Start launches the web server and blocks until stopped. It returns
// immediately when addr is empty or Stop was already called.
func (a *App) Start(addr string) error {
	if addr == "" {
		a.logger.Info("app server not started (empty address)")
		return nil
	}
	addr = strings.TrimPrefix(addr, "http://")
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	a.srvMu.Lock()
	if a.stopped {
		a.srvMu.Unlock()
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.logRequests(a.Mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.server = srv
	a.srvMu.Unlock()

	a.logger.Info("web server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("app: http server: %w", err)
	}
	return nil
}

// Stop gracefully stops the web server and drops websocket clients.
func (a *App) Stop() {
	a.srvMu.Lock()
	a.stopped = true
	srv := a.server
	a.srvMu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Warn("http server shutdown error", zap.Error(err))
		}
	}
	a.wsMu.Lock()
	for c := range a.clients {
		delete(a.clients, c)
		c.close()
	}
	a.wsMu.Unlock()
}
