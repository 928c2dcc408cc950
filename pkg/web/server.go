// Package web exposes the bridge over HTTP: a health endpoint, a
// Prometheus metrics endpoint, and the per-call WebSocket route the
// calling platform dials.
package web

import (
	"net"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telavoice/callbridge/pkg/bridge"
)

// Server is the bridge's HTTP/WebSocket front end.
type Server struct {
	app     *fiber.App
	port    string
	manager *bridge.Manager
}

// NewServer wires the routes against the given connection manager.
// A nil gatherer falls back to the default Prometheus registry.
func NewServer(port string, manager *bridge.Manager, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		port:    port,
		manager: manager,
	}

	app := fiber.New(fiber.Config{
		AppName:               "callbridge",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	app.Get("/", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(
		promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	))

	// WebSocket upgrade middleware
	app.Use("/call", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/call/:id", websocket.New(s.handleCall))

	s.app = app
	return s
}

// Start blocks serving on the configured port.
func (s *Server) Start() error {
	return s.app.Listen(":" + s.port)
}

// Serve blocks serving on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Test injects a request without a network listener.
func (s *Server) Test(req *http.Request) (*http.Response, error) {
	return s.app.Test(req)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
