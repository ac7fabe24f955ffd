package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	httpmw "github.com/cwrk-planet/presence-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/presence-service/pkg/httputil"
)

type RouterDeps struct {
	Handler        *Handler
	Verifier       httpmw.Verifier
	WS             http.HandlerFunc
	AllowedOrigins []string
	RouteTimeout   time.Duration
	Metrics        http.Handler
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(httputil.MiddlewareRequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(httputil.MiddlewareLogging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// long-lived streams stay outside the route timeout
	if d.WS != nil {
		r.Get("/ws", d.WS)
	}
	r.Get("/api/multi/lobby", d.Handler.LobbyStream)

	timeout := d.RouteTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	r.Group(func(pr chi.Router) {
		pr.Use(middlewareChi.Timeout(timeout))
		pr.Get("/api/multi/rooms", d.Handler.ListRooms)

		pr.Group(func(ar chi.Router) {
			ar.Use(httpmw.AuthMiddleware(d.Verifier))
			ar.Post("/api/multi/lobby", d.Handler.CreateRoom)
			ar.Post("/api/multi/lobby/enter", d.Handler.Enter)
		})
	})

	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
