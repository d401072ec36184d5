package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"podium/internal/auth"
	"podium/internal/config"
	"podium/internal/http/handler"
	mw "podium/internal/http/middleware"
)

func NewRouter(cfg config.Config, regs handler.Registrar, jwtSvc *auth.JWT, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(mw.EchoRequestID)
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(log.With().Str("comp", "http").Logger()))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
		hlog.FromRequest(r).Info().
			Str("req_id", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("dur", dur).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	rh := &handler.RegistrationHandler{Svc: regs}
	r.Route("/competitions", func(r chi.Router) {
		r.Use(auth.RequireAuth(jwtSvc))

		r.Post("/{id}/register", rh.Register)
	})

	return r
}
