package qapi

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	qmw "github.com/quatton/qhook/pkg/qapi/middleware"
)

const (
	Title   = "qhook"
	Version = "1.0.0"
)

type Api struct {
	Api    huma.API
	Router *chi.Mux
}

type Options struct {
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
}

func NewApi(opts Options) *Api {
	router := chi.NewMux()
	if opts.TrustProxy {
		router.Use(middleware.RealIP)
	}
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	api := humachi.New(router, Config())
	api.UseMiddleware(qmw.Origin)

	return &Api{Api: api, Router: router}
}

// Config is the huma configuration shared by the server and spec generation.
func Config() huma.Config {
	config := huma.DefaultConfig(Title+" API", Version)
	config.Info.Description = "Runs configured scripts on authenticated webhook calls, as background jobs or on recurring schedules."
	return config
}
