package httpapi

import (
	"net/http"

	"climate-server/internal/config"
)

func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           Wrap(handler),
		ReadHeaderTimeout: cfg.HTTPReadHeaderTimeout,
	}
}
