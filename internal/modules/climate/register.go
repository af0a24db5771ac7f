package climate

import (
	"database/sql"
	"log/slog"
	"net/http"

	"climate-server/internal/config"
	"climate-server/internal/modules/climate/controller"
	"climate-server/internal/modules/climate/repository"
	"climate-server/internal/modules/climate/service"
)

func RegisterFeature(mux *http.ServeMux, db *sql.DB, cfg config.Config, logger *slog.Logger) {
	climateRepository := repository.NewGuardedRepository(
		repository.NewRepository(db),
		repository.BreakerSettings{
			ConsecutiveFailures: cfg.BreakerFailures,
			Timeout:             cfg.BreakerTimeout,
		},
		logger,
	)
	climateService := service.NewService(climateRepository, logger)
	climateController := controller.NewClimateController(climateService, logger)
	climateController.RegisterRoutes(mux)
}
