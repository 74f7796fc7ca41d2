package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"handlescope/internal/bootstrap/config"
	"handlescope/internal/bootstrap/logging"
	"handlescope/internal/errs"
	"handlescope/internal/infrastructure/persistence/sqlite/model"
	"handlescope/internal/ports"
	"handlescope/internal/unitofwork"
	"handlescope/internal/usecase/counting"
)

type App struct {
	Config     config.Config
	Logger     *slog.Logger
	DB         *gorm.DB
	Manager    ports.HandleManager
	Registry   *unitofwork.Registry
	UnitOfWork *unitofwork.UnitOfWork
	Counting   *counting.Service
}

func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start schema migration")

	if err := a.DB.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}

	logging.Info(logCtx, "schema migration completed")
	return nil
}
