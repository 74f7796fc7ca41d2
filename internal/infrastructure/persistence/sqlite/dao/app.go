package dao

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"handlescope/internal/errs"
	"handlescope/internal/infrastructure/persistence/sqlite/handle"
	"handlescope/internal/infrastructure/persistence/sqlite/model"
	"handlescope/internal/ports"
)

type AppStore struct {
	session handle.Session
}

var _ ports.AppDAO = (*AppStore)(nil)

func BindApp(h ports.Handle) (*AppStore, error) {
	s, ok := h.(handle.Session)
	if !ok {
		return nil, errs.Wrapf(ports.ErrInvalidArgument, "handle %T cannot serve gorm sessions", h)
	}
	return &AppStore{session: s}, nil
}

func (s *AppStore) db(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return s.session.DB(ctx)
}

// Dual is a round trip that touches no table.
func (s *AppStore) Dual(ctx context.Context) (int64, error) {
	db, err := s.db(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Raw("SELECT 2 + 2").Scan(&n).Error; err != nil {
		return 0, errs.Wrap(err, "select dual")
	}
	return n, nil
}

func (s *AppStore) CreatePrimary(ctx context.Context, id int64, val string) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	if err := db.Create(&model.PrimaryEntry{ID: id, Val: val}).Error; err != nil {
		return errs.Wrapf(err, "insert primary entry %d", id)
	}
	return nil
}

func (s *AppStore) CreateSecondary(ctx context.Context, id int64, val string) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	if err := db.Create(&model.SecondaryEntry{ID: id, Val: val}).Error; err != nil {
		return errs.Wrapf(err, "insert secondary entry %d", id)
	}
	return nil
}

func (s *AppStore) CountPrimary(ctx context.Context) (int64, error) {
	return s.count(ctx, &model.PrimaryEntry{})
}

func (s *AppStore) CountSecondary(ctx context.Context) (int64, error) {
	return s.count(ctx, &model.SecondaryEntry{})
}

func (s *AppStore) count(ctx context.Context, table any) (int64, error) {
	db, err := s.db(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Model(table).Count(&n).Error; err != nil {
		return 0, errs.Wrap(err, "count entries")
	}
	return n, nil
}
