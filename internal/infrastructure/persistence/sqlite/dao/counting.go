package dao

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"handlescope/internal/errs"
	"handlescope/internal/infrastructure/persistence/sqlite/handle"
	"handlescope/internal/infrastructure/persistence/sqlite/model"
	"handlescope/internal/ports"
)

// CountingStore runs counting queries on the session of one handle.
type CountingStore struct {
	session handle.Session
}

var _ ports.CountingDAO = (*CountingStore)(nil)

func BindCounting(h ports.Handle) (*CountingStore, error) {
	s, ok := h.(handle.Session)
	if !ok {
		return nil, errs.Wrapf(ports.ErrInvalidArgument, "handle %T cannot serve gorm sessions", h)
	}
	return &CountingStore{session: s}, nil
}

func (s *CountingStore) db(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return s.session.DB(ctx)
}

func (s *CountingStore) Insert(ctx context.Context, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return errs.Wrap(ports.ErrInvalidArgument, "counting entry label is required")
	}
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	if err := db.Create(&model.CountingEntry{Label: label}).Error; err != nil {
		return errs.Wrapf(err, "insert counting entry %s", label)
	}
	return nil
}

func (s *CountingStore) Count(ctx context.Context) (int64, error) {
	db, err := s.db(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Model(&model.CountingEntry{}).Count(&n).Error; err != nil {
		return 0, errs.Wrap(err, "count counting entries")
	}
	return n, nil
}

func (s *CountingStore) Clear(ctx context.Context) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	if err := db.Where("1 = 1").Delete(&model.CountingEntry{}).Error; err != nil {
		return errs.Wrap(err, "clear counting entries")
	}
	return nil
}
