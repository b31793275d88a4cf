package repository

import (
	"errors"
	"fmt"

	"github.com/anjiri1684/tutor_live/apperrors"
	"gorm.io/gorm"
)

// Store is the postgres-backed persistence layer. Every state transition it exposes is a
// conditional update, so concurrent callers race on the database rather than in memory.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, apperrors.ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
