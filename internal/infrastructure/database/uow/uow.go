// internal/infrastructure/database/uow/uow.go
package uow

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Runner executes a function inside one database transaction. Every write made
// through the tx handed to fn commits or rolls back together.
type Runner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// GormRunner is the Runner backed by a *gorm.DB
type GormRunner struct {
	db *gorm.DB
}

func NewRunner(db *gorm.DB) *GormRunner {
	return &GormRunner{db: db}
}

func (r *GormRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Within runs fn in tx when one is supplied, otherwise in a fresh transaction
func Within(ctx context.Context, r Runner, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return r.WithTx(ctx, fn)
}
