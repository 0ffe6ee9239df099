// Package ledger is the durable record store for organizations, memberships and
// billing rows. Every read and write goes through a Tx; multi-record changes run
// inside Store.RunAtomic, which hands the same Tx to every step so they commit
// or roll back together.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"saascore/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound  = errors.New("ledger: record not found")
	ErrDuplicate = errors.New("ledger: duplicate record")
	// ErrStale is returned by conditional writes whose precondition no longer
	// holds, i.e. another writer changed the row first.
	ErrStale = errors.New("ledger: record changed concurrently")
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// RunAtomic executes fn inside a single database transaction. Any error returned
// by fn, or by the commit itself, rolls back every write made through tx.
func (s *Store) RunAtomic(ctx context.Context, fn func(tx *Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&Tx{db: db})
	})
}

// Read returns a Tx bound to ctx that runs each statement on its own.
func (s *Store) Read(ctx context.Context) *Tx {
	return &Tx{db: s.db.WithContext(ctx)}
}

func (s *Store) MembershipFor(ctx context.Context, userID, orgID uint) (*models.Membership, error) {
	return s.Read(ctx).MembershipFor(userID, orgID)
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Tx is one unit of work against the store.
type Tx struct {
	db *gorm.DB
}

func (t *Tx) query(lock bool) *gorm.DB {
	if lock {
		return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return t.db
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

// conditional turns a zero-row conditional update into ErrStale.
func conditional(res *gorm.DB) error {
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}

func newestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("created_at DESC").Order("id DESC")
}
