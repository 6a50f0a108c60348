package postgres

import (
	"context"
	"database/sql"

	"rentcar-backend/internal/repository"

	_ "github.com/lib/pq"
)

type Store struct {
	db *sql.DB
	repository.VehicleRepository
	repository.BookingRepository
	repository.PaymentIntentRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                      db,
		VehicleRepository:       NewVehicleRepository(db),
		BookingRepository:       NewBookingRepository(db),
		PaymentIntentRepository: NewPaymentIntentRepository(db),
	}
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, committing only when fn returns nil
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
