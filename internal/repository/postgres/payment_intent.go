package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/logger"
	"rentcar-backend/internal/repository"
)

const intentColumns = `id, booking_id, external_id, client_secret, amount, currency, status, idempotency_key, created_on, updated_on`

type paymentIntentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewPaymentIntentRepository(db *sql.DB) repository.PaymentIntentRepository {
	return &paymentIntentRepository{db: db, now: time.Now}
}

func scanIntent(row rowScanner) (*domain.PaymentIntentRef, error) {
	pi := &domain.PaymentIntentRef{}
	err := row.Scan(&pi.ID, &pi.BookingID, &pi.ExternalID, &pi.ClientSecret, &pi.Amount, &pi.Currency, &pi.Status, &pi.IdempotencyKey, &pi.CreatedOn, &pi.UpdatedOn)
	if err != nil {
		return nil, err
	}
	return pi, nil
}

func (r *paymentIntentRepository) Create(ctx context.Context, pi *domain.PaymentIntentRef) error {
	query := `INSERT INTO payment_intents (booking_id, external_id, client_secret, amount, currency, status, idempotency_key, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	now := r.now()
	logger.DatabaseCall("INSERT", "payment_intents", "bookingID", pi.BookingID, "externalID", pi.ExternalID)
	err := r.db.QueryRowContext(ctx, query, pi.BookingID, pi.ExternalID, pi.ClientSecret, pi.Amount, pi.Currency, pi.Status, pi.IdempotencyKey, now, now).Scan(&pi.ID)
	logger.DatabaseResult("INSERT", 1, err, "paymentIntentID", pi.ID)
	if err != nil {
		return err
	}
	pi.CreatedOn, pi.UpdatedOn = now, now
	return nil
}

func (r *paymentIntentRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.PaymentIntentRef, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE external_id = $1`
	pi, err := scanIntent(r.db.QueryRowContext(ctx, query, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("payment intent", externalID)
	}
	return pi, err
}

func (r *paymentIntentRepository) GetLatestByBooking(ctx context.Context, bookingID int32) (*domain.PaymentIntentRef, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE booking_id = $1 ORDER BY id DESC LIMIT 1`
	pi, err := scanIntent(r.db.QueryRowContext(ctx, query, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return pi, err
}

func (r *paymentIntentRepository) ListByBooking(ctx context.Context, bookingID int32) ([]domain.PaymentIntentRef, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE booking_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []domain.PaymentIntentRef
	for rows.Next() {
		pi, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, *pi)
	}
	return intents, rows.Err()
}

func (r *paymentIntentRepository) CountByBooking(ctx context.Context, bookingID int32) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM payment_intents WHERE booking_id = $1`, bookingID).Scan(&count)
	return count, err
}

func (r *paymentIntentRepository) UpdateStatus(ctx context.Context, id int32, status domain.PaymentStatus) error {
	query := `UPDATE payment_intents SET status = $1, updated_on = $2 WHERE id = $3`
	logger.DatabaseCall("UPDATE", "payment_intents", "paymentIntentID", id, "status", status)
	res, err := r.db.ExecContext(ctx, query, status, r.now(), id)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "paymentIntentID", id)
		return err
	}
	n, _ := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, nil, "paymentIntentID", id)
	return nil
}
