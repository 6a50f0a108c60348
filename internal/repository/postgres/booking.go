package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/logger"
	"rentcar-backend/internal/repository"
	"rentcar-backend/internal/utils"
)

// vehicleLockSpace namespaces the advisory locks taken per vehicle
const vehicleLockSpace = 7301

const bookingColumns = `id, booking_number, session_id, vehicle_id, start_date, end_date, guest, driver, contact,
	insurance, extras, payment_option, price, deposit, status, payment_intent_id, paid_at, created_on, updated_on`

// overlapQuery counts holding bookings that share at least one calendar day with [$2, $3]
const overlapQuery = `SELECT count(*) FROM bookings
	WHERE vehicle_id = $1 AND status IN ('pending_payment', 'confirmed')
	AND start_date <= $3 AND end_date >= $2 AND id <> $4`

type bookingRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewBookingRepository(db *sql.DB) repository.BookingRepository {
	return &bookingRepository{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var (
		b                              domain.Booking
		start, end                     time.Time
		guest, driver, contact, extras []byte
		price                          []byte
		intentID                       sql.NullString
		paidAt                         sql.NullTime
	)
	err := row.Scan(&b.ID, &b.BookingNumber, &b.SessionID, &b.VehicleID, &start, &end, &guest, &driver, &contact,
		&b.Insurance, &extras, &b.PaymentOption, &price, &b.Deposit, &b.Status, &intentID, &paidAt, &b.CreatedOn, &b.UpdatedOn)
	if err != nil {
		return nil, err
	}
	b.Range = utils.NewDateRange(start, end)
	for _, f := range []struct {
		raw  []byte
		dest any
	}{{guest, &b.Guest}, {driver, &b.Driver}, {contact, &b.Contact}, {extras, &b.Extras}, {price, &b.Price}} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dest); err != nil {
			return nil, fmt.Errorf("decode booking %d: %w", b.ID, err)
		}
	}
	if intentID.Valid {
		b.PaymentIntentID = &intentID.String
	}
	if paidAt.Valid {
		t := paidAt.Time
		b.PaidAt = &t
	}
	return &b, nil
}

func (r *bookingRepository) Insert(ctx context.Context, b *domain.Booking) error {
	logger.EnterMethod("bookingRepository.Insert", "vehicleID", b.VehicleID, "range", b.Range.String(), "sessionID", b.SessionID)

	guest, driver, contact, extras, price, err := marshalBookingDocs(b)
	if err != nil {
		logger.ExitMethodWithError("bookingRepository.Insert", err, "reason", "failed to marshal booking documents")
		return err
	}

	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		logger.DatabaseCall("LOCK", "bookings", "vehicleID", b.VehicleID)
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, vehicleLockSpace, b.VehicleID); err != nil {
			return err
		}

		var conflicts int
		logger.DatabaseCall("SELECT", "bookings", "vehicleID", b.VehicleID, "op", "overlap")
		if err := tx.QueryRowContext(ctx, overlapQuery, b.VehicleID, b.Range.Start, b.Range.End, 0).Scan(&conflicts); err != nil {
			return err
		}
		if conflicts > 0 {
			logger.Info("Booking range overlaps an existing reservation", "vehicleID", b.VehicleID, "range", b.Range.String(), "conflicts", conflicts)
			return domain.NewConflictError("Selected dates are no longer available. Please choose different dates.")
		}

		now := r.now()
		query := `INSERT INTO bookings (booking_number, session_id, vehicle_id, start_date, end_date, guest, driver, contact,
		          insurance, extras, payment_option, price, total_amount, online_amount, deposit, status, created_on, updated_on)
		          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18) RETURNING id`
		logger.DatabaseCall("INSERT", "bookings", "bookingNumber", b.BookingNumber)
		err := tx.QueryRowContext(ctx, query, b.BookingNumber, b.SessionID, b.VehicleID, b.Range.Start, b.Range.End, guest, driver, contact,
			b.Insurance, extras, b.PaymentOption, price, b.Price.TotalAmount, b.Price.OnlineAmount, b.Deposit, b.Status, now, now).Scan(&b.ID)
		logger.DatabaseResult("INSERT", 1, err, "bookingID", b.ID)
		if err != nil {
			return err
		}
		b.CreatedOn, b.UpdatedOn = now, now
		return nil
	})

	if err != nil {
		logger.ExitMethodWithError("bookingRepository.Insert", err, "vehicleID", b.VehicleID)
		return err
	}
	logger.ExitMethod("bookingRepository.Insert", "bookingID", b.ID, "bookingNumber", b.BookingNumber)
	return nil
}

func marshalBookingDocs(b *domain.Booking) (guest, driver, contact, extras, price []byte, err error) {
	if guest, err = json.Marshal(b.Guest); err != nil {
		return
	}
	if driver, err = json.Marshal(b.Driver); err != nil {
		return
	}
	if contact, err = json.Marshal(b.Contact); err != nil {
		return
	}
	items := b.Extras
	if items == nil {
		items = []domain.Extra{}
	}
	if extras, err = json.Marshal(items); err != nil {
		return
	}
	price, err = json.Marshal(b.Price)
	return
}

func (r *bookingRepository) getOne(ctx context.Context, column string, value any) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ` + column + ` = $1`
	logger.DatabaseCall("SELECT", "bookings", column, value)
	b, err := scanBooking(r.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		logger.DatabaseResult("SELECT", 0, nil, column, value)
		return nil, err
	}
	logger.DatabaseResult("SELECT", 1, err, column, value)
	return b, err
}

func (r *bookingRepository) GetByID(ctx context.Context, id int32) (*domain.Booking, error) {
	b, err := r.getOne(ctx, "id", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("booking", id)
	}
	return b, err
}

func (r *bookingRepository) GetByNumber(ctx context.Context, number string) (*domain.Booking, error) {
	b, err := r.getOne(ctx, "booking_number", number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("booking", number)
	}
	return b, err
}

func (r *bookingRepository) GetBySession(ctx context.Context, sessionID string) (*domain.Booking, error) {
	b, err := r.getOne(ctx, "session_id", sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (r *bookingRepository) UpdatePricing(ctx context.Context, id int32, option domain.PaymentOption, price domain.PriceBreakdown) error {
	raw, err := json.Marshal(price)
	if err != nil {
		return err
	}
	query := `UPDATE bookings SET payment_option = $1, price = $2, total_amount = $3, online_amount = $4, updated_on = $5
	          WHERE id = $6 AND status = 'pending_payment'`
	logger.DatabaseCall("UPDATE", "bookings", "bookingID", id, "option", option)
	res, err := r.db.ExecContext(ctx, query, option, raw, price.TotalAmount, price.OnlineAmount, r.now(), id)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "bookingID", id)
		return err
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, err, "bookingID", id)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NewValidationError("booking", "booking is no longer awaiting payment")
	}
	return nil
}

func (r *bookingRepository) MarkPaid(ctx context.Context, id int32, paymentIntentID string, paidAt time.Time) (bool, error) {
	query := `UPDATE bookings SET status = 'confirmed', payment_intent_id = $1, paid_at = $2, updated_on = $3
	          WHERE id = $4 AND status = 'pending_payment'`
	logger.DatabaseCall("UPDATE", "bookings", "bookingID", id, "paymentIntentID", paymentIntentID)
	res, err := r.db.ExecContext(ctx, query, paymentIntentID, paidAt, r.now(), id)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "bookingID", id)
		return false, err
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, err, "bookingID", id)
	return n == 1, err
}

func (r *bookingRepository) Reinstate(ctx context.Context, id int32, paymentIntentID string, paidAt time.Time) error {
	logger.EnterMethod("bookingRepository.Reinstate", "bookingID", id, "paymentIntentID", paymentIntentID)

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var (
			vehicleID  int32
			start, end time.Time
			status     domain.BookingStatus
		)
		logger.DatabaseCall("SELECT", "bookings", "bookingID", id, "op", "reinstate")
		err := tx.QueryRowContext(ctx, `SELECT vehicle_id, start_date, end_date, status FROM bookings WHERE id = $1 FOR UPDATE`, id).
			Scan(&vehicleID, &start, &end, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NewNotFoundError("booking", id)
		}
		if err != nil {
			return err
		}
		if status != domain.BookingStatusExpired {
			return domain.NewValidationError("booking", fmt.Sprintf("booking cannot be reinstated from status %s", status))
		}

		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, vehicleLockSpace, vehicleID); err != nil {
			return err
		}
		var conflicts int
		if err := tx.QueryRowContext(ctx, overlapQuery, vehicleID, start, end, id).Scan(&conflicts); err != nil {
			return err
		}
		if conflicts > 0 {
			return domain.NewConflictError("The reserved dates were released and booked by someone else.")
		}

		query := `UPDATE bookings SET status = 'confirmed', payment_intent_id = $1, paid_at = $2, updated_on = $3
		          WHERE id = $4 AND status = 'expired'`
		logger.DatabaseCall("UPDATE", "bookings", "bookingID", id)
		_, err = tx.ExecContext(ctx, query, paymentIntentID, paidAt, r.now(), id)
		logger.DatabaseResult("UPDATE", 1, err, "bookingID", id)
		return err
	})

	if err != nil {
		logger.ExitMethodWithError("bookingRepository.Reinstate", err, "bookingID", id)
		return err
	}
	logger.ExitMethod("bookingRepository.Reinstate", "bookingID", id)
	return nil
}

func (r *bookingRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	          WHERE status = 'pending_payment' AND created_on < $1
	          ORDER BY created_on LIMIT $2`
	logger.DatabaseCall("SELECT", "bookings", "createdBefore", createdBefore, "limit", limit)
	rows, err := r.db.QueryContext(ctx, query, createdBefore, limit)
	if err != nil {
		logger.DatabaseResult("SELECT", 0, err)
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	logger.DatabaseResult("SELECT", int64(len(bookings)), rows.Err())
	return bookings, rows.Err()
}

func (r *bookingRepository) MarkExpired(ctx context.Context, id int32) (bool, error) {
	query := `UPDATE bookings SET status = 'expired', updated_on = $1 WHERE id = $2 AND status = 'pending_payment'`
	logger.DatabaseCall("UPDATE", "bookings", "bookingID", id, "status", domain.BookingStatusExpired)
	res, err := r.db.ExecContext(ctx, query, r.now(), id)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "bookingID", id)
		return false, err
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, err, "bookingID", id)
	return n == 1, err
}
