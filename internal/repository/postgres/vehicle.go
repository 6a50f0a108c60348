package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/logger"
	"rentcar-backend/internal/repository"
	"rentcar-backend/internal/utils"
)

type vehicleRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewVehicleRepository(db *sql.DB) repository.VehicleRepository {
	return &vehicleRepository{db: db, now: time.Now}
}

func (r *vehicleRepository) GetByID(ctx context.Context, id int32) (*domain.Vehicle, error) {
	v := &domain.Vehicle{}
	query := `SELECT id, owner_id, name, daily_rate, cleaning_fee, deposit, min_rental_days, status FROM vehicles WHERE id = $1`
	logger.DatabaseCall("SELECT", "vehicles", "vehicleID", id)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&v.ID, &v.OwnerID, &v.Name, &v.DailyRate, &v.CleaningFee, &v.Deposit, &v.MinRentalDays, &v.Status)
	if errors.Is(err, sql.ErrNoRows) {
		logger.DatabaseResult("SELECT", 0, nil, "vehicleID", id)
		return nil, domain.NewNotFoundError("vehicle", id)
	}
	logger.DatabaseResult("SELECT", 1, err, "vehicleID", id)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *vehicleRepository) ListReservedRanges(ctx context.Context, vehicleID int32) ([]utils.DateRange, error) {
	query := `SELECT start_date, end_date FROM bookings
	          WHERE vehicle_id = $1 AND status IN ('pending_payment', 'confirmed') AND end_date >= $2
	          ORDER BY start_date`
	logger.DatabaseCall("SELECT", "bookings", "vehicleID", vehicleID)
	rows, err := r.db.QueryContext(ctx, query, vehicleID, utils.TruncateDay(r.now().UTC()))
	if err != nil {
		logger.DatabaseResult("SELECT", 0, err, "vehicleID", vehicleID)
		return nil, err
	}
	defer rows.Close()

	var ranges []utils.DateRange
	for rows.Next() {
		var start, end time.Time
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		ranges = append(ranges, utils.NewDateRange(start, end))
	}
	logger.DatabaseResult("SELECT", int64(len(ranges)), rows.Err(), "vehicleID", vehicleID)
	return ranges, rows.Err()
}
