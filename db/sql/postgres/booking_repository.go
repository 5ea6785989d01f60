package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/clinio/clinio/booking"
)

// BookingRepository persists hospitals and appointment requests inside
// PostgreSQL. It is the source of truth the cache layer fronts.
type BookingRepository struct {
	db *sql.DB
}

// NewBookingRepository wraps an existing *sql.DB connection.
func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) GetHospital(ctx context.Context, id string) (booking.Hospital, error) {
	const query = `SELECT id, name, email FROM hospitals WHERE id = $1`
	var h booking.Hospital
	err := r.db.QueryRowContext(ctx, query, id).Scan(&h.ID, &h.Name, &h.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return booking.Hospital{}, booking.ErrHospitalNotFound
		}
		return booking.Hospital{}, translateBookingError(err)
	}
	return h, nil
}

// CreateHospital inserts a hospital record.
func (r *BookingRepository) CreateHospital(ctx context.Context, h booking.Hospital) error {
	const query = `INSERT INTO hospitals (id, name, email) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, query, h.ID, h.Name, h.Email)
	return translateBookingError(err)
}

func (r *BookingRepository) CreateAppointment(ctx context.Context, appt booking.Appointment) error {
	const query = `INSERT INTO appointments (id, user_id, hospital_id, patient_name, patient_email, date, time, reason, status, created_at)
                   VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query,
		appt.ID, appt.UserID, appt.HospitalID, appt.PatientName, appt.PatientEmail,
		appt.Date, appt.Time, appt.Reason, appt.Status, appt.CreatedAt)
	return translateBookingError(err)
}

func (r *BookingRepository) HasAppointmentOn(ctx context.Context, userID, hospitalID string, date time.Time) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM appointments WHERE user_id = $1 AND hospital_id = $2 AND date = $3)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, hospitalID, date).Scan(&exists); err != nil {
		return false, translateBookingError(err)
	}
	return exists, nil
}

func (r *BookingRepository) ListHospitalAppointments(ctx context.Context, hospitalID string) ([]booking.Appointment, error) {
	const query = `SELECT id, user_id, hospital_id, patient_name, patient_email, date, time, reason, status, created_at
                   FROM appointments WHERE hospital_id = $1 ORDER BY date, time`
	return r.listAppointments(ctx, query, hospitalID)
}

func (r *BookingRepository) ListUserAppointments(ctx context.Context, userID string) ([]booking.Appointment, error) {
	const query = `SELECT id, user_id, hospital_id, patient_name, patient_email, date, time, reason, status, created_at
                   FROM appointments WHERE user_id = $1 ORDER BY date, time`
	return r.listAppointments(ctx, query, userID)
}

// UpdateAppointmentStatus moves an appointment between pending, accepted,
// and rejected, returning the updated row.
func (r *BookingRepository) UpdateAppointmentStatus(ctx context.Context, id, status string) (booking.Appointment, error) {
	const query = `UPDATE appointments SET status = $2 WHERE id = $1
	               RETURNING id, user_id, hospital_id, patient_name, patient_email, date, time, reason, status, created_at`
	var appt booking.Appointment
	err := r.db.QueryRowContext(ctx, query, id, status).Scan(
		&appt.ID, &appt.UserID, &appt.HospitalID, &appt.PatientName, &appt.PatientEmail,
		&appt.Date, &appt.Time, &appt.Reason, &appt.Status, &appt.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return booking.Appointment{}, booking.ErrAppointmentNotFound
		}
		return booking.Appointment{}, translateBookingError(err)
	}
	return appt, nil
}

func (r *BookingRepository) listAppointments(ctx context.Context, query string, arg any) ([]booking.Appointment, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, translateBookingError(err)
	}
	defer rows.Close()

	var appts []booking.Appointment
	for rows.Next() {
		var appt booking.Appointment
		if err := rows.Scan(
			&appt.ID, &appt.UserID, &appt.HospitalID, &appt.PatientName, &appt.PatientEmail,
			&appt.Date, &appt.Time, &appt.Reason, &appt.Status, &appt.CreatedAt,
		); err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

func translateBookingError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return booking.ErrDuplicateBooking
		case "22P02":
			return booking.ErrHospitalNotFound
		}
	}
	return err
}
