// Package booking is the application boundary that exercises the shared
// infrastructure: hospital lookups go through the read-through cache,
// mutations invalidate by tag and hand their notifications to the job queue,
// and the HTTP surface sits behind the rate limiter.
package booking

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrHospitalNotFound reports an unknown hospital id.
	ErrHospitalNotFound = errors.New("booking: hospital not found")
	// ErrDuplicateBooking reports that the user already has a request for
	// that hospital and date.
	ErrDuplicateBooking = errors.New("booking: appointment already requested for this date")
	// ErrAppointmentNotFound reports an unknown appointment id.
	ErrAppointmentNotFound = errors.New("booking: appointment not found")
	// ErrInvalidStatus reports a status outside accepted/rejected.
	ErrInvalidStatus = errors.New("booking: status must be accepted or rejected")
)

// Hospital is the subset of hospital data handlers need.
type Hospital struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Appointment is one appointment request against a hospital.
type Appointment struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	HospitalID   string    `json:"hospitalId"`
	PatientName  string    `json:"patientName"`
	PatientEmail string    `json:"patientEmail"`
	Date         time.Time `json:"date"`
	Time         string    `json:"time"`
	Reason       string    `json:"reason"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Appointment statuses.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// Repository is the source of truth the cache fronts.
type Repository interface {
	GetHospital(ctx context.Context, id string) (Hospital, error)
	CreateAppointment(ctx context.Context, appt Appointment) error
	HasAppointmentOn(ctx context.Context, userID, hospitalID string, date time.Time) (bool, error)
	ListHospitalAppointments(ctx context.Context, hospitalID string) ([]Appointment, error)
	ListUserAppointments(ctx context.Context, userID string) ([]Appointment, error)
	// UpdateAppointmentStatus stores the new status and returns the updated
	// row so callers can invalidate caches and notify the patient.
	UpdateAppointmentStatus(ctx context.Context, id, status string) (Appointment, error)
}
