package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clinio/clinio/cache"
	"github.com/clinio/clinio/jobqueue"
	"github.com/clinio/clinio/notify"
)

// Cache TTLs: hospital records change rarely, appointment lists churn.
const (
	hospitalTTL    = time.Hour
	appointmentTTL = 5 * time.Minute
)

// Service implements the booking flows on top of the repository, cache, and
// job queue.
type Service struct {
	repo     Repository
	cache    *cache.Cache
	producer *jobqueue.Producer
	logger   *slog.Logger
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService wires the collaborators.
func NewService(repo Repository, c *cache.Cache, producer *jobqueue.Producer, opts ...ServiceOption) *Service {
	s := &Service{repo: repo, cache: c, producer: producer, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func hospitalKey(id string) string             { return "hospital:" + id }
func hospitalTag(id string) string             { return "hospital:" + id }
func hospitalAppointmentsTag(id string) string { return "hospital_appointments:" + id }
func userAppointmentsTag(id string) string     { return "user_appointments:" + id }

// Hospital returns the hospital record, served from cache when possible and
// re-populated from the repository on a miss.
func (s *Service) Hospital(ctx context.Context, id string) (Hospital, error) {
	key := hospitalKey(id)
	if h, ok := cache.Get[Hospital](ctx, s.cache, key); ok {
		return h, nil
	}
	h, err := s.repo.GetHospital(ctx, id)
	if err != nil {
		return Hospital{}, err
	}
	_ = s.cache.SetWithTags(ctx, key, h, hospitalTTL, []string{hospitalTag(id)})
	return h, nil
}

// HospitalAppointments lists a hospital's appointment requests through the
// cache; the list is tagged so bookings invalidate it.
func (s *Service) HospitalAppointments(ctx context.Context, hospitalID string) ([]Appointment, error) {
	key := "hospital_appointments:" + hospitalID
	if appts, ok := cache.Get[[]Appointment](ctx, s.cache, key); ok {
		return appts, nil
	}
	appts, err := s.repo.ListHospitalAppointments(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	_ = s.cache.SetWithTags(ctx, key, appts, appointmentTTL, []string{hospitalAppointmentsTag(hospitalID)})
	return appts, nil
}

// UserAppointments lists a user's appointment requests through the cache.
func (s *Service) UserAppointments(ctx context.Context, userID string) ([]Appointment, error) {
	key := "user_appointments:" + userID
	if appts, ok := cache.Get[[]Appointment](ctx, s.cache, key); ok {
		return appts, nil
	}
	appts, err := s.repo.ListUserAppointments(ctx, userID)
	if err != nil {
		return nil, err
	}
	_ = s.cache.SetWithTags(ctx, key, appts, appointmentTTL, []string{userAppointmentsTag(userID)})
	return appts, nil
}

// BookingRequest is the input to BookHospitalAppointment.
type BookingRequest struct {
	UserID       string
	HospitalID   string
	PatientName  string
	PatientEmail string
	Date         time.Time
	Time         string
	Reason       string
}

// BookHospitalAppointment records an appointment request, invalidates the
// affected cached lists, and queues the notifications. The user-facing call
// never waits on mail or push delivery; it returns once the appointment row
// and the job records are durable.
func (s *Service) BookHospitalAppointment(ctx context.Context, req BookingRequest) (Appointment, error) {
	hospital, err := s.Hospital(ctx, req.HospitalID)
	if err != nil {
		return Appointment{}, err
	}

	exists, err := s.repo.HasAppointmentOn(ctx, req.UserID, req.HospitalID, req.Date)
	if err != nil {
		return Appointment{}, err
	}
	if exists {
		return Appointment{}, ErrDuplicateBooking
	}

	appt := Appointment{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		HospitalID:   req.HospitalID,
		PatientName:  req.PatientName,
		PatientEmail: req.PatientEmail,
		Date:         req.Date,
		Time:         req.Time,
		Reason:       req.Reason,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateAppointment(ctx, appt); err != nil {
		return Appointment{}, err
	}

	s.queueBookingNotifications(ctx, appt, hospital)

	if _, err := s.cache.InvalidateByTags(ctx,
		hospitalAppointmentsTag(req.HospitalID),
		userAppointmentsTag(req.UserID),
	); err != nil {
		s.logger.Warn("booking cache invalidation incomplete", "hospital", req.HospitalID, "err", err)
	}

	return appt, nil
}

// UpdateAppointmentStatus accepts or rejects an appointment request,
// invalidates the cached lists it appears in, and queues the decision email
// to the patient.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, id, status string) (Appointment, error) {
	if status != StatusAccepted && status != StatusRejected {
		return Appointment{}, ErrInvalidStatus
	}
	appt, err := s.repo.UpdateAppointmentStatus(ctx, id, status)
	if err != nil {
		return Appointment{}, err
	}

	s.queueStatusNotification(ctx, appt)

	if _, err := s.cache.InvalidateByTags(ctx,
		hospitalAppointmentsTag(appt.HospitalID),
		userAppointmentsTag(appt.UserID),
	); err != nil {
		s.logger.Warn("status cache invalidation incomplete", "appointment", appt.ID, "err", err)
	}

	return appt, nil
}

// queueStatusNotification emails the patient about the decision. Like the
// booking notifications, a failed enqueue is logged, not returned.
func (s *Service) queueStatusNotification(ctx context.Context, appt Appointment) {
	date := appt.Date.Format("2006-01-02")
	subject := "Appointment Request Accepted"
	body := fmt.Sprintf("<p>Your appointment on %s at %s has been accepted.</p>", date, appt.Time)
	if appt.Status == StatusRejected {
		subject = "Appointment Request Rejected"
		body = fmt.Sprintf("<p>Your appointment request for %s at %s has been rejected.</p>", date, appt.Time)
	}
	if _, err := s.producer.Enqueue(ctx, notify.TypeEmail, notify.EmailPayload{
		Kind:    "appointment_status_update",
		To:      appt.PatientEmail,
		Subject: subject,
		HTML:    body,
	}); err != nil {
		s.logger.Error("status email not queued", "appointment", appt.ID, "err", err)
	}
}

// queueBookingNotifications enqueues the hospital alert, the user
// confirmation, and the real-time push. Enqueue failures are logged, not
// returned: the appointment is already booked and a missing notification
// must not fail the request.
func (s *Service) queueBookingNotifications(ctx context.Context, appt Appointment, hospital Hospital) {
	date := appt.Date.Format("2006-01-02")

	if _, err := s.producer.Enqueue(ctx, notify.TypeEmail, notify.EmailPayload{
		Kind:    "appointment_notification",
		To:      hospital.Email,
		Subject: "New Appointment Booking Notification",
		HTML:    fmt.Sprintf("<p>%s booked an appointment on %s at %s: %s</p>", appt.PatientName, date, appt.Time, appt.Reason),
	}); err != nil {
		s.logger.Error("hospital notification not queued", "appointment", appt.ID, "err", err)
	}

	if _, err := s.producer.Enqueue(ctx, notify.TypeEmail, notify.EmailPayload{
		Kind:    "appointment_confirmation",
		To:      appt.PatientEmail,
		Subject: "Appointment Booked Successfully",
		HTML:    fmt.Sprintf("<p>Your appointment request at %s for %s at %s has been sent.</p>", hospital.Name, date, appt.Time),
	}); err != nil {
		s.logger.Error("user confirmation not queued", "appointment", appt.ID, "err", err)
	}

	if _, err := s.producer.Enqueue(ctx, notify.TypePush, notify.PushPayload{
		Channel: "hospital-" + appt.HospitalID,
		Event:   "new-appointment",
		Data:    mustJSON(map[string]string{"appointmentId": appt.ID, "date": date, "time": appt.Time}),
	}); err != nil {
		s.logger.Error("push notification not queued", "appointment", appt.ID, "err", err)
	}
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}
