package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/clinio/clinio/cache"
	"github.com/clinio/clinio/jobqueue"
	"github.com/clinio/clinio/kv/memory"
)

type fakeRepo struct {
	mu            sync.Mutex
	hospitals     map[string]Hospital
	appointments  []Appointment
	hospitalCalls int
	listCalls     int
}

func newFakeRepo(hospitals ...Hospital) *fakeRepo {
	r := &fakeRepo{hospitals: make(map[string]Hospital)}
	for _, h := range hospitals {
		r.hospitals[h.ID] = h
	}
	return r
}

func (r *fakeRepo) GetHospital(_ context.Context, id string) (Hospital, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hospitalCalls++
	h, ok := r.hospitals[id]
	if !ok {
		return Hospital{}, ErrHospitalNotFound
	}
	return h, nil
}

func (r *fakeRepo) CreateAppointment(_ context.Context, appt Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments = append(r.appointments, appt)
	return nil
}

func (r *fakeRepo) HasAppointmentOn(_ context.Context, userID, hospitalID string, date time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appointments {
		if a.UserID == userID && a.HospitalID == hospitalID && a.Date.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) ListHospitalAppointments(_ context.Context, hospitalID string) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	var out []Appointment
	for _, a := range r.appointments {
		if a.HospitalID == hospitalID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListUserAppointments(_ context.Context, userID string) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	var out []Appointment
	for _, a := range r.appointments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateAppointmentStatus(_ context.Context, id, status string) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.appointments {
		if a.ID == id {
			r.appointments[i].Status = status
			return r.appointments[i], nil
		}
	}
	return Appointment{}, ErrAppointmentNotFound
}

var testHospital = Hospital{ID: "h1", Name: "General", Email: "admin@general.example"}

func newTestService(repo Repository, store *memory.Store) *Service {
	return NewService(repo, cache.New(store), jobqueue.NewProducer(store))
}

func testBookingRequest() BookingRequest {
	return BookingRequest{
		UserID:       "u1",
		HospitalID:   "h1",
		PatientName:  "Pat",
		PatientEmail: "pat@example.com",
		Date:         time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		Time:         "10:30",
		Reason:       "checkup",
	}
}

func TestHospitalServedFromCache(t *testing.T) {
	repo := newFakeRepo(testHospital)
	svc := newTestService(repo, memory.NewStore())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		h, err := svc.Hospital(ctx, "h1")
		if err != nil {
			t.Fatalf("Hospital() error = %v", err)
		}
		if h != testHospital {
			t.Fatalf("Hospital() = %+v", h)
		}
	}
	if repo.hospitalCalls != 1 {
		t.Fatalf("repository hit %d times, want 1", repo.hospitalCalls)
	}
}

func TestHospitalNotFound(t *testing.T) {
	svc := newTestService(newFakeRepo(), memory.NewStore())
	if _, err := svc.Hospital(context.Background(), "nope"); err != ErrHospitalNotFound {
		t.Fatalf("Hospital() error = %v, want ErrHospitalNotFound", err)
	}
}

func TestHospitalReadsSurviveCacheOutage(t *testing.T) {
	repo := newFakeRepo(testHospital)
	store := memory.NewStore()
	svc := newTestService(repo, store)
	ctx := context.Background()

	store.SetUnavailable(true)
	h, err := svc.Hospital(ctx, "h1")
	if err != nil {
		t.Fatalf("Hospital() during outage error = %v", err)
	}
	if h != testHospital {
		t.Fatalf("Hospital() = %+v", h)
	}
}

func TestBookHospitalAppointment(t *testing.T) {
	repo := newFakeRepo(testHospital)
	store := memory.NewStore()
	svc := newTestService(repo, store)
	ctx := context.Background()

	appt, err := svc.BookHospitalAppointment(ctx, testBookingRequest())
	if err != nil {
		t.Fatalf("BookHospitalAppointment() error = %v", err)
	}
	if appt.ID == "" || appt.Status != StatusPending {
		t.Fatalf("appointment = %+v", appt)
	}
	if len(repo.appointments) != 1 {
		t.Fatalf("stored appointments = %d, want 1", len(repo.appointments))
	}

	// Two emails (hospital alert plus user confirmation) and one push event
	// become ready jobs.
	now := float64(time.Now().Add(time.Second).UnixMilli())
	emails, err := store.ZRangeByScore(ctx, "jobs:email:scheduled", 0, now, 0)
	if err != nil {
		t.Fatalf("email schedule read error = %v", err)
	}
	if len(emails) != 2 {
		t.Fatalf("queued emails = %d, want 2", len(emails))
	}
	pushes, err := store.ZRangeByScore(ctx, "jobs:push:scheduled", 0, now, 0)
	if err != nil {
		t.Fatalf("push schedule read error = %v", err)
	}
	if len(pushes) != 1 {
		t.Fatalf("queued pushes = %d, want 1", len(pushes))
	}
}

func TestBookRejectsDuplicateDate(t *testing.T) {
	repo := newFakeRepo(testHospital)
	svc := newTestService(repo, memory.NewStore())
	ctx := context.Background()

	if _, err := svc.BookHospitalAppointment(ctx, testBookingRequest()); err != nil {
		t.Fatalf("first booking error = %v", err)
	}
	if _, err := svc.BookHospitalAppointment(ctx, testBookingRequest()); err != ErrDuplicateBooking {
		t.Fatalf("second booking error = %v, want ErrDuplicateBooking", err)
	}
	if len(repo.appointments) != 1 {
		t.Fatalf("stored appointments = %d, want 1", len(repo.appointments))
	}
}

func TestBookRejectsUnknownHospital(t *testing.T) {
	svc := newTestService(newFakeRepo(), memory.NewStore())
	req := testBookingRequest()
	req.HospitalID = "nope"
	if _, err := svc.BookHospitalAppointment(context.Background(), req); err != ErrHospitalNotFound {
		t.Fatalf("error = %v, want ErrHospitalNotFound", err)
	}
}

func TestUpdateAppointmentStatus(t *testing.T) {
	repo := newFakeRepo(testHospital)
	store := memory.NewStore()
	svc := newTestService(repo, store)
	ctx := context.Background()

	appt, err := svc.BookHospitalAppointment(ctx, testBookingRequest())
	if err != nil {
		t.Fatalf("BookHospitalAppointment() error = %v", err)
	}

	// Warm the user list cache so the update has something to invalidate.
	if _, err := svc.UserAppointments(ctx, "u1"); err != nil {
		t.Fatalf("UserAppointments() error = %v", err)
	}
	listCalls := repo.listCalls

	updated, err := svc.UpdateAppointmentStatus(ctx, appt.ID, StatusAccepted)
	if err != nil {
		t.Fatalf("UpdateAppointmentStatus() error = %v", err)
	}
	if updated.Status != StatusAccepted {
		t.Fatalf("status = %s, want %s", updated.Status, StatusAccepted)
	}

	// Booking queued two emails; the decision adds a third.
	now := float64(time.Now().Add(time.Second).UnixMilli())
	emails, err := store.ZRangeByScore(ctx, "jobs:email:scheduled", 0, now, 0)
	if err != nil {
		t.Fatalf("email schedule read error = %v", err)
	}
	if len(emails) != 3 {
		t.Fatalf("queued emails = %d, want 3", len(emails))
	}

	// The cached list was invalidated, so the next read hits the repository
	// and sees the decision.
	appts, err := svc.UserAppointments(ctx, "u1")
	if err != nil {
		t.Fatalf("UserAppointments() error = %v", err)
	}
	if repo.listCalls != listCalls+1 {
		t.Fatalf("repository hits after update = %d, want %d", repo.listCalls, listCalls+1)
	}
	if len(appts) != 1 || appts[0].Status != StatusAccepted {
		t.Fatalf("user list after update = %+v", appts)
	}
}

func TestUpdateAppointmentStatusRejectsUnknownStatus(t *testing.T) {
	repo := newFakeRepo(testHospital)
	svc := newTestService(repo, memory.NewStore())

	if _, err := svc.UpdateAppointmentStatus(context.Background(), "a1", "maybe"); err != ErrInvalidStatus {
		t.Fatalf("error = %v, want ErrInvalidStatus", err)
	}
}

func TestUpdateAppointmentStatusUnknownAppointment(t *testing.T) {
	svc := newTestService(newFakeRepo(testHospital), memory.NewStore())

	if _, err := svc.UpdateAppointmentStatus(context.Background(), "nope", StatusRejected); err != ErrAppointmentNotFound {
		t.Fatalf("error = %v, want ErrAppointmentNotFound", err)
	}
}

func TestBookingInvalidatesCachedLists(t *testing.T) {
	repo := newFakeRepo(testHospital)
	svc := newTestService(repo, memory.NewStore())
	ctx := context.Background()

	// Warm both list caches.
	if _, err := svc.HospitalAppointments(ctx, "h1"); err != nil {
		t.Fatalf("HospitalAppointments() error = %v", err)
	}
	if _, err := svc.UserAppointments(ctx, "u1"); err != nil {
		t.Fatalf("UserAppointments() error = %v", err)
	}
	warmCalls := repo.listCalls

	// Cached: no extra repository hits.
	svc.HospitalAppointments(ctx, "h1")
	svc.UserAppointments(ctx, "u1")
	if repo.listCalls != warmCalls {
		t.Fatalf("cached reads hit the repository")
	}

	if _, err := svc.BookHospitalAppointment(ctx, testBookingRequest()); err != nil {
		t.Fatalf("BookHospitalAppointment() error = %v", err)
	}

	// The booking invalidated both lists, so the next reads see it.
	appts, err := svc.HospitalAppointments(ctx, "h1")
	if err != nil {
		t.Fatalf("HospitalAppointments() error = %v", err)
	}
	if len(appts) != 1 {
		t.Fatalf("hospital list = %d entries, want 1", len(appts))
	}
	appts, err = svc.UserAppointments(ctx, "u1")
	if err != nil {
		t.Fatalf("UserAppointments() error = %v", err)
	}
	if len(appts) != 1 {
		t.Fatalf("user list = %d entries, want 1", len(appts))
	}
	if repo.listCalls != warmCalls+2 {
		t.Fatalf("repository hits after invalidation = %d, want %d", repo.listCalls, warmCalls+2)
	}
}
