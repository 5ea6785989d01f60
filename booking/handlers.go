package booking

import (
	"errors"
	"time"

	"github.com/clinio/clinio/httpx"
	"github.com/clinio/clinio/ratelimit"
	"github.com/clinio/clinio/stats"
)

// bookingRequestBody mirrors the JSON accepted by the booking endpoint.
type bookingRequestBody struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Reason     string `json:"reason"`
	HospitalID string `json:"hospitalId"`
	UserID     string `json:"userId"`
}

// RegisterRoutes mounts the booking API. apiLimiter guards every /api route;
// the booking mutation is additionally throttled per subject by
// bookingLimiter.
func RegisterRoutes(a *httpx.App, svc *Service, collector *stats.Collector, apiLimiter, bookingLimiter *ratelimit.Limiter) {
	a.GET("/healthz", func(c httpx.Context) error {
		return c.JSON(httpx.StatusOK, map[string]string{"status": "ok"})
	})

	api := httpx.NewRouter(a, "/api", apiLimiter.Middleware())
	api.GET("/hospitals/:id", getHospital(svc)).
		GET("/appointments/hospital/:id", listHospitalAppointments(svc)).
		GET("/appointments/user/:id", listUserAppointments(svc)).
		POST("/appointments/hospital", bookHospitalAppointment(svc), bookingLimiter.Middleware()).
		PATCH("/appointments/:id/status", updateAppointmentStatus(svc)).
		GET("/redis-stats", getStats(collector))
}

func getHospital(svc *Service) httpx.HandlerFunc {
	return func(c httpx.Context) error {
		hospital, err := svc.Hospital(c.Request().Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, ErrHospitalNotFound) {
				return httpx.HTTPError(httpx.StatusNotFound, "Hospital not found")
			}
			return httpx.HTTPError(httpx.StatusInternalError, "Failed to load hospital")
		}
		return c.JSON(httpx.StatusOK, hospital)
	}
}

func listHospitalAppointments(svc *Service) httpx.HandlerFunc {
	return func(c httpx.Context) error {
		appts, err := svc.HospitalAppointments(c.Request().Context(), c.Param("id"))
		if err != nil {
			return httpx.HTTPError(httpx.StatusInternalError, "Failed to load appointments")
		}
		return c.JSON(httpx.StatusOK, map[string]any{"appointments": appts})
	}
}

func listUserAppointments(svc *Service) httpx.HandlerFunc {
	return func(c httpx.Context) error {
		appts, err := svc.UserAppointments(c.Request().Context(), c.Param("id"))
		if err != nil {
			return httpx.HTTPError(httpx.StatusInternalError, "Failed to load appointments")
		}
		return c.JSON(httpx.StatusOK, map[string]any{"appointments": appts})
	}
}

func bookHospitalAppointment(svc *Service) httpx.HandlerFunc {
	return func(c httpx.Context) error {
		var body bookingRequestBody
		if err := c.Bind(&body); err != nil {
			return httpx.HTTPError(httpx.StatusBadRequest, "Malformed request body")
		}
		if body.Name == "" || body.Email == "" || body.Date == "" || body.Time == "" ||
			body.Reason == "" || body.HospitalID == "" || body.UserID == "" {
			return httpx.HTTPError(httpx.StatusBadRequest, "All fields are required")
		}
		date, err := time.Parse("2006-01-02", body.Date)
		if err != nil {
			return httpx.HTTPError(httpx.StatusBadRequest, "Date must be YYYY-MM-DD")
		}

		appt, err := svc.BookHospitalAppointment(c.Request().Context(), BookingRequest{
			UserID:       body.UserID,
			HospitalID:   body.HospitalID,
			PatientName:  body.Name,
			PatientEmail: body.Email,
			Date:         date,
			Time:         body.Time,
			Reason:       body.Reason,
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrHospitalNotFound):
				return httpx.HTTPError(httpx.StatusNotFound, "Hospital not found")
			case errors.Is(err, ErrDuplicateBooking):
				return httpx.HTTPError(httpx.StatusBadRequest, "You already have an appointment request for this date")
			default:
				return httpx.HTTPError(httpx.StatusInternalError, "Failed to process appointment request")
			}
		}
		return c.JSON(httpx.StatusOK, map[string]any{
			"message":     "Appointment request sent successfully",
			"appointment": appt,
		})
	}
}

func updateAppointmentStatus(svc *Service) httpx.HandlerFunc {
	return func(c httpx.Context) error {
		var body struct {
			Status string `json:"status"`
		}
		if err := c.Bind(&body); err != nil {
			return httpx.HTTPError(httpx.StatusBadRequest, "Malformed request body")
		}
		appt, err := svc.UpdateAppointmentStatus(c.Request().Context(), c.Param("id"), body.Status)
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidStatus):
				return httpx.HTTPError(httpx.StatusBadRequest, "Status must be accepted or rejected")
			case errors.Is(err, ErrAppointmentNotFound):
				return httpx.HTTPError(httpx.StatusNotFound, "Appointment not found")
			default:
				return httpx.HTTPError(httpx.StatusInternalError, "Failed to update appointment")
			}
		}
		return c.JSON(httpx.StatusOK, map[string]any{
			"message":     "Appointment status updated",
			"appointment": appt,
		})
	}
}

func getStats(collector *stats.Collector) httpx.HandlerFunc {
	return func(c httpx.Context) error {
		snap := collector.Snapshot()
		return c.JSON(httpx.StatusOK, map[string]any{
			"message": "Store operation statistics",
			"data": map[string]any{
				"totalOperations":    snap.Total,
				"operationBreakdown": snap.ByKind,
				"timestamp":          time.Now().UTC().Format(time.RFC3339),
			},
		})
	}
}
