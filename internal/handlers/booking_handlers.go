package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/evshare-bookings/internal/domain"
	"github.com/diagnosis/evshare-bookings/internal/presentation"
	"github.com/diagnosis/evshare-bookings/internal/service"
)

type slotRequest struct {
	StartTime domain.WireTime `json:"startTime"`
	EndTime   domain.WireTime `json:"endTime"`
	Notes     string          `json:"notes,omitempty" validate:"max=1000"`
}

type validateResponse struct {
	Valid                  bool                   `json:"valid"`
	Reason                 string                 `json:"reason,omitempty"`
	Rule                   domain.Rule            `json:"rule,omitempty"`
	Shortfall              *domain.QuotaShortfall `json:"shortfall,omitempty"`
	HoursCurrentWeek       float64                `json:"hoursCurrentWeek"`
	HoursNextWeek          float64                `json:"hoursNextWeek"`
	RemainingHours         *float64               `json:"remainingHours,omitempty"`
	RemainingHoursNextWeek *float64               `json:"remainingHoursNextWeek,omitempty"`
}

type listResponse struct {
	Bookings []presentation.BookingView `json:"bookings"`
}

type checkInRequest struct {
	Photos []string `json:"photos" validate:"max=20,dive,required,max=2048"`
	Notes  string   `json:"notes,omitempty" validate:"max=1000"`
}

type checkOutRequest struct {
	DamageReport string `json:"damageReport,omitempty" validate:"max=4000"`
}

type checkOutResponse struct {
	Booking         domain.BookingDTO `json:"booking"`
	PenaltyHours    float64           `json:"penaltyHours"`
	OvertimeMinutes int               `json:"overtimeMinutes"`
	Message         string            `json:"message"`
}

func (h *Handlers) slot(r *http.Request) (service.SlotReq, error) {
	var req slotRequest
	if err := decode(r, &req); err != nil {
		return service.SlotReq{}, err
	}
	return service.SlotReq{
		GroupID:   chi.URLParam(r, "groupID"),
		VehicleID: chi.URLParam(r, "vehicleID"),
		UserID:    userID(r),
		Start:     req.StartTime.Time,
		End:       req.EndTime.Time,
		Notes:     req.Notes,
	}, nil
}

// ValidateBooking answers whether the slot could be booked right now
// without creating anything.
func (h *Handlers) ValidateBooking(w http.ResponseWriter, r *http.Request) {
	req, err := h.slot(r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	res, err := h.bookingService.Validate(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := validateResponse{
		Valid:            res.Verdict.Valid,
		Reason:           res.Verdict.Reason,
		Rule:             res.Verdict.Rule,
		Shortfall:        res.Verdict.Quota,
		HoursCurrentWeek: res.HoursCurrentWeek,
		HoursNextWeek:    res.HoursNextWeek,
	}
	if res.Quota != nil {
		rem, remNext := res.Quota.RemainingHours(), res.Quota.RemainingHoursNextWeek()
		out.RemainingHours, out.RemainingHoursNextWeek = &rem, &remNext
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	req, err := h.slot(r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	b, err := h.bookingService.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b.ToDTO())
}

func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	views, err := h.bookingService.List(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "vehicleID"), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Bookings: views})
}

func (h *Handlers) GetQuota(w http.ResponseWriter, r *http.Request) {
	q, err := h.bookingService.Quota(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "vehicleID"), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q.ToDTO())
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	v, err := h.bookingService.Get(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handlers) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if err := decode(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	b, err := h.bookingService.CheckIn(r.Context(), chi.URLParam(r, "id"), userID(r), req.Photos, req.Notes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b.ToDTO())
}

func (h *Handlers) CheckOut(w http.ResponseWriter, r *http.Request) {
	var req checkOutRequest
	if err := decode(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	res, err := h.bookingService.CheckOut(r.Context(), chi.URLParam(r, "id"), userID(r), req.DamageReport)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkOutResponse{
		Booking:         res.Booking.ToDTO(),
		PenaltyHours:    res.PenaltyHours,
		OvertimeMinutes: int(res.OvertimeMinutes),
		Message:         res.Message,
	})
}

func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookingService.Cancel(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b.ToDTO())
}
