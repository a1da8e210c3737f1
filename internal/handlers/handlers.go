package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/diagnosis/evshare-bookings/internal/domain"
	"github.com/diagnosis/evshare-bookings/internal/service"
	"github.com/diagnosis/evshare-bookings/pkg/logger"
	"github.com/diagnosis/evshare-bookings/pkg/middleware"
	"github.com/diagnosis/evshare-bookings/pkg/response"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Handlers struct {
	bookingService service.BookingService
}

func New(bookingService service.BookingService) *Handlers {
	return &Handlers{bookingService: bookingService}
}

// Mount registers the booking routes. Callers install authentication first;
// every handler acts as the token's subject.
func (h *Handlers) Mount(r chi.Router) {
	r.Route("/groups/{groupID}/vehicles/{vehicleID}", func(r chi.Router) {
		r.Post("/bookings/validate", h.ValidateBooking)
		r.Post("/bookings", h.CreateBooking)
		r.Get("/bookings", h.ListBookings)
		r.Get("/quota", h.GetQuota)
	})
	r.Route("/bookings/{id}", func(r chi.Router) {
		r.Get("/", h.GetBooking)
		r.Post("/check-in", h.CheckIn)
		r.Post("/check-out", h.CheckOut)
		r.Post("/cancel", h.Cancel)
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	response.JSON(w, statusCode, data)
}

func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return validate.Struct(v)
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		response.BadRequest(w, "Invalid JSON format")
		return
	}
	fields := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	response.WriteErrorWithDetails(w, http.StatusBadRequest, "Invalid request body", response.CodeInvalidInput, fields)
}

type ruleDetails struct {
	Rule  domain.Rule            `json:"rule"`
	Quota *domain.QuotaShortfall `json:"quota,omitempty"`
}

type transitionDetails struct {
	Code domain.TransitionCode `json:"code"`
	From domain.Status         `json:"from"`
}

// writeServiceError maps the error taxonomy onto HTTP statuses. Validation
// reasons and backend messages reach the client unchanged.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *domain.ValidationError
		terr *domain.TransitionError
		cerr *domain.CommandError
	)
	switch {
	case errors.As(err, &verr):
		response.WriteErrorWithDetails(w, http.StatusUnprocessableEntity, verr.Reason, response.CodeRuleViolation,
			ruleDetails{Rule: verr.Rule, Quota: verr.Quota})
	case errors.Is(err, domain.ErrPhotoRequired):
		response.WriteError(w, http.StatusBadRequest, domain.ErrPhotoRequired.Error(), response.CodePhotoRequired)
	case errors.As(err, &terr):
		status := http.StatusConflict
		code := response.CodeInvalidState
		if terr.Code == domain.CodeNotOwner {
			status, code = http.StatusForbidden, response.CodeForbidden
		}
		response.WriteErrorWithDetails(w, status, terr.Message, code, transitionDetails{Code: terr.Code, From: terr.From})
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(w, domain.ErrNotFound.Error())
	case errors.Is(err, domain.ErrForbidden):
		response.Forbidden(w, domain.ErrForbidden.Error())
	case errors.As(err, &cerr):
		response.WriteError(w, http.StatusBadGateway, cerr.Error(), response.CodeBackendFailed)
	default:
		logger.ErrorContext(r.Context(), "request failed", "error", err)
		response.InternalError(w, "internal error")
	}
}

func userID(r *http.Request) string {
	return middleware.UserID(r.Context())
}
