// Package remote talks to an external booking backend over REST. The
// backend owns bookings and quota; this client only moves DTOs and keeps
// the backend's error text intact.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-querystring/query"

	"github.com/diagnosis/evshare-bookings/internal/domain"
	"github.com/diagnosis/evshare-bookings/pkg/logger"
	"github.com/diagnosis/evshare-bookings/pkg/metrics"
	"github.com/diagnosis/evshare-bookings/pkg/middleware"
)

type Client struct {
	baseURL      string
	http         *http.Client
	serviceToken string
}

func NewClient(baseURL string, timeout time.Duration, serviceToken string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: timeout},
		serviceToken: serviceToken,
	}
}

type quotaQuery struct {
	UserID string `url:"userId"`
}

type listQuery struct {
	From string `url:"from,omitempty"`
	To   string `url:"to,omitempty"`
}

type staleQuery struct {
	Status      string `url:"status"`
	StartBefore string `url:"startBefore"`
	Limit       int    `url:"limit,omitempty"`
}

type createBody struct {
	UserID    string          `json:"userId"`
	StartTime domain.WireTime `json:"startTime"`
	EndTime   domain.WireTime `json:"endTime"`
	Notes     string          `json:"notes,omitempty"`
}

type checkInBody struct {
	CheckInPhotos []string        `json:"checkInPhotos"`
	Notes         string          `json:"notes,omitempty"`
	CheckInTime   domain.WireTime `json:"checkInTime"`
}

type checkOutBody struct {
	CheckOutTime domain.WireTime `json:"checkOutTime"`
	DamageReport string          `json:"damageReport,omitempty"`
	PenaltyHours float64         `json:"penaltyHours"`
}

type expireBody struct {
	Reason    string          `json:"reason"`
	ExpiredAt domain.WireTime `json:"expiredAt"`
}

func vehiclePath(groupID, vehicleID string) string {
	return "/groups/" + url.PathEscape(groupID) + "/vehicles/" + url.PathEscape(vehicleID)
}

func bookingPath(id string) string {
	return "/bookings/" + url.PathEscape(id)
}

func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("backend health: status %d", res.StatusCode)
	}
	return nil
}

func (c *Client) GetQuota(ctx context.Context, groupID, vehicleID, userID string) (*domain.QuotaSnapshot, error) {
	var dto domain.QuotaDTO
	if err := c.get(ctx, "get-quota", vehiclePath(groupID, vehicleID)+"/quota", quotaQuery{UserID: userID}, &dto); err != nil {
		return nil, err
	}
	q := dto.ToSnapshot()
	return &q, nil
}

func (c *Client) ListBookings(ctx context.Context, groupID, vehicleID string, from, to time.Time) ([]domain.Booking, error) {
	var q listQuery
	if !from.IsZero() {
		q.From = domain.FormatWireTime(from)
	}
	if !to.IsZero() {
		q.To = domain.FormatWireTime(to)
	}
	var dtos []domain.BookingDTO
	if err := c.get(ctx, "list-bookings", vehiclePath(groupID, vehicleID)+"/bookings", q, &dtos); err != nil {
		return nil, err
	}
	return toBookings(dtos, groupID, vehicleID), nil
}

func (c *Client) ListStaleBooked(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error) {
	q := staleQuery{Status: domain.StatusBooked.String(), StartBefore: domain.FormatWireTime(cutoff), Limit: limit}
	var dtos []domain.BookingDTO
	if err := c.get(ctx, "list-stale", "/bookings", q, &dtos); err != nil {
		return nil, err
	}
	return toBookings(dtos, "", ""), nil
}

func (c *Client) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	var dto domain.BookingDTO
	err := c.get(ctx, "get-booking", bookingPath(id), nil, &dto)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b := dto.ToBooking()
	return &b, nil
}

func (c *Client) CreateBooking(ctx context.Context, req domain.CreateBookingReq) (*domain.Booking, error) {
	body := createBody{
		UserID:    req.UserID,
		StartTime: domain.NewWireTime(req.StartTime),
		EndTime:   domain.NewWireTime(req.EndTime),
		Notes:     req.Notes,
	}
	b, err := c.command(ctx, "create", vehiclePath(req.GroupID, req.VehicleID)+"/bookings", body)
	if err != nil {
		return nil, err
	}
	if b.GroupID == "" {
		b.GroupID, b.VehicleID = req.GroupID, req.VehicleID
	}
	return b, nil
}

func (c *Client) CheckIn(ctx context.Context, id, _ string, req domain.CheckInReq) (*domain.Booking, error) {
	body := checkInBody{CheckInPhotos: req.Photos, Notes: req.Notes, CheckInTime: domain.NewWireTime(req.At)}
	return c.command(ctx, "check-in", bookingPath(id)+"/check-in", body)
}

func (c *Client) CheckOut(ctx context.Context, id, _ string, req domain.CheckOutReq) (*domain.Booking, error) {
	body := checkOutBody{CheckOutTime: domain.NewWireTime(req.At), DamageReport: req.DamageReport, PenaltyHours: req.PenaltyHours}
	return c.command(ctx, "check-out", bookingPath(id)+"/check-out", body)
}

func (c *Client) Cancel(ctx context.Context, id, _ string) (*domain.Booking, error) {
	return c.command(ctx, "cancel", bookingPath(id)+"/cancel", struct{}{})
}

func (c *Client) Expire(ctx context.Context, id string, at time.Time) (*domain.Booking, error) {
	return c.command(ctx, "expire", bookingPath(id)+"/expire", expireBody{Reason: "no_check_in", ExpiredAt: domain.NewWireTime(at)})
}

func toBookings(dtos []domain.BookingDTO, groupID, vehicleID string) []domain.Booking {
	out := make([]domain.Booking, 0, len(dtos))
	for i := range dtos {
		b := dtos[i].ToBooking()
		if b.GroupID == "" {
			b.GroupID = groupID
		}
		if b.VehicleID == "" {
			b.VehicleID = vehicleID
		}
		out = append(out, b)
	}
	return out
}

func (c *Client) get(ctx context.Context, op, path string, params any, out any) error {
	target := c.baseURL + path
	if params != nil {
		v, err := query.Values(params)
		if err != nil {
			return fmt.Errorf("%s: encode query: %w", op, err)
		}
		if enc := v.Encode(); enc != "" {
			target += "?" + enc
		}
	}
	return c.do(ctx, op, http.MethodGet, target, nil, out)
}

func (c *Client) command(ctx context.Context, op, path string, body any) (*domain.Booking, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: encode body: %w", op, err)
	}
	var dto domain.BookingDTO
	if err := c.do(ctx, op, http.MethodPost, c.baseURL+path, payload, &dto); err != nil {
		return nil, err
	}
	b := dto.ToBooking()
	return &b, nil
}

func (c *Client) do(ctx context.Context, op, method, target string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	metrics.BackendLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		logger.ErrorContext(ctx, "backend request failed", "op", op, "error", err)
		return &domain.CommandError{Op: op, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return &domain.CommandError{Op: op, StatusCode: res.StatusCode, Err: err}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		cerr := &domain.CommandError{Op: op, StatusCode: res.StatusCode, Message: errorMessage(raw)}
		switch res.StatusCode {
		case http.StatusNotFound:
			cerr.Err = domain.ErrNotFound
		case http.StatusForbidden:
			cerr.Err = domain.ErrForbidden
		}
		logger.WarnContext(ctx, "backend rejected request", "op", op, "status", res.StatusCode, "message", cerr.Message)
		return cerr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.CommandError{Op: op, StatusCode: res.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// token forwards the caller's bearer token, or the service token when the
// call does not originate from a user request.
func (c *Client) token(ctx context.Context) string {
	if tok := middleware.BearerToken(ctx); tok != "" {
		return tok
	}
	return c.serviceToken
}

// errorMessage pulls the human-readable text out of an error body. The
// backend uses either "message" or "error"; plain text is taken as is.
func errorMessage(raw []byte) string {
	var env struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err == nil {
		if env.Message != "" {
			return env.Message
		}
		return env.Error
	}
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, "<") {
		return ""
	}
	return text
}
