package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/evshare-bookings/internal/domain"
	"github.com/diagnosis/evshare-bookings/internal/handlers"
	"github.com/diagnosis/evshare-bookings/internal/presentation"
	"github.com/diagnosis/evshare-bookings/internal/service"
	"github.com/diagnosis/evshare-bookings/pkg/auth"
	"github.com/diagnosis/evshare-bookings/pkg/middleware"
)

const secret = "handlers-test-secret"

// ---------- Mocks ----------

type mockService struct {
	lastSlot    service.SlotReq
	lastUser    string
	lastPhotos  []string
	validateRes *service.ValidationResult
	createErr   error
	checkInErr  error
	checkOutRes *service.CheckOutResult
	cancelErr   error
	bookings    map[string]*domain.Booking
	quota       *domain.QuotaSnapshot
}

func newMockService() *mockService {
	return &mockService{bookings: map[string]*domain.Booking{}}
}

func (m *mockService) Validate(_ context.Context, req service.SlotReq) (*service.ValidationResult, error) {
	m.lastSlot = req
	return m.validateRes, nil
}

func (m *mockService) Create(_ context.Context, req service.SlotReq) (*domain.Booking, error) {
	m.lastSlot = req
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &domain.Booking{ID: "b-1", GroupID: req.GroupID, VehicleID: req.VehicleID, UserID: req.UserID,
		StartTime: req.Start, EndTime: req.End, Status: domain.StatusBooked}, nil
}

func (m *mockService) Get(_ context.Context, id, viewerID string) (*presentation.BookingView, error) {
	b, ok := m.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	v := presentation.Build(b, viewerID, b.StartTime, domain.DefaultConstraints())
	return &v, nil
}

func (m *mockService) List(_ context.Context, _, _, viewerID string) ([]presentation.BookingView, error) {
	var out []domain.Booking
	for _, b := range m.bookings {
		out = append(out, *b)
	}
	return presentation.BuildList(out, viewerID, time.Now(), domain.DefaultConstraints()), nil
}

func (m *mockService) Quota(_ context.Context, _, _, userID string) (*domain.QuotaSnapshot, error) {
	m.lastUser = userID
	return m.quota, nil
}

func (m *mockService) CheckIn(_ context.Context, id, userID string, photos []string, _ string) (*domain.Booking, error) {
	m.lastUser, m.lastPhotos = userID, photos
	if m.checkInErr != nil {
		return nil, m.checkInErr
	}
	b := *m.bookings[id]
	b.Status = domain.StatusInUse
	return &b, nil
}

func (m *mockService) CheckOut(_ context.Context, _, userID, _ string) (*service.CheckOutResult, error) {
	m.lastUser = userID
	return m.checkOutRes, nil
}

func (m *mockService) Cancel(_ context.Context, id, userID string) (*domain.Booking, error) {
	m.lastUser = userID
	if m.cancelErr != nil {
		return nil, m.cancelErr
	}
	b := *m.bookings[id]
	b.Status = domain.StatusCancelled
	return &b, nil
}

func (m *mockService) ExpireStale(context.Context) (int, error) { return 0, nil }

// ---------- Setup ----------

func setupTestServer(t *testing.T) (*httptest.Server, *mockService) {
	t.Helper()
	domain.SetWireLocation(time.UTC)
	svc := newMockService()
	h := handlers.New(svc)

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(secret))
		h.Mount(r)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, svc
}

func do(t *testing.T, srv *httptest.Server, method, path, user, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		tok, err := auth.NewAccessToken(user, user+"@example.com", "owner", secret, time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var out map[string]any
	json.NewDecoder(res.Body).Decode(&out)
	return res, out
}

// ---------- Tests ----------

func TestRoutes_RequireAuth(t *testing.T) {
	srv, _ := setupTestServer(t)
	res, _ := do(t, srv, http.MethodGet, "/v1/groups/g1/vehicles/v1/quota", "", "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d", res.StatusCode)
	}
}

func TestCreateBooking_Success(t *testing.T) {
	srv, svc := setupTestServer(t)
	body := `{"startTime":"2025-01-08T14:00:00.000","endTime":"2025-01-08T16:00:00.000","notes":"airport"}`

	res, out := do(t, srv, http.MethodPost, "/v1/groups/g1/vehicles/v1/bookings", "u1", body)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status %d: %v", res.StatusCode, out)
	}
	if out["status"] != "BOOKED" || out["startTime"] != "2025-01-08T14:00:00.000" {
		t.Fatalf("body %v", out)
	}
	want := service.SlotReq{GroupID: "g1", VehicleID: "v1", UserID: "u1",
		Start: time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC), End: time.Date(2025, 1, 8, 16, 0, 0, 0, time.UTC), Notes: "airport"}
	if !svc.lastSlot.Start.Equal(want.Start) || svc.lastSlot.UserID != want.UserID || svc.lastSlot.Notes != want.Notes {
		t.Fatalf("slot %+v", svc.lastSlot)
	}
}

func TestCreateBooking_RuleViolation(t *testing.T) {
	srv, svc := setupTestServer(t)
	v := domain.Reject(domain.RuleQuotaCurrentWeek, "Not enough quota this week: requested 3h, 2h remaining (short by 1h)")
	v.Quota = &domain.QuotaShortfall{HoursRequested: 3, RemainingHours: 2, ShortfallHours: 1}
	svc.createErr = v.Err()

	res, out := do(t, srv, http.MethodPost, "/v1/groups/g1/vehicles/v1/bookings", "u1",
		`{"startTime":"2025-01-08T14:00:00.000","endTime":"2025-01-08T17:00:00.000"}`)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d", res.StatusCode)
	}
	if out["error"] != "Not enough quota this week: requested 3h, 2h remaining (short by 1h)" || out["code"] != "RULE_VIOLATION" {
		t.Fatalf("body %v", out)
	}
	details := out["details"].(map[string]any)
	if details["rule"] != "quota_current_week" || details["quota"].(map[string]any)["shortfallHours"] != 1.0 {
		t.Fatalf("details %v", details)
	}
}

func TestCreateBooking_BadJSON(t *testing.T) {
	srv, _ := setupTestServer(t)
	res, _ := do(t, srv, http.MethodPost, "/v1/groups/g1/vehicles/v1/bookings", "u1", `{"startTime":"tomorrow"}`)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", res.StatusCode)
	}
}

func TestCheckIn_RejectsBlankPhoto(t *testing.T) {
	srv, _ := setupTestServer(t)
	res, out := do(t, srv, http.MethodPost, "/v1/bookings/b1/check-in", "u1", `{"photos":["p1.jpg",""]}`)
	if res.StatusCode != http.StatusBadRequest || out["code"] != "INVALID_INPUT" {
		t.Fatalf("status %d body %v", res.StatusCode, out)
	}
	fields := out["details"].([]any)
	if len(fields) != 1 || fields[0].(map[string]any)["rule"] != "required" {
		t.Fatalf("details %v", fields)
	}
}

func TestValidateBooking(t *testing.T) {
	srv, svc := setupTestServer(t)
	q := domain.QuotaSnapshot{HoursLimit: 10, HoursUsed: 4}
	svc.validateRes = &service.ValidationResult{Verdict: domain.Accept(), Quota: &q, HoursCurrentWeek: 2}

	res, out := do(t, srv, http.MethodPost, "/v1/groups/g1/vehicles/v1/bookings/validate", "u1",
		`{"startTime":"2025-01-08T14:00:00.000","endTime":"2025-01-08T16:00:00.000"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	if out["valid"] != true || out["remainingHours"] != 6.0 || out["hoursCurrentWeek"] != 2.0 {
		t.Fatalf("body %v", out)
	}
}

func TestGetBooking_NotFound(t *testing.T) {
	srv, _ := setupTestServer(t)
	res, out := do(t, srv, http.MethodGet, "/v1/bookings/nope", "u1", "")
	if res.StatusCode != http.StatusNotFound || out["code"] != "NOT_FOUND" {
		t.Fatalf("status %d body %v", res.StatusCode, out)
	}
}

func TestGetBooking_View(t *testing.T) {
	srv, svc := setupTestServer(t)
	start := time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC)
	svc.bookings["b1"] = &domain.Booking{ID: "b1", UserID: "u1", StartTime: start, EndTime: start.Add(time.Hour), Status: domain.StatusBooked}

	res, out := do(t, srv, http.MethodGet, "/v1/bookings/b1", "u1", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	if out["canCheckIn"] != true || out["mine"] != true || out["display"] != "BOOKED" {
		t.Fatalf("body %v", out)
	}
}

func TestCheckIn_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"photo required", domain.ErrPhotoRequired, http.StatusBadRequest, "PHOTO_REQUIRED"},
		{"not owner", domain.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"too early", &domain.TransitionError{Op: "check-in", From: domain.StatusBooked, Code: domain.CodeTooEarly, Message: "too early to check in, check-in opens at 13:45"}, http.StatusConflict, "INVALID_STATE"},
		{"backend", &domain.CommandError{Op: "check-in", StatusCode: 400, Message: "Photos could not be stored"}, http.StatusBadGateway, "BACKEND_FAILED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, svc := setupTestServer(t)
			svc.checkInErr = tc.err
			res, out := do(t, srv, http.MethodPost, "/v1/bookings/b1/check-in", "u1", `{"photos":["front.jpg"]}`)
			if res.StatusCode != tc.status || out["code"] != tc.code {
				t.Fatalf("status %d body %v", res.StatusCode, out)
			}
			if tc.name == "backend" && out["error"] != "Photos could not be stored" {
				t.Fatalf("backend message must be verbatim, got %v", out["error"])
			}
		})
	}
}

func TestCheckIn_Success(t *testing.T) {
	srv, svc := setupTestServer(t)
	start := time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC)
	svc.bookings["b1"] = &domain.Booking{ID: "b1", UserID: "u1", StartTime: start, EndTime: start.Add(time.Hour), Status: domain.StatusBooked}

	res, out := do(t, srv, http.MethodPost, "/v1/bookings/b1/check-in", "u1", `{"photos":["front.jpg","rear.jpg"],"notes":"clean"}`)
	if res.StatusCode != http.StatusOK || out["status"] != "INUSE" {
		t.Fatalf("status %d body %v", res.StatusCode, out)
	}
	if len(svc.lastPhotos) != 2 || svc.lastUser != "u1" {
		t.Fatalf("photos %v user %q", svc.lastPhotos, svc.lastUser)
	}
}

func TestCheckOut_ReturnsPenalty(t *testing.T) {
	srv, svc := setupTestServer(t)
	end := time.Date(2025, 1, 8, 16, 0, 0, 0, time.UTC)
	svc.checkOutRes = &service.CheckOutResult{
		Booking:         &domain.Booking{ID: "b1", UserID: "u1", StartTime: end.Add(-2 * time.Hour), EndTime: end, Status: domain.StatusComplete, PenaltyHours: 2},
		PenaltyHours:    2,
		OvertimeMinutes: 90,
		Message:         "Checked out 90 minutes late. 2 quota hours have been added as a penalty",
	}

	res, out := do(t, srv, http.MethodPost, "/v1/bookings/b1/check-out", "u1", `{"damageReport":""}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	if out["penaltyHours"] != 2.0 || out["overtimeMinutes"] != 90.0 || !strings.HasPrefix(out["message"].(string), "Checked out 90 minutes late") {
		t.Fatalf("body %v", out)
	}
	if out["booking"].(map[string]any)["status"] != "COMPLETE" {
		t.Fatalf("booking %v", out["booking"])
	}
}

func TestCancel_NotOwnerIsForbidden(t *testing.T) {
	srv, svc := setupTestServer(t)
	svc.cancelErr = &domain.TransitionError{Op: "cancel", From: domain.StatusBooked, Code: domain.CodeNotOwner,
		Message: "only the user who made the booking can cancel it"}

	res, out := do(t, srv, http.MethodPost, "/v1/bookings/b1/cancel", "u2", "")
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d", res.StatusCode)
	}
	details := out["details"].(map[string]any)
	if details["code"] != "not_owner" || details["from"] != "BOOKED" {
		t.Fatalf("details %v", details)
	}
}

func TestGetQuota(t *testing.T) {
	srv, svc := setupTestServer(t)
	svc.quota = &domain.QuotaSnapshot{
		WeekStartDate: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		HoursLimit:    10,
		HoursUsed:     12,
		HoursDebt:     1,
		HoursAdvance:  2,
	}

	res, out := do(t, srv, http.MethodGet, "/v1/groups/g1/vehicles/v1/quota", "u7", "")
	if res.StatusCode != http.StatusOK || svc.lastUser != "u7" {
		t.Fatalf("status %d user %q", res.StatusCode, svc.lastUser)
	}
	if out["remainingHours"] != -3.0 || out["remainingHoursNextWeek"] != 5.0 || out["weekStartDate"] != "2025-01-06T00:00:00.000" {
		t.Fatalf("body %v", out)
	}
}
