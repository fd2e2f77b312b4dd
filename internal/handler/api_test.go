package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-locking/internal/clock"
	"github.com/iliyamo/cinema-seat-locking/internal/handler"
	"github.com/iliyamo/cinema-seat-locking/internal/logger"
	"github.com/iliyamo/cinema-seat-locking/internal/model"
	"github.com/iliyamo/cinema-seat-locking/internal/repository/memory"
	"github.com/iliyamo/cinema-seat-locking/internal/router"
	"github.com/iliyamo/cinema-seat-locking/internal/service"
	"github.com/iliyamo/cinema-seat-locking/internal/utils"
)

const (
	testSecret       = "test-secret"
	testWebhookToken = "hook-token"
)

var t0 = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

type api struct {
	e     *echo.Echo
	store *memory.Store
	clock *clock.Manual
}

func newAPI(t *testing.T) *api {
	t.Helper()
	store := memory.New()
	store.AddShow(model.Show{
		ID: 1, MovieTitle: "Inception", Theater: "Grand", Screen: "1",
		StartsAt: t0.Add(24 * time.Hour), EndsAt: t0.Add(26 * time.Hour),
		PriceCents: 200, TotalSeats: 140, IsActive: true,
	})
	clk := clock.NewManual(t0)
	log := logger.Discard()
	opts := []service.Option{service.WithLogger(log)}

	hash, err := utils.HashSecret(testWebhookToken, 4)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	e := router.New(router.Deps{
		Seats: handler.NewSeatHandler(
			service.NewCoordinator(store, store, store, clk, opts...),
			service.NewAvailability(store, store, store, clk, opts...),
			log,
		),
		Bookings:  handler.NewBookingHandler(service.NewCommitter(store, store, store, clk, opts...), log),
		Payments:  handler.NewPaymentHandler(service.NewReconciler(store, clk, opts...), hash, log),
		JWTSecret: testSecret,
		Logger:    log,
	})
	return &api{e: e, store: store, clock: clk}
}

func token(t *testing.T, userID uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, userID, role, time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok.Token
}

func (a *api) do(t *testing.T, method, path string, user uint64, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if user != 0 {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t, user, router.CustomerRole))
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	var body struct {
		Code string `json:"code"`
	}
	decode(t, rec, &body)
	if body.Code != code {
		t.Fatalf("expected code %s, got %s", code, body.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	a := newAPI(t)
	rec := a.do(t, http.MethodGet, "/healthz", 0, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLockSeatEndpoint(t *testing.T) {
	t.Parallel()

	a := newAPI(t)
	rec := a.do(t, http.MethodPost, "/v1/shows/1/lock-seat", 1, `{"seat_id":"a1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var lock struct {
		ShowID      uint64 `json:"show_id"`
		SeatID      string `json:"seat_id"`
		LockedUntil string `json:"locked_until"`
	}
	decode(t, rec, &lock)
	if lock.SeatID != "A1" || lock.LockedUntil != t0.Add(10*time.Minute).Format(time.RFC3339) {
		t.Fatalf("unexpected lock %+v", lock)
	}

	expectError(t, a.do(t, http.MethodPost, "/v1/shows/1/lock-seat", 2, `{"seat_id":"A1"}`), http.StatusConflict, handler.CodeAlreadyLocked)
	expectError(t, a.do(t, http.MethodPost, "/v1/shows/1/lock-seat", 2, `{"seat_id":"Z1"}`), http.StatusBadRequest, handler.CodeInvalidSeat)
	expectError(t, a.do(t, http.MethodPost, "/v1/shows/1/lock-seat", 2, `{}`), http.StatusBadRequest, handler.CodeValidationFailed)
	expectError(t, a.do(t, http.MethodPost, "/v1/shows/1/lock-seat", 2, `{"seat_id":`), http.StatusBadRequest, handler.CodeValidationFailed)
	expectError(t, a.do(t, http.MethodPost, "/v1/shows/abc/lock-seat", 2, `{"seat_id":"A2"}`), http.StatusBadRequest, handler.CodeValidationFailed)
	expectError(t, a.do(t, http.MethodPost, "/v1/shows/7/lock-seat", 2, `{"seat_id":"A2"}`), http.StatusNotFound, handler.CodeNotFound)
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()

	a := newAPI(t)
	rec := a.do(t, http.MethodPost, "/v1/shows/1/lock-seat", 0, `{"seat_id":"A1"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/bookings", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t, 1, "OWNER"))
	rec = httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestUnlockAndMyLocks(t *testing.T) {
	t.Parallel()

	a := newAPI(t)
	for _, s := range []string{"A1", "A2"} {
		if rec := a.do(t, http.MethodPost, "/v1/shows/1/lock-seat", 1, fmt.Sprintf(`{"seat_id":%q}`, s)); rec.Code != http.StatusOK {
			t.Fatalf("lock %s: %d", s, rec.Code)
		}
	}
	expectError(t, a.do(t, http.MethodPost, "/v1/shows/1/unlock-seat", 2, `{"seat_id":"A1"}`), http.StatusNotFound, handler.CodeNotFound)

	rec := a.do(t, http.MethodPost, "/v1/shows/1/unlock-seat", 1, `{"seat_id":"A1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = a.do(t, http.MethodGet, "/v1/shows/1/my-locks", 1, "")
	var mine struct {
		Items []struct {
			SeatID string `json:"seat_id"`
		} `json:"items"`
	}
	decode(t, rec, &mine)
	if len(mine.Items) != 1 || mine.Items[0].SeatID != "A2" {
		t.Fatalf("unexpected locks %+v", mine.Items)
	}

	rec = a.do(t, http.MethodDelete, "/v1/shows/1/locks", 1, "")
	var released struct {
		Released int `json:"released"`
	}
	decode(t, rec, &released)
	if released.Released != 1 {
		t.Fatalf("expected 1 released, got %d", released.Released)
	}
}

func TestSeatMap(t *testing.T) {
	t.Parallel()

	a := newAPI(t)
	a.do(t, http.MethodPost, "/v1/shows/1/lock-seat", 3, `{"seat_id":"B2"}`)

	rec := a.do(t, http.MethodGet, "/v1/shows/1/seats", 0, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Items []model.SeatStatus `json:"items"`
	}
	decode(t, rec, &body)
	if len(body.Items) != 140 {
		t.Fatalf("expected 140 seats, got %d", len(body.Items))
	}
	b2 := body.Items[15]
	if b2.SeatID != "B2" || b2.Status != model.SeatLocked || b2.HolderID == nil || *b2.HolderID != 3 {
		t.Fatalf("unexpected B2 %+v", b2)
	}

	a.clock.Advance(11 * time.Minute)
	rec = a.do(t, http.MethodGet, "/v1/shows/1/seats", 0, "")
	decode(t, rec, &body)
	if body.Items[15].Status != model.SeatAvailable {
		t.Fatalf("expected B2 available after expiry, got %s", body.Items[15].Status)
	}
}

func TestBookingEndpoints(t *testing.T) {
	t.Parallel()

	a := newAPI(t)
	a.do(t, http.MethodPost, "/v1/shows/1/lock-seat", 1, `{"seat_id":"C1"}`)
	a.do(t, http.MethodPost, "/v1/shows/1/lock-seat", 1, `{"seat_id":"C2"}`)

	expectError(t, a.do(t, http.MethodPost, "/v1/bookings", 1, `{"show_id":1,"seats":[],"payment_method":"cash"}`), http.StatusBadRequest, handler.CodeTooManySeats)
	expectError(t, a.do(t, http.MethodPost, "/v1/bookings", 1, `{"show_id":1,"seats":["C1"]}`), http.StatusBadRequest, handler.CodeValidationFailed)
	expectError(t, a.do(t, http.MethodPost, "/v1/bookings", 2, `{"show_id":1,"seats":["C1"],"payment_method":"cash"}`), http.StatusConflict, handler.CodeLockNotHeld)

	rec := a.do(t, http.MethodPost, "/v1/bookings", 1, `{"show_id":1,"seats":["C1","C2"],"payment_method":"cash","payment_ref":"pi_7"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var b model.Booking
	decode(t, rec, &b)
	if b.Status != model.BookingPending || b.TotalAmountCents != 400 || !strings.HasPrefix(b.Reference, "BK-") {
		t.Fatalf("unexpected booking %+v", b)
	}

	expectError(t, a.do(t, http.MethodPost, "/v1/bookings", 1, `{"show_id":1,"seats":["C1"],"payment_method":"cash"}`), http.StatusConflict, handler.CodeSeatUnavailable)

	rec = a.do(t, http.MethodGet, "/v1/bookings", 1, "")
	var list struct {
		Items []model.Booking `json:"items"`
	}
	decode(t, rec, &list)
	if len(list.Items) != 1 || list.Items[0].ID != b.ID {
		t.Fatalf("unexpected list %+v", list.Items)
	}

	path := fmt.Sprintf("/v1/bookings/%d", b.ID)
	if rec := a.do(t, http.MethodGet, path, 1, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	expectError(t, a.do(t, http.MethodGet, path, 2, ""), http.StatusNotFound, handler.CodeNotFound)

	a.clock.Set(b.ShowTime.Add(-time.Hour))
	expectError(t, a.do(t, http.MethodPatch, path+"/cancel", 1, ""), http.StatusConflict, handler.CodeCancellationWindowClosed)

	a.clock.Set(b.ShowTime.Add(-3 * time.Hour))
	rec = a.do(t, http.MethodPatch, path+"/cancel", 1, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var cancelled model.Booking
	decode(t, rec, &cancelled)
	if cancelled.Status != model.BookingCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	expectError(t, a.do(t, http.MethodPatch, path+"/cancel", 1, ""), http.StatusNotFound, handler.CodeNotFound)
}

func TestPaymentWebhook(t *testing.T) {
	t.Parallel()

	a := newAPI(t)
	a.do(t, http.MethodPost, "/v1/shows/1/lock-seat", 1, `{"seat_id":"D1"}`)
	rec := a.do(t, http.MethodPost, "/v1/bookings", 1, `{"show_id":1,"seats":["D1"],"payment_method":"cash"}`)
	var b model.Booking
	decode(t, rec, &b)

	hook := func(token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		if token != "" {
			req.Header.Set(handler.WebhookTokenHeader, token)
		}
		rec := httptest.NewRecorder()
		a.e.ServeHTTP(rec, req)
		return rec
	}
	type result struct {
		Received bool   `json:"received"`
		Result   string `json:"result"`
	}

	if rec := hook("", `{"status":"succeeded"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := hook("wrong", `{"status":"succeeded"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}
	if rec := hook(testWebhookToken, `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing status, got %d", rec.Code)
	}

	var res result
	rec = hook(testWebhookToken, `{"status":"refunded","payment_ref":"x"}`)
	decode(t, rec, &res)
	if rec.Code != http.StatusOK || res.Result != string(service.ResultNoop) {
		t.Fatalf("expected ignored event to get 200 noop, got %d %+v", rec.Code, res)
	}

	rec = hook(testWebhookToken, `{"status":"failed","show_id":1,"user_id":1,"seats":["D1"]}`)
	decode(t, rec, &res)
	if rec.Code != http.StatusOK || !res.Received || res.Result != string(service.ResultFailed) {
		t.Fatalf("expected failed, got %d %+v", rec.Code, res)
	}
	rec = hook(testWebhookToken, `{"status":"failed","show_id":1,"user_id":1,"seats":["D1"]}`)
	decode(t, rec, &res)
	if res.Result != string(service.ResultNoop) {
		t.Fatalf("expected replay noop, got %+v", res)
	}

	show, _ := a.store.GetShow(context.Background(), 1)
	if show.BookedSeats != 0 {
		t.Fatalf("expected counter 0, got %d", show.BookedSeats)
	}
}
