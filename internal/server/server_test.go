package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/farellandr/rifa/internal/gateway"
	"github.com/farellandr/rifa/internal/helpers"
	"github.com/farellandr/rifa/internal/middleware"
	"github.com/farellandr/rifa/internal/models"
	"github.com/farellandr/rifa/internal/services"
	"github.com/farellandr/rifa/internal/testutil"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const testJWTSecret = "test-jwt-secret"

type testServer struct {
	router *gin.Engine
	engine *services.Engine
	db     *gorm.DB
	gw     *gateway.Mock
	raffle *models.Raffle
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newLimitedTestServer(t, 100)
}

func newLimitedTestServer(t *testing.T, perMinute int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	gw := gateway.NewMock()
	engine := services.NewEngine(db, gw, services.Settings{WebhookSecret: "whsec", XenditCallbackToken: "cbtok"})
	engine.Now = testutil.NewClock().Now

	r := gin.New()
	err := SetupRoutes(r, Deps{
		Engine:    engine,
		Signer:    helpers.NewReceiptSigner("receipt-secret"),
		JWTSecret: testJWTSecret,
		Limiter:   middleware.NewIPRateLimiter(perMinute),
	})
	if err != nil {
		t.Fatalf("SetupRoutes: %v", err)
	}

	return &testServer{
		router: r,
		engine: engine,
		db:     db,
		gw:     gw,
		raffle: testutil.CreateRaffle(t, db, 250, 2000),
	}
}

func (s *testServer) do(method, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) staffToken(t *testing.T) http.Header {
	t.Helper()
	_, err := s.engine.UpsertStaffUser(context.Background(), services.StaffInput{
		Username: "caja",
		Password: "correct-horse",
		Role:     models.RoleStaff,
	})
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}

	w := s.do(http.MethodPost, "/staff/login", gin.H{"username": "caja", "password": "correct-horse"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("login response %s: %v", w.Body.String(), err)
	}
	return http.Header{"Authorization": []string{"Bearer " + resp.Token}}
}

func reserveBody(email string, numbers ...int) gin.H {
	return gin.H{
		"chosen_numbers": numbers,
		"buyer":          gin.H{"name": "Ana Pérez", "email": email, "phone": "+56911111111"},
	}
}

func TestReserveThenConflict(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/transfer/reserve", reserveBody("ana@example.com", 7, 3), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var ok struct {
		OK            bool   `json:"ok"`
		Count         int    `json:"count"`
		ChosenNumbers []int  `json:"chosen_numbers"`
		PaymentID     string `json:"payment_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &ok); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ok.OK || ok.Count != 2 || len(ok.ChosenNumbers) != 2 || ok.ChosenNumbers[0] != 3 {
		t.Fatalf("unexpected reservation %+v", ok)
	}
	if !strings.HasPrefix(ok.PaymentID, "transfer-") {
		t.Errorf("payment id = %q", ok.PaymentID)
	}

	w = s.do(http.MethodPost, "/transfer/reserve", reserveBody("beto@example.com", 3, 4), nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var conflict helpers.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &conflict); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(conflict.ConflictNumbers) != 1 || conflict.ConflictNumbers[0] != 3 {
		t.Errorf("conflict_numbers = %v", conflict.ConflictNumbers)
	}
}

func TestReserveValidation(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name string
		body interface{}
	}{
		{"no numbers", reserveBody("ana@example.com")},
		{"out of range", reserveBody("ana@example.com", 251)},
		{"bad email", reserveBody("not-an-email", 1)},
		{"duplicate", reserveBody("ana@example.com", 7, 3, 7)},
		{"not json", "chosen"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/transfer/reserve", tc.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, body %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestRateLimitIgnoresForwardedFor(t *testing.T) {
	s := newLimitedTestServer(t, 3)

	limited := 0
	for i := 0; i < 10; i++ {
		header := http.Header{"X-Forwarded-For": []string{fmt.Sprintf("203.0.113.%d", i+1)}}
		w := s.do(http.MethodPost, "/transfer/reserve", reserveBody("ana@example.com"), header)
		if w.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 7 {
		t.Errorf("%d of 10 requests limited, want 7", limited)
	}
}

func TestCheckAndGrid(t *testing.T) {
	s := newTestServer(t)

	if w := s.do(http.MethodPost, "/transfer/reserve", reserveBody("ana@example.com", 5), nil); w.Code != http.StatusOK {
		t.Fatalf("reserve status = %d", w.Code)
	}

	var check struct {
		Number    int  `json:"number"`
		Available bool `json:"available"`
	}
	w := s.do(http.MethodGet, "/api/check?number=5", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("check status = %d", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &check)
	if check.Number != 5 || check.Available {
		t.Errorf("check 5 = %+v", check)
	}

	w = s.do(http.MethodGet, "/api/check?number=6", nil, nil)
	_ = json.Unmarshal(w.Body.Bytes(), &check)
	if !check.Available {
		t.Errorf("check 6 = %+v", check)
	}

	if w := s.do(http.MethodGet, "/api/check?number=abc", nil, nil); w.Code != http.StatusBadRequest {
		t.Errorf("check abc status = %d", w.Code)
	}

	var grid struct {
		CurrentPage int                 `json:"current_page"`
		PageCount   int                 `json:"page_count"`
		Numbers     []services.GridCell `json:"numbers"`
	}
	w = s.do(http.MethodGet, "/api/grid?page=99", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("grid status = %d", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &grid)
	if grid.PageCount != 3 || grid.CurrentPage != 3 {
		t.Errorf("grid = page %d of %d", grid.CurrentPage, grid.PageCount)
	}
	if len(grid.Numbers) != 50 || grid.Numbers[0].Number != 201 || grid.Numbers[49].Number != 250 {
		t.Errorf("grid numbers = %d entries", len(grid.Numbers))
	}
}

func TestWebhookBadSignatureIsAcknowledged(t *testing.T) {
	s := newTestServer(t)
	s.gw.SetPayment(gateway.PaymentDetail{ID: "123", ExternalReference: "raffle-1-x", Status: gateway.StatusApproved})

	body := gin.H{"type": "payment", "data": gin.H{"id": "123"}}
	header := http.Header{
		"X-Signature":  []string{"ts=1700000000,v1=deadbeef"},
		"X-Request-Id": []string{"req-1"},
	}
	w := s.do(http.MethodPost, "/webhook/mercadopago", body, header)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), services.ActionRejected) {
		t.Errorf("body = %s", w.Body.String())
	}

	var count int64
	s.db.Model(&models.Payment{}).Count(&count)
	if count != 0 {
		t.Errorf("payments = %d, want none", count)
	}
}

func TestStaffRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	if w := s.do(http.MethodGet, "/staff/raffles", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d", w.Code)
	}
	bad := http.Header{"Authorization": []string{"Bearer not-a-token"}}
	if w := s.do(http.MethodGet, "/staff/raffles", nil, bad); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/staff/login", gin.H{"username": "nobody", "password": "whatever1"}, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("bad login status = %d", w.Code)
	}

	auth := s.staffToken(t)
	if w := s.do(http.MethodGet, "/staff/raffles", nil, auth); w.Code != http.StatusOK {
		t.Errorf("list raffles status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestSettleExportAndReceipt(t *testing.T) {
	s := newTestServer(t)
	auth := s.staffToken(t)

	w := s.do(http.MethodPost, "/transfer/reserve", reserveBody("ana@example.com", 12, 40), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reserve status = %d", w.Code)
	}
	var res struct {
		PaymentID string `json:"payment_id"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &res)

	w = s.do(http.MethodPost, "/staff/payments/settle", gin.H{"gateway_payment_ids": []string{res.PaymentID, "missing"}}, auth)
	if w.Code != http.StatusOK {
		t.Fatalf("settle status = %d, body %s", w.Code, w.Body.String())
	}
	var settled struct {
		Results []services.SettleOutcome `json:"results"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &settled)
	if len(settled.Results) != 2 {
		t.Fatalf("results = %+v", settled.Results)
	}
	if settled.Results[0].Result != services.OutcomeSettled || settled.Results[1].Result != services.OutcomeNotFound {
		t.Errorf("results = %+v", settled.Results)
	}

	path := "/export/raffle/" + itoa(s.raffle.ID) + "/tickets.csv"
	if w := s.do(http.MethodGet, path, nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("export without token status = %d", w.Code)
	}
	w = s.do(http.MethodGet, path, nil, auth)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "raffle_id,number") {
		t.Fatalf("csv = %q", w.Body.String())
	}
	if !strings.Contains(lines[1], ",12,") || !strings.Contains(lines[2], ",40,") {
		t.Errorf("csv rows = %q", lines[1:])
	}

	w = s.do(http.MethodGet, "/tickets/receipt/"+res.PaymentID+"/qr", nil, nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("qr status = %d type %q", w.Code, w.Header().Get("Content-Type"))
	}

	signer := helpers.NewReceiptSigner("receipt-secret")
	qr := signer.Encode(helpers.Receipt{GatewayPaymentID: res.PaymentID, RaffleID: s.raffle.ID, Numbers: []int{12, 40}})
	if w := s.do(http.MethodPost, "/staff/tickets/validate", gin.H{"qr_data": qr}, auth); w.Code != http.StatusOK {
		t.Errorf("validate status = %d, body %s", w.Code, w.Body.String())
	}
	forged := helpers.NewReceiptSigner("other").Encode(helpers.Receipt{GatewayPaymentID: res.PaymentID, RaffleID: s.raffle.ID, Numbers: []int{12}})
	if w := s.do(http.MethodPost, "/staff/tickets/validate", gin.H{"qr_data": forged}, auth); w.Code != http.StatusForbidden {
		t.Errorf("forged validate status = %d", w.Code)
	}
}

func TestCreatePreference(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/mp/create_preference", reserveBody("ana@example.com", 9), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var out services.OrderResult
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(out.PreferenceID, "mock-pref-") || out.CheckoutURL == "" {
		t.Errorf("result = %+v", out)
	}

	s.gw.CreateErr = &gateway.Error{Provider: "mock", StatusCode: 500}
	if w := s.do(http.MethodPost, "/mp/create_preference", reserveBody("ana@example.com", 10), nil); w.Code != http.StatusBadGateway {
		t.Errorf("gateway failure status = %d", w.Code)
	}
}

func itoa(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}
