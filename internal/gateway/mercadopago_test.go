package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMercadoPagoCreateOrder(t *testing.T) {
	var got mpPreference
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/checkout/preferences" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"pref-1","init_point":"https://pay/pref-1"}`))
	}))
	defer srv.Close()

	mp := NewMercadoPago("tok", srv.URL, time.Second)
	order, err := mp.CreateOrder(context.Background(), OrderRequest{
		ExternalReference: "raffle-1-abc",
		Items:             []Item{{Title: "Rifa", Quantity: 2, UnitPrice: 2000}},
		Currency:          "CLP",
		NotificationURL:   "http://localhost/webhook",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.ID != "pref-1" {
		t.Errorf("order id = %q", order.ID)
	}
	if got.ExternalReference != "raffle-1-abc" || len(got.Items) != 1 || got.Items[0].CurrencyID != "CLP" {
		t.Errorf("unexpected preference body: %+v", got)
	}
	if got.NotificationURL != "" {
		t.Errorf("non-https notification url should be omitted, got %q", got.NotificationURL)
	}
}

func TestMercadoPagoErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"non 2xx", http.StatusBadRequest, `{"message":"invalid"}`},
		{"malformed body", http.StatusOK, `not json`},
		{"missing id", http.StatusOK, `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewMercadoPago("tok", srv.URL, time.Second).CreateOrder(context.Background(), OrderRequest{})
			var gerr *Error
			if !errors.As(err, &gerr) {
				t.Fatalf("expected *Error, got %v", err)
			}
		})
	}
}

func TestMercadoPagoFetchPaymentStatus(t *testing.T) {
	tests := []struct {
		status, detail string
		want           Status
	}{
		{"approved", "accredited", StatusApproved},
		{"approved", "pending_capture", StatusPending},
		{"rejected", "cc_rejected_other_reason", StatusRejected},
		{"cancelled", "", StatusRejected},
		{"in_process", "pending_review_manual", StatusPending},
		{"refunded", "", StatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.status+"/"+tt.detail, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/payments/123" {
					t.Errorf("path = %s", r.URL.Path)
				}
				json.NewEncoder(w).Encode(map[string]interface{}{
					"id":                 123,
					"status":             tt.status,
					"status_detail":      tt.detail,
					"external_reference": "raffle-1-x",
				})
			}))
			defer srv.Close()

			d, err := NewMercadoPago("tok", srv.URL, time.Second).FetchPayment(context.Background(), "123")
			if err != nil {
				t.Fatalf("FetchPayment: %v", err)
			}
			if d.Status != tt.want || d.ExternalReference != "raffle-1-x" || d.ID != "123" {
				t.Errorf("got %+v, want status %v", d, tt.want)
			}
		})
	}
}

func TestXenditStatus(t *testing.T) {
	cases := map[string]Status{
		"PAID":    StatusApproved,
		"SETTLED": StatusApproved,
		"EXPIRED": StatusRejected,
		"PENDING": StatusPending,
		"VOIDED":  StatusUnknown,
	}
	for in, want := range cases {
		if got := xenditStatus(in); got != want {
			t.Errorf("xenditStatus(%q) = %v, want %v", in, got, want)
		}
	}
}
