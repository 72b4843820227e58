package gateway

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
)

const DefaultMercadoPagoBaseURL = "https://api.mercadopago.com"

type MercadoPago struct {
	BaseURL     string
	AccessToken string
	HTTPClient  *http.Client
}

func NewMercadoPago(accessToken, baseURL string, timeout time.Duration) *MercadoPago {
	if baseURL == "" {
		baseURL = DefaultMercadoPagoBaseURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &MercadoPago{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		AccessToken: accessToken,
		HTTPClient:  &http.Client{Timeout: timeout},
	}
}

func (m *MercadoPago) Name() string {
	return "mercadopago"
}

type mpItem struct {
	Title      string `json:"title"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int    `json:"unit_price"`
	CurrencyID string `json:"currency_id"`
}

type mpPreference struct {
	Items             []mpItem          `json:"items"`
	Payer             map[string]string `json:"payer,omitempty"`
	ExternalReference string            `json:"external_reference"`
	NotificationURL   string            `json:"notification_url,omitempty"`
	BackURLs          map[string]string `json:"back_urls,omitempty"`
	AutoReturn        string            `json:"auto_return,omitempty"`
}

func (m *MercadoPago) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	pref := mpPreference{ExternalReference: req.ExternalReference}
	for _, it := range req.Items {
		pref.Items = append(pref.Items, mpItem{
			Title:      it.Title,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			CurrencyID: req.Currency,
		})
	}
	if req.PayerEmail != "" {
		pref.Payer = map[string]string{"name": req.PayerName, "email": req.PayerEmail}
	}
	if strings.HasPrefix(req.NotificationURL, "https://") {
		pref.NotificationURL = req.NotificationURL
	}
	if req.SuccessURL != "" {
		pref.BackURLs = map[string]string{
			"success": req.SuccessURL,
			"failure": req.FailureURL,
			"pending": req.PendingURL,
		}
		pref.AutoReturn = "approved"
	}

	var out struct {
		ID        string `json:"id"`
		InitPoint string `json:"init_point"`
	}
	if err := m.do(ctx, http.MethodPost, "/checkout/preferences", pref, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &Error{Provider: m.Name(), StatusCode: http.StatusOK, Err: errors.New("preference id missing")}
	}
	return &Order{ID: out.ID, CheckoutURL: out.InitPoint}, nil
}

func (m *MercadoPago) FetchPayment(ctx context.Context, id string) (*PaymentDetail, error) {
	var out struct {
		ID                json.Number `json:"id"`
		Status            string      `json:"status"`
		StatusDetail      string      `json:"status_detail"`
		ExternalReference string      `json:"external_reference"`
	}
	if err := m.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &PaymentDetail{
		ID:                out.ID.String(),
		ExternalReference: out.ExternalReference,
		Status:            mercadoPagoStatus(out.Status, out.StatusDetail),
		RawStatus:         out.Status,
		RawDetail:         out.StatusDetail,
	}, nil
}

func mercadoPagoStatus(status, detail string) Status {
	switch status {
	case "approved":
		if detail == "accredited" {
			return StatusApproved
		}
		return StatusPending
	case "rejected", "cancelled":
		return StatusRejected
	case "pending", "in_process", "authorized":
		return StatusPending
	}
	return StatusUnknown
}

func (m *MercadoPago) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.AccessToken)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return &Error{Provider: m.Name(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Provider: m.Name(), StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Provider: m.Name(), StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{
			Provider:   m.Name(),
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}
