package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"lexhub.org/internal/ids"
)

// Order is a gateway-side payment order.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt,omitempty"`
}

// Gateway abstracts the external payment provider.
type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (Order, error)
	Refund(ctx context.Context, gatewayPaymentID string, amount int64) error
}

// HTTPGateway talks to a Razorpay-style REST API with basic auth.
type HTTPGateway struct {
	BaseURL string
	KeyID   string
	Secret  string
	Client  *http.Client
}

// NewHTTPGateway builds a gateway client with a sane request timeout.
func NewHTTPGateway(baseURL, keyID, secret string) *HTTPGateway {
	return &HTTPGateway{
		BaseURL: baseURL,
		KeyID:   keyID,
		Secret:  secret,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *HTTPGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (Order, error) {
	payload := map[string]any{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	}
	var order Order
	if err := g.do(ctx, http.MethodPost, "/orders", payload, &order); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (g *HTTPGateway) Refund(ctx context.Context, gatewayPaymentID string, amount int64) error {
	payload := map[string]any{"amount": amount}
	path := "/payments/" + gatewayPaymentID + "/refund"
	return g.do(ctx, http.MethodPost, path, payload, nil)
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, g.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.KeyID, g.Secret)

	resp, err := g.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s: %s", ErrGateway, resp.Status, msg)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// FakeGateway is an in-process gateway for tests and local development. It
// mints order ids and remembers refunds.
type FakeGateway struct {
	mu      sync.Mutex
	Orders  []Order
	Refunds map[string]int64
	Err     error // when set, every call fails with this error
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{Refunds: make(map[string]int64)}
}

func (g *FakeGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return Order{}, g.Err
	}
	order := Order{ID: "order_" + ids.New(), Amount: amount, Currency: currency, Receipt: receipt}
	g.Orders = append(g.Orders, order)
	return order, nil
}

func (g *FakeGateway) Refund(ctx context.Context, gatewayPaymentID string, amount int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return g.Err
	}
	g.Refunds[gatewayPaymentID] += amount
	return nil
}
