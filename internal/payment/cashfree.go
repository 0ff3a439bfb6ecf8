package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

const apiVersion = "2023-08-01"

// Gateway is the slice of the payment provider the checkout flow needs:
// open a payment order, ask whether it was paid. Webhook verification lives
// on the concrete client because it is provider-specific.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	Verify(ctx context.Context, orderRef string) (*Status, error)
}

type CreateOrderRequest struct {
	OrderID       string
	Amount        float64
	Currency      string
	CustomerID    string
	CustomerPhone string
	CustomerEmail string
	ReturnURL     string
	NotifyURL     string
}

type Order struct {
	OrderRef          string
	PaymentSessionRef string
}

type Status struct {
	IsPaid     bool
	Status     string
	PaidAmount float64
}

type CashfreeClient struct {
	baseURL    string
	appID      string
	secretKey  string
	httpClient *http.Client
}

func NewCashfreeClient(baseURL, appID, secretKey string) *CashfreeClient {
	return &CashfreeClient{
		baseURL:    baseURL,
		appID:      appID,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *CashfreeClient) headers(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-version", apiVersion)
	req.Header.Set("x-client-id", c.appID)
	req.Header.Set("x-client-secret", c.secretKey)
}

func (c *CashfreeClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	body, err := json.Marshal(map[string]any{
		"order_id":       req.OrderID,
		"order_amount":   req.Amount,
		"order_currency": req.Currency,
		"customer_details": map[string]any{
			"customer_id":    req.CustomerID,
			"customer_phone": req.CustomerPhone,
			"customer_email": req.CustomerEmail,
		},
		"order_meta": map[string]any{
			"return_url": req.ReturnURL,
			"notify_url": req.NotifyURL,
		},
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.headers(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "cashfree create order")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Newf("cashfree create order: status %d: %s", resp.StatusCode, data)
	}

	var out struct {
		OrderID          string `json:"order_id"`
		PaymentSessionID string `json:"payment_session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &Order{OrderRef: out.OrderID, PaymentSessionRef: out.PaymentSessionID}, nil
}

func (c *CashfreeClient) Verify(ctx context.Context, orderRef string) (*Status, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/orders/"+orderRef, nil)
	if err != nil {
		return nil, err
	}
	c.headers(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "cashfree verify")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Newf("cashfree verify: status %d: %s", resp.StatusCode, data)
	}

	var out struct {
		OrderStatus string  `json:"order_status"`
		OrderAmount float64 `json:"order_amount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &Status{
		IsPaid:     out.OrderStatus == "PAID",
		Status:     out.OrderStatus,
		PaidAmount: out.OrderAmount,
	}, nil
}

// VerifyWebhookSignature checks the HMAC-SHA256 over timestamp+rawBody that
// the gateway sends with every webhook. Callers must reject the payload
// before trusting any field in it.
func (c *CashfreeClient) VerifyWebhookSignature(rawBody []byte, signature, timestamp string) bool {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(timestamp))
	mac.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// GenerateOrderID mirrors the checkout-side order token format.
func GenerateOrderID() string {
	suffix := make([]byte, 8)
	alphabet := "0123456789abcdefghijklmnopqrstuvwxyz"
	max := big.NewInt(int64(len(alphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		suffix[i] = alphabet[n.Int64()]
	}
	return fmt.Sprintf("order_%s_%s", strconv.FormatInt(time.Now().UnixMilli(), 10), suffix)
}
