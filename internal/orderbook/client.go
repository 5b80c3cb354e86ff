// Package orderbook is the HTTP client for the off-chain order-book
// service the Order Poller submits discrete orders to.
package orderbook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goran-ethernal/watch-tower/internal/logger"
	"github.com/goran-ethernal/watch-tower/internal/rpcprovider"
	"github.com/goran-ethernal/watch-tower/internal/werrors"
)

// Outcome classifies a submission result the way the Order Poller
// needs to act on it.
type Outcome int

const (
	// OutcomeSubmitted covers both a fresh acceptance and a duplicate
	// re-submit — both mark the order SUBMITTED.
	OutcomeSubmitted Outcome = iota
	// OutcomeRejected is any other non-2xx response, after retries are
	// exhausted for transport failures.
	OutcomeRejected
)

// Result is what Submit returns: the classified outcome plus context
// for logging/metrics.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Body       string
}

// Client submits signed orders to the order-book service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      *rpcprovider.RetryConfig
	log        *logger.Logger
}

// New builds a Client pointed at the order-book's base URL.
func New(baseURL string, log *logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry:      rpcprovider.DefaultRetryConfig(),
		log:        log,
	}
}

type submitRequest struct {
	UID       string `json:"uid"`
	Signature string `json:"signature"`
	Data      string `json:"data"`
}

// Submit posts a discrete order, classifying the outcome: a 2xx is a
// plain success; a 400 whose body mentions "duplicate" is treated as
// success (idempotent re-submit); any other non-2xx is a rejection;
// network/timeout errors are retried with exponential backoff up to
// the default attempt count before being treated as a rejection.
func (c *Client) Submit(ctx context.Context, order *werrors.Order) (*Result, error) {
	payload, err := json.Marshal(submitRequest{
		UID:       fmt.Sprintf("0x%x", order.UID),
		Signature: fmt.Sprintf("0x%x", order.Signature),
		Data:      fmt.Sprintf("0x%x", order.Data),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order submission: %w", err)
	}

	var result *Result
	attempts := 0
	err = rpcprovider.Retry(ctx, c.retry, "orderbook.submit", func() error {
		attempts++
		res, transportErr := c.doSubmit(ctx, payload)
		if transportErr != nil {
			return transportErr
		}
		result = res
		return nil
	})
	if err != nil {
		// transport exhausted all retries; treat as rejected, not fatal
		// to the chain watcher.
		if c.log != nil {
			c.log.Warnw("order-book submission failed after retries", "attempts", attempts, "error", err)
		}
		return &Result{Outcome: OutcomeRejected, Body: err.Error()}, nil
	}
	return result, nil
}

func (c *Client) doSubmit(ctx context.Context, payload []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build order submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &Result{Outcome: OutcomeSubmitted, StatusCode: resp.StatusCode, Body: bodyStr}, nil
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(bodyStr), "duplicate"):
		return &Result{Outcome: OutcomeSubmitted, StatusCode: resp.StatusCode, Body: bodyStr}, nil
	default:
		return &Result{Outcome: OutcomeRejected, StatusCode: resp.StatusCode, Body: bodyStr}, nil
	}
}
