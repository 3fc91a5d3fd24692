package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-resilient-orders/internal/tracing"
)

const HeaderIdempotencyKey = "Idempotency-Key"

// Client talks to the stock ledger service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Transport: tracing.Transport(nil)}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) GetProduct(ctx context.Context, id int64) (Product, error) {
	u := fmt.Sprintf("%s/products/%d", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Product{}, err
	}
	return c.do(req, "getProduct")
}

func (c *Client) ReduceQuantity(ctx context.Context, id int64, amount int, reservationKey string) (Product, error) {
	q := url.Values{"quantity": {strconv.Itoa(amount)}}
	u := fmt.Sprintf("%s/products/reduce/%d?%s", c.baseURL, id, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, nil)
	if err != nil {
		return Product{}, err
	}
	if reservationKey != "" {
		req.Header.Set(HeaderIdempotencyKey, reservationKey)
	}
	return c.do(req, "reduceQuantity")
}

func (c *Client) do(req *http.Request, op string) (Product, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return Product{}, &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Product{}, &TransientError{Op: op, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var p Product
		if err := json.Unmarshal(body, &p); err != nil {
			return Product{}, &TransientError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode product: %w", err)}
		}
		return p, nil
	}

	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	msg := eb.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Product{}, fmt.Errorf("%s: %w: %s", op, ErrNotFound, msg)
	case resp.StatusCode == http.StatusConflict:
		return Product{}, fmt.Errorf("%s: %w: %s", op, ErrInsufficientStock, msg)
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return Product{}, &TransientError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Product{}, fmt.Errorf("%s: %w: %s", op, ErrRejected, msg)
	}
	return Product{}, &TransientError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(msg)}
}
