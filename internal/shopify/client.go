// Package shopify is the Admin REST API client used as the reward pipeline's
// order source and coupon issuer.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/loyalty-rewards/internal/loyalty"
	"github.com/ignite/loyalty-rewards/internal/pkg/httpretry"
	"github.com/ignite/loyalty-rewards/internal/pkg/logger"
)

// pageLimit is the Admin API maximum for orders.json.
const pageLimit = 250

// Client is the Shopify Admin API client
type Client struct {
	baseURL        string
	accessToken    string
	couponValidity time.Duration
	httpClient     httpretry.HTTPDoer
	now            func() time.Time
}

// NewClient creates a new Shopify Admin API client
func NewClient(cfg Config) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2023-01"
	}
	if cfg.CouponValidity <= 0 {
		cfg.CouponValidity = 7 * 24 * time.Hour
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s/admin/api/%s", cfg.ShopName, cfg.APIVersion)
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		accessToken:    cfg.AccessToken,
		couponValidity: cfg.CouponValidity,
		httpClient: httpretry.New(nil, httpretry.Options{
			MaxRetries: cfg.MaxRetries,
			Timeout:    cfg.Timeout,
		}),
		now: time.Now,
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// SetClock overrides the time source used for coupon validity windows.
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}

// doRequest performs an authenticated request. reqURL may be a path under the
// API base or an absolute pagination URL. The response is returned for
// header inspection with its body already read.
func (c *Client) doRequest(ctx context.Context, method, reqURL string, body interface{}) ([]byte, *http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	if !strings.HasPrefix(reqURL, "http://") && !strings.HasPrefix(reqURL, "https://") {
		reqURL = c.baseURL + reqURL
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, resp, nil
}

// Ping checks credentials and connectivity against /shop.json.
func (c *Client) Ping(ctx context.Context) error {
	body, _, err := c.doRequest(ctx, http.MethodGet, "/shop.json", nil)
	if err != nil {
		return fmt.Errorf("shopify connectivity check: %w", err)
	}
	var shop shopResponse
	if err := json.Unmarshal(body, &shop); err != nil {
		return fmt.Errorf("failed to decode shop: %w", err)
	}
	logger.Info("shopify connection ok", "shop", shop.Shop.Name, "domain", shop.Shop.Domain)
	return nil
}

// OrdersForDate returns every order created on day (UTC), any status.
func (c *Client) OrdersForDate(ctx context.Context, day time.Time) ([]loyalty.Order, error) {
	date := day.UTC().Format("2006-01-02")
	q := url.Values{}
	q.Set("created_at_min", date+"T00:00:00Z")
	q.Set("created_at_max", date+"T23:59:59Z")
	q.Set("status", "any")
	q.Set("limit", strconv.Itoa(pageLimit))

	orders, err := c.listOrders(ctx, "/orders.json?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("listing orders for %s: %w", date, err)
	}
	logger.Info("orders fetched", "date", date, "orders", len(orders))
	return orders, nil
}

// OrdersForCustomer returns the customer's whole order history, any status.
func (c *Client) OrdersForCustomer(ctx context.Context, customerID string) ([]loyalty.Order, error) {
	q := url.Values{}
	q.Set("customer_id", customerID)
	q.Set("status", "any")
	q.Set("limit", strconv.Itoa(pageLimit))

	orders, err := c.listOrders(ctx, "/orders.json?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("listing orders for customer %s: %w", customerID, err)
	}
	return orders, nil
}

// CustomerIDByEmail looks a customer up by e-mail. An unknown address
// returns "" and no error.
func (c *Client) CustomerIDByEmail(ctx context.Context, email string) (string, error) {
	q := url.Values{}
	q.Set("query", "email:"+email)
	q.Set("fields", "id,email")
	q.Set("limit", "1")

	body, _, err := c.doRequest(ctx, http.MethodGet, "/customers/search.json?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("searching customer by email: %w", err)
	}
	var data customersResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("failed to decode customers: %w", err)
	}
	for _, cust := range data.Customers {
		if cust.ID != 0 && strings.EqualFold(cust.Email, email) {
			return strconv.FormatInt(cust.ID, 10), nil
		}
	}
	return "", nil
}

// listOrders follows Link rel="next" until the last page.
func (c *Client) listOrders(ctx context.Context, next string) ([]loyalty.Order, error) {
	var out []loyalty.Order
	for page := 1; next != ""; page++ {
		body, resp, err := c.doRequest(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		var data ordersResponse
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("failed to decode orders page %d: %w", page, err)
		}
		for _, o := range data.Orders {
			out = append(out, o.toOrder())
		}
		logger.Debug("orders page", "page", page, "orders", len(data.Orders))
		next = nextPageURL(resp.Header.Get("Link"))
	}
	return out, nil
}

func (o order) toOrder() loyalty.Order {
	total, err := strconv.ParseFloat(o.TotalPrice, 64)
	if err != nil && o.TotalPrice != "" {
		logger.Warn("unparseable order total, counting as zero", "order_id", o.ID, "total_price", o.TotalPrice)
		total = 0
	}
	out := loyalty.Order{
		ID:         strconv.FormatInt(o.ID, 10),
		TotalPrice: total,
		Email:      o.Email,
	}
	if o.Customer != nil && o.Customer.ID != 0 {
		out.CustomerID = strconv.FormatInt(o.Customer.ID, 10)
		if out.Email == "" {
			out.Email = o.Customer.Email
		}
	}
	if o.ShippingAddress != nil {
		out.ShippingName = o.ShippingAddress.Name
		out.ShippingPhone = o.ShippingAddress.Phone
	}
	return out
}

// nextPageURL extracts the rel="next" target from a Link header:
//
//	<https://shop/admin/api/2023-01/orders.json?page_info=abc>; rel="next"
func nextPageURL(header string) string {
	for _, part := range strings.Split(header, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		target := strings.TrimSpace(segs[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, attr := range segs[1:] {
			attr = strings.TrimSpace(attr)
			if attr == `rel="next"` || attr == "rel=next" {
				return target[1 : len(target)-1]
			}
		}
	}
	return ""
}
