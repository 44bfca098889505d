// Package extpay is a thin HTTP client for the ExtensionPay payment service.
// It only wraps the endpoints the popup needs: key provisioning, the user
// record, and the published plans.
package extpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tibco87/clipsmart/internal/popup/models"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	http        *http.Client
	baseURL     string
	extensionID string
}

func NewClient(baseURL, extensionID string) *Client {
	return &Client{
		http:        &http.Client{Timeout: defaultTimeout},
		baseURL:     baseURL,
		extensionID: extensionID,
	}
}

// extensionURL is the per-extension root all endpoints hang off.
func (c *Client) extensionURL() string {
	return fmt.Sprintf("%s/extension/%s", c.baseURL, c.extensionID)
}

// CreateKey provisions a fresh API key for this install. development marks
// the key as a test-mode key on the service.
func (c *Client) CreateKey(ctx context.Context, development bool) (string, error) {
	body := map[string]any{}
	if development {
		body["development"] = true
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode new-key request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.extensionURL()+"/api/new-key", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build new-key request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	var key string
	if err := c.doJSON(req, &key); err != nil {
		return "", fmt.Errorf("failed to create api key: %w", err)
	}
	return key, nil
}

// FetchUser returns the current user record for apiKey, both parsed and raw.
// The raw payload is what callers persist, so service fields unknown to this
// client survive the round trip.
func (c *Client) FetchUser(ctx context.Context, apiKey string) (*models.UserRecord, json.RawMessage, error) {
	u := c.extensionURL() + "/api/v2/user?" + url.Values{"api_key": {apiKey}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build user request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	var raw json.RawMessage
	if err := c.doJSON(req, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	var user models.UserRecord
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, nil, fmt.Errorf("failed to parse user record: %w", err)
	}
	return &user, raw, nil
}

// Plans returns the extension's published plans verbatim. The popup renders
// them without interpreting the shape.
func (c *Client) Plans(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.extensionURL()+"/api/v2/current-plans", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build plans request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	var raw json.RawMessage
	if err := c.doJSON(req, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch plans: %w", err)
	}
	return raw, nil
}

// PaymentPageURL is where the user picks and pays for a plan. plan may be
// empty to let the user choose.
func (c *Client) PaymentPageURL(apiKey, plan string) string {
	if plan != "" {
		return fmt.Sprintf("%s/choose-plan/%s?api_key=%s", c.extensionURL(), url.PathEscape(plan), url.QueryEscape(apiKey))
	}
	return fmt.Sprintf("%s/choose-plan?api_key=%s", c.extensionURL(), url.QueryEscape(apiKey))
}

// TrialPageURL starts a free trial. period is a human phrase like "1 week"
// and may be empty.
func (c *Client) TrialPageURL(apiKey, period string) string {
	u := fmt.Sprintf("%s/trial?api_key=%s", c.extensionURL(), url.QueryEscape(apiKey))
	if period != "" {
		u += "&period=" + url.QueryEscape(period)
	}
	return u
}

// LoginPageURL lets a paying user reattach their subscription on a new
// install.
func (c *Client) LoginPageURL(apiKey string) string {
	return fmt.Sprintf("%s/reactivate?api_key=%s&back=choose-plan&v2", c.extensionURL(), url.QueryEscape(apiKey))
}

func (c *Client) doJSON(req *http.Request, v any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
