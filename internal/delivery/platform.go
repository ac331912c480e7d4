package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultBaseURL   = "https://api.whop.com/api/v1"
	defaultUserAgent = "revenueangel-engine/0.1"
)

var platformTracer = otel.Tracer("revenueangel.internal.delivery.platform")

// PlatformConfig controls how the platform API client behaves.
type PlatformConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
}

// PlatformClient wraps the membership platform's REST API: in-app
// notification delivery and product access checks.
type PlatformClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
	userAgent  string
}

// NewPlatformClient creates a configured client with sane defaults.
func NewPlatformClient(cfg PlatformConfig) (*PlatformClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("delivery: platform API key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &PlatformClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

type notificationResponse struct {
	ID string `json:"id"`
}

// Deliver sends an in-app notification to a platform user.
func (c *PlatformClient) Deliver(ctx context.Context, req Request) (string, error) {
	if req.RecipientID == "" {
		return "", errors.New("delivery: recipient id is required")
	}
	ctx, span := platformTracer.Start(ctx, "delivery.platform.notify")
	defer span.End()
	span.SetAttributes(attribute.String("revenueangel.recipient_id", req.RecipientID))

	body, err := json.Marshal(struct {
		UserID   string `json:"user_id"`
		Content  string `json:"content"`
		CTALabel string `json:"cta_label,omitempty"`
		CTAPath  string `json:"cta_path,omitempty"`
	}{
		UserID:   req.RecipientID,
		Content:  req.Content,
		CTALabel: req.CTALabel,
		CTAPath:  req.CTAPath,
	})
	if err != nil {
		return "", fmt.Errorf("delivery: marshal notification body: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, "/notifications", body)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	var parsed notificationResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("delivery: decode notification response: %w", err)
	}
	return parsed.ID, nil
}

type accessResponse struct {
	HasAccess bool `json:"has_access"`
}

// CheckAccess reports whether a platform user has access to a product
// or experience. Used by segment capability predicates.
func (c *PlatformClient) CheckAccess(ctx context.Context, externalUserID, resourceID string) (bool, error) {
	if externalUserID == "" || resourceID == "" {
		return false, errors.New("delivery: user id and resource id are required")
	}
	ctx, span := platformTracer.Start(ctx, "delivery.platform.check_access")
	defer span.End()
	span.SetAttributes(
		attribute.String("revenueangel.user_id", externalUserID),
		attribute.String("revenueangel.resource_id", resourceID),
	)

	path := "/users/" + externalUserID + "/access/" + resourceID
	data, err := c.invoke(ctx, http.MethodGet, path, nil)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	var parsed accessResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return false, fmt.Errorf("delivery: decode access response: %w", err)
	}
	return parsed.HasAccess, nil
}

func (c *PlatformClient) invoke(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	fullURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("delivery: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("User-Agent", c.userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !shouldRetry(0, err) || attempt == c.maxRetries {
				return nil, fmt.Errorf("delivery: http error: %w", err)
			}
			lastErr = err
			c.logRetry(path, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("delivery: read response: %w", readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(path, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("delivery: request failed without response")
}

func (c *PlatformClient) sleep(ctx context.Context, attempt int) error {
	delay := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *PlatformClient) logRetry(path string, attempt int, status int, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Warn("platform API retry",
		"path", path,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	if status >= 500 && status <= 599 {
		return true
	}
	return false
}

// APIError is a non-2xx platform API response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("delivery: platform API status %d: %s", e.StatusCode, e.Body)
}
