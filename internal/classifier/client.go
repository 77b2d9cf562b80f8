package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"taxosort/internal/services"
)

const (
	defaultHTTPTimeout    = 60 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryAttempts  = 4
	maxErrorBody          = 512
)

// Config captures the runtime settings required to talk to the classification service.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Outcome labels passed to an Observer.
const (
	OutcomeOK    = "ok"
	OutcomeRetry = "retry"
	OutcomeError = "error"
)

// Observer is notified after every HTTP attempt.
type Observer func(op string, rank Rank, outcome string, elapsed time.Duration)

// Client talks to the classification service over HTTP/JSON.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
	observer         Observer
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the default attempt count (defaults to 4).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithObserver registers a per-attempt callback, typically a metrics recorder.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient constructs a classification client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}
	client := &Client{
		cfg: Config{
			BaseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Token:   strings.TrimSpace(cfg.Token),
			Timeout: timeout,
		},
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("classifier request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

type predictRequest struct {
	Rank     Rank   `json:"rank"`
	Filename string `json:"filename"`
	Image    string `json:"image"`
	FilterID string `json:"filter_id,omitempty"`
}

type predictResponse struct {
	Predictions []struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	} `json:"predictions"`
}

type labelsResponse struct {
	Ranks map[string][]string `json:"ranks"`
}

type filterRequest struct {
	Rank   Rank     `json:"rank"`
	Labels []string `json:"labels"`
}

type filterResponse struct {
	ID string `json:"id"`
}

// Predict classifies the image at imagePath for a single rank. Predictions are
// returned in classifier order; an empty slice means the classifier had no
// candidates.
func (c *Client) Predict(ctx context.Context, imagePath string, rank Rank, filter *Filter) ([]Prediction, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "classifier", "read image", imagePath, err)
	}
	payload := predictRequest{
		Rank:     rank,
		Filename: filepath.Base(imagePath),
		Image:    base64.StdEncoding.EncodeToString(data),
	}
	if filter != nil && filter.Rank == rank {
		payload.FilterID = filter.ID
	}
	var resp predictResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/predict", payload, &resp, "predict", rank); err != nil {
		return nil, err
	}
	preds := make([]Prediction, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		if math.IsNaN(p.Score) || p.Score < 0 || p.Score > 1 {
			return nil, services.Wrap(services.ErrExternalTool, "classifier", "predict", "malformed response",
				fmt.Errorf("score %v for %q outside [0,1]", p.Score, p.Label))
		}
		preds = append(preds, Prediction{Rank: rank, Label: strings.TrimSpace(p.Label), Score: p.Score})
	}
	return preds, nil
}

// Vocabulary fetches every label the classifier knows, per rank.
func (c *Client) Vocabulary(ctx context.Context) (Vocabulary, error) {
	var resp labelsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/labels", nil, &resp, "labels", ""); err != nil {
		return nil, err
	}
	vocab := make(Vocabulary, len(resp.Ranks))
	for name, labels := range resp.Ranks {
		rank, ok := ParseRank(name)
		if !ok {
			continue
		}
		set := make(map[string]struct{}, len(labels))
		for _, label := range labels {
			set[strings.TrimSpace(label)] = struct{}{}
		}
		vocab[rank] = set
	}
	return vocab, nil
}

// InclusionFilter asks the service to register a label restriction for rank.
func (c *Client) InclusionFilter(ctx context.Context, rank Rank, labels []string) (*Filter, error) {
	var resp filterResponse
	req := filterRequest{Rank: rank, Labels: labels}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/filters", req, &resp, "filter", rank); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.ID) == "" {
		return nil, services.Wrap(services.ErrExternalTool, "classifier", "filter", "empty filter id", nil)
	}
	return &Filter{ID: resp.ID, Rank: rank, Labels: append([]string(nil), labels...)}, nil
}

// HealthCheck performs a single unretried request against the health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.sendOnce(ctx, http.MethodGet, "/v1/health", nil)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "classifier", "health", c.cfg.BaseURL, err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any, op string, rank Rank) error {
	var encoded []byte
	if payload != nil {
		var err error
		if encoded, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("classifier %s: encode body: %w", op, err)
		}
	}

	attempts := c.retryAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		started := time.Now()
		body, err := c.sendOnce(ctx, method, path, encoded)
		if err == nil {
			if err = json.Unmarshal(body, out); err != nil {
				err = fmt.Errorf("classifier %s: decode response: %w", op, err)
				c.observe(op, rank, OutcomeError, started)
				return services.Wrap(services.ErrExternalTool, "classifier", op, "malformed response", err)
			}
			c.observe(op, rank, OutcomeOK, started)
			return nil
		}

		delay, retry := c.retryDelay(ctx, err, attempt)
		if !retry {
			c.observe(op, rank, OutcomeError, started)
			return classifyFailure(op, err)
		}
		lastErr = err
		if attempt == attempts {
			c.observe(op, rank, OutcomeError, started)
			break
		}
		c.observe(op, rank, OutcomeRetry, started)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}

	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return services.Wrap(services.ErrTransient, "classifier", op, fmt.Sprintf("failed after %d attempts", attempts), lastErr)
}

func (c *Client) sendOnce(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, path)
	if err != nil {
		return nil, fmt.Errorf("classifier request: build url: %w", err)
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("classifier request: new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID(ctx))
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request: http error (timeout=%s): %w", c.timeoutDuration(), err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("classifier request: read body (timeout=%s): %w", c.timeoutDuration(), err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &httpStatusError{StatusCode: resp.StatusCode, Body: snippet, RetryAfter: retryAfter}
	}
	return data, nil
}

func requestID(ctx context.Context) string {
	if id, ok := services.RequestIDFromContext(ctx); ok {
		return id
	}
	return uuid.NewString()
}

func classifyFailure(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return services.Wrap(services.ErrTimeout, "classifier", op, "request timed out", err)
	}
	return services.Wrap(services.ErrExternalTool, "classifier", op, "request failed", err)
}

func (c *Client) observe(op string, rank Rank, outcome string, started time.Time) {
	if c.observer != nil {
		c.observer(op, rank, outcome, time.Since(started))
	}
}

func (c *Client) timeoutDuration() time.Duration {
	if c == nil || c.httpClient == nil || c.httpClient.Timeout <= 0 {
		return defaultHTTPTimeout
	}
	return c.httpClient.Timeout
}
