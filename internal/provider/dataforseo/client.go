// Package dataforseo implements provider adapters backed by the DataForSEO
// v3 API: technical crawl, keyword rankings, and backlink metrics.
package dataforseo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/policy/ratelimit"
)

// ProviderKey is the rate-limit bucket shared by all DataForSEO adapters.
const ProviderKey = "dataforseo"

const defaultBaseURL = "https://api.dataforseo.com/v3"

// DataForSEO wraps API status codes inside a 200 response; these are the
// ones the adapters act on.
const (
	statusOK            = 20000
	statusTaskCreated   = 20100
	statusAuthFailedLow = 40100
	statusAuthFailedTop = 40199
	statusRateLimited   = 40202
)

// Config captures the connection parameters shared by the adapters.
type Config struct {
	BaseURL  string
	Login    string
	Password string
	Timeout  time.Duration
}

// Client issues authenticated calls against the DataForSEO API and maps
// transport and envelope failures onto the audit error taxonomy.
type Client struct {
	httpClient *http.Client
	baseURL    string
	login      string
	password   string
	limiter    *ratelimit.Limiter
	logger     *zap.Logger
}

// NewClient constructs a Client. The limiter may be nil to disable request
// budgeting (tests).
func NewClient(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		login:      cfg.Login,
		password:   cfg.Password,
		limiter:    limiter,
		logger:     logger,
	}
}

// envelope is the outer DataForSEO response shape.
type envelope struct {
	StatusCode    int            `json:"status_code"`
	StatusMessage string         `json:"status_message"`
	Tasks         []taskEnvelope `json:"tasks"`
}

type taskEnvelope struct {
	ID            string            `json:"id"`
	StatusCode    int               `json:"status_code"`
	StatusMessage string            `json:"status_message"`
	Result        []json.RawMessage `json:"result"`
}

// post issues a live call and returns the first task's result entries.
func (c *Client) post(ctx context.Context, source audit.Source, path string, payload any) ([]json.RawMessage, error) {
	task, err := c.do(ctx, source, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	return task.Result, nil
}

// get fetches task results from a path-addressed endpoint.
func (c *Client) get(ctx context.Context, source audit.Source, path string) ([]json.RawMessage, error) {
	task, err := c.do(ctx, source, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return task.Result, nil
}

// postTask posts an asynchronous task and returns the provider-side task id.
func (c *Client) postTask(ctx context.Context, source audit.Source, path string, payload any) (string, error) {
	task, err := c.do(ctx, source, http.MethodPost, path, payload)
	if err != nil {
		return "", err
	}
	if task.ID == "" {
		return "", audit.NewSourceError(source, audit.ErrKindInvalidResponse,
			fmt.Errorf("%s returned no task id", path))
	}
	return task.ID, nil
}

// do runs one request/response cycle. All failure modes come back as a
// *audit.SourceError for the given source; nothing else crosses the boundary.
func (c *Client) do(ctx context.Context, source audit.Source, method, path string, payload any) (taskEnvelope, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, ProviderKey); err != nil {
			return taskEnvelope{}, audit.NewSourceError(source, audit.Classify(err), err)
		}
	}
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return taskEnvelope{}, audit.NewSourceError(source, audit.ErrKindUnknown,
				fmt.Errorf("marshal payload: %w", err))
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return taskEnvelope{}, audit.NewSourceError(source, audit.ErrKindUnknown,
			fmt.Errorf("build request: %w", err))
	}
	req.SetBasicAuth(c.login, c.password)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := audit.ErrKindNetwork
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = audit.ErrKindTimeout
		}
		return taskEnvelope{}, audit.NewSourceError(source, kind, err)
	}
	defer resp.Body.Close()

	if kind, bad := classifyHTTPStatus(resp.StatusCode); bad {
		return taskEnvelope{}, audit.NewSourceError(source, kind,
			fmt.Errorf("%s returned HTTP %d", path, resp.StatusCode))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return taskEnvelope{}, audit.NewSourceError(source, audit.ErrKindInvalidResponse,
			fmt.Errorf("decode %s response: %w", path, err))
	}
	if kind, bad := classifyEnvelopeStatus(env.StatusCode); bad {
		return taskEnvelope{}, audit.NewSourceError(source, kind,
			fmt.Errorf("%s: %s (code %d)", path, env.StatusMessage, env.StatusCode))
	}
	if len(env.Tasks) == 0 {
		return taskEnvelope{}, audit.NewSourceError(source, audit.ErrKindInvalidResponse,
			fmt.Errorf("%s returned no tasks", path))
	}
	task := env.Tasks[0]
	if kind, bad := classifyEnvelopeStatus(task.StatusCode); bad {
		return taskEnvelope{}, audit.NewSourceError(source, kind,
			fmt.Errorf("%s task: %s (code %d)", path, task.StatusMessage, task.StatusCode))
	}
	return task, nil
}

func classifyHTTPStatus(status int) (audit.ErrorKind, bool) {
	switch {
	case status == http.StatusOK:
		return "", false
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return audit.ErrKindAuth, true
	case status == http.StatusTooManyRequests:
		return audit.ErrKindRateLimited, true
	case status >= 500:
		return audit.ErrKindNetwork, true
	default:
		return audit.ErrKindInvalidResponse, true
	}
}

// classifyEnvelopeStatus maps DataForSEO's in-band status codes. The 401xx
// block covers credential problems; 40202 is the documented rate limit code.
func classifyEnvelopeStatus(status int) (audit.ErrorKind, bool) {
	switch {
	case status == statusOK || status == statusTaskCreated:
		return "", false
	case status >= statusAuthFailedLow && status <= statusAuthFailedTop:
		return audit.ErrKindAuth, true
	case status == statusRateLimited:
		return audit.ErrKindRateLimited, true
	default:
		return audit.ErrKindInvalidResponse, true
	}
}
