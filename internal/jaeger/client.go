package jaeger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Query endpoints exposed by the Jaeger query service.
const (
	tracesEndpoint   = "/api/traces"
	servicesEndpoint = "/api/services"
)

// ErrNotFound is returned when a trace lookup matches nothing.
var ErrNotFound = errors.New("trace not found")

// DecodeError marks a response that arrived but could not be decoded,
// as opposed to a transport failure. Callers count the two separately.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// SearchParams narrows a trace search.
type SearchParams struct {
	Service  string
	Limit    int
	Lookback string
}

// Client talks to a Jaeger query service over HTTP. All calls honor the
// passed context and share a process-wide request budget so a short
// polling interval cannot hammer the backend.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// RequestsPerSecond bounds outbound API calls. Zero disables limiting.
	RequestsPerSecond float64
}

// NewClient creates a client for the Jaeger query service at baseURL,
// e.g. http://localhost:16686.
func NewClient(baseURL string, httpClient *http.Client, opts ClientOptions, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		limiter: limiter,
		logger:  logger,
	}
}

// SearchTraces returns traces matching params, at most params.Limit of
// them. Traces are decoded one by one so a single malformed payload
// skips that trace instead of the whole batch; skipped reports how many
// were dropped that way.
func (c *Client) SearchTraces(ctx context.Context, params SearchParams) (traces []Trace, skipped int, err error) {
	q := url.Values{}
	if params.Service != "" {
		q.Set("service", params.Service)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Lookback != "" {
		q.Set("lookback", params.Lookback)
	}

	var env Envelope[json.RawMessage]
	if err := c.get(ctx, tracesEndpoint, q, &env); err != nil {
		return nil, 0, err
	}
	if len(env.Errors) > 0 && string(env.Errors) != "null" {
		return nil, 0, &DecodeError{Endpoint: tracesEndpoint, Err: fmt.Errorf("backend errors: %s", env.Errors)}
	}

	traces = make([]Trace, 0, len(env.Data))
	for _, raw := range env.Data {
		var t Trace
		if err := json.Unmarshal(raw, &t); err != nil {
			skipped++
			c.logger.Warn("Skipping malformed trace payload", zap.Error(err))
			continue
		}
		traces = append(traces, t)
	}
	return traces, skipped, nil
}

// Trace fetches a single trace by its hex ID.
func (c *Client) Trace(ctx context.Context, id string) (*Trace, error) {
	var env Envelope[Trace]
	if err := c.get(ctx, tracesEndpoint+"/"+url.PathEscape(id), nil, &env); err != nil {
		return nil, err
	}
	// A successful lookup carries exactly one trace in data.
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &env.Data[0], nil
}

// Services lists the services reporting to this backend.
func (c *Client) Services(ctx context.Context) ([]string, error) {
	var env Envelope[string]
	if err := c.get(ctx, servicesEndpoint, nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	body, err := c.getRaw(ctx, path, q)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Endpoint: path, Err: err}
	}
	return nil
}

// RawSearch performs the same query as SearchTraces but returns the
// undecoded response body. Used by the query subcommands, which print
// what the backend said rather than our view of it.
func (c *Client) RawSearch(ctx context.Context, params SearchParams) ([]byte, error) {
	q := url.Values{}
	if params.Service != "" {
		q.Set("service", params.Service)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Lookback != "" {
		q.Set("lookback", params.Lookback)
	}
	return c.getRaw(ctx, tracesEndpoint, q)
}

// RawTrace fetches a single trace by ID, undecoded.
func (c *Client) RawTrace(ctx context.Context, id string) ([]byte, error) {
	return c.getRaw(ctx, tracesEndpoint+"/"+url.PathEscape(id), nil)
}

// RawServices lists services, undecoded.
func (c *Client) RawServices(ctx context.Context) ([]byte, error) {
	return c.getRaw(ctx, servicesEndpoint, nil)
}

func (c *Client) getRaw(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Querying backend",
		zap.String("path", path),
		zap.String("query", q.Encode()),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fetch %s: backend returned %d: %s", path, resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}
