// Package source pages through the data.gov.in MGNREGA district resource.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nregatrack/nrega-sync/internal/model"
	"github.com/nregatrack/nrega-sync/internal/resilience"
)

// DefaultPageSize is the number of records requested per page.
const DefaultPageSize = 500

// Filter narrows a query to one state and/or financial year. Empty fields
// are not sent upstream.
type Filter struct {
	StateName string
	FinYear   string
}

func (f Filter) String() string {
	return fmt.Sprintf("state=%q fin_year=%q", f.StateName, f.FinYear)
}

// Page is one upstream response.
type Page struct {
	Records []model.RawRecord
	Total   int
}

// RemoteFetchError reports a failed upstream page request.
type RemoteFetchError struct {
	Filter     Filter
	Offset     int
	StatusCode int
	Err        error
}

func (e *RemoteFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("source: fetch %s offset=%d: http %d: %v", e.Filter, e.Offset, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("source: fetch %s offset=%d: %v", e.Filter, e.Offset, e.Err)
}

func (e *RemoteFetchError) Unwrap() error {
	return e.Err
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	APIKey    string
	UserAgent string
	PageSize  int
	// PageDelay is the minimum spacing between any two requests of the client.
	// Zero disables pacing.
	PageDelay time.Duration
	// Timeout bounds each request individually.
	Timeout time.Duration
	Retry   resilience.RetryConfig
	Breaker resilience.BreakerConfig
	// HTTPClient overrides the default transport.
	HTTPClient *http.Client
}

// Client fetches pages from the upstream API. It is safe for concurrent use;
// all callers share one pacing limiter and one circuit breaker.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*Page]
	log     *zap.Logger
}

// New creates a Client, filling unset options with defaults.
func New(opts Options) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "nrega-sync/1.0"
	}
	if opts.Breaker.Name == "" {
		opts.Breaker.Name = "data.gov.in"
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("source.fetch_page")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	limit := rate.Inf
	if opts.PageDelay > 0 {
		limit = rate.Every(opts.PageDelay)
	}

	return &Client{
		opts:    opts,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
		breaker: resilience.NewBreaker[*Page](opts.Breaker),
		log:     zap.L().With(zap.String("component", "source.client")),
	}
}

// PageSize returns the configured page size.
func (c *Client) PageSize() int {
	return c.opts.PageSize
}

// FetchPage requests a single page. Transient failures are retried; every
// failure is returned as a *RemoteFetchError.
func (c *Client) FetchPage(ctx context.Context, filter Filter, offset, limit int) (*Page, error) {
	page, err := c.breaker.Execute(func() (*Page, error) {
		return resilience.DoVal(ctx, c.opts.Retry, func(ctx context.Context) (*Page, error) {
			return c.doPage(ctx, filter, offset, limit)
		})
	})
	if err != nil {
		var rfe *RemoteFetchError
		if errors.As(err, &rfe) {
			return nil, rfe
		}
		return nil, &RemoteFetchError{Filter: filter, Offset: offset, Err: err}
	}
	return page, nil
}

// FetchAll collects every record matching filter. It stops when the running
// count reaches the reported total, when a page is short, or when a page is
// empty. On error no records are returned.
func (c *Client) FetchAll(ctx context.Context, filter Filter) ([]model.RawRecord, error) {
	var all []model.RawRecord
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, &RemoteFetchError{Filter: filter, Offset: offset, Err: err}
		}

		page, err := c.FetchPage(ctx, filter, offset, c.opts.PageSize)
		if err != nil {
			return nil, err
		}
		if len(page.Records) == 0 {
			break
		}
		all = append(all, page.Records...)
		offset += c.opts.PageSize

		if len(all) >= page.Total || len(page.Records) < c.opts.PageSize {
			break
		}
	}

	c.log.Debug("fetched records",
		zap.String("state", filter.StateName),
		zap.String("fin_year", filter.FinYear),
		zap.Int("records", len(all)),
	)
	return all, nil
}

func (c *Client) doPage(ctx context.Context, filter Filter, offset, limit int) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &RemoteFetchError{Filter: filter, Offset: offset, Err: fmt.Errorf("rate limiter wait: %w", err)}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.pageURL(filter, offset, limit), nil)
	if err != nil {
		return nil, &RemoteFetchError{Filter: filter, Offset: offset, Err: eris.Wrap(err, "create request")}
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RemoteFetchError{Filter: filter, Offset: offset, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		msg := readMessage(resp.Body)
		var cause error = eris.Errorf("unexpected status: %s", msg)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			cause = resilience.NewTransientError(cause, resp.StatusCode)
		}
		return nil, &RemoteFetchError{Filter: filter, Offset: offset, StatusCode: resp.StatusCode, Err: cause}
	}

	page, err := decodePage(resp.Body)
	if err != nil {
		return nil, &RemoteFetchError{Filter: filter, Offset: offset, StatusCode: resp.StatusCode, Err: err}
	}
	return page, nil
}

func (c *Client) pageURL(filter Filter, offset, limit int) string {
	q := url.Values{}
	q.Set("api-key", c.opts.APIKey)
	q.Set("format", "json")
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	if filter.StateName != "" {
		q.Set("filters[state_name]", filter.StateName)
	}
	if filter.FinYear != "" {
		q.Set("filters[fin_year]", filter.FinYear)
	}

	sep := "?"
	if strings.Contains(c.opts.BaseURL, "?") {
		sep = "&"
	}
	return c.opts.BaseURL + sep + q.Encode()
}

type pageBody struct {
	Records []model.RawRecord `json:"records"`
	Total   any               `json:"total"`
	Status  string            `json:"status"`
	Message string            `json:"message"`
}

func decodePage(r io.Reader) (*Page, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var body pageBody
	if err := dec.Decode(&body); err != nil {
		return nil, eris.Wrap(err, "decode response")
	}
	if strings.EqualFold(body.Status, "error") {
		return nil, eris.Errorf("upstream error: %s", body.Message)
	}

	total, ok := parseTotal(body.Total)
	if !ok {
		// Without a usable total, only short or empty pages end pagination.
		total = math.MaxInt
	}
	return &Page{Records: body.Records, Total: total}, nil
}

// parseTotal accepts the total as a JSON number or a numeric string.
func parseTotal(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), true
		}
		if f, err := t.Float64(); err == nil {
			return int(f), true
		}
	case float64:
		return int(t), true
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f), true
		}
	}
	return 0, false
}

func readMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		return "empty response body"
	}
	return msg
}
