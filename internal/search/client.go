// Package search talks to the cluster-wide search backend and plans, issues and
// merges the queries one application refresh needs.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kubilitics/kubilitics-appstatus/internal/models"
	"github.com/kubilitics/kubilitics-appstatus/internal/pkg/tracing"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512

	searchOperation = "searchResultItemsAndRelatedItems"
	searchQuery     = `query searchResultItemsAndRelatedItems($input: [SearchInput]) {
  searchResult: search(input: $input) {
    items
    related {
      kind
      items
    }
  }
}`
)

// Searcher runs search queries. *Client implements it.
type Searcher interface {
	Search(ctx context.Context, inputs []models.SearchInput) ([]models.SearchResult, error)
}

// ClientConfig configures the search client.
type ClientConfig struct {
	URL   string
	Token string
	// Timeout bounds one HTTP attempt.
	Timeout         time.Duration
	RateLimitPerSec float64 // 0 = no limit
	RateLimitBurst  int
	RetryAttempts   int
	HTTPClient      *http.Client
}

// Client is the search backend client. It is safe for concurrent use.
type Client struct {
	url        string
	token      string
	timeout    time.Duration
	retries    int
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *CircuitBreaker
	log        *zap.Logger
}

type graphQLRequest struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Query         string         `json:"query"`
}

// NewClient returns a client for cfg.URL.
func NewClient(cfg ClientConfig, log *zap.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("search url is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		url:        cfg.URL,
		token:      cfg.Token,
		timeout:    cfg.Timeout,
		retries:    cfg.RetryAttempts,
		httpClient: cfg.HTTPClient,
		breaker:    NewCircuitBreaker(),
		log:        log.Named("search"),
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.retries <= 0 {
		c.retries = defaultRetryAttempts
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if cfg.RateLimitPerSec > 0 && cfg.RateLimitBurst > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	}
	return c, nil
}

// Search posts inputs to the backend and returns one result per input.
func (c *Client) Search(ctx context.Context, inputs []models.SearchInput) ([]models.SearchResult, error) {
	ctx, span := tracing.Start(ctx, "search.query",
		attribute.Int("search.inputs", len(inputs)),
		attribute.String("search.kinds", strings.Join(filterValues(inputs, "kind"), ",")),
	)
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			tracing.Fail(span, err)
			return nil, fmt.Errorf("search rate limit: %w", err)
		}
	}

	body, err := json.Marshal(graphQLRequest{
		OperationName: searchOperation,
		Variables:     map[string]any{"input": inputs},
		Query:         searchQuery,
	})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	var results []models.SearchResult
	err = c.breaker.Execute(ctx, func() error {
		var rerr error
		results, rerr = doWithRetryValue(ctx, c.retries, func() ([]models.SearchResult, error) {
			return c.post(ctx, body)
		})
		return rerr
	})
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("search.results", len(results)))
	return results, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]models.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var out models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("search backend errors: %s", strings.Join(msgs, "; "))
	}
	return out.Data.SearchResult, nil
}

func filterValues(inputs []models.SearchInput, property string) []string {
	var out []string
	for _, in := range inputs {
		for _, f := range in.Filters {
			if f.Property == property {
				out = append(out, f.Values...)
			}
		}
	}
	return out
}
