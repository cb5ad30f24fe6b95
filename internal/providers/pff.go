package providers

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/twalsh/matchup-edge/internal/nfl"
	"github.com/twalsh/matchup-edge/pkg/metrics"
)

// PFFClient fetches PFF team grades. PFF versions its payload shape
// loosely, so the response is probed with gjson paths instead of a fixed
// struct.
type PFFClient struct {
	httpClient  *http.Client
	cache       nfl.CacheProvider
	logger      *logrus.Logger
	breaker     BreakerExecutor
	rateLimiter *rate.Limiter
	cacheTTL    time.Duration
	baseURL     string
}

// NewPFFClient creates a new PFF grades client
func NewPFFClient(deps Deps) *PFFClient {
	deps = deps.withDefaults()
	return &PFFClient{
		httpClient: &http.Client{
			Timeout: deps.Timeout,
		},
		cache:       deps.Cache,
		logger:      deps.Logger,
		breaker:     deps.Breaker,
		rateLimiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
		cacheTTL:    deps.CacheTTL,
		baseURL:     "https://api.pff.com",
	}
}

func (c *PFFClient) Name() string {
	return "pff"
}

// Fetch retrieves team grades for the requested teams, cache-first. PFF
// requires an API key; enabling the provider without one fails here, not at
// the vendor.
func (c *PFFClient) Fetch(ctx context.Context, creds nfl.Credentials, window nfl.Window, identifiers []string) (*nfl.ProviderTable, error) {
	if creds.APIKey == "" {
		return nil, nfl.NewProviderError(c.Name(), nfl.ProviderReasonNoCredentials, nfl.ErrMissingCredentials)
	}

	key := cacheKey(c.Name(), window)

	// Check cache first
	var cached nfl.ProviderTable
	if err := c.cache.GetSimple(key, &cached); err == nil {
		return &cached, nil
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(c.Name(), func() (interface{}, error) {
		return c.fetchGrades(ctx, creds, window, identifiers)
	})
	if err != nil {
		metrics.RecordProviderRequest(c.Name(), "error")
		if nfl.IsProvider(err) {
			return nil, err
		}
		return nil, nfl.NewProviderError(c.Name(), nfl.ProviderReasonUnavailable, err)
	}

	table := result.(*nfl.ProviderTable)
	metrics.RecordProviderRequest(c.Name(), "success")

	if err := c.cache.SetSimple(key, table, c.cacheTTL); err != nil {
		c.logger.Warnf("Failed to cache PFF grades: %v", err)
	}

	return table, nil
}

func (c *PFFClient) fetchGrades(ctx context.Context, creds nfl.Credentials, window nfl.Window, identifiers []string) (*nfl.ProviderTable, error) {
	url := fmt.Sprintf("%s/v1/teams/grades?league=nfl&season=%d&week=%d", c.baseURL, window.Season, window.Week)

	body, err := c.makeRequest(ctx, url, creds.APIKey)
	if err != nil {
		return nil, err
	}

	// Grade rows have moved between top-level and nested keys across payload
	// versions; probe the known locations.
	rows := gjson.GetBytes(body, "team_grades")
	if !rows.Exists() {
		rows = gjson.GetBytes(body, "data.grades")
	}
	if !rows.Exists() || !rows.IsArray() {
		return nil, nfl.NewProviderError(c.Name(), nfl.ProviderReasonBadResponse, fmt.Errorf("no grade rows in payload"))
	}

	table := nfl.NewProviderTable(c.Name(), window.Season, window.Week)
	requested := identifierSet(identifiers)

	rows.ForEach(func(_, item gjson.Result) bool {
		abbr := strings.ToUpper(strings.TrimSpace(firstString(item, "team", "team_abbr", "franchise.abbreviation")))
		if abbr == "" || !requested[abbr] {
			return true
		}
		if v := firstNumber(item, "pass_block_win_rate", "pbwr"); v.Exists() {
			table.AddValue(abbr, "pass_block_win_rate", fromPercent(v.Float()))
		}
		if v := firstNumber(item, "pass_rush_win_rate", "prwr"); v.Exists() {
			table.AddValue(abbr, "pass_rush_win_rate", fromPercent(v.Float()))
		}
		if v := firstNumber(item, "coverage_grade", "grades.coverage"); v.Exists() {
			table.AddValue(abbr, "coverage_grade", fromPercent(v.Float()))
		}
		return true
	})

	if len(table.Rows) == 0 {
		return nil, nfl.NewProviderError(c.Name(), nfl.ProviderReasonBadResponse, nfl.ErrEmptyDataset)
	}

	return table, nil
}

func firstString(item gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := item.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func firstNumber(item gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := item.Get(p); v.Exists() && v.Type == gjson.Number {
			return v
		}
	}
	return gjson.Result{}
}

// makeRequest performs an HTTP request with exponential backoff, returning
// the raw body for gjson probing
func (c *PFFClient) makeRequest(ctx context.Context, url, apiKey string) ([]byte, error) {
	var resp *http.Response
	var err error

	for attempt := 0; attempt < 3; attempt++ {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if rerr != nil {
			return nil, rerr
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("x-api-key", apiKey)

		resp, err = c.httpClient.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			break
		}

		if resp != nil {
			status := resp.StatusCode
			resp.Body.Close()
			switch status {
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, nfl.NewProviderError(c.Name(), nfl.ProviderReasonAuth, fmt.Errorf("status code %d", status))
			case http.StatusTooManyRequests:
				return nil, nfl.NewProviderError(c.Name(), nfl.ProviderReasonRateLimit, fmt.Errorf("status code %d", status))
			}
		}

		// Exponential backoff
		waitTime := time.Duration(math.Pow(2, float64(attempt))) * time.Second
		c.logger.Warnf("PFF request failed (attempt %d), waiting %v: %v", attempt+1, waitTime, err)
		time.Sleep(waitTime)
	}

	if err != nil {
		return nil, nfl.NewProviderError(c.Name(), nfl.ProviderReasonUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, nfl.NewProviderError(c.Name(), nfl.ProviderReasonBadResponse, fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nfl.NewProviderError(c.Name(), nfl.ProviderReasonBadResponse, err)
	}
	return body, nil
}
