package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/twalsh/matchup-edge/internal/nfl"
	"github.com/twalsh/matchup-edge/pkg/metrics"
)

// ESPNClient fetches ESPN's team win-rate leaderboard. The endpoint is
// public, so an empty API key is accepted.
type ESPNClient struct {
	httpClient  *http.Client
	cache       nfl.CacheProvider
	logger      *logrus.Logger
	breaker     BreakerExecutor
	rateLimiter *rate.Limiter
	cacheTTL    time.Duration
	baseURL     string
}

// NewESPNClient creates a new ESPN win-rates client
func NewESPNClient(deps Deps) *ESPNClient {
	deps = deps.withDefaults()
	return &ESPNClient{
		httpClient: &http.Client{
			Timeout: deps.Timeout,
		},
		cache:       deps.Cache,
		logger:      deps.Logger,
		breaker:     deps.Breaker,
		rateLimiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		cacheTTL:    deps.CacheTTL,
		baseURL:     "https://site.api.espn.com/apis/site/v2/sports/football/nfl",
	}
}

// ESPN API response structures
type espnWinRatesResponse struct {
	Season struct {
		Year int `json:"year"`
	} `json:"season"`
	Week struct {
		Number int `json:"number"`
	} `json:"week"`
	Teams []struct {
		Team struct {
			ID           string `json:"id"`
			Abbreviation string `json:"abbreviation"`
			DisplayName  string `json:"displayName"`
		} `json:"team"`
		Statistics []struct {
			Name  string  `json:"name"`
			Value float64 `json:"value"`
		} `json:"statistics"`
	} `json:"teams"`
}

// espnStatNames maps ESPN stat names onto the canonical metric names
var espnStatNames = map[string]string{
	"passBlockWinRate": "pass_block_win_rate",
	"runBlockWinRate":  "run_block_win_rate",
	"passRushWinRate":  "pass_rush_win_rate",
	"runStopWinRate":   "run_stop_win_rate",
}

func (c *ESPNClient) Name() string {
	return "espn"
}

// Fetch retrieves win rates for the requested teams, cache-first
func (c *ESPNClient) Fetch(ctx context.Context, creds nfl.Credentials, window nfl.Window, identifiers []string) (*nfl.ProviderTable, error) {
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
		return c.fetchWinRates(ctx, creds, window, identifiers)
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
		c.logger.Warnf("Failed to cache ESPN win rates: %v", err)
	}

	return table, nil
}

func (c *ESPNClient) fetchWinRates(ctx context.Context, creds nfl.Credentials, window nfl.Window, identifiers []string) (*nfl.ProviderTable, error) {
	url := fmt.Sprintf("%s/statistics/winrates?season=%d&week=%d", c.baseURL, window.Season, window.Week)

	var payload espnWinRatesResponse
	if err := c.makeRequest(ctx, url, creds.APIKey, &payload); err != nil {
		return nil, err
	}

	table := nfl.NewProviderTable(c.Name(), window.Season, window.Week)
	requested := identifierSet(identifiers)

	for _, entry := range payload.Teams {
		abbr := strings.ToUpper(strings.TrimSpace(entry.Team.Abbreviation))
		if abbr == "" || !requested[abbr] {
			continue
		}
		for _, stat := range entry.Statistics {
			metric, ok := espnStatNames[stat.Name]
			if !ok {
				continue
			}
			table.AddValue(abbr, metric, fromPercent(stat.Value))
		}
	}

	if len(table.Rows) == 0 {
		return nil, nfl.NewProviderError(c.Name(), nfl.ProviderReasonBadResponse, nfl.ErrEmptyDataset)
	}

	return table, nil
}

// makeRequest performs an HTTP request with exponential backoff. Auth and
// rate-limit statuses abort immediately; everything else is retried.
func (c *ESPNClient) makeRequest(ctx context.Context, url, apiKey string, target interface{}) error {
	var resp *http.Response
	var err error

	for attempt := 0; attempt < 3; attempt++ {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if rerr != nil {
			return rerr
		}
		req.Header.Set("User-Agent", userAgent)
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}

		resp, err = c.httpClient.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			break
		}

		if resp != nil {
			status := resp.StatusCode
			resp.Body.Close()
			switch status {
			case http.StatusUnauthorized, http.StatusForbidden:
				return nfl.NewProviderError(c.Name(), nfl.ProviderReasonAuth, fmt.Errorf("status code %d", status))
			case http.StatusTooManyRequests:
				return nfl.NewProviderError(c.Name(), nfl.ProviderReasonRateLimit, fmt.Errorf("status code %d", status))
			}
		}

		// Exponential backoff
		waitTime := time.Duration(math.Pow(2, float64(attempt))) * time.Second
		c.logger.Warnf("ESPN request failed (attempt %d), waiting %v: %v", attempt+1, waitTime, err)
		time.Sleep(waitTime)
	}

	if err != nil {
		return nfl.NewProviderError(c.Name(), nfl.ProviderReasonUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nfl.NewProviderError(c.Name(), nfl.ProviderReasonBadResponse, fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return nfl.NewProviderError(c.Name(), nfl.ProviderReasonBadResponse, err)
	}
	return nil
}
