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

// SportsDataIOClient fetches SportsDataIO advanced defensive splits
type SportsDataIOClient struct {
	httpClient  *http.Client
	cache       nfl.CacheProvider
	logger      *logrus.Logger
	breaker     BreakerExecutor
	rateLimiter *rate.Limiter
	cacheTTL    time.Duration
	baseURL     string
}

// NewSportsDataIOClient creates a new SportsDataIO client
func NewSportsDataIOClient(deps Deps) *SportsDataIOClient {
	deps = deps.withDefaults()
	return &SportsDataIOClient{
		httpClient: &http.Client{
			Timeout: deps.Timeout,
		},
		cache:       deps.Cache,
		logger:      deps.Logger,
		breaker:     deps.Breaker,
		rateLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		cacheTTL:    deps.CacheTTL,
		baseURL:     "https://api.sportsdata.io",
	}
}

// SportsDataIO serves PascalCase JSON
type sportsDataIOTeamRates struct {
	Team         string  `json:"Team"`
	Season       int     `json:"Season"`
	Week         int     `json:"Week"`
	PressureRate float64 `json:"PressureRate"`
	SackRate     float64 `json:"SackRate"`
	BlitzRate    float64 `json:"BlitzRate"`
}

func (c *SportsDataIOClient) Name() string {
	return "sportsdataio"
}

// Fetch retrieves pressure splits for the requested teams, cache-first.
// SportsDataIO requires a subscription key.
func (c *SportsDataIOClient) Fetch(ctx context.Context, creds nfl.Credentials, window nfl.Window, identifiers []string) (*nfl.ProviderTable, error) {
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
		return c.fetchPressureRates(ctx, creds, window, identifiers)
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
		c.logger.Warnf("Failed to cache SportsDataIO rates: %v", err)
	}

	return table, nil
}

func (c *SportsDataIOClient) fetchPressureRates(ctx context.Context, creds nfl.Credentials, window nfl.Window, identifiers []string) (*nfl.ProviderTable, error) {
	url := fmt.Sprintf("%s/v3/nfl/advanced/json/TeamPressureRates/%d/%d", c.baseURL, window.Season, window.Week)

	var payload []sportsDataIOTeamRates
	if err := c.makeRequest(ctx, url, creds.APIKey, &payload); err != nil {
		return nil, err
	}

	table := nfl.NewProviderTable(c.Name(), window.Season, window.Week)
	requested := identifierSet(identifiers)

	for _, entry := range payload {
		abbr := strings.ToUpper(strings.TrimSpace(entry.Team))
		if abbr == "" || !requested[abbr] {
			continue
		}
		table.AddValue(abbr, "pressure_rate", fromPercent(entry.PressureRate))
		table.AddValue(abbr, "sack_rate", fromPercent(entry.SackRate))
		table.AddValue(abbr, "blitz_rate", fromPercent(entry.BlitzRate))
	}

	if len(table.Rows) == 0 {
		return nil, nfl.NewProviderError(c.Name(), nfl.ProviderReasonBadResponse, nfl.ErrEmptyDataset)
	}

	return table, nil
}

// makeRequest performs an HTTP request with exponential backoff
func (c *SportsDataIOClient) makeRequest(ctx context.Context, url, apiKey string, target interface{}) error {
	var resp *http.Response
	var err error

	for attempt := 0; attempt < 3; attempt++ {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if rerr != nil {
			return rerr
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Ocp-Apim-Subscription-Key", apiKey)

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
		c.logger.Warnf("SportsDataIO request failed (attempt %d), waiting %v: %v", attempt+1, waitTime, err)
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
