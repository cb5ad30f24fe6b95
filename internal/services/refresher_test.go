package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twalsh/matchup-edge/internal/nfl"
	"github.com/twalsh/matchup-edge/pkg/config"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []RefreshEvent
}

func (n *recordingNotifier) Publish(event RefreshEvent) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

func (n *recordingNotifier) stages(status string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var stages []string
	for _, e := range n.events {
		if e.Status == status {
			stages = append(stages, e.Stage)
		}
	}
	return stages
}

func refresherConfig() *config.Config {
	return &config.Config{
		DefaultSeason:     2024,
		DefaultWeek:       1,
		CacheTTLMinutes:   60,
		EdgeWeightQB:      1.2,
		EdgeWeightRB:      0.7,
		EdgeWeightWR:      1.1,
		EdgeWeightTE:      0.6,
		EdgeWeightOL:      1.1,
		QBCoverageShare:   0.6,
		RBRunDefenseShare: 0.65,
		TECoverageLBShare: 0.55,
		OLPassProShare:    0.6,
		TrenchDepStrength: 1.0,
		CloseMargin:       0.15,
	}
}

func newTestRefresher(scheduleURL, pbpReleaseURL string, settings []config.ProviderSetting, adapters map[string]nfl.Adapter) (*RefresherService, *recordingNotifier, nfl.CacheProvider) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cache := NewMemoryCache(time.Hour)
	datasets := NewDatasetService(scheduleURL, pbpReleaseURL, cache, logger, 5*time.Second, time.Hour)
	uploads := NewUploadService(nil, logger)
	enrichment := newStubEnrichment(settings, adapters)
	notifier := &recordingNotifier{}

	refresher := NewRefresherService(refresherConfig(), datasets, uploads, enrichment, cache, notifier, logger)
	return refresher, notifier, cache
}

func TestRefreshOnDemand(t *testing.T) {
	scheduleServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(gzipBytes(t, scheduleCSV))
	}))
	defer scheduleServer.Close()
	pbpServer, _ := servePlays(t, samplePlays())
	defer pbpServer.Close()

	espn := nfl.NewProviderTable("espn", 2024, 1)
	espn.AddValue("KC", "pass_block_win_rate", 0.9)

	settings := []config.ProviderSetting{
		{Name: "espn", Enabled: true},
		{Name: "pff", Enabled: true},
	}
	adapters := map[string]nfl.Adapter{
		"espn": stubAdapter{name: "espn", table: espn},
		"pff":  stubAdapter{name: "pff", err: nfl.NewProviderError("pff", nfl.ProviderReasonAuth, errors.New("401"))},
	}

	refresher, notifier, cache := newTestRefresher(scheduleServer.URL, pbpServer.URL, settings, adapters)

	result, err := refresher.RefreshOnDemand(context.Background(), RefreshRequest{Season: 2024, Week: 1})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 2024, result.Season)
	assert.Equal(t, 1, result.Week)
	assert.Equal(t, "nflverse", result.Source)

	// one unified row and one pick per week-1 game, provider failure or not
	require.NotNil(t, result.Table)
	assert.Len(t, result.Table.Rows, 2)
	require.NotNil(t, result.Board)
	assert.Len(t, result.Board.Picks, 2)

	// the failed provider is reported, not raised
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, nfl.SkippedProvider{Provider: "pff", Reason: nfl.ProviderReasonAuth}, result.Skipped[0])
	assert.Equal(t, []string{"espn"}, result.Table.Providers)

	kcRow := result.Table.Rows[0]
	assert.Equal(t, "KC", kcRow.Game.HomeTeam)
	assert.InDelta(t, 0.9, kcRow.Home.Provider["espn_pass_block_win_rate"].Float64, 1e-9)
	assert.InDelta(t, 0.9, kcRow.Home.Provider["pass_block_win_rate"].Float64, 1e-9)

	stored, ok := refresher.Result(2024, 1)
	require.True(t, ok)
	assert.Same(t, result, stored)
	assert.Same(t, result, refresher.Latest())

	var cachedBoard nfl.Board
	require.NoError(t, cache.GetSimple(BoardCacheKey(2024, 1), &cachedBoard))
	assert.Len(t, cachedBoard.Picks, 2)

	done := notifier.stages(EventOK)
	for _, stage := range []string{"schedule", "play_by_play", "provider:espn", "merge", "analytics"} {
		assert.Contains(t, done, stage)
	}
	assert.Contains(t, notifier.stages(EventSkipped), "provider:pff")

	status := refresher.GetStatus()
	sources := status["sources"].(map[string]SourceStatus)
	assert.Equal(t, EventOK, sources["schedule"].Status)
	assert.Equal(t, EventSkipped, sources["provider:pff"].Status)
	assert.Equal(t, false, status["refreshing"])
}

func TestRefreshScheduleFailure(t *testing.T) {
	scheduleServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer scheduleServer.Close()

	refresher, notifier, _ := newTestRefresher(scheduleServer.URL, "http://localhost:0", nil, nil)

	_, err := refresher.RefreshOnDemand(context.Background(), RefreshRequest{Season: 2024, Week: 1})
	require.Error(t, err)

	var retrievalErr *nfl.RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, "schedule", retrievalErr.Source)

	assert.Nil(t, refresher.Latest())
	assert.Contains(t, notifier.stages(EventFailed), "schedule")
}

func TestRefreshUploadOverride(t *testing.T) {
	scheduleServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(gzipBytes(t, scheduleCSV))
	}))
	defer scheduleServer.Close()

	var pbpRequests int32
	pbpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pbpRequests, 1)
		http.NotFound(w, r)
	}))
	defer pbpServer.Close()

	refresher, notifier, _ := newTestRefresher(scheduleServer.URL, pbpServer.URL, nil, nil)

	up, err := refresher.uploads.Load("override.csv", strings.NewReader(wideUploadCSV))
	require.NoError(t, err)

	result, err := refresher.RefreshOnDemand(context.Background(), RefreshRequest{Season: 2024, Week: 1, UploadID: up.ID})
	require.NoError(t, err)

	assert.Equal(t, "upload:override.csv", result.Source)
	assert.Equal(t, int32(0), atomic.LoadInt32(&pbpRequests), "an upload override replaces the play-by-play fetch")
	assert.Len(t, result.Board.Picks, 2)

	kcRow := result.Table.Rows[0]
	assert.Equal(t, "KC", kcRow.Game.HomeTeam)
	assert.InDelta(t, 0.15, kcRow.Home.Offense[nfl.MetricEPAPerPlay].Float64, 1e-9)

	assert.Contains(t, notifier.stages(EventOK), "upload")
}

func TestRefreshUnknownUpload(t *testing.T) {
	scheduleServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(gzipBytes(t, scheduleCSV))
	}))
	defer scheduleServer.Close()

	refresher, _, _ := newTestRefresher(scheduleServer.URL, "http://localhost:0", nil, nil)

	_, err := refresher.RefreshOnDemand(context.Background(), RefreshRequest{Season: 2024, Week: 1, UploadID: "missing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownUpload)
	assert.Nil(t, refresher.Latest())
}

func TestRefreshBusy(t *testing.T) {
	refresher, _, _ := newTestRefresher("http://localhost:0", "http://localhost:0", nil, nil)

	refresher.stateMu.Lock()
	refresher.refreshing = true
	refresher.stateMu.Unlock()

	_, err := refresher.RefreshOnDemand(context.Background(), RefreshRequest{Season: 2024, Week: 1})
	assert.ErrorIs(t, err, ErrRefreshInProgress)
}

func TestEdgeParamsFromConfig(t *testing.T) {
	params := EdgeParamsFromConfig(refresherConfig())

	assert.InDelta(t, 1.2, params.Weights.QB, 1e-9)
	assert.InDelta(t, 0.7, params.Weights.RB, 1e-9)
	assert.InDelta(t, 1.1, params.Weights.WR, 1e-9)
	assert.InDelta(t, 0.6, params.Weights.TE, 1e-9)
	assert.InDelta(t, 1.1, params.Weights.OL, 1e-9)
	assert.InDelta(t, 0.6, params.Shares.QBCoverage, 1e-9)
	assert.InDelta(t, 0.65, params.Shares.RBRunDefense, 1e-9)
	assert.InDelta(t, 0.55, params.Shares.TECoverageLB, 1e-9)
	assert.InDelta(t, 0.6, params.Shares.OLPassPro, 1e-9)
	assert.InDelta(t, 1.0, params.TrenchDepStrength, 1e-9)
	assert.InDelta(t, 0.15, params.CloseMargin, 1e-9)
}
