package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/twalsh/matchup-edge/internal/nfl"
	"github.com/twalsh/matchup-edge/pkg/config"
	"github.com/twalsh/matchup-edge/pkg/metrics"
)

var (
	// ErrRefreshInProgress rejects a refresh while another one is running.
	ErrRefreshInProgress = errors.New("a refresh is already running")

	// ErrUnknownUpload means the requested upload override was never loaded.
	ErrUnknownUpload = errors.New("unknown upload id")
)

// RefreshRequest carries everything one refresh needs. Params overrides the
// configured edge parameters wholesale; nil keeps the configured defaults.
type RefreshRequest struct {
	Season   int             `json:"season"`
	Week     int             `json:"week"`
	UploadID string          `json:"upload_id,omitempty"`
	Params   *nfl.EdgeParams `json:"params,omitempty"`
}

// RefreshResult is one completed pipeline run: the picks board, the unified
// matchup table behind it, and the providers that dropped out along the way.
type RefreshResult struct {
	Season      int                   `json:"season"`
	Week        int                   `json:"week"`
	Source      string                `json:"source"`
	Board       *nfl.Board            `json:"board"`
	Table       *nfl.UnifiedTable     `json:"table"`
	Skipped     []nfl.SkippedProvider `json:"skipped_providers"`
	RefreshedAt time.Time             `json:"refreshed_at"`
	Duration    time.Duration         `json:"duration"`
}

// SourceStatus is the last observed outcome for one pipeline stage.
type SourceStatus struct {
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RefresherService runs the fetch → enrich → merge → score pipeline, keeps
// the latest result per (season, week) window, and re-runs the current
// window on a cron schedule.
type RefresherService struct {
	datasets   *DatasetService
	uploads    *UploadService
	enrichment *EnrichmentService
	cache      nfl.CacheProvider
	notifier   RefreshNotifier
	logger     *logrus.Logger

	defaultWindow nfl.Window
	defaultParams nfl.EdgeParams
	cronSpec      string
	cacheTTL      time.Duration

	cron      *cron.Cron
	mu        sync.Mutex
	isRunning bool

	stateMu    sync.RWMutex
	refreshing bool
	results    map[nfl.Window]*RefreshResult
	latest     *RefreshResult
	sources    map[string]SourceStatus
}

// NewRefresherService wires the pipeline services together. notifier may be
// nil when no progress stream is wanted.
func NewRefresherService(
	cfg *config.Config,
	datasets *DatasetService,
	uploads *UploadService,
	enrichment *EnrichmentService,
	cache nfl.CacheProvider,
	notifier RefreshNotifier,
	logger *logrus.Logger,
) *RefresherService {
	return &RefresherService{
		datasets:      datasets,
		uploads:       uploads,
		enrichment:    enrichment,
		cache:         cache,
		notifier:      notifier,
		logger:        logger,
		defaultWindow: nfl.Window{Season: cfg.DefaultSeason, Week: cfg.DefaultWeek},
		defaultParams: EdgeParamsFromConfig(cfg),
		cronSpec:      cfg.RefreshCron,
		cacheTTL:      cfg.CacheTTL(),
		cron:          cron.New(),
		results:       make(map[nfl.Window]*RefreshResult),
		sources:       make(map[string]SourceStatus),
	}
}

// EdgeParamsFromConfig maps the configured weights and shares onto the
// analytics parameter set.
func EdgeParamsFromConfig(cfg *config.Config) nfl.EdgeParams {
	return nfl.EdgeParams{
		Weights: nfl.Weights{
			QB: cfg.EdgeWeightQB,
			RB: cfg.EdgeWeightRB,
			WR: cfg.EdgeWeightWR,
			TE: cfg.EdgeWeightTE,
			OL: cfg.EdgeWeightOL,
		},
		Shares: nfl.EdgeShares{
			QBCoverage:   cfg.QBCoverageShare,
			RBRunDefense: cfg.RBRunDefenseShare,
			TECoverageLB: cfg.TECoverageLBShare,
			OLPassPro:    cfg.OLPassProShare,
		},
		TrenchDepStrength: cfg.TrenchDepStrength,
		CloseMargin:       cfg.CloseMargin,
	}
}

// RefreshOnDemand runs the full pipeline for the requested window. Only one
// refresh runs at a time; a second request gets ErrRefreshInProgress.
func (s *RefresherService) RefreshOnDemand(ctx context.Context, req RefreshRequest) (*RefreshResult, error) {
	return s.refresh(ctx, req, "manual")
}

func (s *RefresherService) refresh(ctx context.Context, req RefreshRequest, trigger string) (*RefreshResult, error) {
	s.stateMu.Lock()
	if s.refreshing {
		s.stateMu.Unlock()
		return nil, ErrRefreshInProgress
	}
	s.refreshing = true
	s.stateMu.Unlock()
	defer func() {
		s.stateMu.Lock()
		s.refreshing = false
		s.stateMu.Unlock()
	}()

	started := time.Now()
	log := s.logger.WithFields(logrus.Fields{
		"season":  req.Season,
		"week":    req.Week,
		"trigger": trigger,
	})
	log.Info("Refresh started")

	result, err := s.run(ctx, req)
	duration := time.Since(started)
	metrics.RecordRefreshDuration(duration.Seconds())
	if err != nil {
		metrics.RecordRefreshRun(trigger, "error")
		log.WithError(err).Error("Refresh failed")
		return nil, err
	}
	result.Duration = duration
	metrics.RecordRefreshRun(trigger, "success")

	s.stateMu.Lock()
	window := nfl.Window{Season: result.Season, Week: result.Week}
	s.results[window] = result
	s.latest = result
	s.stateMu.Unlock()

	s.cacheResult(result)
	log.WithFields(logrus.Fields{
		"duration_ms": duration.Milliseconds(),
		"picks":       len(result.Board.Picks),
		"skipped":     len(result.Skipped),
	}).Info("Refresh complete")
	return result, nil
}

func (s *RefresherService) run(ctx context.Context, req RefreshRequest) (*RefreshResult, error) {
	window := nfl.Window{Season: req.Season, Week: req.Week}
	params := s.defaultParams
	if req.Params != nil {
		params = *req.Params
	}

	// Stage 1: season schedule.
	s.publish("schedule", EventStarted, "", window)
	schedule, err := s.datasets.FetchSchedule(ctx, req.Season)
	if err != nil {
		s.stageFailed("schedule", err, window)
		return nil, err
	}
	s.stageOK("schedule", fmt.Sprintf("%d games", len(schedule.Games)), window)

	// Stage 2: unit metrics, from play-by-play or an uploaded override.
	base, source, err := s.loadMetrics(ctx, req, window)
	if err != nil {
		return nil, err
	}

	// Stage 3: provider win rates, in parallel.
	providerTables, skipped := s.fetchProviders(ctx, schedule, window)

	// Stage 4: enrichment overrides and the unified matchup table.
	s.publish("merge", EventStarted, "", window)
	enriched := ApplyOverrides(base, providerTables)
	weekSchedule := &nfl.ScheduleTable{
		Season:    schedule.Season,
		FetchedAt: schedule.FetchedAt,
		Games:     schedule.WeekGames(req.Week),
	}
	table := nfl.BuildUnifiedTable(weekSchedule, enriched, providerTables)
	s.stageOK("merge", fmt.Sprintf("%d rows", len(table.Rows)), window)

	// Stage 5: scores and the picks board.
	s.publish("analytics", EventStarted, "", window)
	scores := ComputeUnitScores(enriched)
	board := BuildBoard(schedule, scores, req.Week, params)
	metrics.RecordBoardBuild()
	s.stageOK("analytics", fmt.Sprintf("%d picks", len(board.Picks)), window)

	return &RefreshResult{
		Season:      req.Season,
		Week:        req.Week,
		Source:      source,
		Board:       board,
		Table:       table,
		Skipped:     skipped,
		RefreshedAt: time.Now().UTC(),
	}, nil
}

func (s *RefresherService) loadMetrics(ctx context.Context, req RefreshRequest, window nfl.Window) (*nfl.MetricTable, string, error) {
	if req.UploadID != "" {
		s.publish("upload", EventStarted, req.UploadID, window)
		up, ok := s.uploads.Get(req.UploadID)
		if !ok {
			err := fmt.Errorf("%w: %s", ErrUnknownUpload, req.UploadID)
			s.stageFailed("upload", err, window)
			return nil, "", err
		}
		if up.Table.Season != req.Season {
			s.logger.Warnf("Upload %s covers season %d, refresh window is %d", up.Filename, up.Table.Season, req.Season)
		}
		s.stageOK("upload", up.Filename, window)
		return up.Table, "upload:" + up.Filename, nil
	}

	s.publish("play_by_play", EventStarted, "", window)
	base, err := s.datasets.FetchTeamMetrics(ctx, req.Season, req.Week)
	if err != nil {
		s.stageFailed("play_by_play", err, window)
		return nil, "", err
	}
	s.stageOK("play_by_play", fmt.Sprintf("%d unit rows", len(base.Offense)+len(base.Defense)), window)
	return base, base.Source, nil
}

func (s *RefresherService) fetchProviders(ctx context.Context, schedule *nfl.ScheduleTable, window nfl.Window) ([]*nfl.ProviderTable, []nfl.SkippedProvider) {
	tables, skipped := s.enrichment.FetchProviderTables(ctx, window, schedule.Teams())
	for _, t := range tables {
		s.stageOK("provider:"+t.Source, fmt.Sprintf("%d teams", len(t.Rows)), window)
	}
	for _, sk := range skipped {
		s.setSource("provider:"+sk.Provider, SourceStatus{Status: EventSkipped, Detail: sk.Reason, UpdatedAt: time.Now().UTC()})
		s.publish("provider:"+sk.Provider, EventSkipped, sk.Reason, window)
	}
	return tables, skipped
}

// cacheResult mirrors the board and table into the shared cache so redis
// deployments can read them without hitting the API.
func (s *RefresherService) cacheResult(result *RefreshResult) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetSimple(BoardCacheKey(result.Season, result.Week), result.Board, s.cacheTTL); err != nil {
		s.logger.Warnf("Failed to cache board: %v", err)
	}
	if err := s.cache.SetSimple(UnifiedTableCacheKey(result.Season, result.Week), result.Table, s.cacheTTL); err != nil {
		s.logger.Warnf("Failed to cache unified table: %v", err)
	}
}

func (s *RefresherService) publish(stage, status, detail string, window nfl.Window) {
	if status != EventStarted {
		s.setSource(stage, SourceStatus{Status: status, Detail: detail, UpdatedAt: time.Now().UTC()})
	}
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(RefreshEvent{
		Stage:     stage,
		Status:    status,
		Detail:    detail,
		Season:    window.Season,
		Week:      window.Week,
		Timestamp: time.Now().UTC(),
	})
}

func (s *RefresherService) stageOK(stage, detail string, window nfl.Window) {
	s.publish(stage, EventOK, detail, window)
}

func (s *RefresherService) stageFailed(stage string, err error, window nfl.Window) {
	s.publish(stage, EventFailed, err.Error(), window)
}

func (s *RefresherService) setSource(name string, status SourceStatus) {
	s.stateMu.Lock()
	s.sources[name] = status
	s.stateMu.Unlock()
}

// Result returns the stored refresh for a window, if one has run.
func (s *RefresherService) Result(season, week int) (*RefreshResult, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	result, ok := s.results[nfl.Window{Season: season, Week: week}]
	return result, ok
}

// Latest returns the most recent refresh, or nil before the first one.
func (s *RefresherService) Latest() *RefreshResult {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.latest
}

// Start schedules the recurring refresh. An empty cron spec disables it.
func (s *RefresherService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("refresher is already running")
	}
	if s.cronSpec == "" {
		s.logger.Info("Scheduled refresh disabled")
		return nil
	}

	_, err := s.cron.AddFunc(s.cronSpec, s.runScheduled)
	if err != nil {
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}

	s.cron.Start()
	s.isRunning = true

	// Warm the default window so the first request never waits
	go s.runScheduled()

	s.logger.Infof("Scheduled refresh started (%s)", s.cronSpec)
	return nil
}

// Stop halts the scheduled refresh and waits for a running job to finish.
func (s *RefresherService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	s.logger.Info("Scheduled refresh stopped")
}

func (s *RefresherService) runScheduled() {
	window := s.currentWindow()
	_, err := s.refresh(context.Background(), RefreshRequest{Season: window.Season, Week: window.Week}, "cron")
	if errors.Is(err, ErrRefreshInProgress) {
		s.logger.Debug("Scheduled refresh skipped, another refresh is running")
	}
}

func (s *RefresherService) currentWindow() nfl.Window {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.latest != nil {
		return nfl.Window{Season: s.latest.Season, Week: s.latest.Week}
	}
	return s.defaultWindow
}

// GetStatus reports the scheduler state and the last outcome per source.
func (s *RefresherService) GetStatus() map[string]interface{} {
	s.mu.Lock()
	entries := s.cron.Entries()
	nextRuns := make([]time.Time, 0, len(entries))
	for _, entry := range entries {
		nextRuns = append(nextRuns, entry.Next)
	}
	isRunning := s.isRunning
	s.mu.Unlock()

	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	sources := make(map[string]SourceStatus, len(s.sources))
	for name, status := range s.sources {
		sources[name] = status
	}

	status := map[string]interface{}{
		"scheduler_running": isRunning,
		"refreshing":        s.refreshing,
		"cron":              s.cronSpec,
		"next_runs":         nextRuns,
		"sources":           sources,
	}
	if s.latest != nil {
		status["last_refresh"] = map[string]interface{}{
			"season":       s.latest.Season,
			"week":         s.latest.Week,
			"source":       s.latest.Source,
			"refreshed_at": s.latest.RefreshedAt,
			"duration_ms":  s.latest.Duration.Milliseconds(),
			"skipped":      s.latest.Skipped,
		}
	}
	return status
}
