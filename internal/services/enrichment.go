package services

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/twalsh/matchup-edge/internal/nfl"
	"github.com/twalsh/matchup-edge/internal/providers"
	"github.com/twalsh/matchup-edge/pkg/config"
	"github.com/twalsh/matchup-edge/pkg/metrics"
)

// EnrichmentService fans refresh-time fetches out to the enabled provider
// adapters and converts failures into skipped-provider records. The merge
// itself stays in nfl.BuildUnifiedTable.
type EnrichmentService struct {
	adapters map[string]nfl.Adapter
	settings []config.ProviderSetting
	breaker  *CircuitBreakerService
	logger   *logrus.Logger
}

func NewEnrichmentService(cfg *config.Config, cache nfl.CacheProvider, breaker *CircuitBreakerService, logger *logrus.Logger) (*EnrichmentService, error) {
	settings := cfg.ProviderSettings()
	adapters := make(map[string]nfl.Adapter, len(settings))
	deps := providers.Deps{
		Cache:    cache,
		Logger:   logger,
		Breaker:  breaker,
		Timeout:  cfg.ExternalAPITimeout,
		CacheTTL: cfg.CacheTTL(),
	}
	for _, setting := range settings {
		adapter, err := providers.New(setting.Name, deps)
		if err != nil {
			return nil, err
		}
		adapters[setting.Name] = adapter
	}

	return &EnrichmentService{
		adapters: adapters,
		settings: settings,
		breaker:  breaker,
		logger:   logger,
	}, nil
}

type providerResult struct {
	name  string
	table *nfl.ProviderTable
	err   error
}

// FetchProviderTables queries every enabled adapter in parallel. Tables come
// back in configured provider order so the merge's last-write-wins stays
// deterministic; each failure becomes a skip record, never an error.
func (s *EnrichmentService) FetchProviderTables(ctx context.Context, window nfl.Window, identifiers []string) ([]*nfl.ProviderTable, []nfl.SkippedProvider) {
	var enabled []config.ProviderSetting
	for _, setting := range s.settings {
		if setting.Enabled {
			enabled = append(enabled, setting)
		}
	}
	if len(enabled) == 0 {
		return nil, nil
	}

	results := make(chan providerResult, len(enabled))
	var wg sync.WaitGroup
	for _, setting := range enabled {
		wg.Add(1)
		go func(name, apiKey string) {
			defer wg.Done()
			table, err := s.adapters[name].Fetch(ctx, nfl.Credentials{APIKey: apiKey}, window, identifiers)
			results <- providerResult{name: name, table: table, err: err}
		}(setting.Name, setting.APIKey)
	}
	wg.Wait()
	close(results)

	byName := make(map[string]providerResult, len(enabled))
	for r := range results {
		byName[r.name] = r
	}

	var tables []*nfl.ProviderTable
	var skipped []nfl.SkippedProvider
	for _, setting := range enabled {
		r := byName[setting.Name]
		if r.err != nil {
			reason := nfl.ProviderReasonUnavailable
			var pErr *nfl.ProviderError
			if errors.As(r.err, &pErr) {
				reason = pErr.Reason
			}
			s.logger.WithFields(logrus.Fields{
				"provider": setting.Name,
				"reason":   reason,
				"season":   window.Season,
				"week":     window.Week,
			}).Warnf("Provider enrichment skipped: %v", r.err)
			metrics.RecordProviderSkip(setting.Name, reason)
			skipped = append(skipped, nfl.SkippedProvider{Provider: setting.Name, Reason: reason})
			continue
		}
		tables = append(tables, r.table)
	}

	return tables, skipped
}

// ProviderState is the adapter view the status endpoint reports
type ProviderState struct {
	Name         string `json:"name"`
	Enabled      bool   `json:"enabled"`
	Credentialed bool   `json:"credentialed"`
	BreakerState string `json:"breaker_state"`
}

// States reports every configured adapter, enabled or not
func (s *EnrichmentService) States() []ProviderState {
	states := make([]ProviderState, 0, len(s.settings))
	for _, setting := range s.settings {
		states = append(states, ProviderState{
			Name:         setting.Name,
			Enabled:      setting.Enabled,
			Credentialed: setting.APIKey != "",
			BreakerState: s.breaker.GetState(setting.Name).String(),
		})
	}
	return states
}

// overrideTarget names one metric-table cell an active provider value fills
type overrideTarget struct {
	unit    nfl.Unit
	offense bool
	metric  string
}

// overrideTargets maps provider metric names onto the unit cells they proxy.
// Metrics without a target (sack_rate, blitz_rate) still reach the unified
// table; they just never reshape the analytics inputs.
var overrideTargets = map[string][]overrideTarget{
	"pass_block_win_rate": {{nfl.UnitOL, true, nfl.MetricPassBlockWin}},
	"run_block_win_rate":  {{nfl.UnitOL, true, nfl.MetricRunBlockWin}},
	"pass_rush_win_rate":  {{nfl.UnitPassRush, false, nfl.MetricPressureRate}},
	"pressure_rate":       {{nfl.UnitPassRush, false, nfl.MetricPressureRate}},
	"run_stop_win_rate": {
		{nfl.UnitRunDefense, false, nfl.MetricRunStopWin},
		{nfl.UnitDL, false, nfl.MetricRunStopWin},
	},
	"coverage_grade": {
		{nfl.UnitCoverageDB, false, nfl.MetricCoverageGrade},
		{nfl.UnitCoverageLB, false, nfl.MetricCoverageGrade},
	},
}

// ApplyOverrides writes active provider values onto a copy of the metric
// table, in provider order so a later source wins. The original table keeps
// the fetched values for the unified view; only analytics consumes the copy.
// Identifiers absent from the base table are ignored, matching the left-join
// row policy.
func ApplyOverrides(table *nfl.MetricTable, providerTables []*nfl.ProviderTable) *nfl.MetricTable {
	if table == nil || len(providerTables) == 0 {
		return table
	}

	cp := table.Clone()
	for _, p := range providerTables {
		for identifier, row := range p.Rows {
			for metric, v := range row.Values {
				if !v.Valid {
					continue
				}
				for _, target := range overrideTargets[metric] {
					var unitRow *nfl.UnitRow
					if target.offense {
						unitRow = cp.OffenseRow(identifier, target.unit)
					} else {
						unitRow = cp.DefenseRow(identifier, target.unit)
					}
					if unitRow == nil {
						continue
					}
					unitRow.SetValue(target.metric, v)
				}
			}
		}
	}
	return cp
}
