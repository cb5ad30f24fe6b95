package nfl

import (
	"context"
	"sort"
	"time"

	"gopkg.in/guregu/null.v3"
)

// Game represents one scheduled game as published by nflverse
type Game struct {
	Season   int    `json:"season"`
	Week     int    `json:"week"`
	Gameday  string `json:"gameday"` // YYYY-MM-DD as published
	AwayTeam string `json:"away_team"`
	HomeTeam string `json:"home_team"`
	GameType string `json:"game_type"` // "REG", "POST", ...
}

// ScheduleTable holds the schedule rows for a single season
type ScheduleTable struct {
	Season    int       `json:"season"`
	FetchedAt time.Time `json:"fetched_at"`
	Games     []Game    `json:"games"`
}

// WeekGames returns the regular-season games for a week, sorted by gameday
func (s *ScheduleTable) WeekGames(week int) []Game {
	var games []Game
	for _, g := range s.Games {
		if g.Week == week && g.GameType == GameTypeRegular {
			games = append(games, g)
		}
	}
	sort.SliceStable(games, func(i, j int) bool {
		return games[i].Gameday < games[j].Gameday
	})
	return games
}

// Teams returns the distinct team abbreviations appearing in the schedule
func (s *ScheduleTable) Teams() []string {
	seen := make(map[string]bool)
	var teams []string
	for _, g := range s.Games {
		for _, t := range []string{g.HomeTeam, g.AwayTeam} {
			if t != "" && !seen[t] {
				seen[t] = true
				teams = append(teams, t)
			}
		}
	}
	sort.Strings(teams)
	return teams
}

const GameTypeRegular = "REG"

// Unit identifies an offensive or defensive position group
type Unit string

const (
	UnitQB Unit = "QB"
	UnitRB Unit = "RB"
	UnitWR Unit = "WR"
	UnitTE Unit = "TE"
	UnitOL Unit = "OL"

	UnitPassRush   Unit = "PassRush"
	UnitRunDefense Unit = "RunDefense"
	UnitCoverageDB Unit = "CoverageDB"
	UnitCoverageLB Unit = "CoverageLB"
	UnitDL         Unit = "DL"
)

// OffenseUnits and DefenseUnits fix the canonical unit order used everywhere
var (
	OffenseUnits = []Unit{UnitQB, UnitRB, UnitWR, UnitTE, UnitOL}
	DefenseUnits = []Unit{UnitPassRush, UnitRunDefense, UnitCoverageDB, UnitCoverageLB, UnitDL}
)

// Metric column names shared by the fetcher, uploads and analytics
const (
	MetricEPAPerPlay       = "epa_per_play"
	MetricSuccessRate      = "success_rate"
	MetricExplosiveRate    = "explosive_rate"
	MetricPassBlockWin     = "pass_block_win"
	MetricRunBlockWin      = "run_block_win"
	MetricEPAAllowed       = "epa_allowed"
	MetricSuccessAllowed   = "success_allowed"
	MetricExplosiveAllowed = "explosive_allowed"
	MetricPressureRate     = "pressure_rate"
	MetricRunStopWin       = "run_stop_win"
	MetricCoverageGrade    = "coverage_grade"
)

var (
	OffenseColumns = []string{MetricEPAPerPlay, MetricSuccessRate, MetricExplosiveRate, MetricPassBlockWin, MetricRunBlockWin}
	DefenseColumns = []string{MetricEPAAllowed, MetricSuccessAllowed, MetricExplosiveAllowed, MetricPressureRate, MetricRunStopWin, MetricCoverageGrade}
)

// UnitRow represents aggregated metrics for one (team, unit) pair
type UnitRow struct {
	Team   string                `json:"team"`
	Unit   Unit                  `json:"unit"`
	Values map[string]null.Float `json:"values"`
}

// Value returns the named cell, null when the row does not carry it
func (r *UnitRow) Value(metric string) null.Float {
	if r.Values == nil {
		return null.Float{}
	}
	return r.Values[metric]
}

// SetValue writes a cell, allocating the map on first use
func (r *UnitRow) SetValue(metric string, v null.Float) {
	if r.Values == nil {
		r.Values = make(map[string]null.Float)
	}
	r.Values[metric] = v
}

// MetricTable holds the offense and defense unit rows for one
// (season, through-week) window
type MetricTable struct {
	Season         int       `json:"season"`
	ThroughWeek    int       `json:"through_week"`
	Source         string    `json:"source"` // "nflverse" or "upload"
	FetchedAt      time.Time `json:"fetched_at"`
	OffenseColumns []string  `json:"offense_columns"`
	DefenseColumns []string  `json:"defense_columns"`
	Offense        []UnitRow `json:"offense"`
	Defense        []UnitRow `json:"defense"`
}

// OffenseRow finds the offense row for a (team, unit), nil when absent
func (t *MetricTable) OffenseRow(team string, unit Unit) *UnitRow {
	for i := range t.Offense {
		if t.Offense[i].Team == team && t.Offense[i].Unit == unit {
			return &t.Offense[i]
		}
	}
	return nil
}

// DefenseRow finds the defense row for a (team, unit), nil when absent
func (t *MetricTable) DefenseRow(team string, unit Unit) *UnitRow {
	for i := range t.Defense {
		if t.Defense[i].Team == team && t.Defense[i].Unit == unit {
			return &t.Defense[i]
		}
	}
	return nil
}

// Teams returns the distinct teams present on either side of the table
func (t *MetricTable) Teams() []string {
	seen := make(map[string]bool)
	var teams []string
	for _, rows := range [][]UnitRow{t.Offense, t.Defense} {
		for _, r := range rows {
			if r.Team != "" && !seen[r.Team] {
				seen[r.Team] = true
				teams = append(teams, r.Team)
			}
		}
	}
	sort.Strings(teams)
	return teams
}

// Clone deep-copies the table so enrichment overrides never mutate the
// fetched original
func (t *MetricTable) Clone() *MetricTable {
	cp := *t
	cp.OffenseColumns = append([]string(nil), t.OffenseColumns...)
	cp.DefenseColumns = append([]string(nil), t.DefenseColumns...)
	cp.Offense = cloneRows(t.Offense)
	cp.Defense = cloneRows(t.Defense)
	return &cp
}

func cloneRows(rows []UnitRow) []UnitRow {
	out := make([]UnitRow, len(rows))
	for i, r := range rows {
		out[i] = UnitRow{Team: r.Team, Unit: r.Unit, Values: make(map[string]null.Float, len(r.Values))}
		for k, v := range r.Values {
			out[i].Values[k] = v
		}
	}
	return out
}

// ProviderRow represents the metrics a provider resolved for one identifier
type ProviderRow struct {
	Identifier string                `json:"identifier"` // team abbreviation
	Week       int                   `json:"week"`
	Values     map[string]null.Float `json:"values"`
}

// ProviderTable is the normalized output of one adapter run. It is owned by
// that run: merged into the unified table and then discarded.
type ProviderTable struct {
	Source    string                 `json:"source"`
	Season    int                    `json:"season"`
	Week      int                    `json:"week"`
	Columns   []string               `json:"columns"`
	Rows      map[string]ProviderRow `json:"rows"`
	FetchedAt time.Time              `json:"fetched_at"`
}

// NewProviderTable builds an empty table tagged with its source
func NewProviderTable(source string, season, week int) *ProviderTable {
	return &ProviderTable{
		Source:    source,
		Season:    season,
		Week:      week,
		Rows:      make(map[string]ProviderRow),
		FetchedAt: time.Now().UTC(),
	}
}

// AddValue writes one metric cell for an identifier, tracking column order
func (p *ProviderTable) AddValue(identifier, metric string, v float64) {
	row, ok := p.Rows[identifier]
	if !ok {
		row = ProviderRow{Identifier: identifier, Week: p.Week, Values: make(map[string]null.Float)}
	}
	row.Values[metric] = null.FloatFrom(v)
	p.Rows[identifier] = row
	for _, c := range p.Columns {
		if c == metric {
			return
		}
	}
	p.Columns = append(p.Columns, metric)
}

// Value reads a cell, null when the identifier or metric is absent
func (p *ProviderTable) Value(identifier, metric string) null.Float {
	row, ok := p.Rows[identifier]
	if !ok {
		return null.Float{}
	}
	return row.Values[metric]
}

// Credentials carries the secret material an adapter needs
type Credentials struct {
	APIKey string `json:"-"`
}

// SkippedProvider records one adapter left out of a refresh and why
type SkippedProvider struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

// Window identifies the (season, through-week) scope of a fetch. It is
// passed explicitly wherever the pipeline needs it, never read from
// ambient state.
type Window struct {
	Season int `json:"season"`
	Week   int `json:"week"`
}

// Adapter is the fixed contract every provider implements: normalize the
// vendor response into a ProviderTable keyed by team abbreviation, silently
// omitting identifiers the vendor does not resolve.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, creds Credentials, window Window, identifiers []string) (*ProviderTable, error)
}

// CacheProvider interface for cache operations
type CacheProvider interface {
	SetSimple(key string, value interface{}, expiration time.Duration) error
	GetSimple(key string, dest interface{}) error
	Delete(key string) error
}

// UploadResult is the outcome of parsing one user-supplied metric file. The
// table inside it can stand in for the fetched unit metrics on a refresh.
type UploadResult struct {
	ID          string       `json:"id"`
	Filename    string       `json:"filename"`
	Format      string       `json:"format"` // "csv" or "parquet"
	Table       *MetricTable `json:"table"`
	RowCount    int          `json:"row_count"`
	ColumnCount int          `json:"column_count"`
	SkippedRows []int        `json:"skipped_rows,omitempty"` // 1-based data row numbers
	UploadedAt  time.Time    `json:"uploaded_at"`
}
