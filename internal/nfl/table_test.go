package nfl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/guregu/null.v3"
)

func testSchedule() *ScheduleTable {
	return &ScheduleTable{
		Season: 2024,
		Games: []Game{
			{Season: 2024, Week: 3, Gameday: "2024-09-22", AwayTeam: "BUF", HomeTeam: "KC", GameType: GameTypeRegular},
			{Season: 2024, Week: 3, Gameday: "2024-09-22", AwayTeam: "DAL", HomeTeam: "PHI", GameType: GameTypeRegular},
			{Season: 2024, Week: 3, Gameday: "2024-09-23", AwayTeam: "SF", HomeTeam: "SEA", GameType: GameTypeRegular},
		},
	}
}

func testMetrics() *MetricTable {
	t := &MetricTable{
		Season:         2024,
		ThroughWeek:    3,
		Source:         "nflverse",
		OffenseColumns: OffenseColumns,
		DefenseColumns: DefenseColumns,
	}
	for _, team := range []string{"KC", "BUF", "PHI", "DAL"} {
		for _, u := range []Unit{UnitQB, UnitRB, UnitWR, UnitTE} {
			t.Offense = append(t.Offense, UnitRow{Team: team, Unit: u, Values: map[string]null.Float{
				MetricEPAPerPlay:    null.FloatFrom(0.1),
				MetricSuccessRate:   null.FloatFrom(0.45),
				MetricExplosiveRate: null.FloatFrom(0.08),
			}})
		}
		t.Offense = append(t.Offense, UnitRow{Team: team, Unit: UnitOL, Values: map[string]null.Float{
			MetricPassBlockWin: null.FloatFrom(0.93),
			MetricRunBlockWin:  null.FloatFrom(0.82),
		}})
		t.Defense = append(t.Defense, UnitRow{Team: team, Unit: UnitPassRush, Values: map[string]null.Float{
			MetricPressureRate: null.FloatFrom(0.07),
		}})
	}
	return t
}

// TestBuildUnifiedTableRowCount verifies enrichment never adds or drops
// matchup rows, whatever the provider mix looks like
func TestBuildUnifiedTableRowCount(t *testing.T) {
	base := testSchedule()
	metrics := testMetrics()

	alpha := NewProviderTable("alpha", 2024, 3)
	alpha.AddValue("KC", "win_rate", 0.60)

	tests := []struct {
		name      string
		providers []*ProviderTable
	}{
		{name: "no providers", providers: nil},
		{name: "one provider", providers: []*ProviderTable{alpha}},
		{name: "empty provider table", providers: []*ProviderTable{NewProviderTable("beta", 2024, 3)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unified := BuildUnifiedTable(base, metrics, tt.providers)
			assert.Len(t, unified.Rows, len(base.Games))
		})
	}
}

// TestBuildUnifiedTableTieBreak verifies last-write-wins for colliding metric
// names while both source-prefixed cells stay readable
func TestBuildUnifiedTableTieBreak(t *testing.T) {
	base := testSchedule()
	metrics := testMetrics()

	alpha := NewProviderTable("alpha", 2024, 3)
	alpha.AddValue("KC", "win_rate", 0.60)
	beta := NewProviderTable("beta", 2024, 3)
	beta.AddValue("KC", "win_rate", 0.55)

	unified := BuildUnifiedTable(base, metrics, []*ProviderTable{alpha, beta})

	home := unified.Rows[0].Home
	assert.Equal(t, "KC", home.Team)
	assert.Equal(t, 0.55, home.Provider["win_rate"].Float64, "later-listed provider wins the active cell")
	assert.Equal(t, 0.60, home.Provider["alpha_win_rate"].Float64)
	assert.Equal(t, 0.55, home.Provider["beta_win_rate"].Float64)
}

// TestBuildUnifiedTableTieBreakSkipsNulls verifies that a later provider
// that did not resolve the identifier does not clobber an earlier value
func TestBuildUnifiedTableTieBreakSkipsNulls(t *testing.T) {
	base := testSchedule()

	alpha := NewProviderTable("alpha", 2024, 3)
	alpha.AddValue("KC", "win_rate", 0.60)
	beta := NewProviderTable("beta", 2024, 3)
	beta.AddValue("PHI", "win_rate", 0.51)

	unified := BuildUnifiedTable(base, testMetrics(), []*ProviderTable{alpha, beta})

	home := unified.Rows[0].Home
	assert.Equal(t, 0.60, home.Provider["win_rate"].Float64)
	assert.False(t, home.Provider["beta_win_rate"].Valid)
}

// TestBuildUnifiedTableMissingProviderData verifies the failure-degradation
// property: base columns intact, provider cells null, no dropped rows
func TestBuildUnifiedTableMissingProviderData(t *testing.T) {
	base := testSchedule()
	metrics := testMetrics()

	// SEA/SF have no metric rows and no provider rows at all
	alpha := NewProviderTable("alpha", 2024, 3)
	alpha.AddValue("KC", "pass_rush_win_rate", 0.42)

	unified := BuildUnifiedTable(base, metrics, []*ProviderTable{alpha})

	assert.Len(t, unified.Rows, 3)
	seattle := unified.Rows[2].Home
	assert.Equal(t, "SEA", seattle.Team)
	assert.False(t, seattle.Offense[MetricEPAPerPlay].Valid)
	assert.False(t, seattle.Provider["pass_rush_win_rate"].Valid)
	assert.False(t, seattle.Provider["alpha_pass_rush_win_rate"].Valid)

	kc := unified.Rows[0].Home
	assert.True(t, kc.Offense[MetricEPAPerPlay].Valid, "base metric cells survive enrichment")
	assert.Equal(t, 0.42, kc.Provider["pass_rush_win_rate"].Float64)
}

// TestBuildUnifiedTableColumns verifies the flattened column list carries
// schedule fields, side-prefixed metric cells and provider cells in order
func TestBuildUnifiedTableColumns(t *testing.T) {
	base := testSchedule()
	metrics := testMetrics()

	alpha := NewProviderTable("alpha", 2024, 3)
	alpha.AddValue("KC", "win_rate", 0.6)

	unified := BuildUnifiedTable(base, metrics, []*ProviderTable{alpha})

	assert.Equal(t, []string{"alpha"}, unified.Providers)
	assert.Contains(t, unified.Columns, "season")
	assert.Contains(t, unified.Columns, "home_epa_per_play")
	assert.Contains(t, unified.Columns, "away_epa_allowed")
	assert.Contains(t, unified.Columns, "home_alpha_win_rate")
	assert.Contains(t, unified.Columns, "home_win_rate")
	assert.Equal(t, len(unified.Columns), len(unified.RowStrings(unified.Rows[0])))
}

// TestRowStrings verifies CSV cell rendering including null cells
func TestRowStrings(t *testing.T) {
	base := testSchedule()
	unified := BuildUnifiedTable(base, testMetrics(), nil)

	row := unified.RowStrings(unified.Rows[0])
	assert.Equal(t, "2024", row[0])
	assert.Equal(t, "3", row[1])
	assert.Equal(t, "2024-09-22", row[2])
	assert.Equal(t, "BUF", row[3])
	assert.Equal(t, "KC", row[4])

	// SEA has no metrics, so its cells render empty
	last := unified.RowStrings(unified.Rows[2])
	for i, col := range unified.Columns {
		if col == "home_epa_per_play" {
			assert.Equal(t, "", last[i])
		}
	}
}

// TestScheduleTableWeekGames verifies the REG filter and gameday ordering
func TestScheduleTableWeekGames(t *testing.T) {
	s := &ScheduleTable{
		Season: 2024,
		Games: []Game{
			{Season: 2024, Week: 1, Gameday: "2024-09-08", AwayTeam: "NYJ", HomeTeam: "NE", GameType: GameTypeRegular},
			{Season: 2024, Week: 1, Gameday: "2024-09-05", AwayTeam: "BAL", HomeTeam: "KC", GameType: GameTypeRegular},
			{Season: 2024, Week: 1, Gameday: "2024-09-07", AwayTeam: "GB", HomeTeam: "PHI", GameType: "PRE"},
		},
	}

	games := s.WeekGames(1)
	assert.Len(t, games, 2)
	assert.Equal(t, "KC", games[0].HomeTeam, "earlier gameday first")
	assert.Equal(t, "NE", games[1].HomeTeam)
}

// TestMetricTableClone verifies override application cannot mutate the
// fetched original through a clone
func TestMetricTableClone(t *testing.T) {
	orig := testMetrics()
	cp := orig.Clone()

	cp.OffenseRow("KC", UnitOL).SetValue(MetricPassBlockWin, null.FloatFrom(0.99))

	assert.Equal(t, 0.99, cp.OffenseRow("KC", UnitOL).Value(MetricPassBlockWin).Float64)
	assert.Equal(t, 0.93, orig.OffenseRow("KC", UnitOL).Value(MetricPassBlockWin).Float64)
}
