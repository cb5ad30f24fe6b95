package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"

	"github.com/twalsh/matchup-edge/internal/nfl"
)

func TestNormalizeColumn(t *testing.T) {
	valid := func(vs ...float64) []null.Float {
		out := make([]null.Float, len(vs))
		for i, v := range vs {
			out[i] = null.FloatFrom(v)
		}
		return out
	}

	t.Run("min max with nulls", func(t *testing.T) {
		in := []null.Float{null.FloatFrom(0.2), null.FloatFrom(0.4), {}, null.FloatFrom(0.6)}
		out := normalizeColumn(in, false)
		assert.InDelta(t, 0.0, out[0].Float64, 1e-9)
		assert.InDelta(t, 0.5, out[1].Float64, 1e-9)
		assert.False(t, out[2].Valid, "nulls stay null when the column has spread")
		assert.InDelta(t, 1.0, out[3].Float64, 1e-9)
	})

	t.Run("invert", func(t *testing.T) {
		out := normalizeColumn(valid(0.2, 0.4, 0.6), true)
		assert.InDelta(t, 1.0, out[0].Float64, 1e-9)
		assert.InDelta(t, 0.5, out[1].Float64, 1e-9)
		assert.InDelta(t, 0.0, out[2].Float64, 1e-9)
	})

	t.Run("single distinct value", func(t *testing.T) {
		in := []null.Float{null.FloatFrom(0.3), null.FloatFrom(0.3), {}}
		out := normalizeColumn(in, false)
		for i := range out {
			require.True(t, out[i].Valid)
			assert.InDelta(t, 0.5, out[i].Float64, 1e-9)
		}
	})

	t.Run("all null", func(t *testing.T) {
		out := normalizeColumn([]null.Float{{}, {}}, false)
		for i := range out {
			require.True(t, out[i].Valid)
			assert.InDelta(t, 0.5, out[i].Float64, 1e-9)
		}
	})
}

func unitRow(team string, unit nfl.Unit, cells map[string]float64) nfl.UnitRow {
	r := nfl.UnitRow{Team: team, Unit: unit}
	for m, v := range cells {
		r.SetValue(m, null.FloatFrom(v))
	}
	return r
}

func TestComputeUnitScores(t *testing.T) {
	table := &nfl.MetricTable{
		Season:         2024,
		ThroughWeek:    3,
		OffenseColumns: append([]string(nil), nfl.OffenseColumns...),
		DefenseColumns: append([]string(nil), nfl.DefenseColumns...),
		Offense: []nfl.UnitRow{
			unitRow("A", nfl.UnitQB, map[string]float64{nfl.MetricEPAPerPlay: 0.2, nfl.MetricSuccessRate: 0.5, nfl.MetricExplosiveRate: 0.10}),
			unitRow("B", nfl.UnitQB, map[string]float64{nfl.MetricEPAPerPlay: 0.0, nfl.MetricSuccessRate: 0.45, nfl.MetricExplosiveRate: 0.08}),
			unitRow("C", nfl.UnitQB, map[string]float64{nfl.MetricEPAPerPlay: -0.2, nfl.MetricSuccessRate: 0.40, nfl.MetricExplosiveRate: 0.06}),
			unitRow("A", nfl.UnitOL, map[string]float64{nfl.MetricPassBlockWin: 0.6, nfl.MetricRunBlockWin: 0.7}),
			unitRow("B", nfl.UnitOL, map[string]float64{nfl.MetricPassBlockWin: 0.5, nfl.MetricRunBlockWin: 0.6}),
		},
		Defense: []nfl.UnitRow{
			unitRow("A", nfl.UnitPassRush, map[string]float64{nfl.MetricPressureRate: 0.3}),
			unitRow("B", nfl.UnitPassRush, map[string]float64{nfl.MetricPressureRate: 0.2}),
			unitRow("A", nfl.UnitCoverageDB, map[string]float64{nfl.MetricEPAAllowed: -0.1, nfl.MetricSuccessAllowed: 0.4, nfl.MetricExplosiveAllowed: 0.05}),
			unitRow("B", nfl.UnitCoverageDB, map[string]float64{nfl.MetricEPAAllowed: 0.1, nfl.MetricSuccessAllowed: 0.5, nfl.MetricExplosiveAllowed: 0.10}),
			unitRow("A", nfl.UnitRunDefense, map[string]float64{nfl.MetricRunStopWin: 0.25}),
		},
	}

	scores := ComputeUnitScores(table)
	assert.Equal(t, 2024, scores.Season)
	assert.Equal(t, 3, scores.ThroughWeek)

	// QB scores: every column scales A=1, B=0.5, C=0
	assert.InDelta(t, 1.0, scores.OffenseScore("A", nfl.UnitQB).Float64, 1e-9)
	assert.InDelta(t, 0.5, scores.OffenseScore("B", nfl.UnitQB).Float64, 1e-9)
	assert.InDelta(t, 0.0, scores.OffenseScore("C", nfl.UnitQB).Float64, 1e-9)

	assert.InDelta(t, 1.0, scores.OffenseScore("A", nfl.UnitOL).Float64, 1e-9)
	assert.InDelta(t, 0.0, scores.OffenseScore("B", nfl.UnitOL).Float64, 1e-9)
	assert.False(t, scores.OffenseScore("C", nfl.UnitOL).Valid, "teams without a unit row score null")

	// higher pressure is better; no inversion
	assert.InDelta(t, 1.0, scores.DefenseScore("A", nfl.UnitPassRush).Float64, 1e-9)
	assert.InDelta(t, 0.0, scores.DefenseScore("B", nfl.UnitPassRush).Float64, 1e-9)

	// allowed metrics invert, the all-null coverage grade contributes 0.5
	assert.InDelta(t, 0.875, scores.DefenseScore("A", nfl.UnitCoverageDB).Float64, 1e-9)
	assert.InDelta(t, 0.125, scores.DefenseScore("B", nfl.UnitCoverageDB).Float64, 1e-9)

	// run_stop_win has a single distinct value across rows, so it flattens
	// to 0.5 and the other RunDefense inputs are null for A
	assert.InDelta(t, 0.5, scores.DefenseScore("A", nfl.UnitRunDefense).Float64, 1e-9)
}

func testScores() *nfl.UnitScores {
	return &nfl.UnitScores{
		Season:      2024,
		ThroughWeek: 3,
		Offense:     make(map[string]map[nfl.Unit]null.Float),
		Defense:     make(map[string]map[nfl.Unit]null.Float),
	}
}

func setOffense(s *nfl.UnitScores, team string, u nfl.Unit, v float64) {
	if s.Offense[team] == nil {
		s.Offense[team] = make(map[nfl.Unit]null.Float)
	}
	s.Offense[team][u] = null.FloatFrom(v)
}

func setDefense(s *nfl.UnitScores, team string, u nfl.Unit, v float64) {
	if s.Defense[team] == nil {
		s.Defense[team] = make(map[nfl.Unit]null.Float)
	}
	s.Defense[team][u] = null.FloatFrom(v)
}

func TestComputeBreakdown(t *testing.T) {
	scores := testScores()
	setOffense(scores, "KC", nfl.UnitQB, 0.9)
	setOffense(scores, "KC", nfl.UnitRB, 0.6)
	setOffense(scores, "KC", nfl.UnitWR, 0.8)
	setOffense(scores, "KC", nfl.UnitTE, 0.5)
	setOffense(scores, "KC", nfl.UnitOL, 0.7)
	setDefense(scores, "DEN", nfl.UnitPassRush, 0.4)
	setDefense(scores, "DEN", nfl.UnitRunDefense, 0.5)
	setDefense(scores, "DEN", nfl.UnitCoverageDB, 0.6)
	setDefense(scores, "DEN", nfl.UnitCoverageLB, 0.3)
	setDefense(scores, "DEN", nfl.UnitDL, 0.2)

	b := ComputeBreakdown("KC", "DEN", scores, nfl.DefaultEdgeParams())
	assert.Equal(t, "KC", b.Offense)
	assert.Equal(t, "DEN", b.Defense)
	require.Len(t, b.Edges, 5)

	edges := make(map[nfl.Unit]nfl.UnitEdge, len(b.Edges))
	for _, e := range b.Edges {
		edges[e.Unit] = e
	}

	assert.InDelta(t, 0.38, edges[nfl.UnitQB].Raw.Float64, 1e-9)   // 0.9 - 0.6*0.6 - 0.4*0.4
	assert.InDelta(t, 0.17, edges[nfl.UnitRB].Raw.Float64, 1e-9)   // 0.6 - 0.5*0.65 - 0.3*0.35
	assert.InDelta(t, 0.2, edges[nfl.UnitWR].Raw.Float64, 1e-9)    // 0.8 - 0.6
	assert.InDelta(t, 0.065, edges[nfl.UnitTE].Raw.Float64, 1e-9)  // 0.5 - 0.3*0.55 - 0.6*0.45
	assert.InDelta(t, 0.26, edges[nfl.UnitOL].Raw.Float64, 1e-9)   // 0.7 - 0.4*0.6 - 0.5*0.4

	assert.InDelta(t, 0.704, b.TrenchFactor, 1e-9) // 0.6 + 0.4*0.26

	// throw-dependent units scale by the trench factor, RB and OL stay raw
	assert.InDelta(t, 0.38*0.704, edges[nfl.UnitQB].Adjusted.Float64, 1e-9)
	assert.InDelta(t, 0.17, edges[nfl.UnitRB].Adjusted.Float64, 1e-9)
	assert.InDelta(t, 0.2*0.704, edges[nfl.UnitWR].Adjusted.Float64, 1e-9)
	assert.InDelta(t, 0.26, edges[nfl.UnitOL].Adjusted.Float64, 1e-9)

	wantTeam := (1.2*0.38*0.704 + 0.7*0.17 + 1.1*0.2*0.704 + 0.6*0.065*0.704 + 1.1*0.26) / (1.2 + 0.7 + 1.1 + 0.6 + 1.1)
	require.True(t, b.TeamEdge.Valid)
	assert.InDelta(t, wantTeam, b.TeamEdge.Float64, 1e-9)
}

func TestComputeBreakdownNullHandling(t *testing.T) {
	t.Run("missing defense contributes zero", func(t *testing.T) {
		scores := testScores()
		setOffense(scores, "KC", nfl.UnitQB, 0.9)

		b := ComputeBreakdown("KC", "DEN", scores, nfl.DefaultEdgeParams())
		edges := map[nfl.Unit]nfl.UnitEdge{}
		for _, e := range b.Edges {
			edges[e.Unit] = e
		}
		require.True(t, edges[nfl.UnitQB].Raw.Valid)
		assert.InDelta(t, 0.9, edges[nfl.UnitQB].Raw.Float64, 1e-9)
		assert.InDelta(t, 1.0, b.TrenchFactor, 1e-9, "a null trench edge leaves the factor neutral")
	})

	t.Run("wr needs both sides", func(t *testing.T) {
		scores := testScores()
		setOffense(scores, "KC", nfl.UnitWR, 0.8)

		b := ComputeBreakdown("KC", "DEN", scores, nfl.DefaultEdgeParams())
		for _, e := range b.Edges {
			if e.Unit == nfl.UnitWR {
				assert.False(t, e.Raw.Valid)
			}
		}
	})

	t.Run("all null offense scores null team edge", func(t *testing.T) {
		scores := testScores()
		b := ComputeBreakdown("KC", "DEN", scores, nfl.DefaultEdgeParams())
		assert.False(t, b.TeamEdge.Valid)
	})
}

func TestBuildBoard(t *testing.T) {
	schedule := &nfl.ScheduleTable{
		Season: 2024,
		Games: []nfl.Game{
			{Season: 2024, Week: 1, Gameday: "2024-09-05", HomeTeam: "KC", AwayTeam: "BAL", GameType: "REG"},
			{Season: 2024, Week: 1, Gameday: "2024-09-08", HomeTeam: "NYG", AwayTeam: "DAL", GameType: "REG"},
			{Season: 2024, Week: 1, Gameday: "2024-09-08", HomeTeam: "CHI", AwayTeam: "GB", GameType: "REG"},
			{Season: 2024, Week: 1, Gameday: "2024-09-08", HomeTeam: "SEA", AwayTeam: "SF", GameType: "REG"},
			{Season: 2024, Week: 1, Gameday: "2024-09-08", HomeTeam: "MIA", AwayTeam: "NE", GameType: "WC"},
			{Season: 2024, Week: 2, Gameday: "2024-09-15", HomeTeam: "KC", AwayTeam: "CIN", GameType: "REG"},
		},
	}

	scores := testScores()
	setOffense(scores, "KC", nfl.UnitQB, 1.0)
	setOffense(scores, "BAL", nfl.UnitQB, 0.0)
	setOffense(scores, "NYG", nfl.UnitQB, 0.2)
	setOffense(scores, "DAL", nfl.UnitQB, 0.9)
	setOffense(scores, "CHI", nfl.UnitQB, 0.5)
	setOffense(scores, "GB", nfl.UnitQB, 0.45)
	// SEA and SF have no scores at all

	board := BuildBoard(schedule, scores, 1, nfl.DefaultEdgeParams())
	assert.Equal(t, 2024, board.Season)
	assert.Equal(t, 1, board.Week)
	require.Len(t, board.Picks, 4, "only week-1 regular-season games appear")

	byHome := map[string]nfl.GamePick{}
	for _, p := range board.Picks {
		byHome[p.Game.HomeTeam] = p
	}

	kc := byHome["KC"]
	assert.Equal(t, "KC", kc.Pick)
	assert.Equal(t, "KC should win over BAL", kc.Verdict)
	assert.InDelta(t, 1.0, kc.NetEdge.Float64, 1e-9)

	nyg := byHome["NYG"]
	assert.Equal(t, "DAL", nyg.Pick)
	assert.Equal(t, "DAL should win over NYG", nyg.Verdict)
	assert.InDelta(t, -0.7, nyg.NetEdge.Float64, 1e-9)

	chi := byHome["CHI"]
	assert.Empty(t, chi.Pick)
	assert.Equal(t, nfl.VerdictTooClose, chi.Verdict)
	assert.InDelta(t, 0.05, chi.NetEdge.Float64, 1e-9)

	sea := byHome["SEA"]
	assert.Empty(t, sea.Pick)
	assert.Equal(t, nfl.VerdictInsufficientData, sea.Verdict)
	assert.False(t, sea.NetEdge.Valid)
}
