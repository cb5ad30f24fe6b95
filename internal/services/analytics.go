package services

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
	"gopkg.in/guregu/null.v3"

	"github.com/twalsh/matchup-edge/internal/nfl"
)

// Analytics is a pure layer: MetricTable in, UnitScores and Board out. The
// refresher shell owns all I/O around it.

// defenseInverted marks the columns where a lower raw value is the better
// defensive showing
var defenseInverted = map[string]bool{
	nfl.MetricEPAAllowed:       true,
	nfl.MetricSuccessAllowed:   true,
	nfl.MetricExplosiveAllowed: true,
}

// normalizeColumn min-max scales one column to [0,1]. With at most one
// distinct non-null value there is no spread to scale, so every row (nulls
// included) gets the neutral 0.5. Otherwise nulls stay null. invert flips the
// scaled value to 1-x.
func normalizeColumn(values []null.Float, invert bool) []null.Float {
	distinct := make(map[float64]bool)
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if !v.Valid {
			continue
		}
		distinct[v.Float64] = true
		lo = math.Min(lo, v.Float64)
		hi = math.Max(hi, v.Float64)
	}

	out := make([]null.Float, len(values))
	if len(distinct) <= 1 {
		for i := range out {
			out[i] = null.FloatFrom(0.5)
		}
		return out
	}

	span := hi - lo
	for i, v := range values {
		if !v.Valid {
			continue
		}
		scaled := (v.Float64 - lo) / span
		if invert {
			scaled = 1 - scaled
		}
		out[i] = null.FloatFrom(scaled)
	}
	return out
}

// normalizeSide normalizes every column of one table side, keeping the
// results aligned with the row slice
func normalizeSide(rows []nfl.UnitRow, cols []string, inverted map[string]bool) map[string][]null.Float {
	out := make(map[string][]null.Float, len(cols))
	for _, m := range cols {
		vals := make([]null.Float, len(rows))
		for i := range rows {
			vals[i] = rows[i].Value(m)
		}
		out[m] = normalizeColumn(vals, inverted[m])
	}
	return out
}

// nullMean averages the non-null inputs; all-null scores null
func nullMean(values ...null.Float) null.Float {
	var xs []float64
	for _, v := range values {
		if v.Valid {
			xs = append(xs, v.Float64)
		}
	}
	if len(xs) == 0 {
		return null.Float{}
	}
	return null.FloatFrom(stat.Mean(xs, nil))
}

// ComputeUnitScores normalizes the table's columns and collapses each row
// into one [0,1] unit score.
func ComputeUnitScores(table *nfl.MetricTable) *nfl.UnitScores {
	scores := &nfl.UnitScores{
		Season:      table.Season,
		ThroughWeek: table.ThroughWeek,
		Offense:     make(map[string]map[nfl.Unit]null.Float),
		Defense:     make(map[string]map[nfl.Unit]null.Float),
	}

	offNorm := normalizeSide(table.Offense, table.OffenseColumns, nil)
	defNorm := normalizeSide(table.Defense, table.DefenseColumns, defenseInverted)

	norm := func(m map[string][]null.Float, metric string, i int) null.Float {
		col, ok := m[metric]
		if !ok {
			return null.Float{}
		}
		return col[i]
	}

	for i := range table.Offense {
		row := &table.Offense[i]
		var score null.Float
		switch row.Unit {
		case nfl.UnitOL:
			score = nullMean(
				norm(offNorm, nfl.MetricPassBlockWin, i),
				norm(offNorm, nfl.MetricRunBlockWin, i),
			)
		default:
			score = nullMean(
				norm(offNorm, nfl.MetricEPAPerPlay, i),
				norm(offNorm, nfl.MetricSuccessRate, i),
				norm(offNorm, nfl.MetricExplosiveRate, i),
			)
		}
		if scores.Offense[row.Team] == nil {
			scores.Offense[row.Team] = make(map[nfl.Unit]null.Float)
		}
		scores.Offense[row.Team][row.Unit] = score
	}

	for i := range table.Defense {
		row := &table.Defense[i]
		var score null.Float
		switch row.Unit {
		case nfl.UnitPassRush:
			score = norm(defNorm, nfl.MetricPressureRate, i)
		case nfl.UnitRunDefense:
			score = nullMean(
				norm(defNorm, nfl.MetricRunStopWin, i),
				norm(defNorm, nfl.MetricExplosiveAllowed, i),
				norm(defNorm, nfl.MetricSuccessAllowed, i),
			)
		case nfl.UnitCoverageDB, nfl.UnitCoverageLB:
			score = nullMean(
				norm(defNorm, nfl.MetricCoverageGrade, i),
				norm(defNorm, nfl.MetricEPAAllowed, i),
				norm(defNorm, nfl.MetricSuccessAllowed, i),
				norm(defNorm, nfl.MetricExplosiveAllowed, i),
			)
		case nfl.UnitDL:
			score = norm(defNorm, nfl.MetricRunStopWin, i)
		}
		if scores.Defense[row.Team] == nil {
			scores.Defense[row.Team] = make(map[nfl.Unit]null.Float)
		}
		scores.Defense[row.Team][row.Unit] = score
	}

	return scores
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// ComputeBreakdown scores one team's offense against the opposing defense:
// per-unit raw edges, the trench factor scaling the throw-dependent units,
// and the weighted team edge.
func ComputeBreakdown(offTeam, defTeam string, scores *nfl.UnitScores, params nfl.EdgeParams) nfl.OffenseBreakdown {
	off := func(u nfl.Unit) null.Float { return scores.OffenseScore(offTeam, u) }
	def := func(u nfl.Unit) null.Float { return scores.DefenseScore(defTeam, u) }

	// a null defense term contributes nothing rather than nulling the edge
	defTerm := func(v null.Float, w float64) float64 {
		if !v.Valid {
			return 0
		}
		return v.Float64 * w
	}
	edge := func(o null.Float, terms ...float64) null.Float {
		if !o.Valid {
			return null.Float{}
		}
		e := o.Float64
		for _, t := range terms {
			e -= t
		}
		return null.FloatFrom(e)
	}

	shares := params.Shares
	raw := map[nfl.Unit]null.Float{
		nfl.UnitQB: edge(off(nfl.UnitQB),
			defTerm(def(nfl.UnitCoverageDB), shares.QBCoverage),
			defTerm(def(nfl.UnitPassRush), 1-shares.QBCoverage)),
		nfl.UnitRB: edge(off(nfl.UnitRB),
			defTerm(def(nfl.UnitRunDefense), shares.RBRunDefense),
			defTerm(def(nfl.UnitCoverageLB), 1-shares.RBRunDefense)),
		nfl.UnitTE: edge(off(nfl.UnitTE),
			defTerm(def(nfl.UnitCoverageLB), shares.TECoverageLB),
			defTerm(def(nfl.UnitCoverageDB), 1-shares.TECoverageLB)),
		nfl.UnitOL: edge(off(nfl.UnitOL),
			defTerm(def(nfl.UnitPassRush), shares.OLPassPro),
			defTerm(def(nfl.UnitRunDefense), 1-shares.OLPassPro)),
	}

	// WR is a straight coverage matchup and needs both sides present
	if off(nfl.UnitWR).Valid && def(nfl.UnitCoverageDB).Valid {
		raw[nfl.UnitWR] = null.FloatFrom(off(nfl.UnitWR).Float64 - def(nfl.UnitCoverageDB).Float64)
	} else {
		raw[nfl.UnitWR] = null.Float{}
	}

	trench := 1.0
	if olEdge := raw[nfl.UnitOL]; olEdge.Valid {
		trench = clamp(0.6+0.4*olEdge.Float64*params.TrenchDepStrength, 0.2, 1.0)
	}

	breakdown := nfl.OffenseBreakdown{
		Offense:      offTeam,
		Defense:      defTeam,
		TrenchFactor: trench,
	}

	var xs, ws []float64
	for _, u := range nfl.OffenseUnits {
		adjusted := raw[u]
		if adjusted.Valid {
			switch u {
			case nfl.UnitQB, nfl.UnitWR, nfl.UnitTE:
				adjusted = null.FloatFrom(adjusted.Float64 * trench)
			}
		}
		breakdown.Edges = append(breakdown.Edges, nfl.UnitEdge{Unit: u, Raw: raw[u], Adjusted: adjusted})

		w := params.Weights.ForUnit(u)
		if adjusted.Valid && w > 0 {
			xs = append(xs, adjusted.Float64)
			ws = append(ws, w)
		}
	}
	if len(xs) > 0 {
		breakdown.TeamEdge = null.FloatFrom(stat.Mean(xs, ws))
	}

	return breakdown
}

// BuildBoard renders the picks board for one week of the schedule
func BuildBoard(schedule *nfl.ScheduleTable, scores *nfl.UnitScores, week int, params nfl.EdgeParams) *nfl.Board {
	board := &nfl.Board{
		Season:      schedule.Season,
		Week:        week,
		CloseMargin: params.CloseMargin,
		GeneratedAt: time.Now().UTC(),
	}

	for _, g := range schedule.WeekGames(week) {
		home := ComputeBreakdown(g.HomeTeam, g.AwayTeam, scores, params)
		away := ComputeBreakdown(g.AwayTeam, g.HomeTeam, scores, params)

		pick := nfl.GamePick{Game: g, Home: home, Away: away}
		if home.TeamEdge.Valid && away.TeamEdge.Valid {
			net := home.TeamEdge.Float64 - away.TeamEdge.Float64
			pick.NetEdge = null.FloatFrom(net)
			switch {
			case net > params.CloseMargin:
				pick.Pick = g.HomeTeam
				pick.Verdict = nfl.WinVerdict(g.HomeTeam, g.AwayTeam)
			case net < -params.CloseMargin:
				pick.Pick = g.AwayTeam
				pick.Verdict = nfl.WinVerdict(g.AwayTeam, g.HomeTeam)
			default:
				pick.Verdict = nfl.VerdictTooClose
			}
		} else {
			pick.Verdict = nfl.VerdictInsufficientData
		}

		board.Picks = append(board.Picks, pick)
	}

	return board
}
