package nfl

import (
	"fmt"
	"time"

	"gopkg.in/guregu/null.v3"
)

// Weights sets each offensive unit's contribution to the team edge
type Weights struct {
	QB float64 `json:"qb"`
	RB float64 `json:"rb"`
	WR float64 `json:"wr"`
	TE float64 `json:"te"`
	OL float64 `json:"ol"`
}

// DefaultWeights are the dashboard defaults
func DefaultWeights() Weights {
	return Weights{QB: 1.2, RB: 0.7, WR: 1.1, TE: 0.6, OL: 1.1}
}

// ForUnit returns the weight for an offensive unit
func (w Weights) ForUnit(u Unit) float64 {
	switch u {
	case UnitQB:
		return w.QB
	case UnitRB:
		return w.RB
	case UnitWR:
		return w.WR
	case UnitTE:
		return w.TE
	case UnitOL:
		return w.OL
	}
	return 0
}

// EdgeShares splits each offensive unit's edge across the defensive units it
// faces; the remainder of each share goes to the paired unit
type EdgeShares struct {
	QBCoverage   float64 `json:"qb_coverage"`
	RBRunDefense float64 `json:"rb_run_defense"`
	TECoverageLB float64 `json:"te_coverage_lb"`
	OLPassPro    float64 `json:"ol_pass_pro"`
}

// DefaultShares are the dashboard defaults
func DefaultShares() EdgeShares {
	return EdgeShares{QBCoverage: 0.6, RBRunDefense: 0.65, TECoverageLB: 0.55, OLPassPro: 0.6}
}

// EdgeParams bundles every tuning knob for one board build
type EdgeParams struct {
	Weights           Weights    `json:"weights"`
	Shares            EdgeShares `json:"shares"`
	TrenchDepStrength float64    `json:"trench_dep_strength"`
	CloseMargin       float64    `json:"close_margin"`
}

// DefaultEdgeParams are the dashboard defaults
func DefaultEdgeParams() EdgeParams {
	return EdgeParams{
		Weights:           DefaultWeights(),
		Shares:            DefaultShares(),
		TrenchDepStrength: 1.0,
		CloseMargin:       0.15,
	}
}

// UnitScores holds the normalized [0,1] unit scores for every team in one
// (season, through-week) window
type UnitScores struct {
	Season      int                            `json:"season"`
	ThroughWeek int                            `json:"through_week"`
	Offense     map[string]map[Unit]null.Float `json:"offense"` // team -> unit -> score
	Defense     map[string]map[Unit]null.Float `json:"defense"`
}

// OffenseScore reads one offense unit score, null when absent
func (s *UnitScores) OffenseScore(team string, u Unit) null.Float {
	if m, ok := s.Offense[team]; ok {
		return m[u]
	}
	return null.Float{}
}

// DefenseScore reads one defense unit score, null when absent
func (s *UnitScores) DefenseScore(team string, u Unit) null.Float {
	if m, ok := s.Defense[team]; ok {
		return m[u]
	}
	return null.Float{}
}

// UnitEdge is one offensive unit's matchup edge, raw and trench-adjusted
type UnitEdge struct {
	Unit     Unit       `json:"unit"`
	Raw      null.Float `json:"raw"`
	Adjusted null.Float `json:"adjusted"`
}

// OffenseBreakdown scores one team's offense against the opposing defense
type OffenseBreakdown struct {
	Offense      string     `json:"offense"`
	Defense      string     `json:"defense"`
	Edges        []UnitEdge `json:"edges"`
	TrenchFactor float64    `json:"trench_factor"`
	TeamEdge     null.Float `json:"team_edge"`
}

// GamePick is one game with both breakdowns, the net edge and the verdict
type GamePick struct {
	Game    Game             `json:"game"`
	Home    OffenseBreakdown `json:"home"`
	Away    OffenseBreakdown `json:"away"`
	NetEdge null.Float       `json:"net_edge"`
	Pick    string           `json:"pick,omitempty"` // picked team, empty when no call
	Verdict string           `json:"verdict"`
}

// Board is the picks board for one (season, week)
type Board struct {
	Season      int        `json:"season"`
	Week        int        `json:"week"`
	CloseMargin float64    `json:"close_margin"`
	GeneratedAt time.Time  `json:"generated_at"`
	Picks       []GamePick `json:"picks"`
}

// Verdict strings shown on the board
const (
	VerdictTooClose         = "Too close to call"
	VerdictInsufficientData = "Insufficient data"
)

// WinVerdict renders the verdict line for a picked winner
func WinVerdict(winner, loser string) string {
	return fmt.Sprintf("%s should win over %s", winner, loser)
}
