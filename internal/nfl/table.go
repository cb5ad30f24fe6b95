package nfl

import (
	"strconv"
	"time"

	"github.com/samber/lo"
	"gopkg.in/guregu/null.v3"
)

// TeamCells groups the cells describing one side of a matchup row
type TeamCells struct {
	Team     string                `json:"team"`
	Offense  map[string]null.Float `json:"offense"`
	Defense  map[string]null.Float `json:"defense"`
	Provider map[string]null.Float `json:"provider"`
}

// UnifiedRow is one matchup row: the schedule fields plus per-side cells
type UnifiedRow struct {
	Game Game      `json:"game"`
	Home TeamCells `json:"home"`
	Away TeamCells `json:"away"`
}

// UnifiedTable is the joined table the presentation layer consumes. One row
// per base schedule game, always: enrichment never adds or drops rows.
type UnifiedTable struct {
	Season      int          `json:"season"`
	Week        int          `json:"week"`
	Columns     []string     `json:"columns"`
	Providers   []string     `json:"providers"`
	GeneratedAt time.Time    `json:"generated_at"`
	Rows        []UnifiedRow `json:"rows"`

	refs []columnRef
}

type columnRef struct {
	name   string
	side   string // "home" or "away"; empty for schedule columns
	group  string // "game", "offense", "defense" or "provider"
	metric string
}

var scheduleColumns = []string{"season", "week", "gameday", "away_team", "home_team", "game_type"}

// BuildUnifiedTable left-joins team metrics and provider tables onto the
// base schedule. Provider cells are kept source-prefixed, and the active
// unprefixed cell takes the last non-null value in provider list order.
// Missing data yields null cells, never dropped rows. No retries here:
// retry policy belongs to the adapters.
func BuildUnifiedTable(base *ScheduleTable, metrics *MetricTable, providers []*ProviderTable) *UnifiedTable {
	t := &UnifiedTable{
		Season:      base.Season,
		GeneratedAt: time.Now().UTC(),
	}
	if len(base.Games) > 0 {
		t.Week = base.Games[0].Week
	}

	var offCols, defCols []string
	if metrics != nil {
		offCols = metrics.OffenseColumns
		defCols = metrics.DefenseColumns
	}
	t.Providers = lo.Map(providers, func(p *ProviderTable, _ int) string { return p.Source })
	t.refs = buildColumnRefs(offCols, defCols, providers)
	t.Columns = lo.Map(t.refs, func(r columnRef, _ int) string { return r.name })

	offSummary := summarizeSide(metrics, true)
	defSummary := summarizeSide(metrics, false)

	t.Rows = make([]UnifiedRow, 0, len(base.Games))
	for _, g := range base.Games {
		t.Rows = append(t.Rows, UnifiedRow{
			Game: g,
			Home: buildTeamCells(g.HomeTeam, offCols, defCols, offSummary, defSummary, providers),
			Away: buildTeamCells(g.AwayTeam, offCols, defCols, offSummary, defSummary, providers),
		})
	}
	return t
}

func buildColumnRefs(offCols, defCols []string, providers []*ProviderTable) []columnRef {
	refs := make([]columnRef, 0, len(scheduleColumns))
	for _, c := range scheduleColumns {
		refs = append(refs, columnRef{name: c, group: "game"})
	}
	for _, side := range []string{"home", "away"} {
		for _, m := range offCols {
			refs = append(refs, columnRef{name: side + "_" + m, side: side, group: "offense", metric: m})
		}
		for _, m := range defCols {
			refs = append(refs, columnRef{name: side + "_" + m, side: side, group: "defense", metric: m})
		}
	}
	for _, p := range providers {
		for _, m := range p.Columns {
			for _, side := range []string{"home", "away"} {
				refs = append(refs, columnRef{name: side + "_" + p.Source + "_" + m, side: side, group: "provider", metric: p.Source + "_" + m})
			}
		}
	}
	for _, m := range activeColumns(providers) {
		for _, side := range []string{"home", "away"} {
			refs = append(refs, columnRef{name: side + "_" + m, side: side, group: "provider", metric: m})
		}
	}
	return refs
}

// activeColumns is the union of provider metric names in first-seen order
func activeColumns(providers []*ProviderTable) []string {
	var cols []string
	for _, p := range providers {
		cols = append(cols, p.Columns...)
	}
	return lo.Uniq(cols)
}

// summarizeSide flattens a team's unit rows into one cell map per team:
// for each column, the first non-null value across units in canonical order
func summarizeSide(metrics *MetricTable, offense bool) map[string]map[string]null.Float {
	out := make(map[string]map[string]null.Float)
	if metrics == nil {
		return out
	}
	rows, units, cols := metrics.Defense, DefenseUnits, metrics.DefenseColumns
	if offense {
		rows, units, cols = metrics.Offense, OffenseUnits, metrics.OffenseColumns
	}
	byTeam := make(map[string]map[Unit]*UnitRow)
	for i := range rows {
		r := &rows[i]
		if byTeam[r.Team] == nil {
			byTeam[r.Team] = make(map[Unit]*UnitRow)
		}
		byTeam[r.Team][r.Unit] = r
	}
	for team, unitRows := range byTeam {
		cells := make(map[string]null.Float, len(cols))
		for _, m := range cols {
			cells[m] = null.Float{}
			for _, u := range units {
				if row, ok := unitRows[u]; ok {
					if v := row.Value(m); v.Valid {
						cells[m] = v
						break
					}
				}
			}
		}
		out[team] = cells
	}
	return out
}

func buildTeamCells(team string, offCols, defCols []string, offSummary, defSummary map[string]map[string]null.Float, providers []*ProviderTable) TeamCells {
	cells := TeamCells{
		Team:     team,
		Offense:  offSummary[team],
		Defense:  defSummary[team],
		Provider: resolveProviderCells(providers, team),
	}
	if cells.Offense == nil {
		cells.Offense = nullCells(offCols)
	}
	if cells.Defense == nil {
		cells.Defense = nullCells(defCols)
	}
	return cells
}

func nullCells(cols []string) map[string]null.Float {
	cells := make(map[string]null.Float, len(cols))
	for _, m := range cols {
		cells[m] = null.Float{}
	}
	return cells
}

// resolveProviderCells merges provider rows for one identifier. Every value
// is retained under its source-prefixed name; the active unprefixed cell is
// the last non-null write in provider list order.
func resolveProviderCells(providers []*ProviderTable, identifier string) map[string]null.Float {
	cells := make(map[string]null.Float)
	for _, p := range providers {
		for _, m := range p.Columns {
			v := p.Value(identifier, m)
			cells[p.Source+"_"+m] = v
			if v.Valid {
				cells[m] = v
			} else if _, ok := cells[m]; !ok {
				cells[m] = null.Float{}
			}
		}
	}
	return cells
}

// Header returns the flattened column names, for CSV export
func (t *UnifiedTable) Header() []string {
	return t.Columns
}

// RowStrings renders one row in Header order, empty string for null cells
func (t *UnifiedTable) RowStrings(r UnifiedRow) []string {
	out := make([]string, 0, len(t.refs))
	for _, ref := range t.refs {
		out = append(out, cellString(r, ref))
	}
	return out
}

func cellString(r UnifiedRow, ref columnRef) string {
	if ref.group == "game" {
		switch ref.name {
		case "season":
			return strconv.Itoa(r.Game.Season)
		case "week":
			return strconv.Itoa(r.Game.Week)
		case "gameday":
			return r.Game.Gameday
		case "away_team":
			return r.Game.AwayTeam
		case "home_team":
			return r.Game.HomeTeam
		case "game_type":
			return r.Game.GameType
		}
		return ""
	}
	side := r.Home
	if ref.side == "away" {
		side = r.Away
	}
	var v null.Float
	switch ref.group {
	case "offense":
		v = side.Offense[ref.metric]
	case "defense":
		v = side.Defense[ref.metric]
	case "provider":
		v = side.Provider[ref.metric]
	}
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', -1, 64)
}
