package models

import "github.com/lib/pq"

// DefaultTeams is the league reference table. The teams endpoint falls back
// to it when no database is configured, and the seeder loads it when one is.
func DefaultTeams() []TeamInfo {
	return []TeamInfo{
		{Abbreviation: "ARI", FullName: "Arizona Cardinals", Conference: "NFC", Division: "West"},
		{Abbreviation: "ATL", FullName: "Atlanta Falcons", Conference: "NFC", Division: "South"},
		{Abbreviation: "BAL", FullName: "Baltimore Ravens", Conference: "AFC", Division: "North"},
		{Abbreviation: "BUF", FullName: "Buffalo Bills", Conference: "AFC", Division: "East"},
		{Abbreviation: "CAR", FullName: "Carolina Panthers", Conference: "NFC", Division: "South"},
		{Abbreviation: "CHI", FullName: "Chicago Bears", Conference: "NFC", Division: "North"},
		{Abbreviation: "CIN", FullName: "Cincinnati Bengals", Conference: "AFC", Division: "North"},
		{Abbreviation: "CLE", FullName: "Cleveland Browns", Conference: "AFC", Division: "North"},
		{Abbreviation: "DAL", FullName: "Dallas Cowboys", Conference: "NFC", Division: "East"},
		{Abbreviation: "DEN", FullName: "Denver Broncos", Conference: "AFC", Division: "West"},
		{Abbreviation: "DET", FullName: "Detroit Lions", Conference: "NFC", Division: "North"},
		{Abbreviation: "GB", FullName: "Green Bay Packers", Conference: "NFC", Division: "North"},
		{Abbreviation: "HOU", FullName: "Houston Texans", Conference: "AFC", Division: "South"},
		{Abbreviation: "IND", FullName: "Indianapolis Colts", Conference: "AFC", Division: "South"},
		{Abbreviation: "JAX", FullName: "Jacksonville Jaguars", Conference: "AFC", Division: "South"},
		{Abbreviation: "KC", FullName: "Kansas City Chiefs", Conference: "AFC", Division: "West"},
		{Abbreviation: "LA", FullName: "Los Angeles Rams", Conference: "NFC", Division: "West"},
		{Abbreviation: "LAC", FullName: "Los Angeles Chargers", Conference: "AFC", Division: "West"},
		{Abbreviation: "LV", FullName: "Las Vegas Raiders", Conference: "AFC", Division: "West"},
		{Abbreviation: "MIA", FullName: "Miami Dolphins", Conference: "AFC", Division: "East"},
		{Abbreviation: "MIN", FullName: "Minnesota Vikings", Conference: "NFC", Division: "North"},
		{Abbreviation: "NE", FullName: "New England Patriots", Conference: "AFC", Division: "East"},
		{Abbreviation: "NO", FullName: "New Orleans Saints", Conference: "NFC", Division: "South"},
		{Abbreviation: "NYG", FullName: "New York Giants", Conference: "NFC", Division: "East"},
		{Abbreviation: "NYJ", FullName: "New York Jets", Conference: "AFC", Division: "East"},
		{Abbreviation: "PHI", FullName: "Philadelphia Eagles", Conference: "NFC", Division: "East"},
		{Abbreviation: "PIT", FullName: "Pittsburgh Steelers", Conference: "AFC", Division: "North"},
		{Abbreviation: "SEA", FullName: "Seattle Seahawks", Conference: "NFC", Division: "West"},
		{Abbreviation: "SF", FullName: "San Francisco 49ers", Conference: "NFC", Division: "West"},
		{Abbreviation: "TB", FullName: "Tampa Bay Buccaneers", Conference: "NFC", Division: "South"},
		{Abbreviation: "TEN", FullName: "Tennessee Titans", Conference: "AFC", Division: "South"},
		{Abbreviation: "WAS", FullName: "Washington Commanders", Conference: "NFC", Division: "East"},
	}
}

// DefaultMetricDefinitions seeds the glossary surfaced next to the board.
func DefaultMetricDefinitions() []MetricDefinition {
	return []MetricDefinition{
		{
			Name:       "epa_per_play",
			Category:   "offense",
			Definition: "Mean expected points added per qualifying play (passes and runs with a known EPA).",
			Aliases:    pq.StringArray{"epa", "expected_points_added"},
		},
		{
			Name:       "success_rate",
			Category:   "offense",
			Definition: "Share of qualifying plays with positive EPA.",
		},
		{
			Name:       "explosive_rate",
			Category:   "offense",
			Definition: "Share of explosive plays: passes thrown 20+ air yards or runs gaining 12+ yards.",
		},
		{
			Name:       "pass_block_win",
			Category:   "offense",
			Definition: "Dropbacks kept clean: one minus sacks per dropback. Provider win rates override the play-by-play estimate when available.",
			Aliases:    pq.StringArray{"pass_block_win_rate", "pbwr"},
		},
		{
			Name:       "run_block_win",
			Category:   "offense",
			Definition: "Runs not stuffed at or behind the line: one minus stuffs per rush.",
			Aliases:    pq.StringArray{"run_block_win_rate", "rbwr"},
		},
		{
			Name:       "epa_allowed",
			Category:   "defense",
			Definition: "Mean EPA allowed per qualifying opposing play. Lower is better; normalization inverts it.",
		},
		{
			Name:       "success_allowed",
			Category:   "defense",
			Definition: "Share of opposing plays allowed to succeed. Lower is better.",
		},
		{
			Name:       "explosive_allowed",
			Category:   "defense",
			Definition: "Share of opposing plays that went explosive. Lower is better.",
		},
		{
			Name:       "pressure_rate",
			Category:   "defense",
			Definition: "Sacks per opposing dropback. Provider pass rush win rates override it when available.",
			Aliases:    pq.StringArray{"pass_rush_win_rate", "prwr"},
		},
		{
			Name:       "run_stop_win",
			Category:   "defense",
			Definition: "Opposing runs stuffed at or behind the line, per rush.",
			Aliases:    pq.StringArray{"run_stop_win_rate"},
		},
		{
			Name:       "coverage_grade",
			Category:   "provider",
			Definition: "Third-party coverage grade normalized to 0-1. Null until a provider supplies it.",
		},
		{
			Name:       "team_edge",
			Category:   "derived",
			Definition: "Weighted mean of a team's adjusted unit edges against the opposing defense.",
		},
		{
			Name:       "net_edge",
			Category:   "derived",
			Definition: "Home team edge minus away team edge. Inside the close margin the game is too close to call.",
		},
		{
			Name:       "trench_factor",
			Category:   "derived",
			Definition: "Scaling applied to QB, WR and TE edges based on the offensive line edge, clamped to 0.2-1.0.",
		},
	}
}
