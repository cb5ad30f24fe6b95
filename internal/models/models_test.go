package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/twalsh/matchup-edge/pkg/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewConnection(":memory:", false)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&TeamInfo{}, &MetricDefinition{}, &UploadRecord{}, &PickSheet{}))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTeamInfo(t *testing.T) {
	db := newTestDB(t)

	teams := []TeamInfo{
		{Abbreviation: "KC", FullName: "Kansas City Chiefs", Conference: "AFC", Division: "West"},
		{Abbreviation: "BAL", FullName: "Baltimore Ravens", Conference: "AFC", Division: "North"},
		{Abbreviation: "PHI", FullName: "Philadelphia Eagles", Conference: "NFC", Division: "East"},
	}
	require.NoError(t, db.Create(&teams).Error)

	team, err := GetTeamByAbbreviation(db, "KC")
	require.NoError(t, err)
	assert.Equal(t, "Kansas City Chiefs", team.FullName)
	assert.Equal(t, "AFC", team.Conference)

	_, err = GetTeamByAbbreviation(db, "XX")
	require.Error(t, err)

	listed, err := ListTeams(db)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "BAL", listed[0].Abbreviation)
	assert.Equal(t, "KC", listed[1].Abbreviation)
	assert.Equal(t, "PHI", listed[2].Abbreviation)
}

func TestMetricDefinitions(t *testing.T) {
	db := newTestDB(t)

	defs := []MetricDefinition{
		{
			Name:       "epa_per_play",
			Category:   "offense",
			Definition: "Mean expected points added per qualifying play.",
			Aliases:    pq.StringArray{"epa", "expected_points_added"},
			Examples:   datatypes.JSON([]byte(`{"good": 0.15, "bad": -0.1}`)),
		},
		{
			Name:       "pressure_rate",
			Category:   "defense",
			Definition: "Sacks per opposing dropback.",
		},
		{
			Name:       "coverage_grade",
			Category:   "provider",
			Definition: "Third-party coverage grade, normalized to 0-1.",
		},
	}
	require.NoError(t, db.Create(&defs).Error)

	all, err := GetMetricDefinitions(db, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "coverage_grade", all[0].Name, "glossary is name-sorted")

	defense, err := GetMetricDefinitions(db, "defense")
	require.NoError(t, err)
	require.Len(t, defense, 1)
	assert.Equal(t, "pressure_rate", defense[0].Name)

	stored := all[1]
	assert.Equal(t, "epa_per_play", stored.Name)
	assert.Equal(t, pq.StringArray{"epa", "expected_points_added"}, stored.Aliases)
	assert.JSONEq(t, `{"good": 0.15, "bad": -0.1}`, string(stored.Examples))
}

func TestSearchMetricDefinitions(t *testing.T) {
	db := newTestDB(t)

	defs := []MetricDefinition{
		{Name: "epa_per_play", Category: "offense", Definition: "Mean expected points added per play."},
		{Name: "success_rate", Category: "offense", Definition: "Share of plays with positive EPA."},
		{Name: "pressure_rate", Category: "defense", Definition: "Sacks per opposing dropback."},
	}
	require.NoError(t, db.Create(&defs).Error)

	found, err := SearchMetricDefinitions(db, "EPA")
	require.NoError(t, err)
	require.Len(t, found, 2, "matches names and definition text, case-insensitively")
	assert.Equal(t, "epa_per_play", found[0].Name)
	assert.Equal(t, "success_rate", found[1].Name)

	none, err := SearchMetricDefinitions(db, "turnover")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUploadRecords(t *testing.T) {
	db := newTestDB(t)

	record := &UploadRecord{
		ID:          uuid.New(),
		Filename:    "week3.csv",
		Format:      "csv",
		Season:      2024,
		ThroughWeek: 3,
		RowCount:    12,
		ColumnCount: 6,
		Payload:     []byte("season,week,team\n"),
	}
	require.NoError(t, CreateUploadRecord(db, record))

	fetched, err := GetUploadRecord(db, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "week3.csv", fetched.Filename)
	assert.Equal(t, record.Payload, fetched.Payload)

	require.NoError(t, CreateUploadRecord(db, &UploadRecord{ID: uuid.New(), Filename: "week4.csv", Format: "csv"}))

	records, err := ListUploadRecords(db, 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	one, err := ListUploadRecords(db, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestPickSheets(t *testing.T) {
	db := newTestDB(t)

	sheet := &PickSheet{
		ID:     uuid.New(),
		Season: 2024,
		Week:   3,
		Picks:  datatypes.JSON([]byte(`[{"game": "BAL@KC", "pick": "KC", "net_edge": 0.21}]`)),
		Note:   "leaning home favorites",
	}
	require.NoError(t, CreatePickSheet(db, sheet))

	fetched, err := GetPickSheet(db, sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, 2024, fetched.Season)
	assert.Equal(t, 3, fetched.Week)
	assert.Equal(t, "leaning home favorites", fetched.Note)
	assert.JSONEq(t, `[{"game": "BAL@KC", "pick": "KC", "net_edge": 0.21}]`, string(fetched.Picks))

	_, err = GetPickSheet(db, uuid.New())
	require.Error(t, err)

	require.NoError(t, CreatePickSheet(db, &PickSheet{ID: uuid.New(), Season: 2024, Week: 4, Picks: datatypes.JSON([]byte(`[]`))}))

	window, err := ListPickSheets(db, 2024, 3)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, sheet.ID, window[0].ID)
}
