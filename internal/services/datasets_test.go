package services

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twalsh/matchup-edge/internal/nfl"
)

func newTestDatasetService(scheduleURL, pbpReleaseURL string) *DatasetService {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewDatasetService(scheduleURL, pbpReleaseURL, NewMemoryCache(time.Hour), logger, 5*time.Second, time.Hour)
}

func gzipBytes(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

const scheduleCSV = `game_id,season,game_type,week,gameday,away_team,home_team
2023_01_DET_KC,2023,REG,1,2023-09-07,DET,KC
2024_01_BAL_KC,2024,REG,1,2024-09-05,BAL,KC
2024_01_GB_PHI,2024,REG,1,2024-09-06,GB,PHI
2024_02_CIN_KC,2024,REG,2,2024-09-15,CIN,KC
2024_02_BAD_ROW,2024,REG,2,2024-09-15,,PHI
2024_19_WC_GAME,2024,WC,19,2025-01-11,GB,PHI
`

func TestFetchSchedule(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "matchup-edge/1.0", r.Header.Get("User-Agent"))
		w.Write(gzipBytes(t, scheduleCSV))
	}))
	defer server.Close()

	svc := newTestDatasetService(server.URL, "")

	table, err := svc.FetchSchedule(context.Background(), 2024)
	require.NoError(t, err)
	require.NotNil(t, table)

	assert.Equal(t, 2024, table.Season)
	// 2023 row and the blank-team row are dropped, the playoff row stays
	require.Len(t, table.Games, 4)
	for _, g := range table.Games {
		assert.Equal(t, 2024, g.Season)
	}
	assert.Equal(t, "BAL", table.Games[0].AwayTeam)
	assert.Equal(t, "KC", table.Games[0].HomeTeam)
	assert.Equal(t, "2024-09-05", table.Games[0].Gameday)

	week1 := table.WeekGames(1)
	require.Len(t, week1, 2)
	assert.Equal(t, "KC", week1[0].HomeTeam)
	assert.Equal(t, "PHI", week1[1].HomeTeam)

	week19 := table.WeekGames(19)
	assert.Empty(t, week19, "non-regular-season games are excluded from week views")
}

func TestFetchScheduleServesFromCache(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write(gzipBytes(t, scheduleCSV))
	}))
	defer server.Close()

	svc := newTestDatasetService(server.URL, "")

	first, err := svc.FetchSchedule(context.Background(), 2024)
	require.NoError(t, err)
	second, err := svc.FetchSchedule(context.Background(), 2024)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
	assert.Equal(t, first.Games, second.Games)
}

func TestFetchScheduleInvalidSeason(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer server.Close()

	svc := newTestDatasetService(server.URL, "")

	_, err := svc.FetchSchedule(context.Background(), 1980)
	require.Error(t, err)

	var retrievalErr *nfl.RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, "schedule", retrievalErr.Source)
	assert.Equal(t, int32(0), atomic.LoadInt32(&requests), "invalid seasons must not reach the network")
}

func TestFetchScheduleMissingColumn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(gzipBytes(t, "season,week,away_team,home_team\n2024,1,BAL,KC\n"))
	}))
	defer server.Close()

	svc := newTestDatasetService(server.URL, "")

	_, err := svc.FetchSchedule(context.Background(), 2024)
	require.Error(t, err)

	var retrievalErr *nfl.RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Contains(t, err.Error(), "gameday")
}

func TestFetchScheduleEmptySeason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(gzipBytes(t, scheduleCSV))
	}))
	defer server.Close()

	svc := newTestDatasetService(server.URL, "")

	_, err := svc.FetchSchedule(context.Background(), 2010)
	require.Error(t, err)
	assert.ErrorIs(t, err, nfl.ErrEmptyDataset)
}

func floatPtr(v float64) *float64 { return &v }

// samplePlays covers the filter edge cases: a null-EPA play, a beyond-window
// play, a postseason play, and a run with null yards_gained.
func samplePlays() []pbpPlay {
	return []pbpPlay{
		{Season: 2024, Week: 1, SeasonType: "REG", PlayType: "pass", Posteam: "KC", Defteam: "DEN", EPA: floatPtr(1.0), AirYards: floatPtr(25), Sack: floatPtr(0)},
		{Season: 2024, Week: 1, SeasonType: "REG", PlayType: "pass", Posteam: "KC", Defteam: "DEN", EPA: floatPtr(-0.5), AirYards: floatPtr(5), Sack: floatPtr(1)},
		{Season: 2024, Week: 2, SeasonType: "REG", PlayType: "run", Posteam: "KC", Defteam: "DEN", EPA: floatPtr(0.2), YardsGained: floatPtr(15)},
		{Season: 2024, Week: 2, SeasonType: "REG", PlayType: "run", Posteam: "KC", Defteam: "DEN", EPA: floatPtr(-0.8), YardsGained: floatPtr(0)},
		{Season: 2024, Week: 3, SeasonType: "REG", PlayType: "pass", Posteam: "KC", Defteam: "DEN", EPA: nil, AirYards: floatPtr(30)},
		{Season: 2024, Week: 3, SeasonType: "REG", PlayType: "run", Posteam: "KC", Defteam: "DEN", EPA: floatPtr(0.1), YardsGained: nil},
		{Season: 2024, Week: 5, SeasonType: "REG", PlayType: "pass", Posteam: "KC", Defteam: "DEN", EPA: floatPtr(2.0), AirYards: floatPtr(40)},
		{Season: 2024, Week: 1, SeasonType: "POST", PlayType: "pass", Posteam: "KC", Defteam: "DEN", EPA: floatPtr(2.0), AirYards: floatPtr(40)},
		{Season: 2024, Week: 3, SeasonType: "REG", PlayType: "pass", Posteam: "DEN", Defteam: "KC", EPA: floatPtr(0.4), AirYards: floatPtr(10), Sack: floatPtr(0)},
	}
}

func servePlays(t *testing.T, plays []pbpPlay) (*httptest.Server, *int32) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, parquet.Write[pbpPlay](&buf, plays))
	body := buf.Bytes()

	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "/pbp_2024/play_by_play_2024.parquet", r.URL.Path)
		w.Write(body)
	}))
	return server, &requests
}

func TestFetchTeamMetrics(t *testing.T) {
	server, _ := servePlays(t, samplePlays())
	defer server.Close()

	svc := newTestDatasetService("", server.URL)

	table, err := svc.FetchTeamMetrics(context.Background(), 2024, 3)
	require.NoError(t, err)
	require.NotNil(t, table)

	assert.Equal(t, 2024, table.Season)
	assert.Equal(t, 3, table.ThroughWeek)
	assert.Equal(t, "nflverse", table.Source)

	// two teams, five units per side
	require.Len(t, table.Offense, 10)
	require.Len(t, table.Defense, 10)
	assert.Equal(t, "DEN", table.Offense[0].Team, "teams are emitted in sorted order")

	// KC offense: 5 qualifying plays, epa sum 0.0, 3 successes, 2 explosives
	qb := table.OffenseRow("KC", nfl.UnitQB)
	require.NotNil(t, qb)
	assert.InDelta(t, 0.0, qb.Value(nfl.MetricEPAPerPlay).Float64, 1e-9)
	assert.InDelta(t, 0.6, qb.Value(nfl.MetricSuccessRate).Float64, 1e-9)
	assert.InDelta(t, 0.4, qb.Value(nfl.MetricExplosiveRate).Float64, 1e-9)
	assert.False(t, qb.Value(nfl.MetricPassBlockWin).Valid, "trench metrics live on the OL row only")

	// KC OL: 1 sack on 2 dropbacks, 1 stuff on 3 runs
	ol := table.OffenseRow("KC", nfl.UnitOL)
	require.NotNil(t, ol)
	assert.InDelta(t, 0.5, ol.Value(nfl.MetricPassBlockWin).Float64, 1e-9)
	assert.InDelta(t, 1.0-1.0/3.0, ol.Value(nfl.MetricRunBlockWin).Float64, 1e-9)
	assert.False(t, ol.Value(nfl.MetricEPAPerPlay).Valid)

	// DEN defense mirrors the KC offense accumulators
	passRush := table.DefenseRow("DEN", nfl.UnitPassRush)
	require.NotNil(t, passRush)
	assert.InDelta(t, 0.5, passRush.Value(nfl.MetricPressureRate).Float64, 1e-9)

	runDef := table.DefenseRow("DEN", nfl.UnitRunDefense)
	require.NotNil(t, runDef)
	assert.InDelta(t, 1.0/3.0, runDef.Value(nfl.MetricRunStopWin).Float64, 1e-9)
	assert.InDelta(t, 0.4, runDef.Value(nfl.MetricExplosiveAllowed).Float64, 1e-9)
	assert.InDelta(t, 0.6, runDef.Value(nfl.MetricSuccessAllowed).Float64, 1e-9)

	covDB := table.DefenseRow("DEN", nfl.UnitCoverageDB)
	require.NotNil(t, covDB)
	assert.InDelta(t, 0.0, covDB.Value(nfl.MetricEPAAllowed).Float64, 1e-9)
	assert.False(t, covDB.Value(nfl.MetricCoverageGrade).Valid, "coverage grade is provider-only")

	// DEN offense saw one clean dropback
	denOL := table.OffenseRow("DEN", nfl.UnitOL)
	require.NotNil(t, denOL)
	assert.InDelta(t, 1.0, denOL.Value(nfl.MetricPassBlockWin).Float64, 1e-9)
	assert.InDelta(t, 1.0, denOL.Value(nfl.MetricRunBlockWin).Float64, 1e-9)

	kcPassRush := table.DefenseRow("KC", nfl.UnitPassRush)
	require.NotNil(t, kcPassRush)
	assert.InDelta(t, 0.0, kcPassRush.Value(nfl.MetricPressureRate).Float64, 1e-9)
}

func TestFetchTeamMetricsServesFromCache(t *testing.T) {
	server, requests := servePlays(t, samplePlays())
	defer server.Close()

	svc := newTestDatasetService("", server.URL)

	_, err := svc.FetchTeamMetrics(context.Background(), 2024, 3)
	require.NoError(t, err)
	_, err = svc.FetchTeamMetrics(context.Background(), 2024, 3)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(requests))
}

func TestFetchTeamMetricsEmptyWindow(t *testing.T) {
	// only a week-5 play exists, so a through-week-3 window matches nothing
	plays := []pbpPlay{
		{Season: 2024, Week: 5, SeasonType: "REG", PlayType: "pass", Posteam: "KC", Defteam: "DEN", EPA: floatPtr(1.0)},
	}
	server, _ := servePlays(t, plays)
	defer server.Close()

	svc := newTestDatasetService("", server.URL)

	_, err := svc.FetchTeamMetrics(context.Background(), 2024, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, nfl.ErrEmptyDataset)
}

func TestFetchTeamMetricsNotFound(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	svc := newTestDatasetService("", server.URL)

	_, err := svc.FetchTeamMetrics(context.Background(), 2024, 3)
	require.Error(t, err)

	var retrievalErr *nfl.RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, "play_by_play", retrievalErr.Source)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests), "a 404 is not retried")
}

func TestFetchTeamMetricsInvalidWeek(t *testing.T) {
	svc := newTestDatasetService("", "http://localhost:0")

	_, err := svc.FetchTeamMetrics(context.Background(), 2024, 0)
	require.Error(t, err)

	var retrievalErr *nfl.RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
}

func TestParseScheduleCSVMalformed(t *testing.T) {
	_, err := parseScheduleCSV(bytes.NewReader(nil), 2024)
	require.Error(t, err)
	assert.False(t, errors.Is(err, nfl.ErrEmptyDataset), "a missing header is a format problem, not an empty season")
}
