package services

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/parquet-go/parquet-go"
	"github.com/sirupsen/logrus"
	"gopkg.in/guregu/null.v3"

	"github.com/twalsh/matchup-edge/internal/nfl"
	"github.com/twalsh/matchup-edge/pkg/metrics"
)

const (
	datasetUserAgent = "matchup-edge/1.0"

	// nflverse coverage starts in 1999
	minSeason = 1999
)

// DatasetService fetches the public nflverse datasets: the season schedule
// (gzipped CSV) and the per-season play-by-play Parquet, which it aggregates
// into unit metric rows.
type DatasetService struct {
	httpClient    *http.Client
	cache         nfl.CacheProvider
	logger        *logrus.Logger
	scheduleURL   string
	pbpReleaseURL string
	cacheTTL      time.Duration
}

func NewDatasetService(scheduleURL, pbpReleaseURL string, cache nfl.CacheProvider, logger *logrus.Logger, timeout, cacheTTL time.Duration) *DatasetService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DatasetService{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:         cache,
		logger:        logger,
		scheduleURL:   scheduleURL,
		pbpReleaseURL: pbpReleaseURL,
		cacheTTL:      cacheTTL,
	}
}

// FetchSchedule retrieves the schedule rows for one season. Results are
// cached by season; a warm cache makes the call idempotent.
func (s *DatasetService) FetchSchedule(ctx context.Context, season int) (*nfl.ScheduleTable, error) {
	if err := validateSeason(season); err != nil {
		return nil, &nfl.RetrievalError{Source: "schedule", URL: s.scheduleURL, Err: err}
	}

	key := ScheduleCacheKey(season)
	var cached nfl.ScheduleTable
	if err := s.cache.GetSimple(key, &cached); err == nil {
		return &cached, nil
	}

	start := time.Now()
	table, err := s.fetchScheduleRemote(ctx, season)
	metrics.RecordDatasetFetchDuration("schedule", time.Since(start).Seconds())
	if err != nil {
		metrics.RecordDatasetFetch("schedule", "error")
		return nil, err
	}
	metrics.RecordDatasetFetch("schedule", "success")
	metrics.UpdateDatasetRowsLoaded("schedule", len(table.Games))

	if err := s.cache.SetSimple(key, table, s.cacheTTL); err != nil {
		s.logger.Warnf("Failed to cache schedule for season %d: %v", season, err)
	}

	return table, nil
}

func (s *DatasetService) fetchScheduleRemote(ctx context.Context, season int) (*nfl.ScheduleTable, error) {
	body, err := s.download(ctx, s.scheduleURL)
	if err != nil {
		return nil, &nfl.RetrievalError{Source: "schedule", URL: s.scheduleURL, Err: err}
	}
	defer body.Close()

	gz, err := gzip.NewReader(body)
	if err != nil {
		return nil, &nfl.RetrievalError{Source: "schedule", URL: s.scheduleURL, Err: fmt.Errorf("not a gzip stream: %w", err)}
	}
	defer gz.Close()

	games, err := parseScheduleCSV(gz, season)
	if err != nil {
		return nil, &nfl.RetrievalError{Source: "schedule", URL: s.scheduleURL, Err: err}
	}
	if len(games) == 0 {
		return nil, &nfl.RetrievalError{Source: "schedule", URL: s.scheduleURL, Err: fmt.Errorf("season %d: %w", season, nfl.ErrEmptyDataset)}
	}

	return &nfl.ScheduleTable{
		Season:    season,
		FetchedAt: time.Now().UTC(),
		Games:     games,
	}, nil
}

// parseScheduleCSV reads the nflverse schedules CSV, keeping the requested
// season's rows. Rows missing a season/week/team key are skipped.
func parseScheduleCSV(r io.Reader, season int) ([]nfl.Game, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"season", "week", "gameday", "away_team", "home_team", "game_type"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("schedule csv is missing column %q", required)
		}
	}

	field := func(record []string, name string) string {
		idx := col[name]
		if idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var games []nfl.Game
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}

		rowSeason, err := strconv.Atoi(field(record, "season"))
		if err != nil || rowSeason != season {
			continue
		}
		week, err := strconv.Atoi(field(record, "week"))
		if err != nil {
			continue
		}
		home := field(record, "home_team")
		away := field(record, "away_team")
		if home == "" || away == "" {
			continue
		}

		games = append(games, nfl.Game{
			Season:   rowSeason,
			Week:     week,
			Gameday:  field(record, "gameday"),
			AwayTeam: away,
			HomeTeam: home,
			GameType: field(record, "game_type"),
		})
	}

	return games, nil
}

// pbpPlay is the projection of the nflverse play-by-play Parquet schema the
// aggregation needs. Nullable columns are pointers.
type pbpPlay struct {
	Season      int32    `parquet:"season"`
	Week        int32    `parquet:"week"`
	SeasonType  string   `parquet:"season_type,optional"`
	PlayType    string   `parquet:"play_type,optional"`
	Posteam     string   `parquet:"posteam,optional"`
	Defteam     string   `parquet:"defteam,optional"`
	EPA         *float64 `parquet:"epa,optional"`
	AirYards    *float64 `parquet:"air_yards,optional"`
	YardsGained *float64 `parquet:"yards_gained,optional"`
	Sack        *float64 `parquet:"sack,optional"`
}

// teamAccum accumulates one side's counting stats for a team
type teamAccum struct {
	plays      int
	successes  int
	explosives int
	epaSum     float64
	dropbacks  int
	sacks      int
	runs       int
	stuffs     int
}

// FetchTeamMetrics downloads the season play-by-play Parquet and aggregates
// it into per-team unit metric rows through the given week.
func (s *DatasetService) FetchTeamMetrics(ctx context.Context, season, throughWeek int) (*nfl.MetricTable, error) {
	url := s.pbpURL(season)
	if err := validateSeason(season); err != nil {
		return nil, &nfl.RetrievalError{Source: "play_by_play", URL: url, Err: err}
	}
	if throughWeek < 1 {
		return nil, &nfl.RetrievalError{Source: "play_by_play", URL: url, Err: fmt.Errorf("invalid week %d", throughWeek)}
	}

	key := UnitMetricsCacheKey(season, throughWeek)
	var cached nfl.MetricTable
	if err := s.cache.GetSimple(key, &cached); err == nil {
		return &cached, nil
	}

	start := time.Now()
	table, err := s.fetchTeamMetricsRemote(ctx, season, throughWeek, url)
	metrics.RecordDatasetFetchDuration("play_by_play", time.Since(start).Seconds())
	if err != nil {
		metrics.RecordDatasetFetch("play_by_play", "error")
		return nil, err
	}
	metrics.RecordDatasetFetch("play_by_play", "success")
	metrics.UpdateDatasetRowsLoaded("play_by_play", len(table.Offense)+len(table.Defense))

	if err := s.cache.SetSimple(key, table, s.cacheTTL); err != nil {
		s.logger.Warnf("Failed to cache unit metrics for %d week %d: %v", season, throughWeek, err)
	}

	return table, nil
}

func (s *DatasetService) pbpURL(season int) string {
	return fmt.Sprintf("%s/pbp_%d/play_by_play_%d.parquet", s.pbpReleaseURL, season, season)
}

func (s *DatasetService) fetchTeamMetricsRemote(ctx context.Context, season, throughWeek int, url string) (*nfl.MetricTable, error) {
	body, err := s.download(ctx, url)
	if err != nil {
		return nil, &nfl.RetrievalError{Source: "play_by_play", URL: url, Err: err}
	}
	defer body.Close()

	// Parquet decoding needs random access, so spool the body to disk
	tmp, err := os.CreateTemp("", "pbp-*.parquet")
	if err != nil {
		return nil, &nfl.RetrievalError{Source: "play_by_play", URL: url, Err: err}
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, body); err != nil {
		return nil, &nfl.RetrievalError{Source: "play_by_play", URL: url, Err: err}
	}

	plays, err := parquet.ReadFile[pbpPlay](tmp.Name())
	if err != nil {
		return nil, &nfl.RetrievalError{Source: "play_by_play", URL: url, Err: fmt.Errorf("decoding parquet: %w", err)}
	}

	table := aggregatePlays(plays, season, throughWeek)
	if len(table.Offense) == 0 {
		return nil, &nfl.RetrievalError{Source: "play_by_play", URL: url, Err: fmt.Errorf("season %d week %d: %w", season, throughWeek, nfl.ErrEmptyDataset)}
	}

	return table, nil
}

// aggregatePlays folds qualifying plays into per-team offense and defense
// accumulators and assembles the unit rows.
//
// A play qualifies when it is a regular-season pass or run for the requested
// window with a non-null EPA. Success is positive EPA. Explosive is a pass
// with air_yards >= 20 or a run with yards_gained >= 12; a null air_yards or
// yards_gained is never explosive. A run is stuffed when yards_gained <= 0,
// nulls excluded.
func aggregatePlays(plays []pbpPlay, season, throughWeek int) *nfl.MetricTable {
	offense := make(map[string]*teamAccum)
	defense := make(map[string]*teamAccum)

	accum := func(m map[string]*teamAccum, team string) *teamAccum {
		a, ok := m[team]
		if !ok {
			a = &teamAccum{}
			m[team] = a
		}
		return a
	}

	for i := range plays {
		p := &plays[i]
		if int(p.Season) != season || int(p.Week) > throughWeek {
			continue
		}
		if p.SeasonType != nfl.GameTypeRegular {
			continue
		}
		if p.PlayType != "pass" && p.PlayType != "run" {
			continue
		}
		if p.EPA == nil || p.Posteam == "" || p.Defteam == "" {
			continue
		}

		epa := *p.EPA
		success := epa > 0

		explosive := false
		stuffed := false
		isSack := p.Sack != nil && *p.Sack == 1

		switch p.PlayType {
		case "pass":
			explosive = p.AirYards != nil && *p.AirYards >= 20
		case "run":
			explosive = p.YardsGained != nil && *p.YardsGained >= 12
			stuffed = p.YardsGained != nil && *p.YardsGained <= 0
		}

		off := accum(offense, p.Posteam)
		def := accum(defense, p.Defteam)

		for _, a := range []*teamAccum{off, def} {
			a.plays++
			a.epaSum += epa
			if success {
				a.successes++
			}
			if explosive {
				a.explosives++
			}
			if p.PlayType == "pass" {
				a.dropbacks++
				if isSack {
					a.sacks++
				}
			} else {
				a.runs++
				if stuffed {
					a.stuffs++
				}
			}
		}
	}

	table := &nfl.MetricTable{
		Season:         season,
		ThroughWeek:    throughWeek,
		Source:         "nflverse",
		FetchedAt:      time.Now().UTC(),
		OffenseColumns: append([]string(nil), nfl.OffenseColumns...),
		DefenseColumns: append([]string(nil), nfl.DefenseColumns...),
	}

	for _, team := range sortedTeams(offense) {
		a := offense[team]
		epaPerPlay := a.epaSum / float64(a.plays)
		successRate := float64(a.successes) / float64(a.plays)
		explosiveRate := float64(a.explosives) / float64(a.plays)
		passBlockWin := 1 - float64(a.sacks)/float64(max(a.dropbacks, 1))
		runBlockWin := 1 - float64(a.stuffs)/float64(max(a.runs, 1))

		for _, unit := range []nfl.Unit{nfl.UnitQB, nfl.UnitRB, nfl.UnitWR, nfl.UnitTE} {
			row := nfl.UnitRow{Team: team, Unit: unit}
			row.SetValue(nfl.MetricEPAPerPlay, null.FloatFrom(epaPerPlay))
			row.SetValue(nfl.MetricSuccessRate, null.FloatFrom(successRate))
			row.SetValue(nfl.MetricExplosiveRate, null.FloatFrom(explosiveRate))
			table.Offense = append(table.Offense, row)
		}

		ol := nfl.UnitRow{Team: team, Unit: nfl.UnitOL}
		ol.SetValue(nfl.MetricPassBlockWin, null.FloatFrom(passBlockWin))
		ol.SetValue(nfl.MetricRunBlockWin, null.FloatFrom(runBlockWin))
		table.Offense = append(table.Offense, ol)
	}

	for _, team := range sortedTeams(defense) {
		a := defense[team]
		epaAllowed := a.epaSum / float64(a.plays)
		successAllowed := float64(a.successes) / float64(a.plays)
		explosiveAllowed := float64(a.explosives) / float64(a.plays)
		pressureRate := float64(a.sacks) / float64(max(a.dropbacks, 1))
		runStopWin := float64(a.stuffs) / float64(max(a.runs, 1))

		passRush := nfl.UnitRow{Team: team, Unit: nfl.UnitPassRush}
		passRush.SetValue(nfl.MetricPressureRate, null.FloatFrom(pressureRate))
		table.Defense = append(table.Defense, passRush)

		runDef := nfl.UnitRow{Team: team, Unit: nfl.UnitRunDefense}
		runDef.SetValue(nfl.MetricRunStopWin, null.FloatFrom(runStopWin))
		runDef.SetValue(nfl.MetricExplosiveAllowed, null.FloatFrom(explosiveAllowed))
		runDef.SetValue(nfl.MetricSuccessAllowed, null.FloatFrom(successAllowed))
		table.Defense = append(table.Defense, runDef)

		for _, unit := range []nfl.Unit{nfl.UnitCoverageDB, nfl.UnitCoverageLB} {
			row := nfl.UnitRow{Team: team, Unit: unit}
			row.SetValue(nfl.MetricEPAAllowed, null.FloatFrom(epaAllowed))
			row.SetValue(nfl.MetricSuccessAllowed, null.FloatFrom(successAllowed))
			row.SetValue(nfl.MetricExplosiveAllowed, null.FloatFrom(explosiveAllowed))
			// coverage_grade stays null until a provider fills it
			row.SetValue(nfl.MetricCoverageGrade, null.Float{})
			table.Defense = append(table.Defense, row)
		}

		dl := nfl.UnitRow{Team: team, Unit: nfl.UnitDL}
		dl.SetValue(nfl.MetricRunStopWin, null.FloatFrom(runStopWin))
		table.Defense = append(table.Defense, dl)
	}

	return table
}

func sortedTeams(m map[string]*teamAccum) []string {
	teams := make([]string, 0, len(m))
	for t := range m {
		teams = append(teams, t)
	}
	sort.Strings(teams)
	return teams
}

// download GETs a URL with retries and returns the body on a 200
func (s *DatasetService) download(ctx context.Context, url string) (io.ReadCloser, error) {
	var body io.ReadCloser

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("User-Agent", datasetUserAgent)

			resp, err := s.httpClient.Do(req)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				err := fmt.Errorf("unexpected status code: %d", resp.StatusCode)
				if resp.StatusCode == http.StatusNotFound {
					return retry.Unrecoverable(err)
				}
				return err
			}
			body = resp.Body
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warnf("Dataset download failed (attempt %d): %v", n+1, err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func validateSeason(season int) error {
	maxSeason := time.Now().Year() + 1
	if season < minSeason || season > maxSeason {
		return fmt.Errorf("season %d outside supported range %d-%d", season, minSeason, maxSeason)
	}
	return nil
}
