package services

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/sirupsen/logrus"
	"gopkg.in/guregu/null.v3"

	"github.com/twalsh/matchup-edge/internal/models"
	"github.com/twalsh/matchup-edge/internal/nfl"
	"github.com/twalsh/matchup-edge/pkg/database"
	"github.com/twalsh/matchup-edge/pkg/metrics"
)

const maxUploadBytes = 32 << 20

// headerAliases maps common export spellings onto the unified schema
var headerAliases = map[string]string{
	"team_abbr": "team",
	"posteam":   "team",
	"club":      "team",
	"wk":        "week",
	"yr":        "season",
}

// unitTarget names one (unit, side) a metric cell lands on
type unitTarget struct {
	unit    nfl.Unit
	offense bool
}

var offenseSkillTargets = []unitTarget{
	{nfl.UnitQB, true}, {nfl.UnitRB, true}, {nfl.UnitWR, true}, {nfl.UnitTE, true},
}

// metricTargets routes a wide-row metric to the units that carry it. Metrics
// not listed here default to the offense skill units.
var metricTargets = map[string][]unitTarget{
	nfl.MetricEPAPerPlay:    offenseSkillTargets,
	nfl.MetricSuccessRate:   offenseSkillTargets,
	nfl.MetricExplosiveRate: offenseSkillTargets,
	nfl.MetricPassBlockWin:  {{nfl.UnitOL, true}},
	nfl.MetricRunBlockWin:   {{nfl.UnitOL, true}},
	nfl.MetricEPAAllowed:    {{nfl.UnitCoverageDB, false}, {nfl.UnitCoverageLB, false}},
	nfl.MetricSuccessAllowed: {
		{nfl.UnitRunDefense, false}, {nfl.UnitCoverageDB, false}, {nfl.UnitCoverageLB, false},
	},
	nfl.MetricExplosiveAllowed: {
		{nfl.UnitRunDefense, false}, {nfl.UnitCoverageDB, false}, {nfl.UnitCoverageLB, false},
	},
	nfl.MetricPressureRate:  {{nfl.UnitPassRush, false}},
	nfl.MetricRunStopWin:    {{nfl.UnitRunDefense, false}, {nfl.UnitDL, false}},
	nfl.MetricCoverageGrade: {{nfl.UnitCoverageDB, false}, {nfl.UnitCoverageLB, false}},
}

// unitTargetByName resolves an explicit unit column value
var unitTargetByName = map[string]unitTarget{
	"qb":          {nfl.UnitQB, true},
	"rb":          {nfl.UnitRB, true},
	"wr":          {nfl.UnitWR, true},
	"te":          {nfl.UnitTE, true},
	"ol":          {nfl.UnitOL, true},
	"passrush":    {nfl.UnitPassRush, false},
	"pass_rush":   {nfl.UnitPassRush, false},
	"rundefense":  {nfl.UnitRunDefense, false},
	"run_defense": {nfl.UnitRunDefense, false},
	"coveragedb":  {nfl.UnitCoverageDB, false},
	"coverage_db": {nfl.UnitCoverageDB, false},
	"coveragelb":  {nfl.UnitCoverageLB, false},
	"coverage_lb": {nfl.UnitCoverageLB, false},
	"dl":          {nfl.UnitDL, false},
}

// UploadService parses user-supplied metric files into MetricTable overrides
// and keeps them in a session registry keyed by upload id.
type UploadService struct {
	db     *database.DB
	logger *logrus.Logger

	mu      sync.RWMutex
	uploads map[string]*nfl.UploadResult
}

func NewUploadService(db *database.DB, logger *logrus.Logger) *UploadService {
	return &UploadService{
		db:      db,
		logger:  logger,
		uploads: make(map[string]*nfl.UploadResult),
	}
}

// Load parses one upload, stamps it with an id and registers it. Format is
// chosen by filename extension. A FormatError blocks this upload only.
func (s *UploadService) Load(filename string, r io.Reader) (*nfl.UploadResult, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")

	data, err := io.ReadAll(io.LimitReader(r, maxUploadBytes+1))
	if err != nil {
		metrics.RecordUpload(format, "error")
		return nil, &nfl.FormatError{Filename: filename, Err: err}
	}
	if len(data) == 0 {
		metrics.RecordUpload(format, "error")
		return nil, &nfl.FormatError{Filename: filename, Err: errors.New("file is empty")}
	}
	if len(data) > maxUploadBytes {
		metrics.RecordUpload(format, "error")
		return nil, &nfl.FormatError{Filename: filename, Err: fmt.Errorf("file exceeds %d bytes", maxUploadBytes)}
	}

	var parsed *parsedUpload
	switch format {
	case "csv":
		parsed, err = parseUploadCSV(filename, data)
	case "parquet":
		parsed, err = parseUploadParquet(filename, data)
	default:
		err = &nfl.FormatError{Filename: filename, Err: fmt.Errorf("unsupported format %q", format)}
	}
	if err != nil {
		metrics.RecordUpload(format, "error")
		return nil, err
	}

	table, consumed, skipped, err := assembleUploadTable(filename, parsed)
	if err != nil {
		metrics.RecordUpload(format, "error")
		return nil, err
	}

	result := &nfl.UploadResult{
		ID:          uuid.New().String(),
		Filename:    filename,
		Format:      format,
		Table:       table,
		RowCount:    consumed,
		ColumnCount: parsed.totalCols,
		SkippedRows: skipped,
		UploadedAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	s.uploads[result.ID] = result
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"upload_id": result.ID,
		"filename":  filename,
		"format":    format,
		"rows":      consumed,
		"skipped":   len(skipped),
	}).Info("Upload parsed")

	s.archive(result, data)
	metrics.RecordUpload(format, "success")

	return result, nil
}

// Get returns a registered upload by id
func (s *UploadService) Get(id string) (*nfl.UploadResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.uploads[id]
	return result, ok
}

// List returns the registered uploads, newest first
func (s *UploadService) List() []*nfl.UploadResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*nfl.UploadResult, 0, len(s.uploads))
	for _, r := range s.uploads {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out
}

// archive writes the raw payload to the optional database. Failures are
// logged, never propagated.
func (s *UploadService) archive(result *nfl.UploadResult, payload []byte) {
	if s.db == nil {
		return
	}
	id, err := uuid.Parse(result.ID)
	if err != nil {
		return
	}
	record := &models.UploadRecord{
		ID:          id,
		Filename:    result.Filename,
		Format:      result.Format,
		Season:      result.Table.Season,
		ThroughWeek: result.Table.ThroughWeek,
		RowCount:    result.RowCount,
		ColumnCount: result.ColumnCount,
		Payload:     payload,
	}
	if err := models.CreateUploadRecord(s.db, record); err != nil {
		s.logger.Warnf("Failed to archive upload %s: %v", result.ID, err)
	}
}

// parsedUpload is the format-independent intermediate: normalized header plus
// one row per data line that carried valid keys.
type parsedUpload struct {
	metricCols []string // normalized metric column names, file order
	totalCols  int
	rows       []uploadRow
	skipped    []int // 1-based data rows dropped during parsing
}

type uploadRow struct {
	line   int
	season int
	week   int
	team   string
	unit   string
	values map[string]null.Float
}

func normalizeHeader(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := headerAliases[n]; ok {
		return alias
	}
	return n
}

// requireColumns checks the normalized header for the unified schema keys
func requireColumns(filename string, index map[string]int) error {
	for _, required := range []string{"season", "week", "team"} {
		if _, ok := index[required]; !ok {
			return &nfl.FormatError{Filename: filename, Column: required}
		}
	}
	return nil
}

func metricColumns(names []string) []string {
	var cols []string
	for _, n := range names {
		switch n {
		case "season", "week", "team", "unit":
		default:
			cols = append(cols, n)
		}
	}
	return cols
}

// intCell parses an integer cell, tolerating float renderings like "2024.0"
func intCell(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

func floatCell(s string) null.Float {
	s = strings.TrimSpace(s)
	if s == "" {
		return null.Float{}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return null.Float{}
	}
	return null.FloatFrom(f)
}

func parseUploadCSV(filename string, data []byte) (*parsedUpload, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, &nfl.FormatError{Filename: filename, Err: fmt.Errorf("reading header: %w", err)}
	}

	names := make([]string, len(header))
	index := make(map[string]int, len(header))
	for i, h := range header {
		names[i] = normalizeHeader(h)
		if _, dup := index[names[i]]; !dup {
			index[names[i]] = i
		}
	}
	if err := requireColumns(filename, index); err != nil {
		return nil, err
	}

	cols := metricColumns(names)
	parsed := &parsedUpload{metricCols: cols, totalCols: len(header)}

	cell := func(record []string, name string) string {
		idx, ok := index[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &nfl.FormatError{Filename: filename, Err: err}
		}
		line++

		season, seasonOK := intCell(cell(record, "season"))
		week, weekOK := intCell(cell(record, "week"))
		team := strings.ToUpper(strings.TrimSpace(cell(record, "team")))
		if !seasonOK || !weekOK || team == "" {
			parsed.skipped = append(parsed.skipped, line)
			continue
		}

		row := uploadRow{
			line:   line,
			season: season,
			week:   week,
			team:   team,
			unit:   strings.TrimSpace(cell(record, "unit")),
			values: make(map[string]null.Float, len(cols)),
		}
		for _, m := range cols {
			row.values[m] = floatCell(cell(record, m))
		}
		parsed.rows = append(parsed.rows, row)
	}

	return parsed, nil
}

func parseUploadParquet(filename string, data []byte) (*parsedUpload, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &nfl.FormatError{Filename: filename, Err: err}
	}

	fields := file.Schema().Fields()
	names := make([]string, len(fields))
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		names[i] = normalizeHeader(f.Name())
		if _, dup := index[names[i]]; !dup {
			index[names[i]] = i
		}
	}
	if err := requireColumns(filename, index); err != nil {
		return nil, err
	}

	cols := metricColumns(names)
	parsed := &parsedUpload{metricCols: cols, totalCols: len(fields)}

	line := 0
	for _, group := range file.RowGroups() {
		rows := group.Rows()
		buf := make([]parquet.Row, 128)
		for {
			n, readErr := rows.ReadRows(buf)
			for _, prow := range buf[:n] {
				line++
				row, ok := parquetUploadRow(prow, names, cols, line)
				if !ok {
					parsed.skipped = append(parsed.skipped, line)
					continue
				}
				parsed.rows = append(parsed.rows, row)
			}
			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				rows.Close()
				return nil, &nfl.FormatError{Filename: filename, Err: readErr}
			}
		}
		rows.Close()
	}

	return parsed, nil
}

// parquetUploadRow maps one decoded row onto the shared intermediate. Values
// arrive tagged with their leaf column index.
func parquetUploadRow(prow parquet.Row, names []string, cols []string, line int) (uploadRow, bool) {
	row := uploadRow{line: line, values: make(map[string]null.Float, len(cols))}

	var seasonOK, weekOK bool
	for _, v := range prow {
		ci := v.Column()
		if ci < 0 || ci >= len(names) {
			continue
		}
		switch names[ci] {
		case "season":
			if f, ok := parquetNumber(v); ok {
				row.season, seasonOK = int(f), true
			}
		case "week":
			if f, ok := parquetNumber(v); ok {
				row.week, weekOK = int(f), true
			}
		case "team":
			row.team = strings.ToUpper(strings.TrimSpace(parquetString(v)))
		case "unit":
			row.unit = strings.TrimSpace(parquetString(v))
		default:
			if f, ok := parquetNumber(v); ok {
				row.values[names[ci]] = null.FloatFrom(f)
			} else {
				row.values[names[ci]] = null.Float{}
			}
		}
	}

	if !seasonOK || !weekOK || row.team == "" {
		return uploadRow{}, false
	}
	return row, true
}

func parquetNumber(v parquet.Value) (float64, bool) {
	if v.IsNull() {
		return 0, false
	}
	switch v.Kind() {
	case parquet.Boolean:
		if v.Boolean() {
			return 1, true
		}
		return 0, true
	case parquet.Int32:
		return float64(v.Int32()), true
	case parquet.Int64:
		return float64(v.Int64()), true
	case parquet.Float:
		return float64(v.Float()), true
	case parquet.Double:
		return v.Double(), true
	default:
		return 0, false
	}
}

func parquetString(v parquet.Value) string {
	if v.IsNull() {
		return ""
	}
	if v.Kind() == parquet.ByteArray || v.Kind() == parquet.FixedLenByteArray {
		return string(v.ByteArray())
	}
	return ""
}

type uploadRowKey struct {
	team string
	unit nfl.Unit
}

// assembleUploadTable folds the parsed rows into a MetricTable override. The
// first valid row fixes the season; rows from other seasons are skipped. The
// through-week is the highest week seen. Rows with an explicit unit land on
// that unit; wide rows fan each metric out to the units that carry it.
func assembleUploadTable(filename string, parsed *parsedUpload) (*nfl.MetricTable, int, []int, error) {
	offense := make(map[uploadRowKey]*nfl.UnitRow)
	defense := make(map[uploadRowKey]*nfl.UnitRow)
	offCols := append([]string(nil), nfl.OffenseColumns...)
	defCols := append([]string(nil), nfl.DefenseColumns...)

	setCell := func(target unitTarget, team, metric string, v null.Float) {
		rows, cols := defense, &defCols
		if target.offense {
			rows, cols = offense, &offCols
		}
		key := uploadRowKey{team: team, unit: target.unit}
		row, ok := rows[key]
		if !ok {
			row = &nfl.UnitRow{Team: team, Unit: target.unit}
			rows[key] = row
		}
		row.SetValue(metric, v)
		for _, c := range *cols {
			if c == metric {
				return
			}
		}
		*cols = append(*cols, metric)
	}

	season := 0
	throughWeek := 0
	consumed := 0
	skipped := append([]int(nil), parsed.skipped...)

	for _, row := range parsed.rows {
		if season == 0 {
			season = row.season
		}
		if row.season != season {
			skipped = append(skipped, row.line)
			continue
		}

		var explicit *unitTarget
		if row.unit != "" {
			target, ok := unitTargetByName[strings.ToLower(row.unit)]
			if !ok {
				skipped = append(skipped, row.line)
				continue
			}
			explicit = &target
		}

		for _, m := range parsed.metricCols {
			v := row.values[m]
			if !v.Valid {
				// absent cells read as null without being stored
				continue
			}
			if explicit != nil {
				setCell(*explicit, row.team, m, v)
				continue
			}
			targets, ok := metricTargets[m]
			if !ok {
				targets = offenseSkillTargets
			}
			for _, target := range targets {
				setCell(target, row.team, m, v)
			}
		}

		if row.week > throughWeek {
			throughWeek = row.week
		}
		consumed++
	}

	if consumed == 0 {
		return nil, 0, nil, &nfl.FormatError{Filename: filename, Err: errors.New("no usable rows")}
	}
	sort.Ints(skipped)

	table := &nfl.MetricTable{
		Season:         season,
		ThroughWeek:    throughWeek,
		Source:         "upload",
		FetchedAt:      time.Now().UTC(),
		OffenseColumns: offCols,
		DefenseColumns: defCols,
	}

	appendRows := func(rows map[uploadRowKey]*nfl.UnitRow, units []nfl.Unit, out *[]nfl.UnitRow) {
		teams := make(map[string]bool)
		for key := range rows {
			teams[key.team] = true
		}
		ordered := make([]string, 0, len(teams))
		for t := range teams {
			ordered = append(ordered, t)
		}
		sort.Strings(ordered)
		for _, team := range ordered {
			for _, unit := range units {
				if row, ok := rows[uploadRowKey{team: team, unit: unit}]; ok {
					*out = append(*out, *row)
				}
			}
		}
	}
	appendRows(offense, nfl.OffenseUnits, &table.Offense)
	appendRows(defense, nfl.DefenseUnits, &table.Defense)

	return table, consumed, skipped, nil
}
