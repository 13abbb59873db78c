package providers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/lineup-engine/internal/optimizer"
)

// DraftKingsImporter parses DraftKings salary-export CSVs into the
// engine's player pool format
type DraftKingsImporter struct {
	logger *logrus.Logger
}

// NewDraftKingsImporter creates a new salary CSV importer
func NewDraftKingsImporter(logger *logrus.Logger) *DraftKingsImporter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DraftKingsImporter{logger: logger}
}

// ImportResult summarizes one CSV import. Malformed rows are skipped and
// reported rather than failing the whole file.
type ImportResult struct {
	Players  []optimizer.Player `json:"players"`
	Imported int                `json:"imported"`
	Skipped  int                `json:"skipped"`
	Errors   []string           `json:"errors,omitempty"`
}

// Column aliases seen across DraftKings export variants. Headers are
// matched after lowercasing and stripping spaces.
var (
	nameColumns     = []string{"name"}
	positionColumns = []string{"position", "rosterposition"}
	salaryColumns   = []string{"salary"}
	teamColumns     = []string{"teamabbrev", "team"}
	pointsColumns   = []string{"avgpointspergame", "projectedpoints", "fppg"}
)

// nameSuffixes are generational suffixes stripped during normalization so
// salary rows line up with projection sources that omit them
var nameSuffixes = map[string]bool{
	"jr": true, "sr": true, "ii": true, "iii": true, "iv": true, "v": true,
}

// Import reads a DraftKings salary CSV and returns the parsed pool.
// Rows with missing or unparseable fields are counted and skipped;
// duplicate player identities keep the first occurrence.
func (i *DraftKingsImporter) Import(r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty CSV: no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := indexColumns(header)
	nameIdx, ok := firstColumn(columns, nameColumns)
	if !ok {
		return nil, fmt.Errorf("missing required column: Name")
	}
	posIdx, ok := firstColumn(columns, positionColumns)
	if !ok {
		return nil, fmt.Errorf("missing required column: Position")
	}
	salaryIdx, ok := firstColumn(columns, salaryColumns)
	if !ok {
		return nil, fmt.Errorf("missing required column: Salary")
	}
	teamIdx, hasTeam := firstColumn(columns, teamColumns)
	pointsIdx, hasPoints := firstColumn(columns, pointsColumns)

	result := &ImportResult{}
	seen := make(map[string]bool)
	row := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			result.skip(row, fmt.Sprintf("unreadable row: %v", err))
			continue
		}

		name := NormalizeName(field(record, nameIdx))
		if name == "" {
			result.skip(row, "missing player name")
			continue
		}

		position, err := optimizer.ParsePosition(field(record, posIdx))
		if err != nil {
			result.skip(row, err.Error())
			continue
		}

		salary, err := parseSalary(field(record, salaryIdx))
		if err != nil {
			result.skip(row, fmt.Sprintf("bad salary for %s: %v", name, err))
			continue
		}

		team := ""
		if hasTeam {
			team = strings.ToUpper(strings.TrimSpace(field(record, teamIdx)))
		}

		points := 0.0
		if hasPoints {
			if raw := strings.TrimSpace(field(record, pointsIdx)); raw != "" {
				points, err = strconv.ParseFloat(raw, 64)
				if err != nil {
					result.skip(row, fmt.Sprintf("bad projection for %s: %v", name, err))
					continue
				}
			}
		}

		player := optimizer.Player{
			Name:            name,
			Team:            team,
			Position:        position,
			Salary:          salary,
			ProjectedPoints: points,
		}
		if err := player.Validate(); err != nil {
			result.skip(row, err.Error())
			continue
		}
		if seen[player.Key()] {
			result.skip(row, fmt.Sprintf("duplicate player %s", player.Key()))
			continue
		}

		seen[player.Key()] = true
		result.Players = append(result.Players, player)
		result.Imported++
	}

	i.logger.WithFields(logrus.Fields{
		"imported": result.Imported,
		"skipped":  result.Skipped,
	}).Info("DraftKings salary CSV imported")
	return result, nil
}

func (r *ImportResult) skip(row int, reason string) {
	r.Skipped++
	r.Errors = append(r.Errors, fmt.Sprintf("row %d: %s", row, reason))
}

// NormalizeName cleans a player name the way projection sources expect:
// periods and apostrophes removed, generational suffixes dropped,
// whitespace collapsed
func NormalizeName(name string) string {
	cleaned := strings.NewReplacer(".", "", "'", "", "’", "").Replace(name)
	fields := strings.Fields(cleaned)
	if len(fields) > 1 && nameSuffixes[strings.ToLower(fields[len(fields)-1])] {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

func indexColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for idx, h := range header {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "")
		if _, exists := columns[key]; !exists {
			columns[key] = idx
		}
	}
	return columns
}

func firstColumn(columns map[string]int, aliases []string) (int, bool) {
	for _, alias := range aliases {
		if idx, ok := columns[alias]; ok {
			return idx, true
		}
	}
	return 0, false
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func parseSalary(raw string) (int, error) {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return 0, fmt.Errorf("empty salary")
	}
	return strconv.Atoi(cleaned)
}
