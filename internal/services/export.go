package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/jstittsworth/lineup-engine/internal/optimizer"
)

// ExportService renders lineup sets into site-uploadable CSV
type ExportService struct{}

// NewExportService creates a new export service
func NewExportService() *ExportService {
	return &ExportService{}
}

// Headers returns the CSV header row for a schema: one column per
// expanded slot, labeled with the slot's base name so repeated positions
// render as RB,RB rather than RB1,RB2
func (s *ExportService) Headers(schema optimizer.RosterSchema) []string {
	expanded := schema.ExpandSlots()
	headers := make([]string, len(expanded))
	for i, slot := range expanded {
		headers[i] = slot.GroupName
	}
	return headers
}

// ExportCSV writes one row per lineup with players in slot order
func (s *ExportService) ExportCSV(lineups []optimizer.Lineup, schema optimizer.RosterSchema) ([]byte, error) {
	if len(lineups) == 0 {
		return nil, fmt.Errorf("no lineups to export")
	}

	headers := s.Headers(schema)

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	for i, lineup := range lineups {
		if len(lineup.Slots) != len(headers) {
			return nil, fmt.Errorf("lineup %d has %d slots, format expects %d", i+1, len(lineup.Slots), len(headers))
		}
		row := make([]string, len(lineup.Slots))
		for j, slot := range lineup.Slots {
			row[j] = slot.Player.Name
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write lineup %d: %w", i+1, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportDetailedCSV includes salary and projection columns after the
// roster, for spreadsheet review rather than site upload
func (s *ExportService) ExportDetailedCSV(lineups []optimizer.Lineup, schema optimizer.RosterSchema) ([]byte, error) {
	if len(lineups) == 0 {
		return nil, fmt.Errorf("no lineups to export")
	}

	headers := append(s.Headers(schema), "Total Salary", "Projected Points")

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	for i, lineup := range lineups {
		if len(lineup.Slots) != len(headers)-2 {
			return nil, fmt.Errorf("lineup %d has %d slots, format expects %d", i+1, len(lineup.Slots), len(headers)-2)
		}
		row := make([]string, 0, len(headers))
		for _, slot := range lineup.Slots {
			row = append(row, slot.Player.Name)
		}
		row = append(row,
			strconv.Itoa(lineup.TotalSalary),
			strconv.FormatFloat(lineup.TotalProjected, 'f', 2, 64))
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write lineup %d: %w", i+1, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// FileName builds a timestamped download name for an export
func (s *ExportService) FileName(prefix string, count int) string {
	return fmt.Sprintf("%s_%d_lineups_%s.csv", prefix, count, time.Now().UTC().Format("20060102"))
}
