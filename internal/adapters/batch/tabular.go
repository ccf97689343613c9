// Package batch implements tabular value ingestion, state reload, and export
// jobs running behind a background worker.
package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"kpicore/pkg/domain"
)

// Columns a value import file must carry. Extra columns are ignored.
var requiredColumns = []string{"kpi_id", "object_id", "granularity_id", "value", "record_time", "state"}

// Timestamp layouts accepted in record_time cells.
var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// ParseValues reads a CSV value import into string records. Validation is
// fail-fast whole-file: the first bad line rejects the import. Line numbers
// are 1-based over data rows.
func ParseValues(r io.Reader) ([]domain.ImportRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, domain.ValidationError{Field: "file", Message: "file is empty"}
	}
	if err != nil {
		return nil, domain.ValidationError{Field: "file", Message: err.Error()}
	}
	columns, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var records []domain.ImportRecord
	line := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, domain.ValidationError{Field: lineField(line), Message: err.Error()}
		}
		records = append(records, domain.ImportRecord{
			Line:          line,
			KPIID:         cell(row, columns["kpi_id"]),
			ObjectID:      cell(row, columns["object_id"]),
			GranularityID: cell(row, columns["granularity_id"]),
			Value:         cell(row, columns["value"]),
			RecordTime:    cell(row, columns["record_time"]),
			State:         cell(row, columns["state"]),
		})
	}
	if len(records) == 0 {
		return nil, domain.ValidationError{Field: "file", Message: "no data rows"}
	}
	return records, nil
}

// ConvertRecord types one import record. Errors carry the record's line.
func ConvertRecord(rec domain.ImportRecord) (domain.ImportRow, error) {
	kpiID, err := parseID(rec.KPIID)
	if err != nil {
		return domain.ImportRow{}, domain.ValidationError{Field: lineField(rec.Line), Message: fmt.Sprintf("kpi_id %q is not a valid id", rec.KPIID)}
	}
	objectID, err := parseID(rec.ObjectID)
	if err != nil {
		return domain.ImportRow{}, domain.ValidationError{Field: lineField(rec.Line), Message: fmt.Sprintf("object_id %q is not a valid id", rec.ObjectID)}
	}
	granID, err := parseID(rec.GranularityID)
	if err != nil {
		return domain.ImportRow{}, domain.ValidationError{Field: lineField(rec.Line), Message: fmt.Sprintf("granularity_id %q is not a valid id", rec.GranularityID)}
	}
	recordTime, err := parseTime(rec.RecordTime)
	if err != nil {
		return domain.ImportRow{}, domain.ValidationError{Field: lineField(rec.Line), Message: fmt.Sprintf("record_time %q is not a valid timestamp", rec.RecordTime)}
	}
	state := domain.ValueState(strings.ToLower(strings.TrimSpace(rec.State)))
	if state != domain.StateHistorical && state != domain.StatePlanned {
		return domain.ImportRow{}, domain.ValidationError{Field: lineField(rec.Line), Message: fmt.Sprintf("state %q must be historical or planned", rec.State)}
	}
	return domain.ImportRow{
		KPIID:         kpiID,
		ObjectID:      objectID,
		GranularityID: granID,
		Value:         rec.Value,
		RecordTime:    recordTime,
		State:         state,
	}, nil
}

// ParseReloadKPIs reads a CSV carrying a kpi_id column and returns the
// distinct ids in ascending order.
func ParseReloadKPIs(r io.Reader) ([]int64, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, domain.ValidationError{Field: "file", Message: "file is empty"}
	}
	if err != nil {
		return nil, domain.ValidationError{Field: "file", Message: err.Error()}
	}
	idx := -1
	for i, name := range header {
		if normalizeColumn(name) == "kpi_id" {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, domain.ValidationError{Field: "file", Message: "missing required column kpi_id"}
	}

	seen := map[int64]bool{}
	line := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, domain.ValidationError{Field: lineField(line), Message: err.Error()}
		}
		id, err := parseID(cell(row, idx))
		if err != nil {
			return nil, domain.ValidationError{Field: lineField(line), Message: fmt.Sprintf("kpi_id %q is not a valid id", cell(row, idx))}
		}
		seen[id] = true
	}
	if len(seen) == 0 {
		return nil, domain.ValidationError{Field: "file", Message: "no data rows"}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func columnIndex(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[normalizeColumn(name)] = i
	}
	for _, required := range requiredColumns {
		if _, ok := columns[required]; !ok {
			return nil, domain.ValidationError{Field: "file", Message: "missing required column " + required}
		}
	}
	return columns, nil
}

func normalizeColumn(name string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func lineField(line int) string {
	return fmt.Sprintf("line %d", line)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}
