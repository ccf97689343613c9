package batch

import (
	"bytes"
	"context"
	"encoding/csv"
	"sort"
	"strconv"
	"time"

	"kpicore/internal/core"
	"kpicore/pkg/domain"
)

// ExportRequest selects the values an export job writes out. Zero and nil
// fields are ignored.
type ExportRequest struct {
	KPIIDs         []int64    `json:"kpi_ids,omitempty"`
	ObjectIDs      []int64    `json:"object_ids,omitempty"`
	GranularityIDs []int64    `json:"granularity_ids,omitempty"`
	From           *time.Time `json:"from,omitempty"`
	To             *time.Time `json:"to,omitempty"`
}

// buildExport renders the selected values as CSV, ordered by object, kpi,
// granularity, and record time. Returns the payload and row count.
func buildExport(ctx context.Context, service *core.Service, access *core.AccessContext, req ExportRequest) ([]byte, int, error) {
	values, err := service.ListValues(ctx, access, domain.ValueFilter{
		KPIIDs:         req.KPIIDs,
		ObjectIDs:      req.ObjectIDs,
		GranularityIDs: req.GranularityIDs,
		From:           req.From,
		To:             req.To,
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(values, func(i, j int) bool {
		a, b := values[i], values[j]
		if a.ObjectID != b.ObjectID {
			return a.ObjectID < b.ObjectID
		}
		if a.KPIID != b.KPIID {
			return a.KPIID < b.KPIID
		}
		if a.GranularityID != b.GranularityID {
			return a.GranularityID < b.GranularityID
		}
		return a.RecordTime.Before(b.RecordTime)
	})

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(requiredColumns); err != nil {
		return nil, 0, err
	}
	for _, value := range values {
		row := []string{
			strconv.FormatInt(value.KPIID, 10),
			strconv.FormatInt(value.ObjectID, 10),
			strconv.FormatInt(value.GranularityID, 10),
			value.Value,
			value.RecordTime.UTC().Format(time.RFC3339),
			string(value.State),
		}
		if err := writer.Write(row); err != nil {
			return nil, 0, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), len(values), nil
}
