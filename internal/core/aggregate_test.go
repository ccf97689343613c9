package core

import (
	"context"
	"errors"
	"testing"

	"kpicore/pkg/domain"
)

func seedAggregates(t *testing.T) (*Service, KPI, Granularity) {
	t.Helper()
	svc, kpi, gran := seedSeries(t)
	rows := []ImportRow{
		importRow(kpi.ID, 1, gran.ID, "10", 1, StateHistorical),
		importRow(kpi.ID, 1, gran.ID, "20", 2, StateHistorical),
		importRow(kpi.ID, 1, gran.ID, "30", 3, StateHistorical),
		importRow(kpi.ID, 2, gran.ID, "5", 1, StateHistorical),
		importRow(kpi.ID, 1, gran.ID, "999", 30, StatePlanned),
	}
	if _, err := svc.SaveImportedValues(context.Background(), nil, rows); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return svc, kpi, gran
}

func TestAggregateAvgMinMax(t *testing.T) {
	svc, kpi, gran := seedAggregates(t)

	avg, err := svc.Aggregate(context.Background(), nil, AggregateRequest{KPIID: kpi.ID, ObjectIDs: []int64{1, 2}, GranularityID: gran.ID, Func: domain.AggregateAvg})
	if err != nil {
		t.Fatalf("avg: %v", err)
	}
	if avg[1] != 20.0 || avg[2] != 5.0 {
		t.Fatalf("unexpected averages %v", avg)
	}

	min, err := svc.Aggregate(context.Background(), nil, AggregateRequest{KPIID: kpi.ID, ObjectIDs: []int64{1}, GranularityID: gran.ID, Func: domain.AggregateMin})
	if err != nil {
		t.Fatalf("min: %v", err)
	}
	if min[1] != int64(10) {
		t.Fatalf("unexpected min %v", min[1])
	}

	max, err := svc.Aggregate(context.Background(), nil, AggregateRequest{KPIID: kpi.ID, ObjectIDs: []int64{1}, GranularityID: gran.ID, Func: domain.AggregateMax})
	if err != nil {
		t.Fatalf("max: %v", err)
	}
	if max[1] != int64(30) {
		t.Fatalf("unexpected max %v", max[1])
	}
}

func TestAggregateExcludesPlannedAndHonorsWindow(t *testing.T) {
	svc, kpi, gran := seedAggregates(t)

	// the planned 999 row must not shift the numbers
	max, err := svc.Aggregate(context.Background(), nil, AggregateRequest{KPIID: kpi.ID, ObjectIDs: []int64{1}, GranularityID: gran.ID, Func: domain.AggregateMax})
	if err != nil {
		t.Fatalf("max: %v", err)
	}
	if max[1] != int64(30) {
		t.Fatalf("planned rows leaked into aggregation: %v", max[1])
	}

	from, to := day(2), day(3)
	avg, err := svc.Aggregate(context.Background(), nil, AggregateRequest{KPIID: kpi.ID, ObjectIDs: []int64{1}, GranularityID: gran.ID, From: &from, To: &to, Func: domain.AggregateAvg})
	if err != nil {
		t.Fatalf("windowed avg: %v", err)
	}
	if avg[1] != 25.0 {
		t.Fatalf("unexpected windowed average %v", avg[1])
	}
}

func TestAggregateMissingObjectsReportZero(t *testing.T) {
	svc, kpi, gran := seedAggregates(t)

	out, err := svc.Aggregate(context.Background(), nil, AggregateRequest{KPIID: kpi.ID, ObjectIDs: []int64{42}, GranularityID: gran.ID, Func: domain.AggregateAvg})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if out[42] != 0 {
		t.Fatalf("expected zero for missing object, got %v", out[42])
	}
}

func TestAggregateMostFrequent(t *testing.T) {
	svc := newTestService(t)
	kpi := mustKPI(t, svc, nil, KPIInput{Name: "vendor", ObjectType: "cell", Label: "vendor", ValType: domain.ValTypeStr})
	gran := mustGranularity(t, svc, nil, kpi.ID, "daily")

	rows := []ImportRow{
		importRow(kpi.ID, 1, gran.ID, "ericsson", 1, StateHistorical),
		importRow(kpi.ID, 1, gran.ID, "huawei", 2, StateHistorical),
		importRow(kpi.ID, 1, gran.ID, "ericsson", 3, StateHistorical),
	}
	if _, err := svc.SaveImportedValues(context.Background(), nil, rows); err != nil {
		t.Fatalf("seed: %v", err)
	}

	out, err := svc.Aggregate(context.Background(), nil, AggregateRequest{KPIID: kpi.ID, ObjectIDs: []int64{1}, GranularityID: gran.ID, Func: domain.AggregateMostFrequent})
	if err != nil {
		t.Fatalf("most_frequent: %v", err)
	}
	if out[1] != "ericsson" {
		t.Fatalf("unexpected mode %v", out[1])
	}
}

func TestAggregateRejectsUnsupportedCombinations(t *testing.T) {
	svc := newTestService(t)
	strKPI := mustKPI(t, svc, nil, KPIInput{Name: "vendor", ObjectType: "cell", Label: "vendor", ValType: domain.ValTypeStr})
	strGran := mustGranularity(t, svc, nil, strKPI.ID, "daily")
	multiKPI := mustKPI(t, svc, nil, KPIInput{Name: "cells", ObjectType: "site", Label: "cells", ValType: domain.ValTypeInt, Multiple: true})
	multiGran := mustGranularity(t, svc, nil, multiKPI.ID, "daily")

	var vErr domain.ValidationError

	_, err := svc.Aggregate(context.Background(), nil, AggregateRequest{KPIID: strKPI.ID, ObjectIDs: []int64{1}, GranularityID: strGran.ID, Func: domain.AggregateAvg})
	if !errors.As(err, &vErr) {
		t.Fatalf("expected avg over strings rejected, got %v", err)
	}

	_, err = svc.Aggregate(context.Background(), nil, AggregateRequest{KPIID: multiKPI.ID, ObjectIDs: []int64{1}, GranularityID: multiGran.ID, Func: domain.AggregateMax})
	if !errors.As(err, &vErr) {
		t.Fatalf("expected multiple-valued kpi rejected, got %v", err)
	}

	_, err = svc.Aggregate(context.Background(), nil, AggregateRequest{KPIID: strKPI.ID, ObjectIDs: []int64{1}, GranularityID: strGran.ID, Func: "median"})
	if !errors.As(err, &vErr) {
		t.Fatalf("expected unknown function rejected, got %v", err)
	}
}

func TestAggregateRequiresOwnedGranularity(t *testing.T) {
	svc := newTestService(t)
	kpi := mustKPI(t, svc, nil, KPIInput{Name: "availability", ObjectType: "cell", Label: "availability", ValType: domain.ValTypeInt})
	other := mustKPI(t, svc, nil, KPIInput{Name: "traffic", ObjectType: "site", Label: "traffic", ValType: domain.ValTypeInt})
	foreign := mustGranularity(t, svc, nil, other.ID, "daily")

	var nfErr domain.NotFoundError
	_, err := svc.Aggregate(context.Background(), nil, AggregateRequest{KPIID: kpi.ID, ObjectIDs: []int64{1}, GranularityID: 9999, Func: domain.AggregateAvg})
	if !errors.As(err, &nfErr) || nfErr.Entity != EntityGranularity {
		t.Fatalf("expected unknown granularity rejected, got %v", err)
	}

	_, err = svc.Aggregate(context.Background(), nil, AggregateRequest{KPIID: kpi.ID, ObjectIDs: []int64{1}, GranularityID: foreign.ID, Func: domain.AggregateAvg})
	if !errors.As(err, &nfErr) || nfErr.Entity != EntityGranularity {
		t.Fatalf("expected foreign granularity rejected, got %v", err)
	}
}
