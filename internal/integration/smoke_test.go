package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kpicore/internal/adapters/batch"
	"kpicore/internal/core"
	"kpicore/internal/infra/blob"
	blobs3 "kpicore/internal/infra/blob/s3"
	"kpicore/internal/infra/persistence/memory"
	"kpicore/internal/infra/persistence/sqlite"
	"kpicore/pkg/domain"
)

// TestIntegrationSmoke exercises one end-to-end import/export cycle for each
// in-process storage backend and a put/get round trip for each blob adapter.
// It intentionally keeps scope tiny so it can act as a fast CI health check.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	storeVariants := []struct {
		name string
		open func(t *testing.T) core.PersistentStore
	}{
		{
			name: "memory-store",
			open: func(_ *testing.T) core.PersistentStore {
				return memory.NewStore(core.NewDefaultRulesEngine())
			},
		},
		{
			name: "sqlite-store",
			open: func(t *testing.T) core.PersistentStore {
				path := filepath.Join(t.TempDir(), "kpicore.db")
				s, err := sqlite.NewStore(path, core.NewDefaultRulesEngine())
				if err != nil {
					t.Fatalf("new sqlite store: %v", err)
				}
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
	}

	for _, sv := range storeVariants {
		t.Run(sv.name, func(t *testing.T) {
			store := sv.open(t)
			metrics := core.NewExpvarMetricsRecorder("")
			var traceBuffer bytes.Buffer
			tracer := core.NewJSONTracer(&traceBuffer)
			svc := core.NewService(store,
				core.WithMetricsRecorder(metrics),
				core.WithTracer(tracer),
			)

			kpi, _, err := svc.CreateKPI(ctx, nil, core.KPIInput{Name: "throughput", ObjectType: "cell", Label: "throughput", ValType: domain.ValTypeInt})
			if err != nil {
				t.Fatalf("create kpi: %v", err)
			}
			gran, _, err := svc.CreateGranularity(ctx, nil, core.GranularityInput{KPIID: kpi.ID, Name: "daily"})
			if err != nil {
				t.Fatalf("create granularity: %v", err)
			}

			blobStore := blob.NewMemory()
			worker := batch.NewWorker(svc, blobStore, nil, nil)
			worker.Start()
			t.Cleanup(func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = worker.Stop(stopCtx)
			})

			csv := strings.Join([]string{
				"kpi_id,object_id,granularity_id,value,record_time,state",
				fmt.Sprintf("%d,1,%d,10,2024-01-01T00:00:00Z,historical", kpi.ID, gran.ID),
				fmt.Sprintf("%d,1,%d,20,2024-01-02T00:00:00Z,historical", kpi.ID, gran.ID),
				"",
			}, "\n")
			records, err := batch.ParseValues(strings.NewReader(csv))
			if err != nil {
				t.Fatalf("parse import: %v", err)
			}
			job, err := worker.EnqueueImport(ctx, nil, records)
			if err != nil {
				t.Fatalf("enqueue import: %v", err)
			}
			done := awaitJob(t, worker, job.ID)
			if done.Status != batch.JobStatusSucceeded || done.Rows != 2 {
				t.Fatalf("unexpected import result: %+v", done)
			}

			current, err := svc.ListValues(ctx, nil, domain.ValueFilter{KPIIDs: []int64{kpi.ID}, State: domain.StateCurrent})
			if err != nil {
				t.Fatalf("list values: %v", err)
			}
			if len(current) != 1 || current[0].RecordTime.Day() != 2 {
				t.Fatalf("expected latest row to be current, got %+v", current)
			}

			export, err := worker.EnqueueExport(ctx, nil, batch.ExportRequest{KPIIDs: []int64{kpi.ID}})
			if err != nil {
				t.Fatalf("enqueue export: %v", err)
			}
			exported := awaitJob(t, worker, export.ID)
			if exported.Status != batch.JobStatusSucceeded || exported.ArtifactKey == "" {
				t.Fatalf("unexpected export result: %+v", exported)
			}
			_, artifact, err := blobStore.Get(ctx, exported.ArtifactKey)
			if err != nil {
				t.Fatalf("get artifact: %v", err)
			}
			content, err := io.ReadAll(artifact)
			if closeErr := artifact.Close(); closeErr != nil {
				t.Fatalf("close artifact: %v", closeErr)
			}
			if err != nil {
				t.Fatalf("read artifact: %v", err)
			}
			if !strings.HasPrefix(string(content), "kpi_id,object_id") {
				t.Fatalf("unexpected artifact header: %q", content)
			}

			snapshot := metrics.Snapshot()
			if snapshot.Results["create_kpi"]["success"] == 0 {
				t.Fatalf("expected create_kpi success metric, got %+v", snapshot.Results)
			}
			if traceBuffer.Len() == 0 {
				t.Fatal("expected trace exporter to emit spans")
			}
			var foundSpan bool
			for _, entry := range tracer.Entries() {
				if entry.Operation == "create_kpi" && entry.Status == "success" {
					foundSpan = true
					break
				}
			}
			if !foundSpan {
				t.Fatalf("expected trace entry for create_kpi, entries=%+v", tracer.Entries())
			}
		})
	}

	blobVariants := []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{
			name: "memory-blob",
			open: func(_ *testing.T) blob.Store { return blob.NewMemory() },
		},
		{
			name: "filesystem-blob",
			open: func(t *testing.T) blob.Store {
				fs, err := blob.NewFilesystem(t.TempDir())
				if err != nil {
					t.Fatalf("new filesystem blob: %v", err)
				}
				return fs
			},
		},
		{
			name: "mock-s3-blob",
			open: func(_ *testing.T) blob.Store { return blobs3.NewMockForTests() },
		},
	}

	for _, bv := range blobVariants {
		t.Run(bv.name, func(t *testing.T) {
			bs := bv.open(t)
			key := "exports/smoke/values.csv"
			payload := []byte("kpi_id,object_id\n1,1\n")
			info, err := bs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{ContentType: "text/csv"})
			if err != nil {
				t.Fatalf("blob put: %v", err)
			}
			if info.Key != key || info.Size != int64(len(payload)) {
				t.Fatalf("unexpected put info: %+v", info)
			}
			got, rc, err := bs.Get(ctx, key)
			if err != nil {
				t.Fatalf("blob get: %v", err)
			}
			data, err := io.ReadAll(rc)
			if closeErr := rc.Close(); closeErr != nil {
				t.Fatalf("close blob reader: %v", closeErr)
			}
			if err != nil {
				t.Fatalf("read blob: %v", err)
			}
			if !bytes.Equal(data, payload) || got.ContentType != "text/csv" {
				t.Fatalf("unexpected get result: %+v", got)
			}
		})
	}
}

func awaitJob(t *testing.T, w *batch.Worker, id string) batch.JobRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if job, ok := w.GetJob(id); ok && (job.Status == batch.JobStatusSucceeded || job.Status == batch.JobStatusFailed) {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return batch.JobRecord{}
}
