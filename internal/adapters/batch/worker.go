package batch

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"kpicore/internal/core"
	blobcore "kpicore/internal/infra/blob/core"
	"kpicore/pkg/codec"
	"kpicore/pkg/domain"
)

// JobType identifies the kind of background work a job performs.
type JobType string

const (
	JobImport JobType = "import"
	JobReload JobType = "reload"
	JobExport JobType = "export"
)

// JobStatus describes the lifecycle stage of a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobRecord tracks a background job and its outcome.
type JobRecord struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	RequestedBy string     `json:"requested_by,omitempty"`
	Rows        int        `json:"rows,omitempty"`
	KPIIDs      []int64    `json:"kpi_ids,omitempty"`
	ArtifactKey string     `json:"artifact_key,omitempty"`
	ArtifactURL string     `json:"artifact_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type task struct {
	id      string
	kind    JobType
	access  *core.AccessContext
	rows    []domain.ImportRow
	kpiIDs  []int64
	request ExportRequest
}

// Worker runs import, reload, and export jobs asynchronously. Import
// validation happens synchronously at enqueue time; only persistence and
// reconciliation run in the background.
type Worker struct {
	service *core.Service
	blobs   blobcore.Store
	audit   core.AuditRecorder
	logger  core.Logger

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*JobRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs a job worker over the service. The blob store receives
// export artifacts and may be nil when exports are unused.
func NewWorker(service *core.Service, blobs blobcore.Store, audit core.AuditRecorder, logger core.Logger) *Worker {
	if audit == nil {
		audit = core.NewMemoryAuditRecorder()
	}
	if logger == nil {
		logger = core.NewSlogLogger(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		service: service,
		blobs:   blobs,
		audit:   audit,
		logger:  logger,
		queue:   make(chan task, 32),
		jobs:    make(map[string]*JobRecord),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing queued jobs.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for in-flight work.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// EnqueueImport validates the records against the catalog and schedules a
// persist-and-reconcile job. The whole file is rejected on the first bad line.
func (w *Worker) EnqueueImport(ctx context.Context, access *core.AccessContext, records []domain.ImportRecord) (JobRecord, error) {
	if len(records) == 0 {
		return JobRecord{}, domain.ValidationError{Field: "file", Message: "no data rows"}
	}
	rows := make([]domain.ImportRow, 0, len(records))
	for _, rec := range records {
		row, err := ConvertRecord(rec)
		if err != nil {
			return JobRecord{}, err
		}
		rows = append(rows, row)
	}
	if err := w.validateAgainstCatalog(ctx, records, rows); err != nil {
		return JobRecord{}, err
	}
	return w.enqueue(access, task{kind: JobImport, rows: rows})
}

// EnqueueReload schedules a state reconciliation over the given KPI ids. An
// empty set reconciles every series.
func (w *Worker) EnqueueReload(_ context.Context, access *core.AccessContext, kpiIDs []int64) (JobRecord, error) {
	return w.enqueue(access, task{kind: JobReload, kpiIDs: kpiIDs})
}

// EnqueueExport schedules a value export. The artifact lands in the blob
// store under the job's key.
func (w *Worker) EnqueueExport(_ context.Context, access *core.AccessContext, req ExportRequest) (JobRecord, error) {
	if w.blobs == nil {
		return JobRecord{}, fmt.Errorf("export blob store not configured")
	}
	return w.enqueue(access, task{kind: JobExport, request: req})
}

// GetJob returns a snapshot of the job record.
func (w *Worker) GetJob(id string) (JobRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return JobRecord{}, false
	}
	return record.copy(), true
}

// ListJobs returns snapshots of every job, newest first.
func (w *Worker) ListJobs() []JobRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]JobRecord, 0, len(w.jobs))
	for _, record := range w.jobs {
		out = append(out, record.copy())
	}
	return out
}

// validateAgainstCatalog checks every row against the committed catalog:
// referenced KPIs exist, granularities belong to them, and values encode
// under each KPI's declared type.
func (w *Worker) validateAgainstCatalog(ctx context.Context, records []domain.ImportRecord, rows []domain.ImportRow) error {
	return w.service.Store().View(ctx, func(view core.TransactionView) error {
		for i, row := range rows {
			line := records[i].Line
			kpi, ok := view.FindKPI(row.KPIID)
			if !ok {
				return domain.ValidationError{Field: lineField(line), Message: fmt.Sprintf("kpi %d not found", row.KPIID)}
			}
			gran, ok := view.FindGranularity(row.GranularityID)
			if !ok || gran.KPIID != kpi.ID {
				return domain.ValidationError{Field: lineField(line), Message: fmt.Sprintf("granularity %d does not belong to kpi %d", row.GranularityID, row.KPIID)}
			}
			if err := codec.Validate(kpi.ValType, kpi.Multiple, row.Value); err != nil {
				return domain.ValidationError{Field: lineField(line), Message: err.Error()}
			}
		}
		return nil
	})
}

func (w *Worker) enqueue(access *core.AccessContext, t task) (JobRecord, error) {
	t.id = newID()
	t.access = access
	now := time.Now().UTC()
	record := JobRecord{
		ID:          t.id,
		Type:        t.kind,
		Status:      JobStatusQueued,
		RequestedBy: actorFor(access),
		KPIIDs:      append([]int64(nil), t.kpiIDs...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[t.id] = &record
	snapshot := record.copy()
	w.mu.Unlock()

	select {
	case w.queue <- t:
	default:
		w.fail(t.id, "job queue full")
		return JobRecord{}, fmt.Errorf("job queue full")
	}
	return snapshot, nil
}

func (w *Worker) process(t task) {
	w.setStatus(t.id, JobStatusRunning, "")
	switch t.kind {
	case JobImport:
		n, err := w.service.SaveImportedValues(w.ctx, t.access, t.rows)
		if err != nil {
			w.fail(t.id, err.Error())
			return
		}
		w.complete(t.id, n, "", "")
	case JobReload:
		var n int
		var err error
		if len(t.kpiIDs) == 0 {
			n, err = w.service.ReloadStates(w.ctx, t.access)
		} else {
			n, err = w.service.ReconcileStates(w.ctx, t.access, t.kpiIDs)
		}
		if err != nil {
			w.fail(t.id, err.Error())
			return
		}
		w.complete(t.id, n, "", "")
	case JobExport:
		payload, rows, err := buildExport(w.ctx, w.service, t.access, t.request)
		if err != nil {
			w.fail(t.id, err.Error())
			return
		}
		key := fmt.Sprintf("exports/%s/values.csv", t.id)
		info, err := w.blobs.Put(w.ctx, key, bytes.NewReader(payload), blobcore.PutOptions{ContentType: "text/csv", Metadata: map[string]string{"job": t.id}})
		if err != nil {
			w.fail(t.id, fmt.Sprintf("store artifact: %v", err))
			return
		}
		w.complete(t.id, rows, info.Key, info.URL)
	default:
		w.fail(t.id, fmt.Sprintf("unknown job type %s", t.kind))
	}
}

func (w *Worker) setStatus(id string, status JobStatus, message string) {
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = time.Now().UTC()
	}
	w.mu.Unlock()
}

func (w *Worker) complete(id string, rows int, artifactKey, artifactURL string) {
	now := time.Now().UTC()
	var jobType JobType
	var actor string
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = JobStatusSucceeded
		record.Error = ""
		record.Rows = rows
		record.ArtifactKey = artifactKey
		record.ArtifactURL = artifactURL
		record.UpdatedAt = now
		record.CompletedAt = &now
		jobType = record.Type
		actor = record.RequestedBy
	}
	w.mu.Unlock()
	w.logger.Info("job completed", "job", id, "type", jobType, "rows", rows)
	w.recordAudit(jobType, actor, true, "", now)
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	var jobType JobType
	var actor string
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = JobStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
		jobType = record.Type
		actor = record.RequestedBy
	}
	w.mu.Unlock()
	w.logger.Error("job failed", "job", id, "type", jobType, "error", reason)
	w.recordAudit(jobType, actor, false, reason, now)
}

func (w *Worker) recordAudit(jobType JobType, actor string, success bool, message string, at time.Time) {
	entry := core.AuditEntry{
		Operation:  "job_" + string(jobType),
		Actor:      actor,
		Success:    success,
		Error:      message,
		OccurredAt: at,
	}
	if err := w.audit.Record(w.ctx, entry); err != nil {
		w.logger.Warn("audit record failed", "job_type", jobType, "error", err)
	}
}

func (r JobRecord) copy() JobRecord {
	dup := r
	dup.KPIIDs = append([]int64(nil), r.KPIIDs...)
	return dup
}

func actorFor(access *core.AccessContext) string {
	tokens := access.Tokens()
	if len(tokens) == 0 {
		return ""
	}
	return tokens[0]
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}
