// Command kpicore runs batch operations against the configured KPI store:
// tabular value imports, state reloads, and CSV exports. Storage, blob, and
// palette backends are selected through KPICORE_* environment variables.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"kpicore/internal/adapters/batch"
	"kpicore/internal/adapters/palette"
	"kpicore/internal/core"
	"kpicore/internal/infra/blob"
)

var exitFunc = os.Exit

func main() {
	exitFunc(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("kpicore", flag.ContinueOnError)
	flags.SetOutput(stderr)
	timeout := flags.Duration("timeout", 5*time.Minute, "overall command timeout")
	flags.Usage = func() {
		fmt.Fprintln(stderr, "usage: kpicore [flags] <import|reload|export> [arguments]")
		fmt.Fprintln(stderr, "  import <file.csv>        persist tabular values and reconcile states")
		fmt.Fprintln(stderr, "  reload [file.csv]        reconcile states, optionally scoped to the kpi ids in file")
		fmt.Fprintln(stderr, "  export [kpi-id ...]      write a CSV artifact to the blob store")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}
	rest := flags.Args()
	if len(rest) == 0 {
		flags.Usage()
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	logger := core.NewSlogLogger(slog.New(slog.NewTextHandler(stderr, nil)))
	service, err := buildService(logger)
	if err != nil {
		fmt.Fprintf(stderr, "kpicore: %v\n", err)
		return 1
	}

	switch rest[0] {
	case "import":
		if len(rest) != 2 {
			fmt.Fprintln(stderr, "kpicore: import requires exactly one file argument")
			return 2
		}
		return runImport(ctx, service, logger, rest[1], stdout, stderr)
	case "reload":
		if len(rest) > 2 {
			fmt.Fprintln(stderr, "kpicore: reload accepts at most one file argument")
			return 2
		}
		file := ""
		if len(rest) == 2 {
			file = rest[1]
		}
		return runReload(ctx, service, logger, file, stdout, stderr)
	case "export":
		return runExport(ctx, service, logger, rest[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "kpicore: unknown command %q\n", rest[0])
		flags.Usage()
		return 2
	}
}

func buildService(logger core.Logger) (*core.Service, error) {
	store, err := core.OpenPersistentStore(nil)
	if err != nil {
		return nil, err
	}
	opts := []core.ServiceOption{core.WithLogger(logger)}
	if notifier := palette.OpenFromEnv(palette.WithLogger(logger)); notifier != nil {
		opts = append(opts, core.WithPaletteNotifier(notifier))
	}
	return core.NewService(store, opts...), nil
}

func runImport(ctx context.Context, service *core.Service, logger core.Logger, path string, stdout, stderr io.Writer) int {
	file, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(stderr, "kpicore: %v\n", err)
		return 1
	}
	defer func() { _ = file.Close() }()

	records, err := batch.ParseValues(file)
	if err != nil {
		fmt.Fprintf(stderr, "kpicore: %v\n", err)
		return 1
	}

	worker := batch.NewWorker(service, nil, nil, logger)
	worker.Start()
	defer stopWorker(worker)

	job, err := worker.EnqueueImport(ctx, nil, records)
	if err != nil {
		fmt.Fprintf(stderr, "kpicore: %v\n", err)
		return 1
	}
	done, err := awaitJob(ctx, worker, job.ID)
	if err != nil {
		fmt.Fprintf(stderr, "kpicore: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "imported %d rows\n", done.Rows)
	return 0
}

func runReload(ctx context.Context, service *core.Service, logger core.Logger, path string, stdout, stderr io.Writer) int {
	var kpiIDs []int64
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(stderr, "kpicore: %v\n", err)
			return 1
		}
		kpiIDs, err = batch.ParseReloadKPIs(file)
		_ = file.Close()
		if err != nil {
			fmt.Fprintf(stderr, "kpicore: %v\n", err)
			return 1
		}
	}

	worker := batch.NewWorker(service, nil, nil, logger)
	worker.Start()
	defer stopWorker(worker)

	job, err := worker.EnqueueReload(ctx, nil, kpiIDs)
	if err != nil {
		fmt.Fprintf(stderr, "kpicore: %v\n", err)
		return 1
	}
	done, err := awaitJob(ctx, worker, job.ID)
	if err != nil {
		fmt.Fprintf(stderr, "kpicore: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "reconciled %d rows\n", done.Rows)
	return 0
}

func runExport(ctx context.Context, service *core.Service, logger core.Logger, args []string, stdout, stderr io.Writer) int {
	var kpiIDs []int64
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			fmt.Fprintf(stderr, "kpicore: invalid kpi id %q\n", arg)
			return 2
		}
		kpiIDs = append(kpiIDs, id)
	}

	blobs, err := blob.Open(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "kpicore: %v\n", err)
		return 1
	}

	worker := batch.NewWorker(service, blobs, nil, logger)
	worker.Start()
	defer stopWorker(worker)

	job, err := worker.EnqueueExport(ctx, nil, batch.ExportRequest{KPIIDs: kpiIDs})
	if err != nil {
		fmt.Fprintf(stderr, "kpicore: %v\n", err)
		return 1
	}
	done, err := awaitJob(ctx, worker, job.ID)
	if err != nil {
		fmt.Fprintf(stderr, "kpicore: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "exported %d rows to %s\n", done.Rows, done.ArtifactKey)
	return 0
}

func awaitJob(ctx context.Context, worker *batch.Worker, id string) (batch.JobRecord, error) {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		if job, ok := worker.GetJob(id); ok {
			switch job.Status {
			case batch.JobStatusSucceeded:
				return job, nil
			case batch.JobStatusFailed:
				return job, fmt.Errorf("job failed: %s", job.Error)
			}
		}
		select {
		case <-ctx.Done():
			return batch.JobRecord{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func stopWorker(worker *batch.Worker) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = worker.Stop(ctx)
}
