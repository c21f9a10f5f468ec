// Command flatsheet analyzes a hierarchical JSON file and flattens it into
// relational tables on a chosen sink (CSV directory, SQLite, Postgres or SQL
// Server).
//
// Typical use:
//
//	flatsheet -input releases.json.gz -sink csv -dsn ./out
//	flatsheet -input releases.json -save-state model.json -analyze-only
//	flatsheet -input releases.json -state model.json -selection selection.json -sink sqlite -dsn out.db
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"flatsheet/internal/analyze"
	"flatsheet/internal/flatten"
	"flatsheet/internal/metrics"
	"flatsheet/internal/metrics/datadog"
	"flatsheet/internal/ordered"
	"flatsheet/internal/sink"
	"flatsheet/internal/source"

	// register all sink backends with the factory.
	_ "flatsheet/internal/sink/all"
)

func main() {
	var (
		inputPath     string
		rootKey       string
		lineDelimited bool
		statePath     string
		saveStatePath string
		selectionPath string
		sinkKind      string
		dsn           string
		count         bool
		analyzeOnly   bool
		metricsFlg    string
	)

	flag.StringVar(&inputPath, "input", "", "input JSON file (plain or gzip)")
	flag.StringVar(&rootKey, "root", "", "envelope field holding the record array (default: auto releases/records)")
	flag.BoolVar(&lineDelimited, "jsonl", false, "treat input as line-delimited JSON")
	flag.StringVar(&statePath, "state", "", "restore analysis state from this file instead of re-analyzing")
	flag.StringVar(&saveStatePath, "save-state", "", "write analysis state to this file")
	flag.StringVar(&selectionPath, "selection", "", "flattening options JSON (selection, count, keys); default: all tables, split per recommendation")
	flag.StringVar(&sinkKind, "sink", "csv", "output sink kind (csv, sqlite, postgres, mssql)")
	flag.StringVar(&dsn, "dsn", "", "sink DSN: directory for csv, connection string for databases")
	flag.BoolVar(&count, "count", false, "add <key>Count columns for arrays")
	flag.BoolVar(&analyzeOnly, "analyze-only", false, "stop after analysis, writing no output tables (combine with -save-state)")
	flag.StringVar(&metricsFlg, "metrics-backend", "none", "metrics backend (none, datadog)")
	flag.Parse()

	if inputPath == "" {
		fatalf("-input is required")
	}

	logger := log.New(os.Stderr, "flatsheet: ", log.LstdFlags)
	ctx := context.Background()

	switch metricsFlg {
	case "", "none":
	case "datadog":
		b, err := datadog.NewBackend(ctx, datadog.Options{JobName: "flatsheet"})
		if err != nil {
			fatalf("datadog backend: %v", err)
		}
		metrics.SetBackend(b)
		defer func() {
			if err := metrics.Close(); err != nil {
				logger.Printf("metrics close: %v", err)
			}
		}()
	default:
		fatalf("unknown metrics backend %q", metricsFlg)
	}

	srcOpts := source.Options{RootKey: rootKey, LineDelimited: lineDelimited}

	analyzer, err := buildAnalyzer(ctx, inputPath, statePath, srcOpts, logger)
	if err != nil {
		fatalf("%v", err)
	}
	if saveStatePath != "" {
		if err := writeState(analyzer, saveStatePath); err != nil {
			fatalf("%v", err)
		}
		logger.Printf("analysis state written to %s", saveStatePath)
	}
	if analyzeOnly {
		return
	}

	opts, err := loadOptions(selectionPath, analyzer, count)
	if err != nil {
		fatalf("%v", err)
	}

	if err := run(ctx, inputPath, srcOpts, opts, analyzer, sinkKind, dsn, logger); err != nil {
		fatalf("%v", err)
	}
}

// buildAnalyzer restores saved analysis state or analyzes the input file.
func buildAnalyzer(ctx context.Context, inputPath, statePath string, srcOpts source.Options, logger *log.Logger) (*analyze.Analyzer, error) {
	if statePath != "" {
		f, err := os.Open(statePath)
		if err != nil {
			return nil, fmt.Errorf("open state: %w", err)
		}
		defer f.Close()
		a, err := analyze.Restore(f, logger)
		if err != nil {
			return nil, err
		}
		logger.Printf("restored analysis state (%d records) from %s", a.Records(), statePath)
		return a, nil
	}

	a := analyze.New(analyze.DefaultConfig(), logger)
	start := time.Now()
	if err := streamInto(ctx, inputPath, srcOpts, logger, func(rec *ordered.Map) error {
		a.ProcessRecord(rec)
		metrics.IncCounter(metrics.MetricRecords, 1, metrics.Labels{"phase": "analyze"})
		return nil
	}); err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	metrics.ObserveHistogram(metrics.MetricRunSeconds, time.Since(start).Seconds(), metrics.Labels{"phase": "analyze"})
	logger.Printf("analyzed %d records, %d tables", a.Records(), len(a.Model()))
	return a, nil
}

func writeState(a *analyze.Analyzer, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create state: %w", err)
	}
	defer f.Close()
	return a.SaveState(f)
}

// loadOptions reads the flattening options file, or derives a default
// selection covering every discovered table with the analyzer's split
// recommendations.
func loadOptions(path string, a *analyze.Analyzer, count bool) (flatten.Options, error) {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return flatten.Options{}, fmt.Errorf("open selection: %w", err)
		}
		defer f.Close()
		var opts flatten.Options
		if err := json.NewDecoder(f).Decode(&opts); err != nil {
			return flatten.Options{}, fmt.Errorf("decode selection: %w", err)
		}
		if count {
			opts.Count = true
		}
		return opts, nil
	}

	recs := a.Recommendations()
	selection := make(map[string]*flatten.TableConfig, len(recs))
	for name, split := range recs {
		selection[name] = &flatten.TableConfig{Split: split, PrettyHeaders: true}
	}
	return flatten.Options{Selection: selection, Count: count}, nil
}

// run flattens the input into the configured sink.
func run(ctx context.Context, inputPath string, srcOpts source.Options, opts flatten.Options, a *analyze.Analyzer, sinkKind, dsn string, logger *log.Logger) error {
	f, err := flatten.New(opts, a.Model(), logger)
	if err != nil {
		return err
	}

	out, err := sink.New(ctx, sink.Config{Kind: sinkKind, DSN: dsn, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			logger.Printf("sink close: %v", err)
		}
	}()

	specs := sink.Specs(f)
	if err := out.Open(ctx, specs); err != nil {
		return err
	}
	specByName := make(map[string]sink.Spec, len(specs))
	for _, s := range specs {
		specByName[s.Name] = s
	}

	start := time.Now()
	records := 0
	if err := streamInto(ctx, inputPath, srcOpts, logger, func(rec *ordered.Map) error {
		records++
		metrics.IncCounter(metrics.MetricRecords, 1, metrics.Labels{"phase": "flatten"})
		for name, rows := range f.FlattenRecord(rec) {
			outName := f.OutputName(name)
			spec, ok := specByName[outName]
			if !ok {
				continue
			}
			values := make([][]any, 0, len(rows))
			for _, row := range rows {
				values = append(values, spec.Values(row))
			}
			if err := out.WriteRows(ctx, outName, values); err != nil {
				return err
			}
			metrics.IncCounter(metrics.MetricRows, float64(len(rows)), metrics.Labels{"table": outName})
		}
		return nil
	}); err != nil {
		return fmt.Errorf("flatten: %w", err)
	}
	metrics.ObserveHistogram(metrics.MetricRunSeconds, time.Since(start).Seconds(), metrics.Labels{"phase": "flatten"})
	logger.Printf("flattened %d records into %d tables in %s", records, len(specs), time.Since(start).Round(time.Millisecond))
	return nil
}

// streamInto opens the input and feeds each record to fn on the caller's
// goroutine.
func streamInto(ctx context.Context, path string, opts source.Options, logger *log.Logger, fn func(*ordered.Map) error) error {
	rc, err := source.Open(path)
	if err != nil {
		return err
	}
	defer rc.Close()

	ch := make(chan *ordered.Map, 64)
	errCh := make(chan error, 1)
	go func() {
		defer close(ch)
		errCh <- source.StreamRecords(ctx, rc, opts, ch, func(n int, err error) {
			logger.Printf("record %d skipped: %v", n, err)
		})
	}()

	for rec := range ch {
		if err := fn(rec); err != nil {
			// Drain so the streaming goroutine can exit.
			for range ch {
			}
			<-errCh
			return err
		}
	}
	return <-errCh
}

func fatalf(format string, v ...any) {
	fmt.Fprintf(os.Stderr, "flatsheet: "+format+"\n", v...)
	os.Exit(1)
}
