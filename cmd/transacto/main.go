package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dimslalom/transacto/internal/model"
	"github.com/dimslalom/transacto/internal/service"
)

func main() {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	lakeDir := os.Getenv("TRANSACTO_LAKE_DIR")
	if lakeDir == "" {
		lakeDir = "data_lake"
	}

	lake, err := service.New(lakeDir)
	if err != nil {
		log.Fatalf("open lake at %s: %v", lakeDir, err)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "ingest":
		runIngest(lake, args)
	case "reconcile":
		runReconcile(lake, args)
	case "snapshot":
		runSnapshot(lake)
	case "search":
		runSearch(lake, args)
	case "fetch":
		runFetch(lake, args)
	case "watch":
		runWatch(lake, lakeDir, args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: transacto <command> [args]

  ingest <file> [folder]        extract a document and stage its transactions
  reconcile [folder]            merge staged extractions into the master ledger
  snapshot                      print the full merged ledger
  search <query> [fields...]    find ledger rows (default fields: description, payee, source_file)
  fetch [folder] [name]         print staged canonical rows
  watch [folder]                reconcile automatically while the raw zone changes`)
}

func runIngest(lake *service.Lake, args []string) {
	if len(args) < 1 {
		log.Fatal("ingest: missing file argument")
	}
	folder := ""
	if len(args) > 1 {
		folder = args[1]
	}
	table, err := lake.Ingest(args[0], folder)
	if err != nil {
		log.Fatalf("ingest %s: %v", args[0], err)
	}
	printTable(table)
}

func runReconcile(lake *service.Lake, args []string) {
	folder := ""
	if len(args) > 0 {
		folder = args[0]
	}
	if err := lake.Reconcile(folder); err != nil {
		log.Fatalf("reconcile: %v", err)
	}
}

func runSnapshot(lake *service.Lake) {
	table, err := lake.Snapshot()
	if err != nil {
		log.Fatalf("snapshot: %v", err)
	}
	printTable(table)
}

func runSearch(lake *service.Lake, args []string) {
	if len(args) < 1 {
		log.Fatal("search: missing query argument")
	}
	table, err := lake.Find(args[0], args[1:])
	if err != nil {
		log.Fatalf("search: %v", err)
	}
	printTable(table)
}

func runFetch(lake *service.Lake, args []string) {
	folder, name := "", ""
	if len(args) > 0 {
		folder = args[0]
	}
	if len(args) > 1 {
		name = args[1]
	}
	table, err := lake.Fetch(folder, name)
	if err != nil {
		log.Fatalf("fetch: %v", err)
	}
	printTable(table)
}

// runWatch polls the raw zone for changes and feeds the debounced merge
// watcher. Polling stands in for a real filesystem watcher here in the glue
// layer; the core only sees change notifications.
func runWatch(lake *service.Lake, lakeDir string, args []string) {
	folder := ""
	if len(args) > 0 {
		folder = args[0]
	}
	if folder == "" {
		folder = service.DefaultFolder
	}

	debounce := service.DefaultDebounce
	if ms := os.Getenv("TRANSACTO_DEBOUNCE_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 {
			debounce = time.Duration(v) * time.Millisecond
		}
	}

	watcher := service.NewMergeWatcher(debounce, func() error {
		if err := lake.ProcessRaw(folder); err != nil {
			log.Printf("[watch] process raw: %v", err)
		}
		return lake.Reconcile(folder)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go pollRawZone(ctx, filepath.Join(lakeDir, "raw", folder), watcher)

	log.Printf("[watch] watching %s (debounce %s)", folder, debounce)
	watcher.Run(ctx)
}

// pollRawZone fingerprints the raw folder every 250ms and notifies the
// watcher on any create/modify/delete.
func pollRawZone(ctx context.Context, dir string, watcher *service.MergeWatcher) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	last := fingerprintDir(dir)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if fp := fingerprintDir(dir); fp != last {
				last = fp
				watcher.Notify()
			}
		}
	}
}

func fingerprintDir(dir string) string {
	var fp string
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		fp += fmt.Sprintf("%s:%d:%d;", path, info.Size(), info.ModTime().UnixNano())
		return nil
	})
	return fp
}

func printTable(table model.Table) {
	if table == nil {
		table = model.Table{}
	}
	data, err := json.MarshalIndent(table, "", "    ")
	if err != nil {
		log.Fatalf("encode output: %v", err)
	}
	fmt.Println(string(data))
}
