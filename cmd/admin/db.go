package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"polardrop.dev/internal/persistence/indexdb"
	"polardrop.dev/internal/sim/occupancy"
)

type dbFlags struct {
	dataDir *string
	worldID *string
	dbPath  *string
}

func addDBFlags(fs *flag.FlagSet) dbFlags {
	return dbFlags{
		dataDir: fs.String("data", "./data", "runtime data directory"),
		worldID: fs.String("world", "world_1", "world id"),
		dbPath:  fs.String("db", "", "sqlite db path (optional; overrides -data/-world)"),
	}
}

func (f dbFlags) open() *indexdb.SQLiteIndex {
	path := strings.TrimSpace(*f.dbPath)
	if path == "" {
		path = filepath.Join(*f.dataDir, "worlds", *f.worldID, "index", "world.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "index:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return idx
}

func runsCmd(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	df := addDBFlags(fs)
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	idx := df.open()
	defer idx.Close()

	runs, err := idx.Runs(context.Background(), *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	printRuns(os.Stdout, runs, time.Now())
}

func landingsCmd(args []string) {
	fs := flag.NewFlagSet("landings", flag.ExitOnError)
	df := addDBFlags(fs)
	runID := fs.String("run", "", "run id (required)")
	limit := fs.Int("limit", 100, "result limit")
	_ = fs.Parse(args)

	if strings.TrimSpace(*runID) == "" {
		fmt.Fprintln(os.Stderr, "missing -run")
		os.Exit(2)
	}
	idx := df.open()
	defer idx.Close()

	rows, err := idx.Landings(context.Background(), *runID, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	printLandings(os.Stdout, rows)
}

func columnsCmd(args []string) {
	fs := flag.NewFlagSet("columns", flag.ExitOnError)
	df := addDBFlags(fs)
	runID := fs.String("run", "", "run id (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*runID) == "" {
		fmt.Fprintln(os.Stderr, "missing -run")
		os.Exit(2)
	}
	idx := df.open()
	defer idx.Close()

	cols, err := idx.ColumnHeights(context.Background(), *runID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	printColumns(os.Stdout, cols)
}

func printRuns(w io.Writer, runs []indexdb.RunRow, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tWORLD\tSEED\tSTARTED\tTICKS\tSPAWNS\tLANDINGS\tREJECTIONS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			r.RunID, r.WorldID, r.Seed,
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			humanize.Comma(int64(r.LastTick)),
			humanize.Comma(int64(r.Spawns)),
			humanize.Comma(int64(r.Landings)),
			humanize.Comma(int64(r.Rejections)),
		)
	}
	_ = tw.Flush()
}

func printLandings(w io.Writer, rows []indexdb.LandingRow) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TICK\tBODY\tCELL\tHEIGHT")
	for _, l := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\n", humanize.Comma(int64(l.Tick)), l.BodyID, l.Cell, l.Height)
	}
	_ = tw.Flush()
}

// printColumns draws one bar per column, tallest stacks first.
func printColumns(w io.Writer, cols []occupancy.ColumnHeight) {
	sorted := append([]occupancy.ColumnHeight(nil), cols...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Height > sorted[j].Height })
	total := 0
	for _, c := range sorted {
		total += c.Height
		fmt.Fprintf(w, "r=%-3d a=%-3d %3d %s\n", c.R, c.A, c.Height, strings.Repeat("#", c.Height))
	}
	fmt.Fprintf(w, "%s blocks in %s columns\n", humanize.Comma(int64(total)), humanize.Comma(int64(len(sorted))))
}
