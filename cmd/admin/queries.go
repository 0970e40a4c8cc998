package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"

	persistlog "worleybiomes.ai/internal/persistence/log"
)

type querySummary struct {
	Requests int
	Points   int
	Errors   int
	TotalUS  int64
	First    time.Time
	Last     time.Time
	ByKind   map[string]int
}

func queriesCmd(args []string) {
	fs := flag.NewFlagSet("queries", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	since := fs.Duration("since", 0, "only entries newer than this (0 = all)")
	_ = fs.Parse(args)

	var cutoff time.Time
	if *since > 0 {
		cutoff = time.Now().Add(-*since)
	}
	sum, err := summarizeQueries(filepath.Join(*dataDir, "queries"), cutoff)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read queries:", err)
		os.Exit(1)
	}
	if sum.Requests == 0 {
		fmt.Println("no queries logged")
		return
	}
	avg := time.Duration(sum.TotalUS/int64(sum.Requests)) * time.Microsecond
	fmt.Printf("requests=%s points=%s errors=%d avg=%s first=%s last=%s\n",
		humanize.Comma(int64(sum.Requests)), humanize.Comma(int64(sum.Points)), sum.Errors, avg,
		humanize.Time(sum.First), humanize.Time(sum.Last))
	kinds := make([]string, 0, len(sum.ByKind))
	for k := range sum.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Printf("  %s=%d\n", k, sum.ByKind[k])
	}
}

// summarizeQueries reads every queries-*.jsonl.zst file in dir in name order.
func summarizeQueries(dir string, cutoff time.Time) (querySummary, error) {
	sum := querySummary{ByKind: map[string]int{}}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return sum, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "queries-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			return sum, err
		}
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return sum, err
		}
		sc := bufio.NewScanner(dec)
		sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
		for sc.Scan() {
			var e persistlog.QueryLogEntry
			if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
				dec.Close()
				_ = f.Close()
				return sum, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if !cutoff.IsZero() && e.Time.Before(cutoff) {
				continue
			}
			sum.Requests++
			sum.Points += e.Points
			sum.TotalUS += e.DurationUS
			sum.ByKind[e.Kind]++
			if e.Error != "" {
				sum.Errors++
			}
			if sum.First.IsZero() || e.Time.Before(sum.First) {
				sum.First = e.Time
			}
			if e.Time.After(sum.Last) {
				sum.Last = e.Time
			}
		}
		if err := sc.Err(); err != nil {
			dec.Close()
			_ = f.Close()
			return sum, err
		}
		dec.Close()
		_ = f.Close()
	}
	return sum, nil
}
