// Copyright 2025 Vectral Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	normpipe "github.com/vectral/normpipe"
	"github.com/vectral/normpipe/config"
	"github.com/vectral/normpipe/core"
)

func main() {
	app := &cli.App{
		Name:  "normpipe",
		Usage: "Indexing pipeline for regulatory and construction documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Index all documents under the given roots",
				ArgsUsage: "ROOT [ROOT...]",
				Action:    runCommand,
			},
			{
				Name:   "resume",
				Usage:  "Resume an interrupted run by ID",
				Action: resumeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "run-id",
						Usage:    "ID of the run to resume",
						Required: true,
					},
				},
			},
			{
				Name:   "repair",
				Usage:  "Backfill vector stores that missed writes during past runs",
				Action: repairCommand,
			},
			{
				Name:   "reset",
				Usage:  "Forget a document so the next run reprocesses it",
				Action: resetCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "fingerprint",
						Aliases:  []string{"f"},
						Usage:    "Hex content fingerprint of the document",
						Required: true,
					},
				},
			},
			{
				Name:   "report",
				Usage:  "Print a recorded run's summary, or ledger-wide counts",
				Action: reportCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "run-id",
						Usage: "ID of the run to report on (omit for ledger-wide counts)",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Query indexed chunks by semantic similarity",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "max-hits",
						Usage: "Maximum number of results",
						Value: 10,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return nil
}

func openIndexer(c *cli.Context) (*normpipe.Indexer, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	return normpipe.NewIndexer(c.Context, cfg)
}

func runCommand(c *cli.Context) error {
	roots := c.Args().Slice()
	if len(roots) == 0 {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}
		roots = cfg.Discovery.Roots
	}
	if len(roots) == 0 {
		return fmt.Errorf("no roots given: pass them as arguments or set discovery.roots")
	}

	idx, err := openIndexer(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	record, err := idx.Run(c.Context, roots)
	if record != nil {
		printSummary(record)
	}
	return err
}

func resumeCommand(c *cli.Context) error {
	idx, err := openIndexer(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	record, err := idx.Resume(c.Context, c.String("run-id"))
	if record != nil {
		printSummary(record)
	}
	return err
}

func repairCommand(c *cli.Context) error {
	idx, err := openIndexer(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	summary, err := idx.Repair(c.Context, os.Stderr)
	if err != nil {
		return err
	}
	fmt.Printf("Repair: %d scanned, %d repaired, %d remaining, %d orphaned\n",
		summary.Scanned, summary.Repaired, summary.Remaining, summary.Orphaned)
	return nil
}

func resetCommand(c *cli.Context) error {
	raw := c.String("fingerprint")
	value, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return fmt.Errorf("invalid fingerprint %q: %w", raw, err)
	}

	idx, err := openIndexer(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	if err := idx.Reset(c.Context, core.Fingerprint(value)); err != nil {
		return err
	}
	fmt.Printf("Reset %s: next run will reprocess it\n", core.Fingerprint(value))
	return nil
}

func reportCommand(c *cli.Context) error {
	idx, err := openIndexer(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	if runID := c.String("run-id"); runID != "" {
		record, err := idx.RunRecord(c.Context, runID)
		if err != nil {
			return err
		}
		printSummary(record)
		return nil
	}
	return printLedgerReport(c, idx)
}

// printLedgerReport scans the whole ledger and prints per-outcome counts
// plus a stage histogram of pending and failed documents.
func printLedgerReport(c *cli.Context, idx *normpipe.Indexer) error {
	outcomes := make(map[core.Outcome]int)
	stages := make(map[core.Stage]int)
	partial := 0

	err := idx.Ledger().Scan(c.Context, func(entry *core.LedgerEntry) error {
		outcomes[entry.Outcome]++
		switch entry.Outcome {
		case core.OutcomePending:
			stages[entry.Stage]++
		case core.OutcomeFailed:
			stages[entry.FailStage]++
		}
		if len(entry.PartialStores) > 0 {
			partial++
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("Ledger: %d done, %d pending, %d failed, %d duplicates skipped, %d awaiting repair\n",
		outcomes[core.OutcomeDone], outcomes[core.OutcomePending],
		outcomes[core.OutcomeFailed], outcomes[core.OutcomeSkippedDuplicate], partial)
	for stage := core.StageDiscovered; stage <= core.StageDone; stage = stage.Next() {
		if n := stages[stage]; n > 0 {
			fmt.Printf("  %-22s %d\n", stage, n)
		}
		if stage == core.StageDone {
			break
		}
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if query == "" {
		return fmt.Errorf("no query given")
	}

	idx, err := openIndexer(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	searcher, err := idx.NewSearcher()
	if err != nil {
		return err
	}
	results, err := searcher.FindSimilar(c.Context, query, c.Int("max-hits"))
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, res := range results {
		fmt.Printf("%2d. [%.3f] %s", i+1, res.Score, res.Path)
		if res.Identifier != "" {
			fmt.Printf(" (%s)", res.Identifier)
		}
		fmt.Printf("\n    %s\n", firstLine(res.Text))
	}
	return nil
}

func printSummary(record *core.RunRecord) {
	s := record.Summary
	fmt.Printf("Run %s: %d processed, %d duplicates skipped, %d failed, %d partial store failures\n",
		record.ID, s.Processed, s.SkippedDuplicate, len(s.Failed), len(s.PartialStoreFailures))
	for _, f := range s.Failed {
		fmt.Printf("  failed %s at %s: %s\n", f.Path, f.Stage, f.Reason)
	}
	for _, p := range s.PartialStoreFailures {
		fmt.Printf("  partial %s: stores %s need repair\n", p.Path, strings.Join(p.Stores, ", "))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const max = 120
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}
