package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"navscout/internal/artifact"
	"navscout/internal/explore"
	"navscout/internal/types"
)

var (
	batchFile        string
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch [url...]",
	Short: "Discover many sites in parallel",
	Long: `Runs discovery for each site with a bounded number of parallel
browser sessions. Sites share nothing: each gets its own page, oracle
caches, and menu context. One site failing, or even panicking, does not
affect the others. All run records are saved.

Sites come from arguments, or one per line from --file ('-' for stdin;
blank lines and # comments ignored).`,
	RunE: runBatchCmd,
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "file with one site URL per line")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "parallel site limit (default from config)")
}

func runBatchCmd(cmd *cobra.Command, args []string) error {
	sites, err := collectSites(args)
	if err != nil {
		return err
	}
	if len(sites) == 0 {
		return fmt.Errorf("no sites given: pass URLs or --file")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, err := artifact.Open(cfg.Store.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	concurrency := cfg.Batch.Concurrency
	if batchConcurrency > 0 {
		concurrency = batchConcurrency
	}
	logger.Info("batch starting",
		zap.Int("sites", len(sites)),
		zap.Int("concurrency", concurrency))

	recs := explore.RunBatch(ctx, sites, concurrency, func(ctx context.Context, site string) *types.RunRecord {
		rec, err := discoverSite(ctx, site)
		if err != nil {
			logger.Error("site setup failed", zap.String("site", site), zap.Error(err))
			return nil
		}
		return rec
	}, logger)

	failed := 0
	for _, rec := range recs {
		if err := store.Save(ctx, rec); err != nil {
			logger.Error("save failed", zap.String("site", rec.Site), zap.Error(err))
		}
		if !rec.Success {
			failed++
		}
		printRecord(rec)
	}
	fmt.Printf("\n%d/%d sites succeeded\n", len(recs)-failed, len(recs))
	if failed > 0 {
		return fmt.Errorf("%d site(s) failed", failed)
	}
	return nil
}

func collectSites(args []string) ([]string, error) {
	sites := append([]string{}, args...)
	if batchFile == "" {
		return sites, nil
	}

	var r *os.File
	if batchFile == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(batchFile)
		if err != nil {
			return nil, fmt.Errorf("open site list: %w", err)
		}
		defer f.Close()
		r = f
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sites = append(sites, line)
	}
	return sites, sc.Err()
}
