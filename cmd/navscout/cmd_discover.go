package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"navscout/internal/artifact"
	"navscout/internal/browser"
	"navscout/internal/explore"
	"navscout/internal/oracle"
	"navscout/internal/probe"
	"navscout/internal/types"
)

var (
	discoverBudget    int
	discoverNoSave    bool
	discoverJSON      bool
	discoverSkipProbe bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover [url]",
	Short: "Discover one site's category tree through live menu exploration",
	Long: `Opens the site in a browser, finds and opens the main menu, and
walks it depth-first. Each interaction's structural diff is classified,
ambiguous cases go to the LLM oracle, and the resulting category tree
plus the full interaction sequence are saved as a run record.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().IntVar(&discoverBudget, "budget", 0, "override turn budget")
	discoverCmd.Flags().BoolVar(&discoverNoSave, "no-save", false, "do not persist the run record")
	discoverCmd.Flags().BoolVar(&discoverJSON, "json", false, "print the full run record as JSON")
	discoverCmd.Flags().BoolVar(&discoverSkipProbe, "skip-probe", false, "skip the pre-flight method probe")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	site := args[0]
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	if !discoverSkipProbe {
		if res, err := probe.New(cfg.Probe, logger).Probe(ctx, site); err != nil {
			logger.Warn("probe failed, proceeding with dom discovery", zap.Error(err))
		} else if res.Method != types.MethodDOM {
			logger.Info("structured navigation source available",
				zap.String("method", string(res.Method)),
				zap.String("endpoint", res.Endpoint),
				zap.String("kind", res.EmbeddedKind))
		}
	}

	rec, err := discoverSite(ctx, site)
	if err != nil {
		return err
	}

	if !discoverNoSave {
		store, err := artifact.Open(cfg.Store.DatabasePath, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Save(ctx, rec); err != nil {
			return err
		}
	}

	if discoverJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	printRecord(rec)
	return nil
}

// discoverSite wires browser, oracle, and engine for one site.
func discoverSite(ctx context.Context, site string) (*types.RunRecord, error) {
	gem, err := oracle.NewGemini(ctx, cfg.GeminiConfig())
	if err != nil {
		return nil, fmt.Errorf("oracle transport: %w", err)
	}
	orc := oracle.NewClient(gem, cfg.Oracle.Client, logger)

	driver := browser.NewDriver(cfg.Browser, logger)
	if err := driver.Start(ctx); err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	defer driver.Shutdown()

	page, err := driver.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	ecfg := cfg.Explore
	if discoverBudget > 0 {
		ecfg.TurnBudget = discoverBudget
	}
	return explore.New(page, orc, ecfg, logger).Run(ctx, site), nil
}

func printRecord(rec *types.RunRecord) {
	status := "ok"
	if !rec.Success {
		status = "failed (" + rec.Reason + ")"
	}
	fmt.Printf("%s  %s\n", rec.Site, status)
	fmt.Printf("  run %s | method %s | %d turns | %d categories | %d oracle tokens\n",
		rec.ID, rec.Method, rec.Turns, rec.Tree.Count(), rec.OracleTokens)
	printTree(rec.Tree, 0)
}

func printTree(c *types.Category, depth int) {
	if c == nil {
		return
	}
	if c.Name != "" {
		indent := ""
		for i := 0; i < depth; i++ {
			indent += "  "
		}
		line := indent + c.Name
		if c.URL != "" {
			line += "  " + c.URL
		}
		fmt.Println(line)
		depth++
	}
	for _, child := range c.Children {
		printTree(child, depth)
	}
}
