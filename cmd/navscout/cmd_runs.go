package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"navscout/internal/artifact"
)

var (
	runsSite  string
	runsLimit int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect saved discovery runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved runs, newest first",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Dump one run record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	runsListCmd.Flags().StringVar(&runsSite, "site", "", "filter by site URL")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "max rows (0 for all)")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	store, err := artifact.Open(cfg.Store.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	sums, err := store.List(cmd.Context(), runsSite, runsLimit)
	if err != nil {
		return err
	}
	if len(sums) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSITE\tMETHOD\tSTATUS\tTURNS\tCATEGORIES\tSTARTED")
	for _, s := range sums {
		status := "ok"
		if !s.Success {
			status = s.Reason
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			s.ID, s.Site, s.Method, status, s.Turns, s.Categories,
			s.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store, err := artifact.Open(cfg.Store.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
