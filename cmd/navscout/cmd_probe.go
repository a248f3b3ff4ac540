package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"navscout/internal/probe"
	"navscout/internal/types"
)

var probeCmd = &cobra.Command{
	Use:   "probe [url]",
	Short: "Check how a site's navigation can be obtained, without a browser",
	Long: `Fetches the landing page and well-known navigation endpoints over
plain HTTP and reports the cheapest viable method: a structured API,
JSON embedded in the page, or dom when live exploration is required.`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	res, err := probe.New(cfg.Probe, logger).Probe(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Println("method:", res.Method)
	switch res.Method {
	case types.MethodAPI:
		fmt.Println("endpoint:", res.Endpoint)
	case types.MethodEmbeddedJSON:
		fmt.Println("kind:", res.EmbeddedKind)
	case types.MethodDOM:
		if res.SPAShell {
			fmt.Println("note: client-rendered shell, discovery must wait for hydration")
		}
	}
	return nil
}
