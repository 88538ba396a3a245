package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"castboard/internal/aggregator"
	"castboard/internal/api"
)

var (
	enrichConcurrency int
	enrichSummary     bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <address-or-handle>...",
	Short: "Resolve and enrich participants without touching the ledger",
	Long: `Resolve each input to a wallet address, fetch its NFT holdings and
recent Farcaster activity, and print one JSON object per input.

Examples:
  castboard enrich dwr
  castboard enrich @vitalik 0xd8da6bf26964af9d7eed9e03e53415d37aa96045
  castboard enrich --summary --concurrency 8 alice bob carol`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnrich,
}

func init() {
	rootCmd.AddCommand(enrichCmd)

	enrichCmd.Flags().IntVar(&enrichConcurrency, "concurrency", aggregator.DefaultConcurrency, "Maximum inputs enriched in parallel")
	enrichCmd.Flags().BoolVar(&enrichSummary, "summary", false, "Omit the NFT holding list")
}

type enrichOutput struct {
	Input       string                   `json:"input"`
	Participant *api.ParticipantResponse `json:"participant,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

func runEnrich(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	results := a.aggregator.EnrichAll(cmd.Context(), args, enrichConcurrency)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	var failed int
	for _, r := range results {
		out := enrichOutput{Input: r.Input}
		if r.Err != nil {
			failed++
			out.Error = r.Err.Error()
		} else {
			p := api.NewParticipantResponse(r.Participant, !enrichSummary)
			out.Participant = &p
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}

	if failed > 0 {
		logger.Warn().Int("failed", failed).Int("total", len(results)).Msg("some inputs could not be enriched")
	}
	return nil
}
