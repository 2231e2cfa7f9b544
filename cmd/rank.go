package main

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var rankTop int

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Print the services with the highest predicted purchases as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		engine, err := loadEngine(ctx, cfg, true)
		if err != nil {
			return err
		}

		k := rankTop
		if k <= 0 {
			k = cfg.Ranking.TopK
		}
		ranked, err := engine.Top(ctx, k)
		if err != nil {
			return eris.Wrap(err, "rank")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(ranked)
	},
}

func init() {
	rankCmd.Flags().IntVar(&rankTop, "top", 0, "number of services to print (default from config)")
	rootCmd.AddCommand(rankCmd)
}
