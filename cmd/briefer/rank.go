package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func rankCMD(cfgPath *string) *cobra.Command {
	var brief string
	var agents []string

	rank := &cobra.Command{
		Use:   "rank",
		Short: "Rank one brief against the selected agents and print the outcome map",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			selected, err := a.store.ListAgents(ctx, agents)
			if err != nil {
				return err
			}
			res, err := a.orch.Orchestrate(ctx, brief, selected)
			if err != nil {
				return err
			}
			a.log.Debug("ranked", zap.String("request_id", res.RequestID), zap.Duration("elapsed", res.Elapsed))

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			return nil
		},
	}
	rank.Flags().StringVar(&brief, "brief", "", "buyer brief text")
	rank.Flags().StringSliceVar(&agents, "agent", nil, "agent selection id (repeatable)")
	_ = rank.MarkFlagRequired("brief")
	_ = rank.MarkFlagRequired("agent")
	return rank
}
