package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ema-monitor/internal/app"
)

// newVariantCmd creates the subcommand that performs one run of variant.
func newVariantCmd(variant, short string) *cobra.Command {
	return &cobra.Command{
		Use:   variant,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()
			a, err := newApp(cmd.Context(), e.cfg, variant, e.logger)
			if err != nil {
				return fmt.Errorf("initialize %s monitor: %w", variant, err)
			}
			defer a.Close()

			res, err := a.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("%s run: %w", variant, err)
			}
			e.logger.Info("monitor run complete",
				zap.String("variant", variant),
				zap.String("run_id", res.RunID),
				zap.String("status", string(res.Status)),
				zap.Int("items", len(res.Items)),
				zap.Int("notifications", len(res.Sent)),
			)
			return nil
		},
	}
}

func newTestConnectionCmd() *cobra.Command {
	var variant string
	cmd := &cobra.Command{
		Use:   "test-connection",
		Short: "Sends a connection-test message to the webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()
			a, err := newApp(cmd.Context(), e.cfg, variant, e.logger)
			if err != nil {
				return fmt.Errorf("initialize %s monitor: %w", variant, err)
			}
			defer a.Close()

			if err := a.TestConnection(cmd.Context()); err != nil {
				return fmt.Errorf("test connection: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&variant, "variant", app.VariantTrial, "message style: trial or approvals")
	return cmd
}
