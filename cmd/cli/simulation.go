package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mendoc/paypal-listener/internal/storage"
)

func simulationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulation",
		Short: "Manage pending payment simulations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add [reference]",
		Short: "Register a pending simulation, e.g. GF2024A0001",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.store.CreateSimulation(e.ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Simulation %s pending.\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status [reference]",
		Short: "Show whether a simulation was matched by a sent payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			status, err := e.store.SimulationStatus(e.ctx, args[0])
			if err != nil {
				return err
			}

			label := "pending"
			if status == storage.SimulationProcessed {
				label = "processed"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], label)
			return nil
		},
	})

	return cmd
}
