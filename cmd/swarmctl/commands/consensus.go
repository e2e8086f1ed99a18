package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kooshapari/swarmcoordinator/cmd/swarmctl/client"
	"github.com/kooshapari/swarmcoordinator/cmd/swarmctl/utils"
)

// NewConsensusCommand groups consensus subcommands.
func NewConsensusCommand(apiClient *client.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consensus",
		Short: "Run collective decisions across the swarm",
	}
	cmd.AddCommand(newConsensusProposeCommand(apiClient))
	return cmd
}

func newConsensusProposeCommand(apiClient *client.Client) *cobra.Command {
	var algorithm, decisionType, value string

	c := &cobra.Command{
		Use:   "propose",
		Short: "Propose a value for consensus",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := utils.NewSpinner(fmt.Sprintf("running %s consensus...", algorithm))
			s.Start()
			result, err := apiClient.ProposeConsensus(cmd.Context(), value, algorithm, decisionType)
			s.Stop()
			if err != nil {
				utils.PrintError("consensus failed: %v", err)
				return err
			}
			utils.PrintHeader("Consensus Result")
			fmt.Println(utils.FormatJSON(result))
			return nil
		},
	}
	c.Flags().StringVar(&algorithm, "algorithm", "majority", "majority, supermajority, unanimous, weighted, queen-override")
	c.Flags().StringVar(&decisionType, "decision-type", "", "label identifying this decision")
	c.Flags().StringVar(&value, "value", "", "proposed value")
	c.MarkFlagRequired("decision-type")
	c.MarkFlagRequired("value")
	return c
}
