package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kooshapari/swarmcoordinator/cmd/swarmctl/client"
	"github.com/kooshapari/swarmcoordinator/cmd/swarmctl/utils"
)

// NewStatusCommand reports the coordinator's coarse status.
func NewStatusCommand(apiClient *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show coordinator status",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := utils.NewSpinner("fetching status...")
			s.Start()
			status, err := apiClient.GetStatus(cmd.Context())
			s.Stop()
			if err != nil {
				utils.PrintError("failed to fetch status: %v", err)
				return err
			}
			utils.PrintHeader("Coordinator Status")
			fmt.Println(utils.FormatJSON(status))
			return nil
		},
	}
}

// NewHealthCommand reports the queen's swarm-wide health report.
func NewHealthCommand(apiClient *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show swarm health report",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := utils.NewSpinner("fetching health report...")
			s.Start()
			report, err := apiClient.GetHealth(cmd.Context())
			s.Stop()
			if err != nil {
				utils.PrintError("failed to fetch health report: %v", err)
				return err
			}
			utils.PrintHeader("Swarm Health")
			fmt.Println(utils.FormatJSON(report))
			return nil
		},
	}
}

// NewTopologyCommand reports the topology graph snapshot.
func NewTopologyCommand(apiClient *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Show topology graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := utils.NewSpinner("fetching topology...")
			s.Start()
			topo, err := apiClient.GetTopology(cmd.Context())
			s.Stop()
			if err != nil {
				utils.PrintError("failed to fetch topology: %v", err)
				return err
			}
			utils.PrintHeader("Swarm Topology")
			fmt.Println(utils.FormatJSON(topo))
			return nil
		},
	}
}
