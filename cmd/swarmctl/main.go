// Command swarmctl is the operator CLI for a running swarm coordinator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kooshapari/swarmcoordinator/cmd/swarmctl/client"
	"github.com/kooshapari/swarmcoordinator/cmd/swarmctl/commands"
)

var baseURL string

func main() {
	apiClient := client.New("http://localhost:8080")

	root := &cobra.Command{
		Use:   "swarmctl",
		Short: "Operate a running swarm coordinator",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			apiClient.BaseURL = baseURL
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "api", "http://localhost:8080", "coordinator API base URL")

	root.AddCommand(commands.NewAgentCommand(apiClient))
	root.AddCommand(commands.NewTaskCommand(apiClient))
	root.AddCommand(commands.NewConsensusCommand(apiClient))
	root.AddCommand(commands.NewStatusCommand(apiClient))
	root.AddCommand(commands.NewHealthCommand(apiClient))
	root.AddCommand(commands.NewTopologyCommand(apiClient))
	root.AddCommand(commands.NewCompletionCommand(root))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
