package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kooshapari/swarmcoordinator/cmd/swarmctl/client"
	"github.com/kooshapari/swarmcoordinator/cmd/swarmctl/utils"
)

// NewAgentCommand groups agent lifecycle subcommands.
func NewAgentCommand(apiClient *client.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage swarm agents",
	}
	cmd.AddCommand(newAgentRegisterCommand(apiClient))
	cmd.AddCommand(newAgentSpawnHierarchyCommand(apiClient))
	cmd.AddCommand(newAgentGetCommand(apiClient))
	return cmd
}

func newAgentRegisterCommand(apiClient *client.Client) *cobra.Command {
	var agentType, domain string
	var languages []string

	c := &cobra.Command{
		Use:   "register",
		Short: "Register a new agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := utils.NewSpinner("registering agent...")
			s.Start()
			capabilities := map[string]interface{}{
				"languages": languages,
			}
			result, err := apiClient.RegisterAgent(cmd.Context(), agentType, domain, capabilities)
			s.Stop()
			if err != nil {
				utils.PrintError("failed to register agent: %v", err)
				return err
			}
			utils.PrintSuccess("agent registered: %v", result["agentId"])
			return nil
		},
	}
	c.Flags().StringVar(&agentType, "type", "", "agent type (researcher, coder, tester, reviewer, ...)")
	c.Flags().StringVar(&domain, "domain", "", "routing domain (core, security, integration, support)")
	c.Flags().StringSliceVar(&languages, "languages", nil, "capability languages")
	c.MarkFlagRequired("type")
	c.MarkFlagRequired("domain")
	return c
}

func newAgentSpawnHierarchyCommand(apiClient *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "spawn-hierarchy",
		Short: "Spawn the full queen-led agent hierarchy",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := utils.NewSpinner("spawning hierarchy...")
			s.Start()
			result, err := apiClient.SpawnHierarchy(cmd.Context())
			s.Stop()
			if err != nil {
				utils.PrintError("failed to spawn hierarchy: %v", err)
				return err
			}
			utils.PrintSuccess("hierarchy spawned")
			fmt.Println(utils.FormatJSON(result))
			return nil
		},
	}
}

func newAgentGetCommand(apiClient *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get [agent-id]",
		Short: "Show one agent's snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := utils.NewSpinner("fetching agent...")
			s.Start()
			agent, err := apiClient.GetAgent(cmd.Context(), args[0])
			s.Stop()
			if err != nil {
				utils.PrintError("failed to fetch agent: %v", err)
				return err
			}
			fmt.Println(utils.FormatAgent(agent))
			return nil
		},
	}
}
