package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kooshapari/swarmcoordinator/cmd/swarmctl/client"
	"github.com/kooshapari/swarmcoordinator/cmd/swarmctl/utils"
)

// NewTaskCommand groups task lifecycle subcommands.
func NewTaskCommand(apiClient *client.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage swarm tasks",
	}
	cmd.AddCommand(newTaskSubmitCommand(apiClient))
	cmd.AddCommand(newTaskGetCommand(apiClient))
	cmd.AddCommand(newTaskCancelCommand(apiClient))
	return cmd
}

func newTaskSubmitCommand(apiClient *client.Client) *cobra.Command {
	var taskType, priority, domain, description string

	c := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new task",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := utils.NewSpinner("submitting task...")
			s.Start()
			input := map[string]interface{}{
				"description": description,
			}
			result, err := apiClient.SubmitTask(cmd.Context(), taskType, priority, domain, input)
			s.Stop()
			if err != nil {
				utils.PrintError("failed to submit task: %v", err)
				return err
			}
			utils.PrintSuccess("task submitted: %v", result["taskId"])
			return nil
		},
	}
	c.Flags().StringVar(&taskType, "type", "", "task type (research, coding, testing, review, ...)")
	c.Flags().StringVar(&priority, "priority", "normal", "priority (critical, high, normal, low, background)")
	c.Flags().StringVar(&domain, "domain", "", "routing domain (core, security, integration, support)")
	c.Flags().StringVar(&description, "description", "", "free-form task description")
	c.MarkFlagRequired("type")
	c.MarkFlagRequired("domain")
	return c
}

func newTaskGetCommand(apiClient *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get [task-id]",
		Short: "Show one task's snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := utils.NewSpinner("fetching task...")
			s.Start()
			task, err := apiClient.GetTask(cmd.Context(), args[0])
			s.Stop()
			if err != nil {
				utils.PrintError("failed to fetch task: %v", err)
				return err
			}
			fmt.Println(utils.FormatTask(task))
			return nil
		},
	}
}

func newTaskCancelCommand(apiClient *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [task-id]",
		Short: "Cancel a pending or in-flight task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := utils.NewSpinner("cancelling task...")
			s.Start()
			err := apiClient.CancelTask(cmd.Context(), args[0])
			s.Stop()
			if err != nil {
				utils.PrintError("failed to cancel task: %v", err)
				return err
			}
			utils.PrintSuccess("task %s cancelled", args[0])
			return nil
		},
	}
}
