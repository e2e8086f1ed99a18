// Package utils holds presentation helpers shared by swarmctl's subcommands.
package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

var (
	ColorRed     = color.New(color.FgRed).SprintFunc()
	ColorGreen   = color.New(color.FgGreen).SprintFunc()
	ColorYellow  = color.New(color.FgYellow).SprintFunc()
	ColorBlue    = color.New(color.FgBlue).SprintFunc()
	ColorMagenta = color.New(color.FgMagenta).SprintFunc()
	ColorCyan    = color.New(color.FgCyan).SprintFunc()
	Bold         = color.New(color.Bold).SprintFunc()
)

// NewSpinner builds a spinner carrying message, matching the CLI's house style.
func NewSpinner(message string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Color("cyan")
	return s
}

func PrintSuccess(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", ColorGreen("✓"), fmt.Sprintf(format, args...))
}

func PrintError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ColorRed("✗"), fmt.Sprintf(format, args...))
}

func PrintWarning(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", ColorYellow("!"), fmt.Sprintf(format, args...))
}

func PrintInfo(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", ColorBlue("i"), fmt.Sprintf(format, args...))
}

func PrintHeader(title string) {
	fmt.Println()
	fmt.Println(Bold(ColorCyan(title)))
	fmt.Println(ColorCyan(strings.Repeat("-", len(title))))
}

func PrintSubHeader(message string) {
	fmt.Printf("\n%s\n", Bold(message))
	fmt.Println(strings.Repeat("-", len(message)))
}

// FormatTable renders a table the way the rest of the house CLI does.
func FormatTable(headers []string, data [][]string) string {
	var output strings.Builder

	table := tablewriter.NewWriter(&output)
	table.SetHeader(headers)
	table.SetBorder(true)
	colors := make([]tablewriter.Colors, len(headers))
	for i := range colors {
		colors[i] = tablewriter.Colors{tablewriter.Bold}
	}
	table.SetHeaderColor(colors...)

	for _, row := range data {
		table.Append(row)
	}

	table.Render()
	return output.String()
}

// FormatAgent renders one agent snapshot as a key/value block.
func FormatAgent(agent map[string]interface{}) string {
	return fmt.Sprintf(
		"%s %v\n  type: %v  domain: %v  status: %v  health: %v",
		Bold("agent"), agent["id"], agent["type"], agent["domain"], agent["status"], agent["health"],
	)
}

// FormatAgentsTable renders a list of agent snapshots as a table.
func FormatAgentsTable(agents []map[string]interface{}) string {
	rows := make([][]string, 0, len(agents))
	for _, a := range agents {
		rows = append(rows, []string{
			fmt.Sprintf("%v", a["id"]),
			fmt.Sprintf("%v", a["type"]),
			fmt.Sprintf("%v", a["domain"]),
			fmt.Sprintf("%v", a["status"]),
			fmt.Sprintf("%v", a["health"]),
		})
	}
	return FormatTable([]string{"ID", "Type", "Domain", "Status", "Health"}, rows)
}

// FormatTask renders one task snapshot as a key/value block.
func FormatTask(task map[string]interface{}) string {
	return fmt.Sprintf(
		"%s %v\n  type: %v  domain: %v  priority: %v  status: %v",
		Bold("task"), task["id"], task["type"], task["domain"], task["priority"], task["status"],
	)
}

// FormatTasksTable renders a list of task snapshots as a table.
func FormatTasksTable(tasks []map[string]interface{}) string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{
			fmt.Sprintf("%v", t["id"]),
			fmt.Sprintf("%v", t["type"]),
			fmt.Sprintf("%v", t["domain"]),
			fmt.Sprintf("%v", t["priority"]),
			fmt.Sprintf("%v", t["status"]),
		})
	}
	return FormatTable([]string{"ID", "Type", "Domain", "Priority", "Status"}, rows)
}

// FormatJSON pretty-prints any response payload.
func FormatJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
