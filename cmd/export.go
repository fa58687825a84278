package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/issues/internal/models"
)

var (
	exportFormat  string
	exportFilters []string
)

var exportCmd = &cobra.Command{
	Use:   "export <project>",
	Short: "Export a project's issues as JSON, CSV, or Markdown",
	Long: `Export the issues of a project. --filter narrows the export the same
way as 'issues issue list'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun(cmd.Context(), args[0])
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().StringArrayVarP(&exportFilters, "filter", "f", nil, "Filter as key=value (repeatable)")
	rootCmd.AddCommand(exportCmd)
}

func exportRun(ctx context.Context, project string) error {
	switch exportFormat {
	case "json", "csv", "markdown":
	default:
		return fmt.Errorf("unknown format: %s (use: json, csv, markdown)", exportFormat)
	}

	query, err := parseFilters(exportFilters)
	if err != nil {
		return err
	}

	svc, err := getService()
	if err != nil {
		return err
	}

	found, err := svc.List(ctx, project, query)
	if err != nil {
		return fmt.Errorf("list issues: %w", err)
	}

	switch exportFormat {
	case "csv":
		return exportCSV(found)
	case "markdown":
		exportMarkdown(project, found)
		return nil
	default:
		return ui.JSON(found)
	}
}

func exportCSV(found []*models.Issue) error {
	w := csv.NewWriter(ui.Out)
	_ = w.Write([]string{"_id", "issue_title", "issue_text", "created_by", "assigned_to", "status_text", "open", "created_on", "updated_on"})
	for _, i := range found {
		_ = w.Write([]string{
			i.ID,
			i.IssueTitle,
			i.IssueText,
			i.CreatedBy,
			i.AssignedTo,
			i.StatusText,
			strconv.FormatBool(i.Open),
			i.CreatedOn.UTC().Format(time.RFC3339Nano),
			i.UpdatedOn.UTC().Format(time.RFC3339Nano),
		})
	}
	w.Flush()
	return w.Error()
}

func exportMarkdown(project string, found []*models.Issue) {
	open := 0
	for _, i := range found {
		if i.Open {
			open++
		}
	}

	fmt.Fprintf(ui.Out, "# Issues: %s\n\n", project)
	fmt.Fprintf(ui.Out, "%d issues, %d open, %d closed\n\n", len(found), open, len(found)-open)
	fmt.Fprintln(ui.Out, "| Title | Created By | Assigned To | Status | Open |")
	fmt.Fprintln(ui.Out, "|-------|------------|-------------|--------|------|")
	for _, i := range found {
		fmt.Fprintf(ui.Out, "| %s | %s | %s | %s | %t |\n",
			markdownCell(i.IssueTitle), markdownCell(i.CreatedBy), markdownCell(i.AssignedTo), markdownCell(i.StatusText), i.Open)
	}
}

// markdownCell keeps a value on one table row.
func markdownCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}
