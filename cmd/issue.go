package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/joescharf/issues/internal/issues"
	"github.com/joescharf/issues/internal/models"
	"github.com/joescharf/issues/internal/output"
)

var (
	issueFilters []string
	issueJSON    bool
)

// issueFieldFlags maps CLI flag names to issue field names.
var issueFieldFlags = []struct {
	flag  string
	field string
	usage string
}{
	{"title", issues.FieldIssueTitle, "Issue title"},
	{"text", issues.FieldIssueText, "Issue text"},
	{"created-by", issues.FieldCreatedBy, "Name of the reporter"},
	{"assigned-to", issues.FieldAssignedTo, "Assignee"},
	{"status", issues.FieldStatusText, "Free-form status text"},
}

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Work with issues in the local database",
	Long: `List, add, update and delete issues directly against the configured
database, with the same validation and messages as the HTTP API.`,
}

var issueListCmd = &cobra.Command{
	Use:     "list <project>",
	Aliases: []string{"ls"},
	Short:   "List the issues of a project",
	Long: `List the issues of a project. Each --filter key=value narrows the
result to issues whose field equals the value; repeating a key matches
any of the values.

  issues issue list apitest --filter open=true --filter assigned_to=Joe`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context(), args[0], issueFilters)
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add <project>",
	Short: "Create an issue",
	Long:  "Create an open issue. --title, --text and --created-by are required.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun(cmd.Context(), args[0], flagValues(cmd.Flags()))
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <issue-id>",
	Short: "Update fields of an issue",
	Long:  "Update the given fields of an issue. Empty values are ignored.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueUpdateRun(cmd.Context(), args[0], flagValues(cmd.Flags()))
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:     "delete <issue-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an issue",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(cmd.Context(), args[0])
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(cmd.Context(), args[0])
	},
}

func init() {
	issueListCmd.Flags().StringArrayVarP(&issueFilters, "filter", "f", nil, "Filter as key=value (repeatable)")

	for _, c := range []*cobra.Command{issueAddCmd, issueUpdateCmd} {
		for _, f := range issueFieldFlags {
			c.Flags().String(f.flag, "", f.usage)
		}
	}
	issueUpdateCmd.Flags().Bool("open", true, "Open state (--open=false closes the issue)")

	issueCmd.PersistentFlags().BoolVar(&issueJSON, "json", false, "Print API payloads as JSON")

	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	issueCmd.AddCommand(issueShowCmd)
	rootCmd.AddCommand(issueCmd)
}

// flagValues collects the field flags the user set explicitly.
func flagValues(fs *pflag.FlagSet) issues.Values {
	vals := issues.Values{}
	for _, f := range issueFieldFlags {
		if fs.Changed(f.flag) {
			vals[f.field], _ = fs.GetString(f.flag)
		}
	}
	if fs.Lookup("open") != nil && fs.Changed("open") {
		open, _ := fs.GetBool("open")
		vals[issues.FieldOpen] = strconv.FormatBool(open)
	}
	return vals
}

// parseFilters turns key=value pairs into a query map.
func parseFilters(pairs []string) (map[string][]string, error) {
	query := make(map[string][]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid filter %q: want key=value", pair)
		}
		key = strings.TrimSpace(key)
		query[key] = append(query[key], value)
	}
	return query, nil
}

// reportFailure prints the payload of a failed operation when --json is set
// and returns the payload message as the command error.
func reportFailure(err error) error {
	payload := issues.PayloadFor(err)
	if issueJSON {
		_ = ui.JSON(payload)
	}
	ui.VerboseLog("%v", err)
	if payload.ID != "" {
		return fmt.Errorf("%s: %s", payload.Error, payload.ID)
	}
	return errors.New(payload.Error)
}

func issueListRun(ctx context.Context, project string, filters []string) error {
	query, err := parseFilters(filters)
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

	if issueJSON {
		return ui.JSON(found)
	}

	if len(found) == 0 {
		ui.Info("No issues found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Created By", "Assigned To", "Status", "State", "Updated"})
	for _, issue := range found {
		_ = table.Append([]string{
			issue.ID,
			output.Truncate(issue.IssueTitle, 40),
			issue.CreatedBy,
			issue.AssignedTo,
			output.Truncate(issue.StatusText, 20),
			output.OpenState(issue.Open),
			issue.UpdatedOn.Local().Format(time.DateTime),
		})
	}
	return table.Render()
}

func issueAddRun(ctx context.Context, project string, in issues.Values) error {
	if dryRun {
		ui.DryRunMsg("Would create issue %q in %s", in[issues.FieldIssueTitle], project)
		return nil
	}

	svc, err := getService()
	if err != nil {
		return err
	}

	issue, err := svc.Create(ctx, project, in)
	if err != nil {
		return reportFailure(err)
	}

	if issueJSON {
		return ui.JSON(issue)
	}
	ui.Success("Created issue %s in %s: %s", output.Cyan(issue.ID), project, issue.IssueTitle)
	return nil
}

func issueUpdateRun(ctx context.Context, id string, in issues.Values) error {
	in[issues.FieldID] = id

	if dryRun {
		ui.DryRunMsg("Would update issue %s", id)
		return nil
	}

	svc, err := getService()
	if err != nil {
		return err
	}

	res, err := svc.Update(ctx, in)
	if err != nil {
		return reportFailure(err)
	}

	if issueJSON {
		return ui.JSON(res)
	}
	ui.Success("%s %s", res.Result, output.Cyan(res.ID))
	return nil
}

func issueDeleteRun(ctx context.Context, id string) error {
	if dryRun {
		ui.DryRunMsg("Would delete issue %s", id)
		return nil
	}

	svc, err := getService()
	if err != nil {
		return err
	}

	res, err := svc.Delete(ctx, id)
	if err != nil {
		return reportFailure(err)
	}

	if issueJSON {
		return ui.JSON(res)
	}
	ui.Success("%s %s", res.Result, output.Cyan(res.ID))
	return nil
}

func issueShowRun(ctx context.Context, id string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	issue, err := svc.Get(ctx, id)
	if err != nil {
		return reportFailure(err)
	}

	if issueJSON {
		return ui.JSON(issue)
	}
	printIssue(issue)
	return nil
}

func printIssue(issue *models.Issue) {
	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(issue.ID), issue.IssueTitle)
	fmt.Fprintf(ui.Out, "  Project:    %s\n", issue.Project)
	fmt.Fprintf(ui.Out, "  State:      %s\n", output.OpenState(issue.Open))
	if issue.StatusText != "" {
		fmt.Fprintf(ui.Out, "  Status:     %s\n", issue.StatusText)
	}
	fmt.Fprintf(ui.Out, "  Created by: %s\n", issue.CreatedBy)
	if issue.AssignedTo != "" {
		fmt.Fprintf(ui.Out, "  Assigned:   %s\n", issue.AssignedTo)
	}
	fmt.Fprintf(ui.Out, "  Created:    %s\n", issue.CreatedOn.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Updated:    %s\n", issue.UpdatedOn.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "\n%s\n", issue.IssueText)
}
