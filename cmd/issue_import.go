package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/issues/internal/issues"
)

var (
	importProject   string
	importCreatedBy string
)

var issueImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import issues from a markdown file",
	Long: `Create one issue per numbered or bulleted list item in a markdown file.

Items are grouped by "## Project <name>" headings; --project sets the
project for items outside any heading and overrides nothing else. Sub-items
such as "1.1 text" carry their parent line in the issue text.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueImportRun(cmd.Context(), args[0])
	},
}

func init() {
	issueImportCmd.Flags().StringVar(&importProject, "project", "", "Project for items outside a \"## Project\" heading")
	issueImportCmd.Flags().StringVar(&importCreatedBy, "created-by", "", "Reporter recorded on every imported issue (required)")
	_ = issueImportCmd.MarkFlagRequired("created-by")
	issueCmd.AddCommand(issueImportCmd)
}

const noProject = "(none)"

// draftIssue is a list item parsed from markdown, not yet created.
type draftIssue struct {
	Project string
	Title   string
	Text    string
}

func issueImportRun(ctx context.Context, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	content := string(data)
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("file is empty: %s", file)
	}

	drafts := parseMarkdownIssues(content, importProject)
	if len(drafts) == 0 {
		ui.Info("No issues found in file.")
		return nil
	}

	table := ui.Table([]string{"#", "Project", "Title"})
	for i, d := range drafts {
		project := d.Project
		if project == "" {
			project = noProject
		}
		_ = table.Append([]string{fmt.Sprintf("%d", i+1), project, d.Title})
	}
	_ = table.Render()

	if dryRun {
		ui.DryRunMsg("Would create %d issues", len(drafts))
		return nil
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	return createDraftIssues(ctx, svc, drafts, importCreatedBy)
}

// parseSubIssueNumber checks if a line starts with a sub-item number like "1.1" or "2.3."
// and returns the text after it.
func parseSubIssueNumber(line string) (string, bool) {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) || line[i] != '.' {
		return "", false
	}
	i++
	start := i
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == start {
		return "", false // "1. text" is a top-level item
	}
	if i < len(line) && line[i] == '.' {
		i++
	}
	if i >= len(line) || line[i] != ' ' {
		return "", false
	}
	title := strings.TrimSpace(line[i:])
	return title, title != ""
}

// parseListItem returns the text of a "1. text", "- text" or "* text" line.
func parseListItem(line string) (title string, numbered bool) {
	if len(line) <= 2 {
		return "", false
	}
	for i, c := range line {
		if c == '.' && i > 0 && i < 4 {
			return strings.TrimSpace(line[i+1:]), true
		}
		if c < '0' || c > '9' {
			break
		}
	}
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		return strings.TrimSpace(line[2:]), false
	}
	return "", false
}

// parseMarkdownIssues extracts list items from markdown. defaultProject
// applies until the first "## Project <name>" heading.
func parseMarkdownIssues(content, defaultProject string) []draftIssue {
	var drafts []draftIssue
	project := defaultProject
	parentLine := ""

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		if heading, ok := strings.CutPrefix(line, "## "); ok {
			heading = strings.TrimSpace(heading)
			if strings.HasPrefix(strings.ToLower(heading), "project ") {
				project = strings.TrimSpace(heading[len("project "):])
			}
			parentLine = ""
			continue
		}

		if title, ok := parseSubIssueNumber(line); ok {
			text := line
			if parentLine != "" {
				text = parentLine + "\n" + line
			}
			drafts = append(drafts, draftIssue{Project: project, Title: title, Text: text})
			continue
		}

		title, numbered := parseListItem(line)
		if title == "" {
			continue
		}
		if numbered {
			parentLine = line
		}
		drafts = append(drafts, draftIssue{Project: project, Title: title, Text: line})
	}

	return drafts
}

// createDraftIssues creates each draft through the service. Drafts without a
// project, failing validation, or whose title already exists in the project
// are skipped, so re-running an import creates nothing new.
func createDraftIssues(ctx context.Context, svc *issues.Service, drafts []draftIssue, createdBy string) error {
	created, skipped := 0, 0
	projects := make(map[string]bool)

	for _, d := range drafts {
		if d.Project == "" {
			ui.Warning("Skipping issue %q: no project (use --project or a \"## Project\" heading)", d.Title)
			skipped++
			continue
		}

		existing, err := svc.List(ctx, d.Project, map[string][]string{issues.FieldIssueTitle: {d.Title}})
		if err != nil {
			return fmt.Errorf("check existing issues: %w", err)
		}
		if len(existing) > 0 {
			ui.VerboseLog("Skipping duplicate %q in %s", d.Title, d.Project)
			skipped++
			continue
		}

		_, err = svc.Create(ctx, d.Project, issues.Values{
			issues.FieldIssueTitle: d.Title,
			issues.FieldIssueText:  d.Text,
			issues.FieldCreatedBy:  createdBy,
		})
		if err != nil {
			ui.Warning("Skipping issue %q: %s", d.Title, issues.PayloadFor(err).Error)
			skipped++
			continue
		}
		created++
		projects[d.Project] = true
	}

	ui.Success("Created %d issues across %d projects", created, len(projects))
	if skipped > 0 {
		ui.Warning("Skipped %d issues", skipped)
	}
	return nil
}
