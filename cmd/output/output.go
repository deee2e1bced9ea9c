// Package output provides functions to print messages with optional color formatting
package output

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/meridian-cd/meridian/domain"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

const (
	Plain   = color.FgWhite
	Success = color.FgGreen
	Warning = color.FgYellow
	Error   = color.FgRed
)

var maybeColorize func(kind color.Attribute, tmpl string, a ...any) string

// InitColors sets up color functions based on environment
func InitColors(isColorDisabled bool) {
	if color.NoColor || isColorDisabled {
		maybeColorize = func(kind color.Attribute, tmpl string, a ...any) string {
			return fmt.Sprintf(tmpl, a...)
		}
	} else {
		maybeColorize = func(kind color.Attribute, tmpl string, a ...any) string {
			return color.New(kind).SprintfFunc()(tmpl, a...)
		}
	}
}

// PrintMessage formats a message with color (if enabled) and returns it
func PrintMessage(kind color.Attribute, tmpl string, a ...any) string {
	if maybeColorize == nil || kind == Plain {
		return fmt.Sprintf(tmpl+"\n", a...)
	}
	return fmt.Sprintln(maybeColorize(kind, tmpl, a...))
}

// FprintPlain writes a plain message to the command's output stream
func FprintPlain(cmd *cobra.Command, tmpl string, a ...any) error {
	_, err := fmt.Fprint(cmd.OutOrStdout(), PrintMessage(Plain, tmpl, a...))
	return err
}

// FprintSuccess writes a success message to the command's output stream
func FprintSuccess(cmd *cobra.Command, tmpl string, a ...any) error {
	_, err := fmt.Fprint(cmd.OutOrStdout(), PrintMessage(Success, tmpl, a...))
	return err
}

// FprintError writes an error message to the command's error stream
func FprintError(cmd *cobra.Command, tmpl string, a ...any) error {
	_, err := fmt.Fprint(cmd.ErrOrStderr(), PrintMessage(Error, tmpl, a...))
	return err
}

func PrintTable(header []string, data [][]string) (string, error) {
	buf := strings.Builder{}

	table := tablewriter.NewTable(
		&buf,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines: tw.Lines{
					ShowHeaderLine: tw.Off,
				},
				Separators: tw.Separators{
					BetweenColumns: tw.Off,
				},
			},
		})),
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{PerColumn: []tw.Align{tw.AlignRight, tw.AlignLeft}},
			},
		}))

	if len(header) > 0 {
		table.Header(header)
	}

	if err := table.Bulk(data); err != nil {
		return "", fmt.Errorf("bulk adding data to table: %w", err)
	}

	if err := table.Render(); err != nil {
		return "", fmt.Errorf("rendering table: %w", err)
	}

	return buf.String(), nil
}

// StatusColor maps a deployment status to a display color
func StatusColor(status domain.DeploymentStatus) color.Attribute {
	switch status {
	case domain.DeploymentStatusCompleted:
		return Success
	case domain.DeploymentStatusFailed:
		return Error
	case domain.DeploymentStatusRolledBack, domain.DeploymentStatusApprovalPending:
		return Warning
	default:
		return Plain
	}
}

func PrintDeploymentList(deployments []*domain.Deployment) (string, error) {
	if len(deployments) == 0 {
		return PrintMessage(Plain, "No deployments found."), nil
	}

	header := []string{
		"ID",
		"Blueprint",
		"Environment",
		"Format",
		"Status",
		"Created At",
	}
	var data [][]string
	for _, d := range deployments {
		data = append(data, []string{
			d.ID.String(),
			d.BlueprintID,
			d.Environment.String(),
			d.Format,
			PrintMessage(StatusColor(d.Status), "%s", d.Status.String()),
			d.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	table, err := PrintTable(header, data)
	if err != nil {
		return "", fmt.Errorf("printing deployment list table: %w", err)
	}

	return table, nil
}

func PrintDeploymentDetails(d *domain.Deployment, short bool) (string, error) {
	data := [][]string{
		{"ID", d.ID.String()},
		{"Blueprint", d.BlueprintID},
		{"Target Key", d.TargetKey()},
		{"Environment", d.Environment.String()},
		{"Format", d.Format},
		{"Status", d.Status.String()},
	}

	if d.PlanSummary != nil {
		data = append(data, []string{"Plan", d.PlanSummary.String()})
	}
	if d.Error != "" {
		data = append(data, []string{"Error", d.Error})
	}

	if !short {
		data = append(data,
			[]string{"Monitoring", fmt.Sprintf("%t", d.MonitorEnabled)},
			[]string{"Created At", d.CreatedAt.Format("2006-01-02 15:04:05")},
		)
		if d.CompletedAt != nil {
			data = append(data, []string{"Completed At", d.CompletedAt.Format("2006-01-02 15:04:05")})
		}
		if len(d.Logs) > 0 {
			data = append(data, []string{"Logs", d.LogText()})
		}
	}

	table, err := PrintTable([]string{}, data)
	if err != nil {
		return "", fmt.Errorf("printing deployment details table: %w", err)
	}
	return table, nil
}

func PrintDriftReport(report *domain.DriftReport) (string, error) {
	if report.Failed() {
		return PrintMessage(Error, "Scan failed: %s", report.ScanError), nil
	}
	if report.TotalDrift == 0 {
		return PrintMessage(Success, "No drift detected (last checked %s).",
			report.Timestamp.Format("2006-01-02 15:04:05")), nil
	}

	header := []string{"Resource", "Property", "Expected", "Actual", "Severity", "Action"}
	var data [][]string
	for _, item := range report.Items {
		data = append(data, []string{
			item.Resource,
			item.Property,
			fmt.Sprintf("%v", item.Expected),
			fmt.Sprintf("%v", item.Actual),
			item.Severity.String(),
			item.Action.String(),
		})
	}

	table, err := PrintTable(header, data)
	if err != nil {
		return "", fmt.Errorf("printing drift report table: %w", err)
	}
	return table, nil
}

// CLI flag for disabling color output

// NoColor is a flag that can be used to disable colored output in the CLI.
var NoColor = &noColorFlag{set: false}

type noColorFlag struct {
	set bool
}

func (f *noColorFlag) Set(value string) error {
	// This is a boolean flag, so we ignore the value and just mark it as set
	f.set = true
	return nil
}

func (f *noColorFlag) String() string {
	if f.set {
		return "true"
	}
	return "false"
}

func (f *noColorFlag) Type() string {
	return "bool"
}

// IsSet returns true if the --no-color flag was explicitly set
func (f *noColorFlag) IsSet() bool {
	return f.set
}

// IsBoolFlag tells pflag this is a boolean flag (no argument required)
func (f *noColorFlag) IsBoolFlag() bool {
	return true
}
