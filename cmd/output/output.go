// Package output provides functions to print messages with optional color formatting
package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/repotorpedo/torpedo/session"
	"github.com/spf13/cobra"
)

const (
	Plain   = color.FgWhite
	Success = color.FgGreen
	Warning = color.FgYellow
	Error   = color.FgRed
)

const timeLayout = "2006-01-02 15:04:05"

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

// PrintMessage formats a message with color (if enabled)
func PrintMessage(kind color.Attribute, tmpl string, a ...any) string {
	if maybeColorize == nil || kind == Plain {
		return fmt.Sprintf(tmpl+"\n", a...)
	}
	return fmt.Sprintln(maybeColorize(kind, tmpl, a...))
}

// Fprint writes a formatted message to the command's output stream.
func Fprint(cmd *cobra.Command, kind color.Attribute, tmpl string, a ...any) error {
	_, err := fmt.Fprint(cmd.OutOrStdout(), PrintMessage(kind, tmpl, a...))
	return err
}

func FprintPlain(cmd *cobra.Command, tmpl string, a ...any) error {
	return Fprint(cmd, Plain, tmpl, a...)
}

func FprintSuccess(cmd *cobra.Command, tmpl string, a ...any) error {
	return Fprint(cmd, Success, tmpl, a...)
}

// FprintError writes to the command's error stream.
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
				Alignment: tw.CellAlignment{PerColumn: []tw.Align{tw.AlignLeft}},
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

// colorStatus colors a connection status the way the status line reads.
func colorStatus(s domain.ConnectionStatus) string {
	if maybeColorize == nil {
		return s.String()
	}
	switch s {
	case domain.ConnectionStatusConnected:
		return maybeColorize(Success, "%s", s)
	case domain.ConnectionStatusConnecting:
		return maybeColorize(Warning, "%s", s)
	case domain.ConnectionStatusError:
		return maybeColorize(Error, "%s", s)
	default:
		return s.String()
	}
}

func PrintProviderList(views []session.ProviderView) (string, error) {
	if len(views) == 0 {
		return PrintMessage(Plain, "No providers configured."), nil
	}

	header := []string{"ID", "Name", "Kind", "Auth", "Status", "Account"}
	var data [][]string
	for _, v := range views {
		account := v.Connection.AccountLabel
		if v.Connection.LastError != nil {
			account = domain.UserMessage(v.Connection.LastError)
		}
		data = append(data, []string{
			v.Provider.ID,
			v.Provider.Name,
			v.Provider.Kind.String(),
			v.Provider.AuthMethod.String(),
			colorStatus(v.Connection.Status),
			account,
		})
	}

	table, err := PrintTable(header, data)
	if err != nil {
		return "", fmt.Errorf("printing provider list table: %w", err)
	}
	return table, nil
}

func PrintSessionStatus(v session.View) (string, error) {
	account := "not signed in"
	if v.SignedIn {
		account = v.Account
	}
	hosts := "none"
	if len(v.ConnectedHosts) > 0 {
		hosts = strings.Join(v.ConnectedHosts, ", ")
	}

	data := [][]string{
		{"Account", account},
		{"Hosts", hosts},
		{"Next", v.Step.Description()},
	}
	if d := v.LastDeployment; d != nil {
		last := fmt.Sprintf("%s (%s, %d%%)", d.Request.Source, d.State, d.Progress)
		if url := d.WebURL(); url != "" {
			last += " " + url
		}
		data = append(data, []string{"Last Deployment", last})
	}

	table, err := PrintTable([]string{}, data)
	if err != nil {
		return "", fmt.Errorf("printing session status table: %w", err)
	}
	return table, nil
}

// PrintProgress renders one progress line of a running attempt.
func PrintProgress(a domain.DeploymentAttempt) string {
	return fmt.Sprintf("[%3d%%] %s", a.Progress, a.Stage.Description())
}

func PrintHistoryList(recs []domain.HistoryRecord) (string, error) {
	if len(recs) == 0 {
		return PrintMessage(Plain, "No deployments yet."), nil
	}

	header := []string{"Date", "Status", "URL"}
	var data [][]string
	for _, r := range recs {
		date := r.Date
		if t, err := time.Parse(domain.HistoryDateLayout, r.Date); err == nil {
			date = t.Local().Format(timeLayout)
		}
		status := r.Status.String()
		if maybeColorize != nil {
			if r.Status == domain.HistoryStatusSuccess {
				status = maybeColorize(Success, "%s", status)
			} else {
				status = maybeColorize(Error, "%s", status)
			}
		}
		data = append(data, []string{date, status, r.URL})
	}

	table, err := PrintTable(header, data)
	if err != nil {
		return "", fmt.Errorf("printing history table: %w", err)
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

// IsBoolFlag satisfies the standard flag package. pflag only treats the flag
// as argument-free through NoOptDefVal, set where the flag is registered.
func (f *noColorFlag) IsBoolFlag() bool {
	return true
}
