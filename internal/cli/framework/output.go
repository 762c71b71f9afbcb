package framework

import (
	"fmt"
	"github.com/fatih/color"
)

// OutputFormatter provides consistent output formatting for all commands
type OutputFormatter struct {
	verbose bool
}

// NewOutputFormatter creates a new output formatter
func NewOutputFormatter(verbose bool) *OutputFormatter {
	return &OutputFormatter{verbose: verbose}
}

// PrintSuccess prints a success message in green.
func (o *OutputFormatter) PrintSuccess(message string) {
	fmt.Println(color.GreenString(message))
}

// PrintError prints an error message in red.
func (o *OutputFormatter) PrintError(message string) {
	fmt.Println(color.RedString(message))
}

// PrintInfo prints an informational message in blue.
func (o *OutputFormatter) PrintInfo(message string) {
	fmt.Println(color.BlueString(message))
}

// PrintWarning prints a warning message in yellow.
func (o *OutputFormatter) PrintWarning(message string) {
	fmt.Println(color.YellowString(message))
}

// PrintHeader prints a bold section header.
func (o *OutputFormatter) PrintHeader(message string) {
	fmt.Printf("\n%s\n", color.New(color.Bold).Sprint(message))
}

// PrintVerbose prints a dimmed message only if verbose mode is enabled.
func (o *OutputFormatter) PrintVerbose(message string) {
	if o.verbose {
		fmt.Println(color.New(color.Faint).Sprint(message))
	}
}

// PrintProgress prints an in-progress status message in yellow.
func (o *OutputFormatter) PrintProgress(message string) {
	fmt.Println(color.YellowString(message))
}

// SetVerbose updates the verbose setting
func (o *OutputFormatter) SetVerbose(verbose bool) {
	o.verbose = verbose
}

// IsVerbose returns whether verbose mode is enabled
func (o *OutputFormatter) IsVerbose() bool {
	return o.verbose
}
