package cli

import (
	"fmt"

	"github.com/AI2HU/gauge/internal/models"
)

// ANSI escape codes used by the terminal output
const (
	Reset = "\033[0m"

	red     = "\033[31m"
	green   = "\033[32m"
	yellow  = "\033[33m"
	blue    = "\033[34m"
	magenta = "\033[35m"
	cyan    = "\033[36m"
	white   = "\033[37m"
	gray    = "\033[90m"

	bold = "\033[1m"
	dim  = "\033[2m"

	bgRed    = "\033[41m"
	bgYellow = "\033[43m"
)

// Styles shared by every command
var (
	HeaderStyle = cyan + bold
	TitleStyle  = magenta + bold

	SuccessStyle = green + bold
	ErrorStyle   = red + bold
	WarningStyle = yellow + bold
	InfoStyle    = blue + bold

	DimStyle   = dim
	CountStyle = yellow + bold

	labelStyle     = cyan
	valueStyle     = white + bold
	secondaryStyle = blue
	metaStyle      = gray
)

func FormatHeader(text string) string {
	return HeaderStyle + text + Reset
}

func FormatTitle(text string) string {
	return TitleStyle + text + Reset
}

func FormatSuccess(text string) string {
	return SuccessStyle + text + Reset
}

func FormatError(text string) string {
	return ErrorStyle + text + Reset
}

func FormatWarning(text string) string {
	return WarningStyle + text + Reset
}

func FormatLabel(text string) string {
	return labelStyle + text + Reset
}

func FormatValue(text string) string {
	return valueStyle + text + Reset
}

func FormatCount(count int) string {
	return CountStyle + fmt.Sprintf("%d", count) + Reset
}

func FormatDim(text string) string {
	return DimStyle + text + Reset
}

func FormatSecondary(text string) string {
	return secondaryStyle + text + Reset
}

func FormatMeta(text string) string {
	return metaStyle + text + Reset
}

// FormatLabelValue formats a label-value pair
func FormatLabelValue(label, value string) string {
	return labelStyle + label + Reset + " " + valueStyle + value + Reset
}

// FormatCountLabel formats a count with label
func FormatCountLabel(label string, count int) string {
	return labelStyle + label + Reset + " " + CountStyle + fmt.Sprintf("%d", count) + Reset
}

// FormatSeverity renders an alert severity as a badge; critical is red, anything else yellow
func FormatSeverity(severity string) string {
	bg := bgYellow
	if severity == models.SeverityCritical {
		bg = bgRed
	}
	return bg + white + bold + " " + severity + " " + Reset
}

// FormatMetric renders a metric value with fixed precision
func FormatMetric(v float64) string {
	return valueStyle + fmt.Sprintf("%.4f", v) + Reset
}

// formatStatus colors a job run status
func formatStatus(status string) string {
	switch status {
	case models.JobStatusSucceeded:
		return FormatSuccess(status)
	case models.JobStatusFailed:
		return FormatError(status)
	default:
		return FormatWarning(status)
	}
}
