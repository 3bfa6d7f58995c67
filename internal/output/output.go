// Package output renders command results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Format selects how structured results are printed.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat maps a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatTable, "text":
		return FormatTable, nil
	case FormatJSON, FormatYAML:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
}

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
	headerColor  = color.New(color.FgWhite, color.Bold)
)

// Printer writes status lines and results to a pair of writers.
type Printer struct {
	Out    io.Writer
	Err    io.Writer
	Format Format
}

// New returns a Printer on stdout and stderr.
func New(format Format) *Printer {
	return &Printer{Out: os.Stdout, Err: os.Stderr, Format: format}
}

// status is where progress lines go. Structured formats keep stdout
// machine-readable.
func (p *Printer) status() io.Writer {
	if p.Format == FormatJSON || p.Format == FormatYAML {
		return p.Err
	}
	return p.Out
}

func (p *Printer) Success(format string, a ...any) {
	successColor.Fprintf(p.status(), "✓ "+format+"\n", a...)
}

func (p *Printer) Error(format string, a ...any) {
	errorColor.Fprintf(p.Err, "✗ "+format+"\n", a...)
}

func (p *Printer) Info(format string, a ...any) {
	infoColor.Fprintf(p.status(), format+"\n", a...)
}

func (p *Printer) Warn(format string, a ...any) {
	warnColor.Fprintf(p.Err, "⚠ "+format+"\n", a...)
}

// Heading prints a bold section title.
func (p *Printer) Heading(title string) {
	headerColor.Fprintf(p.Out, "\n%s\n", title)
}

func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *Printer) YAML(v any) error {
	enc := yaml.NewEncoder(p.Out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// Structured prints v as JSON or YAML and reports whether it did. Table
// output is left to the caller.
func (p *Printer) Structured(v any) (bool, error) {
	switch p.Format {
	case FormatJSON:
		return true, p.JSON(v)
	case FormatYAML:
		return true, p.YAML(v)
	}
	return false, nil
}

// Table renders rows under headers.
func (p *Printer) Table(headers []string, rows [][]string) {
	table := tablewriter.NewWriter(p.Out)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorders(tablewriter.Border{Left: false, Right: false, Top: true, Bottom: true})
	table.AppendBulk(rows)
	table.Render()
}

// KeyValues renders a two-column table without a header.
func (p *Printer) KeyValues(rows [][]string) {
	table := tablewriter.NewWriter(p.Out)
	table.SetAutoWrapText(false)
	table.AppendBulk(rows)
	table.Render()
}
