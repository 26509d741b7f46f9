package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"optionlab/pkg/utils"
)

// style is an ANSI SGR sequence.
type style string

const (
	styleReset  style = "\033[0m"
	styleRed    style = "\033[31m"
	styleGreen  style = "\033[32m"
	styleYellow style = "\033[33m"
	styleCyan   style = "\033[36m"
	styleBold   style = "\033[1m"
	styleDim    style = "\033[2m"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// Output writes command results either as styled text or as indented JSON.
type Output struct {
	w      io.Writer
	asJSON bool
	styled bool
}

// NewOutput reads --json from cmd. Styling is only applied when writing to a terminal.
func NewOutput(cmd *cobra.Command) *Output {
	asJSON, _ := cmd.Flags().GetBool("json")
	w := cmd.OutOrStdout()
	return &Output{
		w:      w,
		asJSON: asJSON,
		styled: !asJSON && w == os.Stdout && stdoutIsTerminal(),
	}
}

func stdoutIsTerminal() bool {
	info, err := os.Stdout.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// IsJSON reports whether --json was given.
func (o *Output) IsJSON() bool {
	return o.asJSON
}

// JSON encodes v with two-space indentation.
func (o *Output) JSON(v interface{}) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.w, args...)
}

func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.w, format, args...)
}

func (o *Output) Success(format string, args ...interface{}) { o.line(styleGreen, format, args...) }
func (o *Output) Error(format string, args ...interface{})   { o.line(styleRed, format, args...) }
func (o *Output) Warning(format string, args ...interface{}) { o.line(styleYellow, format, args...) }
func (o *Output) Info(format string, args ...interface{})    { o.line(styleCyan, format, args...) }
func (o *Output) Bold(format string, args ...interface{})    { o.line(styleBold, format, args...) }
func (o *Output) Dim(format string, args ...interface{})     { o.line(styleDim, format, args...) }

func (o *Output) line(s style, format string, args ...interface{}) {
	fmt.Fprintln(o.w, o.paint(s, fmt.Sprintf(format, args...)))
}

func (o *Output) paint(s style, text string) string {
	if !o.styled || text == "" {
		return text
	}
	return string(s) + text + string(styleReset)
}

// Red and Yellow style inline fragments.
func (o *Output) Red(text string) string    { return o.paint(styleRed, text) }
func (o *Output) Yellow(text string) string { return o.paint(styleYellow, text) }

// signed picks green for gains and red for losses.
func (o *Output) signed(v float64, text string) string {
	switch {
	case v > 0:
		return o.paint(styleGreen, text)
	case v < 0:
		return o.paint(styleRed, text)
	}
	return text
}

// FormatPnL renders a signed dollar amount.
func (o *Output) FormatPnL(pnl float64) string {
	return o.signed(pnl, utils.FormatPnL(pnl))
}

// FormatPercent renders a signed percentage.
func (o *Output) FormatPercent(pct float64) string {
	return o.signed(pct, utils.FormatPercent(pct))
}

// visibleLen counts runes outside escape sequences.
func visibleLen(s string) int {
	return utf8.RuneCountInString(ansiPattern.ReplaceAllString(s, ""))
}

// Table is a column-aligned text table. Columns whose cells all look numeric are
// right-aligned.
type Table struct {
	out     *Output
	headers []string
	rows    [][]string
}

func NewTable(out *Output, headers ...string) *Table {
	return &Table{out: out, headers: headers}
}

// AddRow appends a row. Cells beyond the header count are dropped.
func (t *Table) AddRow(cells ...string) {
	if len(cells) > len(t.headers) {
		cells = cells[:len(t.headers)]
	}
	t.rows = append(t.rows, cells)
}

func (t *Table) Render() {
	n := len(t.headers)
	if n == 0 {
		return
	}

	widths := make([]int, n)
	numeric := make([]bool, n)
	for i, h := range t.headers {
		widths[i] = visibleLen(h)
		numeric[i] = len(t.rows) > 0
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], visibleLen(cell))
			if !looksNumeric(cell) {
				numeric[i] = false
			}
		}
	}

	t.out.Println(t.format(t.headers, widths, numeric, styleBold))
	rule := make([]string, n)
	for i, w := range widths {
		rule[i] = strings.Repeat("-", w)
	}
	t.out.Println(t.out.paint(styleDim, strings.Join(rule, "  ")))
	for _, row := range t.rows {
		t.out.Println(t.format(row, widths, numeric, ""))
	}
}

func (t *Table) format(cells []string, widths []int, numeric []bool, s style) string {
	var b strings.Builder
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		pad := strings.Repeat(" ", w-visibleLen(cell))
		if s != "" {
			cell = t.out.paint(s, cell)
		}
		if i > 0 {
			b.WriteString("  ")
		}
		if numeric[i] {
			b.WriteString(pad + cell)
		} else {
			b.WriteString(cell + pad)
		}
	}
	return strings.TrimRight(b.String(), " ")
}

func looksNumeric(cell string) bool {
	c := strings.TrimSpace(ansiPattern.ReplaceAllString(cell, ""))
	if c == "" || c == "-" {
		return true
	}
	c = strings.NewReplacer("$", "", ",", "", "%", "", "+", "").Replace(c)
	_, err := strconv.ParseFloat(c, 64)
	return err == nil
}

// Box frames title and lines in an ASCII border.
func (o *Output) Box(title string, lines []string) {
	inner := visibleLen(title)
	for _, l := range lines {
		inner = max(inner, visibleLen(l))
	}
	border := "+" + strings.Repeat("-", inner+2) + "+"
	row := func(text string) {
		o.Printf("| %s%s |\n", text, strings.Repeat(" ", inner-visibleLen(text)))
	}

	o.Println(border)
	row(o.paint(styleBold, title))
	o.Println(border)
	for _, l := range lines {
		row(l)
	}
	o.Println(border)
}
