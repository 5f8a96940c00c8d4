package errors

import (
	"fmt"
	"os"
	"strings"
)

// ANSI color codes for terminal output.
const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorWhite = "\033[37m"
	colorGray  = "\033[90m"
	colorBold  = "\033[1m"
)

// colorEnabled controls whether ANSI colors are used.
var colorEnabled = true

// DisableColors disables ANSI color output.
func DisableColors() {
	colorEnabled = false
}

// EnableColors enables ANSI color output.
func EnableColors() {
	colorEnabled = true
}

func color(code, text string) string {
	if !colorEnabled {
		return text
	}
	return code + text + colorReset
}

func red(text string) string   { return color(colorRed, text) }
func white(text string) string { return color(colorWhite, text) }
func gray(text string) string  { return color(colorGray, text) }
func bold(text string) string  { return color(colorBold, text) }

// Format returns a multi-line message for terminal display.
func (e *Error) Format() string {
	var b strings.Builder

	b.WriteString(red(bold("ERROR ")))
	if e.Code != "" {
		b.WriteString(white(bold(e.Code + ": ")))
	}
	b.WriteString(e.Message)
	b.WriteString("\n")

	if e.Op != "" {
		fmt.Fprintf(&b, "  %s %s\n", gray("op:     "), e.Op)
	}
	if e.Subject != "" {
		fmt.Fprintf(&b, "  %s %s\n", gray("subject:"), e.Subject)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, "  %s %s\n", gray("detail: "), e.Detail)
	} else if tmpl := lookup(e.Kind); tmpl.Detail != "" {
		fmt.Fprintf(&b, "  %s %s\n", gray("detail: "), tmpl.Detail)
	}
	if e.Wrapped != nil {
		fmt.Fprintf(&b, "  %s %s\n", gray("cause:  "), e.Wrapped.Error())
	}
	return b.String()
}

// Format formats any error; non-runtime errors are printed as-is.
func Format(err error) string {
	var e *Error
	if As(err, &e) {
		return e.Format()
	}
	return red(bold("ERROR ")) + err.Error() + "\n"
}

// PrintError prints err to stderr.
func PrintError(err error) {
	fmt.Fprint(os.Stderr, Format(err))
}
