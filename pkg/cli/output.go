/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


/*
Package cli provides terminal output helpers for the flynats command.

STREAMS:
========
Message data goes to Out (stdout). Status lines (success, info, warnings,
errors, hints) go to Diag (stderr), so the output of a command can be
piped without filtering:

	flynats sub --raw 'orders.>' | jq .

COLORS:
=======
ANSI codes are applied only when the destination is a terminal and
NO_COLOR is unset. SetColorsEnabled overrides the detection.

USAGE:
======

	cli.Success("Published %d bytes to %s", n, topic)
	cli.KeyValue("Received", count)
	fmt.Fprintln(cli.Out, cli.Payload(msg.Payload))
*/
package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mattn/go-isatty"
)

// ANSI color codes for terminal output.
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
)

// Icons for status lines.
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconInfo    = "ℹ"
	IconArrow   = "→"
	IconDot     = "●"
)

// Output destinations. Tests replace them.
var (
	Out  io.Writer = os.Stdout
	Diag io.Writer = os.Stderr
)

var colorsEnabled = os.Getenv("NO_COLOR") == "" && isTerminal(os.Stderr)

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetColorsEnabled enables or disables color output.
func SetColorsEnabled(enabled bool) {
	colorsEnabled = enabled
}

// Colorize wraps text in color when colors are enabled.
func Colorize(color, text string) string {
	if !colorsEnabled {
		return text
	}
	return color + text + Reset
}

func status(color, icon, format string, args []interface{}) {
	fmt.Fprintln(Diag, Colorize(color, icon+" "+fmt.Sprintf(format, args...)))
}

// Success prints a success line.
func Success(format string, args ...interface{}) { status(Green, IconSuccess, format, args) }

// Info prints an informational line.
func Info(format string, args ...interface{}) { status(Cyan, IconInfo, format, args) }

// Warning prints a warning line.
func Warning(format string, args ...interface{}) { status(Yellow, IconWarning, format, args) }

// Error prints an error line.
func Error(format string, args ...interface{}) { status(Red, IconError, format, args) }

// ErrorWithHint prints an error followed by a dimmed hint.
func ErrorWithHint(message, hint string) {
	fmt.Fprintln(Diag, Colorize(Red, IconError+" "+message))
	if hint != "" {
		fmt.Fprintln(Diag, Colorize(Dim, "  "+IconArrow+" Hint: "+hint))
	}
}

// ErrorWithSuggestion prints an error followed by a command to try.
func ErrorWithSuggestion(message, suggestion string) {
	fmt.Fprintln(Diag, Colorize(Red, IconError+" "+message))
	if suggestion != "" {
		fmt.Fprintln(Diag, Colorize(Cyan, "  "+IconArrow+" Try: "+suggestion))
	}
}

// Hint prints a dimmed hint line.
func Hint(format string, args ...interface{}) {
	fmt.Fprintln(Diag, Colorize(Dim, "  "+IconArrow+" "+fmt.Sprintf(format, args...)))
}

// Header prints a bold section title.
func Header(text string) {
	fmt.Fprintln(Diag, Colorize(Bold+Cyan, text))
}

// KeyValue prints an indented key-value pair.
func KeyValue(key string, value interface{}) {
	fmt.Fprintf(Diag, "  %s: %v\n", Colorize(Dim, key), value)
}

// Separator prints a horizontal rule.
func Separator() {
	fmt.Fprintln(Diag, Colorize(Dim, strings.Repeat("─", 40)))
}

// Example prints a described example command.
func Example(description, command string) {
	fmt.Fprintf(Diag, "  %s\n", Colorize(Dim, "# "+description))
	fmt.Fprintf(Diag, "  %s\n", Colorize(Cyan, command))
}

// Payload renders a message payload for a terminal. Printable UTF-8 text
// is returned unchanged; anything else is quoted with escapes.
func Payload(p []byte) string {
	if utf8.Valid(p) && strings.IndexFunc(string(p), notPrintable) < 0 {
		return string(p)
	}
	return strconv.Quote(string(p))
}

func notPrintable(r rune) bool {
	return !unicode.IsPrint(r) && r != '\t' && r != '\n'
}
