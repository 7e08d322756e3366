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
Package banner provides the version constants and startup banner for flynats.

OVERVIEW:
=========
Displays an ASCII art banner with version information when the CLI
starts. Uses ANSI escape codes for colors. Version is also announced to
the broker in the CONNECT handshake.

USAGE:
======

	banner.PrintCLI()        // Print the CLI banner to stdout
	banner.PrintTo(writer)   // Print to custom writer

The banner text is embedded at compile time from banner.txt.
*/
package banner

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed banner.txt
var bannerText string

// ANSI escape codes for terminal text formatting.
const (
	AnsiRed    = "\033[31m"
	AnsiGreen  = "\033[32m"
	AnsiYellow = "\033[33m"
	AnsiCyan   = "\033[36m"
	AnsiReset  = "\033[0m"
	AnsiBold   = "\033[1m"
	AnsiDim    = "\033[2m"
)

// Version information
const (
	Version   = "0.4.0"
	Copyright = "Copyright (c) 2026 Firefly Software Solutions Inc."
	License   = "Licensed under Apache License 2.0"
)

// GetBanner returns the raw ASCII banner text.
func GetBanner() string {
	return bannerText
}

// GetBannerLines returns the banner as individual lines.
func GetBannerLines() []string {
	return strings.Split(strings.TrimRight(bannerText, "\n"), "\n")
}

// PrintTo writes the banner to the specified writer.
func PrintTo(w io.Writer) {
	printWithTitle(w, "flynats", "Pub/Sub Client")
}

// PrintCompact prints a compact version of the banner.
func PrintCompact(w io.Writer) {
	fmt.Fprintln(w, AnsiCyan+AnsiBold+"flynats"+AnsiReset+" v"+Version)
}

// PrintCLI prints the banner suitable for CLI startup.
func PrintCLI() {
	printWithTitle(os.Stdout, "flynats CLI", "")
}

func printWithTitle(w io.Writer, title, subtitle string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, AnsiCyan+AnsiBold)
	for _, line := range GetBannerLines() {
		fmt.Fprintln(w, "  "+line)
	}
	fmt.Fprintln(w, AnsiReset)
	fmt.Fprintln(w, AnsiGreen+AnsiBold+"  "+title+AnsiReset+" "+AnsiDim+"v"+Version+AnsiReset)
	if subtitle != "" {
		fmt.Fprintln(w, AnsiDim+"  "+subtitle+AnsiReset)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, AnsiDim+"  "+Copyright+AnsiReset)
	fmt.Fprintln(w)
}
