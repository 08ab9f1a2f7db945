// Command simi2mamut converts a Simi BioCell settings/lineage file pair into
// MaMuT XML for viewing alongside the recording.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"lineagecore/internal/adapters/export"
	"lineagecore/internal/core"
	"lineagecore/pkg/simi"
)

const usage = "Usage: simi2mamut -c <file.sbc> -d <file.sbd> [-o <file.xml>]\n"

var exitFunc = os.Exit

// main runs the command-line interface using the program arguments and exits
// the process with the status code returned by cli.
func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("simi2mamut", flag.ContinueOnError)
	fs.SetOutput(stderr)
	settingsPath := fs.String("c", "", "path to the .sbc settings file")
	lineagePath := fs.String("d", "", "path to the .sbd lineage file")
	outPath := fs.String("o", "", "output path (defaults to stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*settingsPath) == "" || strings.TrimSpace(*lineagePath) == "" {
		if _, err := io.WriteString(stderr, usage); err != nil {
			return 1
		}
		return 2
	}

	parsed, err := simi.LoadProject(*settingsPath, *lineagePath)
	if err != nil {
		return reportError(stderr, "load project: %v\n", err)
	}

	project := core.ProjectFromParse(projectName(*lineagePath), parsed)
	calibration, ok := export.CalibrationFactor(project)
	if !ok {
		calibration = 1
		if _, err := fmt.Fprintln(stderr, "calibration not set, exporting unscaled coordinates"); err != nil {
			return 1
		}
	}

	out, err := export.BuildMaMuT(project, calibration)
	if err != nil {
		return reportError(stderr, "convert: %v\n", err)
	}

	if strings.TrimSpace(*outPath) == "" {
		if _, err := stdout.Write(out); err != nil {
			return reportError(stderr, "write output: %v\n", err)
		}
		return 0
	}
	// #nosec G306 -- converted XML is a shareable artifact, not a secret.
	if err := os.WriteFile(*outPath, out, 0o644); err != nil {
		return reportError(stderr, "write output: %v\n", err)
	}
	return 0
}

// projectName derives a human-readable name from the lineage file path.
func projectName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func reportError(w io.Writer, format string, args ...any) int {
	if _, err := fmt.Fprintf(w, format, args...); err != nil {
		return 1
	}
	return 1
}
