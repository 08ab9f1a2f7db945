// Command lineage-check loads a Simi BioCell settings/lineage file pair,
// prints a summary of the assembled cell tree and reports every condition the
// parser recovered from.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"lineagecore/pkg/simi"
)

const usage = "Usage: lineage-check -c <file.sbc> -d <file.sbd> [-verbose] [-strict]\n"

var exitFunc = os.Exit

// main runs the command-line interface using the program arguments and exits
// the process with the status code returned by cli.
func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lineage-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	settingsPath := fs.String("c", "", "path to the .sbc settings file")
	lineagePath := fs.String("d", "", "path to the .sbd lineage file")
	verbose := fs.Bool("verbose", false, "print a per-cell summary")
	strict := fs.Bool("strict", false, "fail when the parser recovered from any condition")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*settingsPath) == "" || strings.TrimSpace(*lineagePath) == "" {
		if _, err := io.WriteString(stderr, usage); err != nil {
			return 1
		}
		return 2
	}

	project, err := simi.LoadProject(*settingsPath, *lineagePath)
	if err != nil {
		return reportError(stderr, "load project: %v\n", err)
	}
	if err := report(stdout, project, *verbose); err != nil {
		return reportError(stderr, "write report: %v\n", err)
	}
	if *strict && len(project.Document.Diagnostics()) > 0 {
		return reportError(stderr, "strict mode: parser recovered from %d condition(s)\n", len(project.Document.Diagnostics()))
	}
	return 0
}

// report prints the tree summary: counts, roots, frame range, calibration,
// the diagnostics list and, when verbose, a dump of every valid cell.
func report(w io.Writer, project *simi.Project, verbose bool) error {
	doc := project.Document
	valid := doc.ValidCells()
	invalid := doc.InvalidCells()
	if _, err := fmt.Fprintf(w, "Cells: %d (%d valid, %d without spots)\n", len(valid)+len(invalid), len(valid), len(invalid)); err != nil {
		return err
	}

	names := make([]string, 0, len(doc.Roots()))
	for _, root := range doc.Roots() {
		names = append(names, root.Name)
	}
	if _, err := fmt.Fprintf(w, "Roots: %s\n", strings.Join(names, ", ")); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Last frame: %d\n", doc.LastFrame()); err != nil {
		return err
	}

	if calibration, ok := project.Settings.CalibrationFactor(); ok {
		if _, err := fmt.Fprintf(w, "Calibration: %g\n", calibration); err != nil {
			return err
		}
	} else {
		if _, err := fmt.Fprintln(w, "Calibration: not set"); err != nil {
			return err
		}
	}

	diags := doc.Diagnostics()
	if _, err := fmt.Fprintf(w, "Diagnostics: %d\n", len(diags)); err != nil {
		return err
	}
	for _, diag := range diags {
		if _, err := fmt.Fprintf(w, "  %s line %d: %s\n", diag.Severity, diag.Line, diag.Message); err != nil {
			return err
		}
	}

	if !verbose {
		return nil
	}
	for _, cell := range valid {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		if err := cell.WriteSummary(w); err != nil {
			return err
		}
	}
	return nil
}

func reportError(w io.Writer, format string, args ...any) int {
	if _, err := fmt.Fprintf(w, format, args...); err != nil {
		return 1
	}
	return 1
}
