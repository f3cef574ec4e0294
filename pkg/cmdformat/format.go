// Package cmdformat renders task shell commands for display.
//
// Commands are opaque payloads as far as the engine is concerned, but logs,
// the API, and the CLI all benefit from a canonical rendering. The package
// parses commands with mvdan.cc/sh/v3/syntax (the shfmt parser) and reprints
// them either minified to one line or indented for multi-line display.
package cmdformat

import (
	"bytes"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Oneline reprints a shell command as a canonical single line.
// Returns the input unchanged if it does not parse as shell.
func Oneline(command string) string {
	f, err := parse(command)
	if err != nil {
		return strings.TrimSpace(command)
	}
	printer := syntax.NewPrinter(syntax.Minify(true))
	var buf bytes.Buffer
	if err := printer.Print(&buf, f); err != nil {
		return strings.TrimSpace(command)
	}
	return strings.TrimRight(buf.String(), "\n")
}

// Pretty reprints a shell command with indentation for multi-line display.
func Pretty(command string) (string, error) {
	f, err := parse(command)
	if err != nil {
		return "", err
	}
	printer := syntax.NewPrinter(syntax.Indent(2))
	var buf bytes.Buffer
	if err := printer.Print(&buf, f); err != nil {
		return "", fmt.Errorf("failed to print command: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func parse(command string) (*syntax.File, error) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	f, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}
	return f, nil
}
