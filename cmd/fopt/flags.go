package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/jamesainslie/fopt/pkg/fopt/output"
)

// parseCommaSeparated splits a comma-separated string and trims whitespace.
func parseCommaSeparated(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// outputFormat returns the selected formatter name.
func outputFormat() string {
	if f := viper.GetString("output"); f != "" {
		return f
	}
	return "pretty"
}

// render formats r with the selected formatter and writes it to stdout.
func render(r *output.Result) error {
	return renderTo(os.Stdout, outputFormat(), r)
}

func renderTo(w io.Writer, format string, r *output.Result) error {
	f, err := output.Get(format)
	if err != nil {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(output.Available(), ", "))
	}
	var buf bytes.Buffer
	if err := f.Format(&buf, r); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// machineOutput reports whether stdout carries data for another program,
// in which case progress and chatter go elsewhere or nowhere.
func machineOutput() bool {
	switch outputFormat() {
	case "json", "yaml", "paths", "null":
		return true
	}
	return false
}
