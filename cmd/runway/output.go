package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type outputFormat string

const (
	formatTable outputFormat = "table"
	formatYAML  outputFormat = "yaml"
	formatJSON  outputFormat = "json"
)

func formatOf(cmd *cobra.Command) (outputFormat, error) {
	raw, err := cmd.Flags().GetString("output")
	if err != nil {
		return "", err
	}
	switch f := outputFormat(raw); f {
	case formatTable, formatYAML, formatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q", raw)
	}
}

// render writes v as YAML or JSON, or calls tableFn to fill a table.
func render(cmd *cobra.Command, v any, tableFn func(tw table.Writer)) error {
	f, err := formatOf(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	switch f {
	case formatYAML:
		return writeYAML(out, v)
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		tw := table.NewWriter()
		tw.SetOutputMirror(out)
		tw.SetStyle(table.StyleLight)
		tableFn(tw)
		tw.Render()
		return nil
	}
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
