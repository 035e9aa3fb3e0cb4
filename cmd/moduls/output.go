package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/layer-3/moduls/core"
	"github.com/urfave/cli/v2"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// table writes tab separated rows aligned into columns
func table(w io.Writer, header string, rows []string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	for _, row := range rows {
		fmt.Fprintln(tw, row)
	}
	return tw.Flush()
}

func printAgents(c *cli.Context, agents []core.Agent) error {
	if c.Bool("json") {
		return printJSON(c.App.Writer, agents)
	}

	rows := make([]string, 0, len(agents))
	for _, a := range agents {
		rows = append(rows, fmt.Sprintf("%s\t%s\t%s\t%s\t%s", a.ID, a.Symbol, a.Name, a.Status, a.ContractAddress))
	}
	return table(c.App.Writer, "ID\tSYMBOL\tNAME\tSTATUS\tCONTRACT", rows)
}

func printAgent(c *cli.Context, a *core.Agent) error {
	if c.Bool("json") {
		return printJSON(c.App.Writer, a)
	}

	rows := []string{
		"id\t" + a.ID,
		"name\t" + a.Name,
		"symbol\t" + a.Symbol,
		"status\t" + string(a.Status),
		"contract\t" + a.ContractAddress,
		"creator\t" + a.Creator,
		fmt.Sprintf("chain\t%d", a.ChainID),
		"created\t" + formatTime(a.CreatedAt),
	}
	if a.Description != "" {
		rows = append(rows, "description\t"+a.Description)
	}
	return table(c.App.Writer, "FIELD\tVALUE", rows)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
