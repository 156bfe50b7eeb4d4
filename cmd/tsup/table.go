// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/autobrr/tsup/internal/services/reconcile"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, footer []string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	tw.AppendHeader(toRow(headers, columns))
	for _, row := range rows {
		tw.AppendRow(toRow(row, columns))
	}
	if len(footer) > 0 {
		tw.AppendFooter(toRow(footer, columns))
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
			AlignFooter: align,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func toRow(values []string, columns int) table.Row {
	r := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		if i < len(values) {
			r[i] = values[i]
		} else {
			r[i] = ""
		}
	}
	return r
}

func renderSummary(sum *reconcile.Summary) string {
	if sum == nil {
		return ""
	}

	headers := []string{"Source", "Checked", "Updated", "Unchanged", "Added", "Skipped", "Failed"}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight}

	counts := func(s reconcile.SourceSummary) []string {
		return []string{
			s.Source,
			strconv.Itoa(s.Checked),
			strconv.Itoa(s.Updated),
			strconv.Itoa(s.Unchanged),
			strconv.Itoa(s.Added),
			strconv.Itoa(s.Skipped),
			strconv.Itoa(s.Failed),
		}
	}

	rows := make([][]string, 0, len(sum.Sources))
	for _, s := range sum.Sources {
		rows = append(rows, counts(s))
	}

	out := renderTable(headers, rows, counts(sum.Totals()), aligns)

	mode := ""
	if sum.DryRun {
		mode = " (dry run)"
	}
	return out + fmt.Sprintf("\nrun %s%s: %d removed in %s", sum.RunID, mode, sum.Removed, sum.Duration().Round(time.Millisecond))
}
