package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/turtacn/occurrence-matrix/internal/application/analyst"
)

// statsView renders a StatsResult as key/value lines or a two-column table.
type statsView struct {
	*analyst.StatsResult
}

func (v statsView) TableHeaders() []string { return []string{"Statistic", "Value"} }

func (v statsView) TableRows() [][]string {
	keys := sortedKeys(v.Stats)
	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{k, formatValue(v.Stats[k])}
	}
	return rows
}

func (v statsView) String() string {
	var sb strings.Builder
	subject := v.Label
	if subject == "" {
		subject = "all " + v.Axis + "s"
	}
	fmt.Fprintf(&sb, "%s  %s  %s\n", color.CyanString(v.Table), v.Date, color.New(color.Bold).Sprint(subject))
	for _, row := range v.TableRows() {
		fmt.Fprintf(&sb, "  %s: %s\n", row[0], row[1])
	}
	return sb.String()
}

// rankView renders a RankResult.
type rankView struct {
	*analyst.RankResult
}

func (v rankView) TableHeaders() []string {
	return []string{"Rank", capitalize(v.Type), "Count", "Total"}
}

func (v rankView) TableRows() [][]string {
	rows := make([][]string, len(v.Rows))
	for i, r := range v.Rows {
		rows[i] = []string{
			strconv.Itoa(r.Rank),
			r.Label,
			strconv.Itoa(r.Count),
			formatNumber(r.Total),
		}
	}
	return rows
}

func (v rankView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s  %s  top %d %ss by %s (%s)\n",
		color.CyanString(v.Table), v.Date, v.Limit, v.Type, v.By, v.Order)
	for _, r := range v.Rows {
		rank := fmt.Sprintf("%3d.", r.Rank)
		if r.Rank == 1 {
			rank = color.GreenString(rank)
		}
		fmt.Fprintf(&sb, "  %s %s  count=%d total=%s\n", rank, r.Label, r.Count, formatNumber(r.Total))
	}
	return sb.String()
}

// buildView renders a BuildResult.
type buildView struct {
	*analyst.BuildResult
}

func (v buildView) TableHeaders() []string { return []string{"Archive", "Bytes", "Remote key"} }

func (v buildView) TableRows() [][]string {
	rows := make([][]string, len(v.Archives))
	for i, a := range v.Archives {
		remote := a.RemoteKey
		if remote == "" {
			remote = "-"
		}
		rows[i] = []string{a.LocalPath, strconv.FormatInt(a.Bytes, 10), remote}
	}
	return rows
}

func (v buildView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s built %s %s: %d×%d, %d non-zero from %d lines in %s\n",
		color.GreenString("OK:"), v.Table, v.Date, v.Rows, v.Columns, v.Nnz, v.Lines, v.Elapsed.Round(time.Millisecond))
	if v.Report.Collisions > 0 {
		fmt.Fprintf(&sb, "%s %d duplicate cells, last value kept\n", color.YellowString("WARN:"), v.Report.Collisions)
	}
	if v.BlankKeys > 0 || v.BlankValues > 0 {
		fmt.Fprintf(&sb, "%s skipped %d blank keys and %d blank values\n",
			color.YellowString("WARN:"), v.BlankKeys, v.BlankValues)
	}
	for _, a := range v.Archives {
		fmt.Fprintf(&sb, "  %s (%d bytes)", a.LocalPath, a.Bytes)
		if a.RemoteKey != "" {
			fmt.Fprintf(&sb, " -> %s", a.RemoteKey)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
