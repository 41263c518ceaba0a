package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/darthrootbeer/movie-heat/internal/domain"
)

var bandColors = map[string]text.Colors{
	"green":  {text.FgGreen},
	"yellow": {text.FgYellow},
	"orange": {text.FgHiRed},
	"red":    {text.FgRed},
	"gray":   {text.FgHiBlack},
}

// renderMovies draws one row per movie with a column per provider.
func renderMovies(movies []domain.CanonicalMovie, providers []string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := table.Row{"Title", "Year", "Score", "Sources"}
	for _, id := range providers {
		header = append(header, id)
	}
	tw.AppendHeader(header)

	for _, m := range movies {
		year := ""
		if m.Year > 0 {
			year = strconv.Itoa(m.Year)
		}
		score := m.Aggregate.Score.String()
		if colors, ok := bandColors[m.Aggregate.Band]; ok {
			score = colors.Sprint(score)
		}
		sources := fmt.Sprintf("%d/%d", m.Aggregate.OKSources, len(m.Records))
		if m.Aggregate.LowConfidence {
			sources += " (low)"
		}

		row := table.Row{m.Title, year, score, sources}
		for _, id := range providers {
			row = append(row, providerCell(m, id))
		}
		tw.AppendRow(row)
	}

	configs := []table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	}
	for i := range providers {
		configs = append(configs, table.ColumnConfig{Number: 5 + i, Align: text.AlignRight})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func providerCell(m domain.CanonicalMovie, provider string) string {
	for _, entry := range m.Aggregate.Breakdown {
		if entry.ProviderID != provider {
			continue
		}
		switch entry.Status {
		case domain.StatusFailed:
			return "err"
		case domain.StatusOK:
			return entry.Normalized.String()
		}
		for _, id := range m.Unresolved {
			if id == provider {
				return "?"
			}
		}
		return "-"
	}
	return ""
}

// renderBreakdown lists every provider record behind one movie's aggregate.
func renderBreakdown(m domain.CanonicalMovie) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.SetTitle(fmt.Sprintf("%s (%d)", m.Title, m.Year))
	tw.AppendHeader(table.Row{"Provider", "Status", "Raw", "Reviews", "Score", "Weight", "Match", "Note"})

	for i, rec := range m.Records {
		var entry domain.BreakdownEntry
		if i < len(m.Aggregate.Breakdown) {
			entry = m.Aggregate.Breakdown[i]
		}
		reviews := ""
		if rec.ReviewCount != nil {
			reviews = strconv.Itoa(*rec.ReviewCount)
		}
		match := ""
		if rec.Match.Tier != domain.TierNone {
			match = fmt.Sprintf("%s %.2f", rec.Match.Tier, rec.Match.Confidence)
		}
		tw.AppendRow(table.Row{
			rec.ProviderID,
			string(rec.Status),
			rec.RawValue,
			reviews,
			entry.Normalized.String(),
			strconv.FormatFloat(entry.Weight, 'f', 2, 64),
			match,
			rec.Error,
		})
	}
	return tw.Render()
}
