// Package report renders enrichment results into spreadsheet summaries for
// editorial review.
package report

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/farol-news/sentinela-geo/internal/model"
)

// CitySummary is one aggregated row of the coverage report.
type CitySummary struct {
	CityID       string
	Name         string
	StateCode    string
	Articles     int
	PrimaryCount int
	TotalScore   float64
	AdminMarkers int
}

// Summarize folds enrichment outputs into per-city coverage rows, sorted by
// article count descending then city id.
func Summarize(outputs []model.EnrichmentOutput) []CitySummary {
	byCity := make(map[string]*CitySummary)

	add := func(city model.AggregatedCity, primary bool) {
		row, ok := byCity[city.CityID]
		if !ok {
			row = &CitySummary{
				CityID:    city.CityID,
				Name:      city.Name,
				StateCode: city.StateCode,
			}
			byCity[city.CityID] = row
		}
		row.Articles++
		row.TotalScore += city.Score
		row.AdminMarkers += city.AdminMarkers
		if primary {
			row.PrimaryCount++
		}
	}

	for _, output := range outputs {
		for _, city := range output.MentionedCities {
			primary := output.PrimaryCity != nil && output.PrimaryCity.CityID == city.CityID
			add(city, primary)
		}
	}

	rows := make([]CitySummary, 0, len(byCity))
	for _, row := range byCity {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Articles != rows[j].Articles {
			return rows[i].Articles > rows[j].Articles
		}
		return rows[i].CityID < rows[j].CityID
	})
	return rows
}

var reportHeader = []string{
	"city_id", "name", "state", "articles", "primary_count", "total_score", "admin_markers",
}

// WriteXLSX writes the coverage report and a per-article detail sheet to
// path.
func WriteXLSX(path string, outputs []model.EnrichmentOutput) error {
	f := xlsx.NewFile()

	cities, err := f.AddSheet("cities")
	if err != nil {
		return eris.Wrap(err, "report: add cities sheet")
	}
	headerRow := cities.AddRow()
	for _, h := range reportHeader {
		headerRow.AddCell().Value = h
	}
	for _, row := range Summarize(outputs) {
		r := cities.AddRow()
		r.AddCell().Value = row.CityID
		r.AddCell().Value = row.Name
		r.AddCell().Value = row.StateCode
		r.AddCell().SetInt(row.Articles)
		r.AddCell().SetInt(row.PrimaryCount)
		r.AddCell().Value = fmt.Sprintf("%.2f", row.TotalScore)
		r.AddCell().SetInt(row.AdminMarkers)
	}

	articles, err := f.AddSheet("articles")
	if err != nil {
		return eris.Wrap(err, "report: add articles sheet")
	}
	detailHeader := articles.AddRow()
	for _, h := range []string{"article_id", "primary_city", "primary_state", "score", "mentioned"} {
		detailHeader.AddCell().Value = h
	}
	for _, output := range outputs {
		r := articles.AddRow()
		r.AddCell().Value = output.ArticleID
		if output.PrimaryCity != nil {
			r.AddCell().Value = output.PrimaryCity.Name
			r.AddCell().Value = output.PrimaryCity.StateCode
			r.AddCell().Value = fmt.Sprintf("%.2f", output.PrimaryCity.Score)
		} else {
			r.AddCell().Value = ""
			r.AddCell().Value = ""
			r.AddCell().Value = ""
		}
		r.AddCell().SetInt(len(output.MentionedCities))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}
