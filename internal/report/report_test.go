package report

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/farol-news/sentinela-geo/internal/model"
)

func output(articleID string, primary *model.AggregatedCity, mentioned ...model.AggregatedCity) model.EnrichmentOutput {
	return model.EnrichmentOutput{
		ArticleID:       articleID,
		PrimaryCity:     primary,
		MentionedCities: mentioned,
	}
}

func city(id, name, state string, score float64) model.AggregatedCity {
	return model.AggregatedCity{CityID: id, Name: name, StateCode: state, Score: score}
}

func TestSummarizeAggregatesAcrossArticles(t *testing.T) {
	natal := city("2408102", "Natal", "RN", 1.4)
	sp := city("3550308", "São Paulo", "SP", 0.95)

	outputs := []model.EnrichmentOutput{
		output("a1", &natal, natal, sp),
		output("a2", &natal, natal),
		output("a3", &sp, sp),
	}

	rows := Summarize(outputs)
	require.Len(t, rows, 2)

	assert.Equal(t, "2408102", rows[0].CityID)
	assert.Equal(t, 2, rows[0].Articles)
	assert.Equal(t, 2, rows[0].PrimaryCount)
	assert.InDelta(t, 2.8, rows[0].TotalScore, 1e-9)

	assert.Equal(t, "3550308", rows[1].CityID)
	assert.Equal(t, 2, rows[1].Articles)
	assert.Equal(t, 1, rows[1].PrimaryCount)
}

func TestSummarizeSortsByArticleCountThenID(t *testing.T) {
	a := city("2408102", "Natal", "RN", 1.0)
	b := city("1721000", "Palmas", "TO", 1.0)

	outputs := []model.EnrichmentOutput{
		output("a1", &a, a),
		output("a2", &b, b),
	}

	rows := Summarize(outputs)
	require.Len(t, rows, 2)
	// Equal article counts fall back to city id order.
	assert.Equal(t, "1721000", rows[0].CityID)
	assert.Equal(t, "2408102", rows[1].CityID)
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Empty(t, Summarize(nil))
}

func TestWriteXLSX(t *testing.T) {
	natal := city("2408102", "Natal", "RN", 1.4)
	outputs := []model.EnrichmentOutput{
		output("a1", &natal, natal),
		output("a2", nil),
	}

	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteXLSX(path, outputs))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	cities := f.Sheets[0]
	assert.Equal(t, "cities", cities.Name)
	require.GreaterOrEqual(t, len(cities.Rows), 2)
	assert.Equal(t, "city_id", cities.Rows[0].Cells[0].Value)
	assert.Equal(t, "2408102", cities.Rows[1].Cells[0].Value)
	assert.Equal(t, "Natal", cities.Rows[1].Cells[1].Value)

	articles := f.Sheets[1]
	assert.Equal(t, "articles", articles.Name)
	require.Len(t, articles.Rows, 3)
	assert.Equal(t, "a1", articles.Rows[1].Cells[0].Value)
	assert.Equal(t, "Natal", articles.Rows[1].Cells[1].Value)
	assert.Equal(t, "a2", articles.Rows[2].Cells[0].Value)
	assert.Equal(t, "", articles.Rows[2].Cells[1].Value)
}
