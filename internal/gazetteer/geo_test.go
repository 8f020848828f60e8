package gazetteer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestHaversine(t *testing.T) {
	natal := geom.NewPointFlat(geom.XY, []float64{-35.209, -5.795})
	saoPaulo := geom.NewPointFlat(geom.XY, []float64{-46.633, -23.550})

	distance := Haversine(natal, saoPaulo)
	// Natal to São Paulo is roughly 2,300 km.
	assert.InDelta(t, 2340, distance, 50)

	assert.InDelta(t, 0, Haversine(natal, natal), 1e-9)
	assert.Equal(t, float64(-1), Haversine(nil, natal))
}

func TestEnrich_DerivedFields(t *testing.T) {
	payload := &Payload{Data: Normalize(makeTestRecords())}
	Enrich(payload)

	idx := NewIndex(payload)

	acu := idx.ByID("2401305")
	require.NotNil(t, acu)
	// Same-state capital cross-reference.
	assert.Equal(t, "2408102", acu.CapitalID)

	natal := idx.ByID("2408102")
	require.NotNil(t, natal)
	assert.Equal(t, "2408102", natal.CapitalID)
	require.NotNil(t, natal.Point)
	assert.InDelta(t, -35.209, natal.Point.X(), 1e-9)
	assert.InDelta(t, -5.795, natal.Point.Y(), 1e-9)
	require.NotNil(t, natal.Bounds)

	// No coordinates, no point.
	cuiaba := idx.ByID("5103403")
	require.NotNil(t, cuiaba)
	assert.Nil(t, cuiaba.Point)
	assert.Equal(t, "5103403", cuiaba.CapitalID)
}

func TestDistance_NilSafe(t *testing.T) {
	payload := &Payload{Data: Normalize(makeTestRecords())}
	Enrich(payload)
	idx := NewIndex(payload)

	assert.Equal(t, float64(-1), Distance(idx.ByID("2408102"), idx.ByID("5103403")))
	assert.Equal(t, float64(-1), Distance(nil, idx.ByID("2408102")))
}
