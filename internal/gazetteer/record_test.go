package gazetteer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTestRecords() []Record {
	lat := -5.795
	lon := -35.209
	return []Record{
		{ID: "2408102", Name: "Natal", StateCode: "RN", StateName: "Rio Grande do Norte", Region: "Nordeste", IsCapital: true, Latitude: &lat, Longitude: &lon},
		{ID: "5103403", Name: "Cuiabá", StateCode: "MT", IsCapital: true},
		{ID: "4115200", Name: "Natal", StateCode: "PR"},
		{ID: "3550308", Name: "São Paulo", StateCode: "SP", IsCapital: true, AltNames: []string{"Sampa"}},
		{ID: "2401305", Name: "Açu", StateCode: "RN", AltNames: []string{"Assú"}},
	}
}

func TestNormalize_DropsInvalidAndSorts(t *testing.T) {
	records := []Record{
		{ID: "3550308", Name: "São Paulo", StateCode: "SP"},
		{ID: "", Name: "Sem ID"},
		{ID: "2408102", Name: ""},
		{ID: "1100015", Name: "Alta Floresta D'Oeste", StateCode: "RO"},
		{ID: "3550308", Name: "Duplicata", StateCode: "SP"},
	}

	normalized := Normalize(records)
	require.Len(t, normalized, 2)
	assert.Equal(t, "1100015", normalized[0].ID)
	assert.Equal(t, "3550308", normalized[1].ID)
	// First occurrence wins on duplicate ids.
	assert.Equal(t, "São Paulo", normalized[1].Name)
}

func TestChecksum_Deterministic(t *testing.T) {
	records := Normalize(makeTestRecords())

	first, err := Checksum(records)
	require.NoError(t, err)
	second, err := Checksum(records)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)

	changed := make([]Record, len(records))
	copy(changed, records)
	changed[0].Name = "Outro Nome"
	third, err := Checksum(changed)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestIndex_LookupFoldsAccentsAndCase(t *testing.T) {
	payload := &Payload{Data: Normalize(makeTestRecords())}
	idx := NewIndex(payload)

	tests := []struct {
		surface string
		wantIDs []string
	}{
		{"natal", []string{"2408102", "4115200"}},
		{"NATAL", []string{"2408102", "4115200"}},
		{"Cuiaba", []string{"5103403"}},
		{"sampa", []string{"3550308"}},
		{"assu", []string{"2401305"}},
		{"Cidade Inexistente", nil},
	}

	for _, tt := range tests {
		t.Run(tt.surface, func(t *testing.T) {
			got := idx.Lookup(tt.surface)
			ids := make([]string, 0, len(got))
			for _, record := range got {
				ids = append(ids, record.ID)
			}
			assert.ElementsMatch(t, tt.wantIDs, ids)
		})
	}
}

func TestIndex_ByID(t *testing.T) {
	payload := &Payload{Data: Normalize(makeTestRecords())}
	idx := NewIndex(payload)

	record := idx.ByID("3550308")
	require.NotNil(t, record)
	assert.Equal(t, "São Paulo", record.Name)
	assert.Nil(t, idx.ByID("0000000"))
}

func TestVariants_Deduplicates(t *testing.T) {
	record := Record{ID: "1", Name: "Açu", AltNames: []string{"Assú", "açu", "  "}}
	assert.Equal(t, []string{"Açu", "Assú"}, record.Variants())
}
