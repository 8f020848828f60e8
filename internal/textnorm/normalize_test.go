package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeWithOffsets_Basic(t *testing.T) {
	normalized, offsets := NormalizeWithOffsets("São Paulo")
	assert.Equal(t, "sao paulo", normalized)
	require.Len(t, offsets, len([]rune(normalized)))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, offsets)
}

func TestNormalizeWithOffsets_HyphenVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"regular hyphen", "Venda-Nova", "venda nova"},
		{"en dash", "Venda–Nova", "venda nova"},
		{"em dash", "Venda—Nova", "venda nova"},
		{"non-breaking hyphen", "Venda‑Nova", "venda nova"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalized, offsets := NormalizeWithOffsets(tt.input)
			assert.Equal(t, tt.want, normalized)
			assert.Len(t, offsets, len([]rune(normalized)))
		})
	}
}

func TestNormalizeWithOffsets_DropsSoftHyphen(t *testing.T) {
	normalized, offsets := NormalizeWithOffsets("Na­tal")
	assert.Equal(t, "natal", normalized)
	// Offsets skip the dropped rune: t maps to index 3 in the original.
	assert.Equal(t, []int{0, 1, 3, 4, 5}, offsets)
}

func TestNormalizeWithOffsets_DropsZeroWidthRunes(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"zero-width space", "Na​tal"},
		{"zero-width non-joiner", "Na‌tal"},
		{"zero-width joiner", "Na‍tal"},
		{"zero-width no-break space", "Na\uFEFFtal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalized, offsets := NormalizeWithOffsets(tt.input)
			assert.Equal(t, "natal", normalized)
			assert.Equal(t, []int{0, 1, 3, 4, 5}, offsets)
		})
	}
}

func TestNormalizeWithOffsets_OffsetRoundTrip(t *testing.T) {
	inputs := []string{
		"Prefeito de São José dos Campos anuncia obras",
		"BELO HORIZONTE — Minas Gerais",
		"Águas de São Pedro­, interior paulista",
		"município de Santa Bárbara d'Oeste",
	}

	for _, input := range inputs {
		normalized, offsets := NormalizeWithOffsets(input)
		runes := []rune(input)
		normRunes := []rune(normalized)
		require.Len(t, offsets, len(normRunes))

		for i, off := range offsets {
			require.Less(t, off, len(runes))
			folded := foldRune(runes[off])
			assert.Contains(t, string(folded), string(normRunes[i]),
				"normalized rune %q at %d must derive from original rune %q", normRunes[i], i, runes[off])
		}
	}
}

func TestFold(t *testing.T) {
	assert.Equal(t, "sao jose do rio preto", Fold("  São José do Rio-Preto "))
	assert.Equal(t, "", Fold("­"))
}

func TestCleanArticleText(t *testing.T) {
	input := "Prefeito visita obras\n\nLeia também: outra notícia\nFoto: agência\nA cidade recebeu investimentos."
	assert.Equal(t, "Prefeito visita obras A cidade recebeu investimentos.", CleanArticleText(input))
}

func TestStateMentions(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"full name", "a capital do Rio Grande do Norte", []string{"RN"}},
		{"abbreviation", "Natal - RN recebeu turistas", []string{"RN"}},
		{"mixed sorted", "de SP até a Bahia", []string{"BA", "SP"}},
		{"lowercase abbr ignored", "moro em rn", nil},
		{"non-state uppercase pair ignored", "sigla XY no texto", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StateMentions(tt.text)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSentenceContaining(t *testing.T) {
	text := "Primeira frase. A prefeitura de Natal anunciou obras. Última frase."
	sentence := SentenceContaining(text, 35)
	assert.Equal(t, "A prefeitura de Natal anunciou obras.", sentence)

	assert.Equal(t, "sem pontuação", SentenceContaining("sem pontuação", 2))
}

func TestValidStateCode(t *testing.T) {
	assert.True(t, ValidStateCode("RN"))
	assert.True(t, ValidStateCode("sp"))
	assert.False(t, ValidStateCode("XX"))
}
