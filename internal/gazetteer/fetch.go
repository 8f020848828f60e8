package gazetteer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/farol-news/sentinela-geo/internal/resilience"
)

// Source describes one remote catalog source. Kind selects the schema
// normalizer.
type Source struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	URL  string `yaml:"url"`
}

// Source kinds.
const (
	KindIBGE      = "ibge"
	KindBrasilAPI = "brasilapi"
	KindShapefile = "shapefile"
)

// DefaultSources returns the built-in source list in fallback order.
func DefaultSources() []Source {
	return []Source{
		{
			Name: "IBGE Localidades API",
			Kind: KindIBGE,
			URL:  "https://servicodados.ibge.gov.br/api/v1/localidades/municipios",
		},
		{
			Name: "BrasilAPI",
			Kind: KindBrasilAPI,
			URL:  "https://brasilapi.com.br/api/ibge/municipios/v1",
		},
		{
			Name: "IBGE geoftp municipality seats",
			Kind: KindShapefile,
			URL:  "ftp://geoftp.ibge.gov.br/organizacao_do_territorio/estrutura_territorial/localidades/Shapefile_SHP/BR_Localidades_2010_v1.zip",
		},
	}
}

// LoadSources reads a source list override from a YAML file.
func LoadSources(path string) ([]Source, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "gazetteer: read sources file %s", path)
	}
	var sources []Source
	if err := yaml.Unmarshal(raw, &sources); err != nil {
		return nil, eris.Wrapf(err, "gazetteer: parse sources file %s", path)
	}
	if len(sources) == 0 {
		return nil, eris.Errorf("gazetteer: sources file %s is empty", path)
	}
	return sources, nil
}

// Fetcher downloads and normalizes the municipality catalog from remote
// sources, falling back through the configured list in order.
type Fetcher struct {
	sources    []Source
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
	breakers   *resilience.SourceBreakers
	tempDir    string
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient overrides the HTTP client used for API sources.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) { f.httpClient = client }
}

// WithRateLimit sets the request rate toward remote sources.
func WithRateLimit(limit rate.Limit, burst int) FetcherOption {
	return func(f *Fetcher) { f.limiter = rate.NewLimiter(limit, burst) }
}

// WithRetryConfig overrides the retry policy for remote fetches.
func WithRetryConfig(cfg resilience.RetryConfig) FetcherOption {
	return func(f *Fetcher) { f.retry = cfg }
}

// WithTempDir sets the scratch directory for shapefile downloads.
func WithTempDir(dir string) FetcherOption {
	return func(f *Fetcher) { f.tempDir = dir }
}

// NewFetcher creates a Fetcher over the given sources.
func NewFetcher(sources []Source, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		sources:    sources,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 2),
		retry:      resilience.DefaultRetryConfig(),
		breakers:   resilience.NewSourceBreakers(resilience.DefaultCircuitConfig()),
		tempDir:    os.TempDir(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch obtains the catalog using the primary source with automatic
// fallback. Returns the normalized record list and the name of the source
// that actually served it.
func (f *Fetcher) Fetch(ctx context.Context, primary string) ([]Record, string, error) {
	log := zap.L().With(zap.String("component", "gazetteer.fetch"))

	ordered := make([]Source, 0, len(f.sources))
	for _, source := range f.sources {
		if source.Kind == primary {
			ordered = append(ordered, source)
		}
	}
	for _, source := range f.sources {
		if source.Kind != primary {
			ordered = append(ordered, source)
		}
	}

	var errs []error
	for _, source := range ordered {
		records, err := f.fetchSource(ctx, source)
		if err != nil {
			log.Warn("catalog source failed, trying next",
				zap.String("source", source.Kind),
				zap.Error(err),
			)
			errs = append(errs, eris.Wrap(err, source.Kind))
			continue
		}
		log.Info("catalog source returned records",
			zap.String("source", source.Kind),
			zap.Int("records", len(records)),
		)
		return records, source.Kind, nil
	}

	return nil, "", eris.Wrapf(errors.Join(errs...),
		"gazetteer: all %d catalog sources failed", len(errs))
}

func (f *Fetcher) fetchSource(ctx context.Context, source Source) ([]Record, error) {
	var records []Record
	err := f.breakers.Get(source.Kind).Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, f.retry, func(ctx context.Context) error {
			var fetchErr error
			switch source.Kind {
			case KindIBGE, KindBrasilAPI:
				records, fetchErr = f.fetchJSON(ctx, source)
			case KindShapefile:
				records, fetchErr = f.fetchShapefile(ctx, source)
			default:
				return eris.Errorf("gazetteer: unknown source kind %q", source.Kind)
			}
			return fetchErr
		})
	})
	if err != nil {
		return nil, err
	}

	normalized := Normalize(records)
	if len(normalized) == 0 {
		return nil, eris.Errorf("gazetteer: source %s returned no valid records", source.Kind)
	}
	return normalized, nil
}

func (f *Fetcher) fetchJSON(ctx context.Context, source Source) ([]Record, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "gazetteer: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "gazetteer: build request")
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "gazetteer: fetch %s", source.Name)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.HTTPStatusError(resp.StatusCode,
			eris.Errorf("gazetteer: %s returned status %d", source.Name, resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "gazetteer: read %s response", source.Name)
	}

	switch source.Kind {
	case KindIBGE:
		return normalizeIBGE(body)
	case KindBrasilAPI:
		return normalizeBrasilAPI(body)
	}
	return nil, eris.Errorf("gazetteer: no JSON normalizer for kind %q", source.Kind)
}

// ibgeMunicipality is the IBGE Localidades API row shape.
type ibgeMunicipality struct {
	ID   json.Number `json:"id"`
	Nome string      `json:"nome"`
	Meso struct {
		Mesorregiao struct {
			UF struct {
				Sigla  string `json:"sigla"`
				Nome   string `json:"nome"`
				Regiao struct {
					Nome string `json:"nome"`
				} `json:"regiao"`
			} `json:"UF"`
		} `json:"mesorregiao"`
	} `json:"microrregiao"`
}

func normalizeIBGE(body []byte) ([]Record, error) {
	var rows []ibgeMunicipality
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, eris.Wrap(err, "gazetteer: decode IBGE response")
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		uf := row.Meso.Mesorregiao.UF
		records = append(records, Record{
			ID:        row.ID.String(),
			Name:      row.Nome,
			StateCode: uf.Sigla,
			StateName: uf.Nome,
			Region:    uf.Regiao.Nome,
		})
	}
	return records, nil
}

// brasilAPIMunicipality is the BrasilAPI row shape.
type brasilAPIMunicipality struct {
	CodigoIBGE  json.Number `json:"codigo_ibge"`
	Nome        string      `json:"nome"`
	Estado      string      `json:"estado"`
	UF          string      `json:"uf"`
	Latitude    *float64    `json:"latitude"`
	Longitude   *float64    `json:"longitude"`
	Capital     bool        `json:"capital"`
	SIAFIID     json.Number `json:"siafi_id"`
	DDD         json.Number `json:"ddd"`
	FusoHorario string      `json:"fuso_horario"`
}

func normalizeBrasilAPI(body []byte) ([]Record, error) {
	var rows []brasilAPIMunicipality
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, eris.Wrap(err, "gazetteer: decode BrasilAPI response")
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		code := row.Estado
		if code == "" {
			code = row.UF
		}
		meta := stateMeta[code]
		records = append(records, Record{
			ID:        row.CodigoIBGE.String(),
			Name:      row.Nome,
			StateCode: code,
			StateName: meta.name,
			Region:    meta.region,
			Latitude:  row.Latitude,
			Longitude: row.Longitude,
			IsCapital: row.Capital,
			SIAFIID:   row.SIAFIID.String(),
			DDD:       row.DDD.String(),
			Timezone:  row.FusoHorario,
		})
	}
	return records, nil
}

type stateInfo struct {
	name   string
	region string
}

var stateMeta = map[string]stateInfo{
	"AC": {"Acre", "Norte"},
	"AL": {"Alagoas", "Nordeste"},
	"AP": {"Amapá", "Norte"},
	"AM": {"Amazonas", "Norte"},
	"BA": {"Bahia", "Nordeste"},
	"CE": {"Ceará", "Nordeste"},
	"DF": {"Distrito Federal", "Centro-Oeste"},
	"ES": {"Espírito Santo", "Sudeste"},
	"GO": {"Goiás", "Centro-Oeste"},
	"MA": {"Maranhão", "Nordeste"},
	"MT": {"Mato Grosso", "Centro-Oeste"},
	"MS": {"Mato Grosso do Sul", "Centro-Oeste"},
	"MG": {"Minas Gerais", "Sudeste"},
	"PA": {"Pará", "Norte"},
	"PB": {"Paraíba", "Nordeste"},
	"PR": {"Paraná", "Sul"},
	"PE": {"Pernambuco", "Nordeste"},
	"PI": {"Piauí", "Nordeste"},
	"RJ": {"Rio de Janeiro", "Sudeste"},
	"RN": {"Rio Grande do Norte", "Nordeste"},
	"RS": {"Rio Grande do Sul", "Sul"},
	"RO": {"Rondônia", "Norte"},
	"RR": {"Roraima", "Norte"},
	"SC": {"Santa Catarina", "Sul"},
	"SP": {"São Paulo", "Sudeste"},
	"SE": {"Sergipe", "Nordeste"},
	"TO": {"Tocantins", "Norte"},
}

func strconvFloat(value string) *float64 {
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &parsed
}
