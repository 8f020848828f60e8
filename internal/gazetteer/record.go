// Package gazetteer maintains the versioned catalog of Brazilian
// municipalities that feeds city matching and disambiguation.
package gazetteer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/farol-news/sentinela-geo/internal/textnorm"
)

// Record is one canonical municipality entry. Immutable once loaded for a
// given catalog version.
type Record struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	StateCode string   `json:"state_code"`
	StateName string   `json:"state_name,omitempty"`
	Region    string   `json:"region,omitempty"`
	AltNames  []string `json:"alt_names,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	IsCapital bool     `json:"is_capital,omitempty"`
	SIAFIID   string   `json:"siafi_id,omitempty"`
	DDD       string   `json:"ddd,omitempty"`
	Timezone  string   `json:"timezone,omitempty"`

	// Derived geographic context, populated by Enrich after load and not
	// part of the serialized cache file.
	CapitalID string       `json:"-"`
	Point     *geom.Point  `json:"-"`
	Bounds    *geom.Bounds `json:"-"`
}

// Variants returns the canonical name plus alternate names, trimmed and
// deduplicated, preserving first-seen order.
func (r Record) Variants() []string {
	seen := make(map[string]bool, 1+len(r.AltNames))
	variants := make([]string, 0, 1+len(r.AltNames))
	for _, name := range append([]string{r.Name}, r.AltNames...) {
		key := textnorm.Fold(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		variants = append(variants, name)
	}
	return variants
}

// Metadata describes one catalog payload version.
type Metadata struct {
	Version       string `json:"version"`
	PrimarySource string `json:"primary_source"`
	Source        string `json:"source"`
	DownloadedAt  string `json:"downloaded_at"`
	RecordCount   int    `json:"record_count"`
	Checksum      string `json:"checksum"`
}

// Payload is one versioned catalog snapshot: metadata plus the full record
// list.
type Payload struct {
	Metadata Metadata `json:"metadata"`
	Data     []Record `json:"data"`
}

// Checksum computes the content hash over the canonically serialized record
// list. Struct fields marshal in declaration order, so equal record sets
// always produce equal digests.
func Checksum(records []Record) (string, error) {
	serialized, err := json.Marshal(records)
	if err != nil {
		return "", eris.Wrap(err, "gazetteer: serialize records for checksum")
	}
	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:]), nil
}

// Normalize drops records missing id or name, deduplicates by id keeping the
// first entry, and sorts numerically by id (name as secondary key). Remote
// source normalizers run their raw rows through this before a payload is
// assembled.
func Normalize(records []Record) []Record {
	byID := make(map[string]Record, len(records))
	order := make([]string, 0, len(records))
	for _, record := range records {
		if record.ID == "" || record.Name == "" {
			continue
		}
		if _, ok := byID[record.ID]; ok {
			continue
		}
		byID[record.ID] = record
		order = append(order, record.ID)
	}

	normalized := make([]Record, 0, len(order))
	for _, id := range order {
		normalized = append(normalized, byID[id])
	}
	sort.Slice(normalized, func(i, j int) bool {
		left, leftErr := strconv.ParseInt(normalized[i].ID, 10, 64)
		right, rightErr := strconv.ParseInt(normalized[j].ID, 10, 64)
		if leftErr == nil && rightErr == nil {
			if left != right {
				return left < right
			}
		} else if normalized[i].ID != normalized[j].ID {
			return normalized[i].ID < normalized[j].ID
		}
		return normalized[i].Name < normalized[j].Name
	})
	return normalized
}

// Index is the accent and case insensitive name+alias lookup used by
// disambiguation.
type Index struct {
	byName map[string][]*Record
	byID   map[string]*Record
}

// NewIndex builds an Index over the payload's records.
func NewIndex(payload *Payload) *Index {
	idx := &Index{
		byName: make(map[string][]*Record),
		byID:   make(map[string]*Record, len(payload.Data)),
	}
	for i := range payload.Data {
		record := &payload.Data[i]
		idx.byID[record.ID] = record
		for _, variant := range record.Variants() {
			key := textnorm.Fold(variant)
			idx.byName[key] = append(idx.byName[key], record)
		}
	}
	return idx
}

// Lookup returns all records whose name or alias folds to the same key as
// surface. The slice is shared; callers must not mutate it.
func (idx *Index) Lookup(surface string) []*Record {
	return idx.byName[textnorm.Fold(surface)]
}

// ByID returns the record with the given id, or nil.
func (idx *Index) ByID(id string) *Record {
	return idx.byID[id]
}
