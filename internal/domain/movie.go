package domain

import (
	"fmt"
	"strconv"
	"time"
)

// MovieQuery is the input unit supplied by the release catalog.
type MovieQuery struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
}

func (q MovieQuery) String() string {
	if q.Year <= 0 {
		return q.Title
	}
	return fmt.Sprintf("%s (%d)", q.Title, q.Year)
}

// MovieKey identifies a canonical movie: normalized title plus year.
type MovieKey struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
}

func (k MovieKey) String() string {
	return k.Title + "|" + strconv.Itoa(k.Year)
}

// RecordKey addresses one provider's record for one movie in caches and stores.
type RecordKey struct {
	ProviderID string
	Movie      MovieKey
}

func (k RecordKey) String() string {
	return k.ProviderID + "|" + k.Movie.String()
}

// Status enumerates the outcome of a provider fetch.
type Status string

const (
	StatusOK      Status = "ok"
	StatusMissing Status = "missing"
	StatusFailed  Status = "failed"
)

// MatchTier names the entity-resolution tier that selected a candidate.
type MatchTier int

const (
	TierNone MatchTier = iota
	TierExact
	TierYearWindow
	TierSimilar
)

func (t MatchTier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierYearWindow:
		return "year_window"
	case TierSimilar:
		return "similar"
	default:
		return "none"
	}
}

// Resolution describes how a provider record was matched to the query.
type Resolution struct {
	Tier       MatchTier `json:"tier"`
	Confidence float64   `json:"confidence"`
	Unresolved bool      `json:"unresolved,omitempty"`
	Candidates int       `json:"candidates"`
}

// Candidate is one raw search result returned by a provider.
type Candidate struct {
	ExternalID  string
	Title       string
	Year        int
	ReleaseDate time.Time
	Value       string
	ReviewCount *int
	Popularity  float64
}

// RawResponse is the provider-specific payload reduced to its candidate list.
type RawResponse struct {
	Candidates []Candidate
}

// ProviderRecord is one provider's observation for one movie at one point in
// time. Records are never mutated; a re-fetch produces a new record.
type ProviderRecord struct {
	ProviderID  string     `json:"provider_id"`
	ExternalID  string     `json:"external_id,omitempty"`
	RawTitle    string     `json:"raw_title,omitempty"`
	RawYear     int        `json:"raw_year,omitempty"`
	RawValue    string     `json:"raw_value,omitempty"`
	ReviewCount *int       `json:"review_count"`
	FetchedAt   time.Time  `json:"fetched_at"`
	Status      Status     `json:"status"`
	Match       Resolution `json:"match"`
	Error       string     `json:"error,omitempty"`
}

// BreakdownEntry is one provider's contribution to an aggregate.
type BreakdownEntry struct {
	ProviderID       string  `json:"provider_id"`
	Status           Status  `json:"status"`
	Normalized       Score   `json:"normalized"`
	Credibility      float64 `json:"credibility"`
	ConfidenceFactor float64 `json:"confidence_factor"`
	Weight           float64 `json:"weight"`
}

// AggregateResult is the derived, confidence-weighted score of a movie.
type AggregateResult struct {
	Score         Score            `json:"score"`
	Band          string           `json:"band"`
	OKSources     int              `json:"ok_sources"`
	LowConfidence bool             `json:"low_confidence"`
	Breakdown     []BreakdownEntry `json:"breakdown"`
}

// CanonicalMovie is the reconciled entity for one real movie across providers.
type CanonicalMovie struct {
	Key         MovieKey          `json:"key"`
	Query       MovieQuery        `json:"query"`
	Title       string            `json:"title"`
	Year        int               `json:"year"`
	ResolvedIDs map[string]string `json:"resolved_ids"`
	Records     []ProviderRecord  `json:"records"`
	Unresolved  []string          `json:"unresolved,omitempty"`
	Aggregate   AggregateResult   `json:"aggregate"`
	Details     *MovieDetails     `json:"details,omitempty"`
}

// Release breadths reported in MovieDetails.
const (
	ReleaseWide    = "wide"
	ReleaseLimited = "limited"
)

// MovieDetails is descriptive metadata shown next to a movie's score. It plays
// no part in aggregation.
type MovieDetails struct {
	Director       string   `json:"director,omitempty"`
	Writer         string   `json:"writer,omitempty"`
	Cast           []string `json:"cast,omitempty"`
	Genres         []string `json:"genres,omitempty"`
	RuntimeMinutes int      `json:"runtime_minutes,omitempty"`
	Certification  string   `json:"certification,omitempty"`
	Release        string   `json:"release,omitempty"`
	Studio         string   `json:"studio,omitempty"`
	Overview       string   `json:"overview,omitempty"`
}

// NewCanonicalMovie starts an empty canonical movie for key.
func NewCanonicalMovie(key MovieKey, query MovieQuery) *CanonicalMovie {
	return &CanonicalMovie{
		Key:         key,
		Query:       query,
		Title:       query.Title,
		Year:        query.Year,
		ResolvedIDs: map[string]string{},
	}
}

// PutRecord adds rec, superseding any earlier record from the same provider.
// Callers must recompute the aggregate afterwards.
func (m *CanonicalMovie) PutRecord(rec ProviderRecord) {
	replaced := false
	for i := range m.Records {
		if m.Records[i].ProviderID == rec.ProviderID {
			m.Records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		m.Records = append(m.Records, rec)
	}

	delete(m.ResolvedIDs, rec.ProviderID)
	if rec.Status == StatusOK && rec.ExternalID != "" {
		m.ResolvedIDs[rec.ProviderID] = rec.ExternalID
	}

	m.Unresolved = m.Unresolved[:0:0]
	for _, r := range m.Records {
		if r.Match.Unresolved {
			m.Unresolved = append(m.Unresolved, r.ProviderID)
		}
	}
}

// Record returns the current record for provider, if any.
func (m *CanonicalMovie) Record(providerID string) (ProviderRecord, bool) {
	for _, r := range m.Records {
		if r.ProviderID == providerID {
			return r, true
		}
	}
	return ProviderRecord{}, false
}
