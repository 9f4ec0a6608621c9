package dpapi

import (
	"fmt"
	"sort"
	"time"
)

// StreamPreference names which gRPC transport shape a Request (or
// sub-Request) would like its data recovered over.
type StreamPreference int

const (
	StreamPreferenceUnspecified StreamPreference = iota
	StreamPreferenceForwardUnary
	StreamPreferenceBidirectional
)

// TimeRange is a half-open interval [Begin, End).
type TimeRange struct {
	Begin time.Time
	End   time.Time
}

func (r TimeRange) Duration() time.Duration { return r.End.Sub(r.Begin) }

func (r TimeRange) valid() bool { return !r.End.Before(r.Begin) }

// Request is a logical query: a set of sources over a time range,
// immutable once built via NewRequest.
type Request struct {
	id              string
	sources         []string
	timeRange       TimeRange
	preferredStream StreamPreference
	maxSourcesCap   int
	maxDurationCap  time.Duration
}

// RequestOption configures a Request at construction time.
type RequestOption func(*Request)

// WithPreferredStream sets the stream preference recorded on the Request.
func WithPreferredStream(p StreamPreference) RequestOption {
	return func(r *Request) { r.preferredStream = p }
}

// WithMaxSourcesCap sets the cap the Request Decomposer (pkg/query) uses
// when splitting this Request vertically.
func WithMaxSourcesCap(n int) RequestOption {
	return func(r *Request) { r.maxSourcesCap = n }
}

// WithMaxDurationCap sets the cap the Request Decomposer uses when
// splitting this Request horizontally.
func WithMaxDurationCap(d time.Duration) RequestOption {
	return func(r *Request) { r.maxDurationCap = d }
}

// NewRequest builds an immutable Request. Sources are de-duplicated and
// sorted so that decomposition (pkg/query) can partition them
// deterministically.
func NewRequest(id string, sources []string, tr TimeRange, opts ...RequestOption) (*Request, error) {
	if id == "" {
		return nil, fmt.Errorf("dpapi: request id must not be empty")
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("dpapi: request must name at least one source")
	}
	if !tr.valid() {
		return nil, fmt.Errorf("dpapi: request range end must not precede begin")
	}

	uniq := make(map[string]struct{}, len(sources))
	dedup := make([]string, 0, len(sources))
	for _, s := range sources {
		if s == "" {
			return nil, fmt.Errorf("dpapi: source name must not be empty")
		}
		if _, ok := uniq[s]; ok {
			continue
		}
		uniq[s] = struct{}{}
		dedup = append(dedup, s)
	}
	sort.Strings(dedup)

	r := &Request{
		id:        id,
		sources:   dedup,
		timeRange: tr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Request) ID() string                        { return r.id }
func (r *Request) Sources() []string                  { return append([]string(nil), r.sources...) }
func (r *Request) Range() TimeRange                    { return r.timeRange }
func (r *Request) PreferredStream() StreamPreference   { return r.preferredStream }
func (r *Request) MaxSourcesCap() int                   { return r.maxSourcesCap }
func (r *Request) MaxDurationCap() time.Duration        { return r.maxDurationCap }

// SubID derives the spec-mandated "{parent-id}#{index}" identifier for a
// sub-Request produced by the Decomposer.
func SubID(parentID string, index int) string {
	return fmt.Sprintf("%s#%d", parentID, index)
}

// withOverride returns a copy of r with a new id/sources/range, used
// internally by the Decomposer (pkg/query) to build sub-Requests while
// preserving caps and stream preference.
func (r *Request) withOverride(id string, sources []string, tr TimeRange) *Request {
	return &Request{
		id:              id,
		sources:         sources,
		timeRange:       tr,
		preferredStream: r.preferredStream,
		maxSourcesCap:   r.maxSourcesCap,
		maxDurationCap:  r.maxDurationCap,
	}
}

// WithOverride is the exported form of withOverride, used by pkg/query's
// Decomposer which lives in a different package.
func (r *Request) WithOverride(id string, sources []string, tr TimeRange) *Request {
	return r.withOverride(id, sources, tr)
}
