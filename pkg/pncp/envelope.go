// Package pncp models the wire format of Brazil's public procurement portal
// API: a strongly typed response envelope decoded once per page, and the
// canonical URL/query-string construction the HTTP Client uses for every
// request.
package pncp

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/franklinbaldo/baliza/pkg/errz"
	"github.com/franklinbaldo/baliza/pkg/types"
)

// Envelope is the strongly typed pagination wrapper every PNCP list
// endpoint returns. The data field is kept as raw bytes in Data; other
// fields are ignored. Nothing here re-serializes the body, so the content
// hash over the stored payload stays stable.
type Envelope struct {
	TotalRegistros int             `json:"totalRegistros"`
	TotalPaginas   int             `json:"totalPaginas"`
	Data           json.RawMessage `json:"data"`
}

// ParseEnvelope decodes body for its pagination metadata. A JSON object
// that carries none of totalRegistros, totalPaginas or data is treated as
// a single-page response. A body that is not a JSON object, such as a bare
// array, does not decode and returns a ParseError.
func ParseEnvelope(body []byte) (*Envelope, error) {
	if len(body) == 0 {
		return &Envelope{TotalPaginas: 0}, nil
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errz.ParseError("pncp.ParseEnvelope", err)
	}
	if env.TotalPaginas == 0 && env.TotalRegistros == 0 && len(env.Data) == 0 {
		env.TotalPaginas = 1
	}
	return &env, nil
}

// DateFormat is PNCP's canonical wire date format, 8-digit YYYYMMDD
// regardless of the input value's own layout.
const DateFormat = "20060102"

// FormatDate renders t in the canonical YYYYMMDD form.
func FormatDate(t time.Time) string {
	return t.Format(DateFormat)
}

// BuildURL constructs the final request URL for one (endpoint, date bucket,
// page) triple: path template filled in, date params in canonical form,
// `pagina` and `tamanhoPagina` set, modality appended when present, and the
// whole query string emitted with sorted keys so the same logical request
// always serializes identically.
func BuildURL(baseURL string, ep *types.Endpoint, dataDate time.Time, page int, modality *int) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", errz.ConfigError("pncp.BuildURL", "invalid base url %q: %v", baseURL, err)
	}
	u.Path = u.Path + ep.PathTemplate

	q := make(map[string]string)
	q[ep.DateParamNames[0]] = FormatDate(dataDate)
	q[ep.DateParamNames[1]] = FormatDate(endOfBucket(dataDate, ep.Granularity))
	q["pagina"] = strconv.Itoa(page)
	q["tamanhoPagina"] = strconv.Itoa(ep.PageSize)
	if modality != nil {
		q["codigoModalidadeContratacao"] = strconv.Itoa(*modality)
	}

	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		values.Set(k, q[k])
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

// endOfBucket returns the inclusive end date of the time bucket containing
// t for the given granularity.
func endOfBucket(t time.Time, g types.Granularity) time.Time {
	switch g {
	case types.GranularityMonth:
		firstOfMonth := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
		return firstOfMonth.AddDate(0, 1, -1)
	default:
		return t
	}
}

// TimeBuckets enumerates the [start, end] inclusive sequence of bucket
// start dates at the given granularity. Returns a ConfigError if end
// precedes start.
func TimeBuckets(start, end time.Time, g types.Granularity) ([]time.Time, error) {
	if end.Before(start) {
		return nil, errz.ConfigError("pncp.TimeBuckets", "end date %s precedes start date %s", FormatDate(end), FormatDate(start))
	}
	var out []time.Time
	switch g {
	case types.GranularityMonth:
		cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
		for !cur.After(end) {
			out = append(out, cur)
			cur = cur.AddDate(0, 1, 0)
		}
	case types.GranularityDay:
		cur := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
		for !cur.After(end) {
			out = append(out, cur)
			cur = cur.AddDate(0, 0, 1)
		}
	default:
		return nil, errz.ConfigError("pncp.TimeBuckets", "unknown granularity %q", g)
	}
	return out, nil
}

// ModalityKey renders a modality pointer into a stable string for use in
// composite keys (task ids, fingerprints): "null" for nil, the decimal
// value otherwise.
func ModalityKey(modality *int) string {
	if modality == nil {
		return "null"
	}
	return fmt.Sprintf("%d", *modality)
}
