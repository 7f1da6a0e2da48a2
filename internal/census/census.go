// Package census fetches housing occupancy counts from the Census data API
// and turns its header-plus-rows tables into area statistics.
package census

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/vacancy-map/internal/fetcher"
	"github.com/sells-group/vacancy-map/internal/geoid"
	"github.com/sells-group/vacancy-map/internal/model"
)

// Default ACS variables: occupancy status total and vacant units.
const (
	DefaultTotalVar  = "B25002_001E"
	DefaultVacantVar = "B25002_003E"
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	APIKey    string
	TotalVar  string
	VacantVar string
}

// Client queries the Census data API.
type Client struct {
	getter fetcher.Getter
	opts   Options
}

// NewClient creates a Client backed by getter.
func NewClient(getter fetcher.Getter, opts Options) *Client {
	if opts.TotalVar == "" {
		opts.TotalVar = DefaultTotalVar
	}
	if opts.VacantVar == "" {
		opts.VacantVar = DefaultVacantVar
	}
	return &Client{getter: getter, opts: opts}
}

// QueryURL builds the request for every area at level inside the given scope.
// At state level a non-empty stateID narrows the query to that one state.
func (c *Client) QueryURL(level model.GeoLevel, stateID, countyID string) string {
	q := url.Values{}
	q.Set("get", strings.Join([]string{"NAME", c.opts.TotalVar, c.opts.VacantVar}, ","))

	geo := level.CensusGeography()
	switch {
	case level == model.LevelState && stateID != "":
		q.Set("for", "state:"+stateID)
	default:
		q.Set("for", geo+":*")
	}
	if level.NeedsState() {
		q.Add("in", "state:"+stateID)
	}
	if level.NeedsCounty() {
		q.Add("in", "county:"+countyID)
	}
	if c.opts.APIKey != "" {
		q.Set("key", c.opts.APIKey)
	}
	// Census expects %20 in "block group", not the form-encoded "+".
	return c.opts.BaseURL + "?" + strings.ReplaceAll(q.Encode(), "+", "%20")
}

// FetchAttributes returns one statistic per area at level, in upstream row
// order. Failures are reported as model.ErrUpstreamUnavailable; there is no
// automatic retry.
func (c *Client) FetchAttributes(ctx context.Context, level model.GeoLevel, stateID, countyID string) ([]model.AreaStatistic, error) {
	state, county, err := geoid.Required(level, stateID, countyID)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("component", "census"),
		zap.String("level", level.String()),
		zap.String("state", state),
		zap.String("county", county),
	)

	body, err := c.getter.Get(ctx, c.QueryURL(level, state, county))
	if err != nil {
		return nil, model.WrapError(model.ErrUpstreamUnavailable, err, "census request")
	}

	stats, err := ParseTable(body, level, c.opts.TotalVar, c.opts.VacantVar)
	if err != nil {
		return nil, err
	}
	log.Debug("census: fetched attributes", zap.Int("areas", len(stats)))
	return stats, nil
}

// ParseTable converts a Census API response (first row = header) into
// statistics. Columns are located by header name. Unparseable counts count
// as zero rather than dropping the row.
func ParseTable(body []byte, level model.GeoLevel, totalVar, vacantVar string) ([]model.AreaStatistic, error) {
	var raw [][]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, model.WrapError(model.ErrUpstreamUnavailable, eris.Wrap(err, "census: unmarshal table"), "malformed response")
	}
	if len(raw) < 2 {
		return nil, model.NewError(model.ErrUpstreamUnavailable, "census returned %d rows, want a header and at least one data row", len(raw))
	}

	header := make([]string, len(raw[0]))
	for i, h := range raw[0] {
		header[i] = cell(h)
	}
	colIdx := make(map[string]int, len(header))
	for i, col := range header {
		colIdx[col] = i
	}
	if _, ok := colIdx["NAME"]; !ok {
		return nil, model.NewError(model.ErrUpstreamUnavailable, "census response has no NAME column")
	}

	stats := make([]model.AreaStatistic, 0, len(raw)-1)
	var skipped int
	for _, rec := range raw[1:] {
		row := make([]string, len(rec))
		for i, v := range rec {
			row[i] = cell(v)
		}
		id, err := rowGEOID(row, colIdx, level)
		if err != nil {
			skipped++
			continue
		}
		stats = append(stats, model.NewAreaStatistic(
			geoid.DisplayName(col(row, colIdx, "NAME")),
			id,
			parseCount(col(row, colIdx, totalVar)),
			parseCount(col(row, colIdx, vacantVar)),
		))
	}
	if skipped > 0 {
		zap.L().Warn("census: skipped rows without a usable geography id",
			zap.String("level", level.String()),
			zap.Int("skipped", skipped),
		)
	}
	return stats, nil
}

// rowGEOID assembles the canonical GEOID from the geography columns. The
// level's own code is the last column of the row.
func rowGEOID(row []string, colIdx map[string]int, level model.GeoLevel) (string, error) {
	if len(row) == 0 {
		return "", model.NewError(model.ErrInvalidIdentifier, "empty row")
	}
	own := row[len(row)-1]

	switch level {
	case model.LevelState:
		return geoid.BuildGEOID(own)
	case model.LevelCounty:
		return geoid.BuildGEOID(col(row, colIdx, "state"), own)
	case model.LevelTract:
		return geoid.BuildGEOID(col(row, colIdx, "state"), col(row, colIdx, "county"), own)
	case model.LevelBlock:
		return geoid.BuildGEOID(col(row, colIdx, "state"), col(row, colIdx, "county"), col(row, colIdx, "tract"), own)
	}
	return "", model.NewError(model.ErrUnsupportedLevel, "unknown geography level %q", level)
}

func col(row []string, colIdx map[string]int, name string) string {
	idx, ok := colIdx[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// parseCount reads a count, treating blanks, annotations and negative
// sentinel values (ACS uses -666666666 and friends) as zero.
func parseCount(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0
		}
		v = int64(f)
	}
	if v < 0 {
		return 0
	}
	return v
}

// cell renders one table cell. Census sends strings, but numbers and nulls
// are tolerated.
func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
