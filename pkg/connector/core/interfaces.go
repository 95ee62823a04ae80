// Package core defines the stream model shared by source connectors and the
// sync pipeline.
//
// A Stream is a configuration record: request path and parameters, keys,
// schema and a small set of functions (Parse, Transform, ChildContext)
// that give an entity its behaviour. There is no per-entity type
// hierarchy; behaviour is composed from those functions.
package core

import (
	"context"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/ajitpratap0/tap-jotform/pkg/config"
	"github.com/ajitpratap0/tap-jotform/pkg/errors"
	"github.com/ajitpratap0/tap-jotform/pkg/json"
	"github.com/ajitpratap0/tap-jotform/pkg/pagination"
	"github.com/ajitpratap0/tap-jotform/pkg/pool"
	"github.com/ajitpratap0/tap-jotform/pkg/schema"
)

// Context carries values from a parent record into a child stream, both to
// fill the child's path template and to populate the child's records.
type Context map[string]string

// ParseFunc extracts rows from the response content.
type ParseFunc func(content json.RawMessage) ([]map[string]interface{}, error)

// TransformFunc reshapes one row into the output record.
type TransformFunc func(row map[string]interface{}) (map[string]interface{}, error)

// ChildContextFunc derives the context handed to child streams from an
// emitted record.
type ChildContextFunc func(record map[string]interface{}) (Context, error)

// Stream describes one entity type.
type Stream struct {
	Name string
	// Path may contain {key} placeholders filled from the parent Context
	Path           string
	PrimaryKeys    []string
	ReplicationKey string
	// Paginated streams send limit/offset and the incremental filter
	Paginated bool
	// Deprecated streams are only offered when include_deprecated_streams is set
	Deprecated bool
	// Parent names the stream whose records drive this one
	Parent      string
	Schema      *schema.Schema
	Conformance schema.ConformLevel
	// FixedParams are sent on every request
	FixedParams  url.Values
	Parse        ParseFunc
	Transform    TransformFunc
	ChildContext ChildContextFunc
}

// StreamRequest parameterizes one pass over a stream.
type StreamRequest struct {
	// Context is the parent context, nil for top-level streams
	Context Context
	// Bookmark is the replication key lower bound, "" for none
	Bookmark string
	// PageSize is the page limit for paginated streams
	PageSize int
}

// PageFunc fetches the next page of a pass. It returns io.EOF once the pass
// has no more pages; an empty page is not the end by itself.
type PageFunc func(ctx context.Context) ([]*pool.Record, error)

// RecordStream is one pass over a stream. It is pulled by a single caller:
// a page is fetched only after every record of the previous page has been
// returned by Next.
type RecordStream struct {
	fetch PageFunc
	page  []*pool.Record
	pos   int
	err   error
}

// NewRecordStream creates a stream that reads pages with fetch.
func NewRecordStream(fetch PageFunc) *RecordStream {
	return &RecordStream{fetch: fetch}
}

// Next returns the next record. It returns io.EOF after the last record and
// keeps returning the first error it saw.
func (rs *RecordStream) Next(ctx context.Context) (*pool.Record, error) {
	for rs.pos >= len(rs.page) {
		if rs.err != nil {
			return nil, rs.err
		}
		if err := ctx.Err(); err != nil {
			rs.err = err
			return nil, err
		}
		page, err := rs.fetch(ctx)
		if err != nil {
			rs.err = err
			return nil, err
		}
		rs.page, rs.pos = page, 0
	}
	record := rs.page[rs.pos]
	rs.page[rs.pos] = nil
	rs.pos++
	return record, nil
}

// Close releases records that were fetched but not consumed.
func (rs *RecordStream) Close() {
	for _, r := range rs.page[rs.pos:] {
		if r != nil {
			r.Release()
		}
	}
	rs.page, rs.pos = nil, 0
	if rs.err == nil {
		rs.err = io.EOF
	}
}

// Source is the interface that all source connectors must implement
type Source interface {
	Initialize(ctx context.Context, cfg *config.Config) error
	// Streams returns the available streams in sync order
	Streams() []*Stream
	// Read runs one pass over stream
	Read(ctx context.Context, stream *Stream, req *StreamRequest) (*RecordStream, error)
	Close(ctx context.Context) error
}

// IsIncremental reports whether the stream has a replication key.
func (s *Stream) IsIncremental() bool {
	return s.ReplicationKey != ""
}

// IsChild reports whether the stream runs under a parent.
func (s *Stream) IsChild() bool {
	return s.Parent != ""
}

// ResolvePath fills {key} placeholders in the path from ctx. Values are
// path-escaped.
func (s *Stream) ResolvePath(ctx Context) (string, error) {
	path := s.Path
	for {
		start := strings.IndexByte(path, '{')
		if start < 0 {
			return path, nil
		}
		end := strings.IndexByte(path[start:], '}')
		if end < 0 {
			return "", errors.Newf(errors.ErrorTypeConfig, "stream %s: unterminated placeholder in path %q", s.Name, s.Path)
		}
		key := path[start+1 : start+end]
		value, ok := ctx[key]
		if !ok || value == "" {
			return "", errors.Newf(errors.ErrorTypeData, "stream %s: context has no value for %q", s.Name, key)
		}
		path = path[:start] + url.PathEscape(value) + path[start+end+1:]
	}
}

// NewPaginator returns the paginator for one pass over the stream.
func (s *Stream) NewPaginator(pageSize int) pagination.Paginator {
	if s.Paginated {
		return pagination.NewOffsetPaginator(pageSize)
	}
	return pagination.NewSinglePage()
}

// Params builds the query parameters for the page at offset. The offset is
// omitted on the first page and the filter only applies with a bookmark.
func (s *Stream) Params(req *StreamRequest, offset int) url.Values {
	params := url.Values{}
	for k, vs := range s.FixedParams {
		params[k] = append([]string(nil), vs...)
	}
	if !s.Paginated {
		return params
	}

	params.Set("limit", strconv.Itoa(req.PageSize))
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	if s.IsIncremental() && req.Bookmark != "" {
		params.Set("filter", FilterParam(s.ReplicationKey, req.Bookmark))
	}
	return params
}

// FilterParam renders the API's greater-than filter for key and value.
func FilterParam(key, value string) string {
	k, _ := json.Marshal(key + ":gt")
	v, _ := json.Marshal(value)
	return "{" + string(k) + ": " + string(v) + "}"
}

// KeyOf renders the primary key of record. Every key field must be present.
func (s *Stream) KeyOf(record map[string]interface{}) (string, error) {
	parts := make([]string, 0, len(s.PrimaryKeys))
	for _, k := range s.PrimaryKeys {
		v, ok := record[k]
		if !ok || v == nil {
			return "", errors.Newf(errors.ErrorTypeValidation, "stream %s: primary key %q is missing", s.Name, k).
				WithDetail("stream", s.Name)
		}
		parts = append(parts, keyString(v))
	}
	return strings.Join(parts, "\x1f"), nil
}

func keyString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
