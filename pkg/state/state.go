// Package state tracks per-stream bookmarks between runs.
//
// The serialized form is the Singer state document:
//
//	{"bookmarks": {"forms": {"replication_key": "updated_at", "replication_key_value": "2024-01-02 03:04:05"}}}
//
// Parse also accepts a STATE message ({"type": "STATE", "value": {...}}) so
// the last line a target echoed back can be fed in unchanged.
package state

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ajitpratap0/tap-jotform/pkg/errors"
	"github.com/ajitpratap0/tap-jotform/pkg/json"
)

// Bookmark is the high-water mark of one incremental stream.
type Bookmark struct {
	ReplicationKey      string `json:"replication_key,omitempty"`
	ReplicationKeyValue string `json:"replication_key_value"`
}

// State holds bookmarks keyed by stream name.
type State struct {
	Bookmarks map[string]*Bookmark `json:"bookmarks"`
}

// New returns an empty state.
func New() *State {
	return &State{Bookmarks: make(map[string]*Bookmark)}
}

// Parse decodes a state document. Empty input yields an empty state.
func Parse(data []byte) (*State, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return New(), nil
	}

	st, err := parseDocument(data)
	if err == nil {
		return st, nil
	}

	// A captured message stream: keep the last line.
	if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
		if st, lastErr := parseDocument(bytes.TrimSpace(data[i+1:])); lastErr == nil {
			return st, nil
		}
	}
	return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid state document")
}

func parseDocument(data []byte) (*State, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	if _, ok := doc["bookmarks"]; !ok {
		if value, ok := doc["value"]; ok {
			return parseDocument(value)
		}
	}

	st := New()
	raw, ok := doc["bookmarks"]
	if !ok || string(raw) == "null" {
		return st, nil
	}

	var bookmarks map[string]map[string]interface{}
	if err := json.UnmarshalUseNumber(raw, &bookmarks); err != nil {
		return nil, err
	}
	for stream, fields := range bookmarks {
		b := &Bookmark{}
		if k, ok := fields["replication_key"].(string); ok {
			b.ReplicationKey = k
		}
		switch v := fields["replication_key_value"].(type) {
		case nil:
			continue
		case string:
			b.ReplicationKeyValue = v
		default:
			b.ReplicationKeyValue = fmt.Sprint(v)
		}
		st.Bookmarks[stream] = b
	}
	return st, nil
}

// Get returns the bookmark value for stream.
func (s *State) Get(stream string) (string, bool) {
	b, ok := s.Bookmarks[stream]
	if !ok || b.ReplicationKeyValue == "" {
		return "", false
	}
	return b.ReplicationKeyValue, true
}

// Set overwrites the bookmark for stream.
func (s *State) Set(stream, key, value string) {
	if s.Bookmarks == nil {
		s.Bookmarks = make(map[string]*Bookmark)
	}
	s.Bookmarks[stream] = &Bookmark{ReplicationKey: key, ReplicationKeyValue: value}
}

// Advance moves the bookmark for stream to value if value is later than
// the current one, and reports whether it moved.
func (s *State) Advance(stream, key, value string) bool {
	if value == "" {
		return false
	}
	if current, ok := s.Get(stream); ok && CompareValues(value, current) <= 0 {
		return false
	}
	s.Set(stream, key, value)
	return true
}

// Streams returns the streams with bookmarks, sorted.
func (s *State) Streams() []string {
	names := make([]string, 0, len(s.Bookmarks))
	for name := range s.Bookmarks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	out := New()
	for name, b := range s.Bookmarks {
		cp := *b
		out.Bookmarks[name] = &cp
	}
	return out
}

// Marshal encodes the state document.
func (s *State) Marshal() ([]byte, error) {
	if s.Bookmarks == nil {
		return json.Marshal(New())
	}
	return json.Marshal(s)
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02",
}

// CompareValues orders two replication key values. Values that both parse
// as timestamps compare chronologically; anything else compares as text.
func CompareValues(a, b string) int {
	ta, okA := parseTime(a)
	tb, okB := parseTime(b)
	if okA && okB {
		return ta.Compare(tb)
	}
	return strings.Compare(a, b)
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
