package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
)

// FakeJotform is an httptest server that answers Jotform API paths with
// canned content. Paginated routes serve page offset/limit of their page
// list and an empty array past the end.
type FakeJotform struct {
	*httptest.Server

	mu       sync.Mutex
	routes   map[string][]string
	handlers map[string]http.HandlerFunc
	requests map[string][]url.Values
}

// NewFakeJotform starts a fake API server that is closed with the test.
func NewFakeJotform(t *testing.T) *FakeJotform {
	f := &FakeJotform{
		routes:   make(map[string][]string),
		handlers: make(map[string]http.HandlerFunc),
		requests: make(map[string][]url.Values),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// Route registers the content documents served for path, one per page.
func (f *FakeJotform) Route(path string, pages ...string) *FakeJotform {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[path] = pages
	return f
}

// Handle registers a custom handler for path.
func (f *FakeJotform) Handle(path string, h http.HandlerFunc) *FakeJotform {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = h
	return f
}

// Requests returns the query of every request made to path.
func (f *FakeJotform) Requests(path string) []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.requests[path]...)
}

func (f *FakeJotform) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests[r.URL.Path] = append(f.requests[r.URL.Path], r.URL.Query())
	handler := f.handlers[r.URL.Path]
	pages, ok := f.routes[r.URL.Path]
	f.mu.Unlock()

	if handler != nil {
		handler(w, r)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"responseCode":404,"message":"Requested URL not found","content":null}`))
		return
	}

	content := "[]"
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		if page := offset / limit; page < len(pages) {
			content = pages[page]
		}
	} else if len(pages) > 0 {
		content = pages[0]
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(Envelope(content)))
}

// Envelope wraps content in the API response envelope.
func Envelope(content string) string {
	return `{"responseCode":200,"message":"success","content":` + content + `,"limit-left":9000}`
}
