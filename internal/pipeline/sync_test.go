package pipeline

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ajitpratap0/tap-jotform/pkg/connector/core"
	"github.com/ajitpratap0/tap-jotform/pkg/connector/sources/jotform"
	"github.com/ajitpratap0/tap-jotform/pkg/errors"
	"github.com/ajitpratap0/tap-jotform/pkg/json"
	"github.com/ajitpratap0/tap-jotform/pkg/singer"
	"github.com/ajitpratap0/tap-jotform/pkg/state"
	"github.com/ajitpratap0/tap-jotform/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SyncPipelineTestSuite struct {
	testutil.IntegrationTestSuite
	out *bytes.Buffer
}

func TestSyncPipeline(t *testing.T) {
	suite.Run(t, new(SyncPipelineTestSuite))
}

func (s *SyncPipelineTestSuite) SetupTest() {
	s.IntegrationTestSuite.SetupTest()
	s.out = &bytes.Buffer{}
}

func (s *SyncPipelineTestSuite) source() core.Source {
	src, err := jotform.NewSource(testutil.TestLogger(s.T()))
	s.Require().NoError(err)
	s.Require().NoError(src.Initialize(s.Context(), s.Config()))
	return src
}

func (s *SyncPipelineTestSuite) run(opts *Options) (*SyncPipeline, error) {
	src := s.source()
	writer := singer.NewWriter(s.out)
	p := NewSyncPipeline(src, writer, opts, testutil.TestLogger(s.T()))
	err := p.Run(s.Context())
	s.Require().NoError(writer.Close())
	return p, err
}

// selectOnly returns a catalog of the source streams with only names selected.
func (s *SyncPipelineTestSuite) selectOnly(names ...string) *singer.Catalog {
	catalog := BuildCatalog(jotform.AllStreams())
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	for i := range catalog.Streams {
		catalog.Streams[i].Metadata[0].Metadata["selected"] = keep[catalog.Streams[i].Stream]
	}
	return catalog
}

func (s *SyncPipelineTestSuite) messages() []map[string]interface{} {
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(s.out.String()), "\n") {
		if line == "" {
			continue
		}
		var msg map[string]interface{}
		s.Require().NoError(json.Unmarshal([]byte(line), &msg), line)
		out = append(out, msg)
	}
	return out
}

func (s *SyncPipelineTestSuite) records(stream string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, msg := range s.messages() {
		if msg["type"] == "RECORD" && msg["stream"] == stream {
			out = append(out, msg["record"].(map[string]interface{}))
		}
	}
	return out
}

func (s *SyncPipelineTestSuite) messageTypes() []string {
	var out []string
	for _, msg := range s.messages() {
		entry := msg["type"].(string)
		if stream, ok := msg["stream"].(string); ok {
			entry += ":" + stream
		}
		out = append(out, entry)
	}
	return out
}

func formsPage(from, n int) string {
	items := make([]string, n)
	for i := range items {
		id := from + i
		items[i] = fmt.Sprintf(`{"id":"%d","title":"Form %d","count":"%d","created_at":"2021-01-01 00:%02d:%02d","updated_at":""}`,
			id, id, id, id/60, id%60)
	}
	return "[" + strings.Join(items, ",") + "]"
}

func (s *SyncPipelineTestSuite) TestFormsPaginateUntilEmptyPage() {
	s.API.Route("/user/forms", formsPage(0, 100))

	p, err := s.run(&Options{Catalog: s.selectOnly(jotform.StreamForms), PageSize: 100})
	s.Require().NoError(err)

	requests := s.API.Requests("/user/forms")
	s.Require().Len(requests, 2)
	s.False(requests[0].Has("offset"))
	s.Equal("100", requests[1].Get("offset"))

	types := s.messageTypes()
	s.Equal("SCHEMA:forms", types[0])
	s.Equal("STATE", types[len(types)-1])
	s.Len(s.records(jotform.StreamForms), 100)

	first := s.records(jotform.StreamForms)[0]
	s.Equal(float64(0), first["count"])
	s.Equal("2021-01-01 00:00:00", first["updated_at"])

	value, ok := p.State().Get(jotform.StreamForms)
	s.Require().True(ok)
	s.Equal("2021-01-01 00:01:39", value)
	s.Equal(int64(100), p.Metrics()["records_emitted"])
}

func (s *SyncPipelineTestSuite) TestNextPageWaitsForChildPasses() {
	var (
		mu     sync.Mutex
		events []string
	)
	record := func(event string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
	}

	pages := []string{
		`[{"id":"1","created_at":"2021-01-01 00:00:00"}]`,
		`[{"id":"2","created_at":"2021-01-02 00:00:00"}]`,
	}
	s.API.Handle("/user/forms", func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		if offset == "" {
			offset = "0"
		}
		record("forms@" + offset)
		content := "[]"
		if n, err := strconv.Atoi(offset); err == nil && n < len(pages) {
			content = pages[n]
		}
		_, _ = w.Write([]byte(testutil.Envelope(content)))
	})
	for _, id := range []string{"1", "2"} {
		id := id
		s.API.Handle("/form/"+id+"/questions", func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(20 * time.Millisecond)
			record("questions@" + id)
			_, _ = w.Write([]byte(testutil.Envelope(`{"1":{"type":"control_textbox","order":"1"}}`)))
		})
	}

	_, err := s.run(&Options{Catalog: s.selectOnly(jotform.StreamForms, jotform.StreamQuestions), PageSize: 1})
	s.Require().NoError(err)

	mu.Lock()
	defer mu.Unlock()
	s.Equal([]string{"forms@0", "questions@1", "forms@1", "questions@2", "forms@2"}, events)
}

func (s *SyncPipelineTestSuite) TestChildStreamGetsParentContext() {
	s.API.Route("/user/forms", formsPage(1, 2))
	s.API.Route("/form/1/questions", `{"1":{"type":"control_textbox","order":"2","text":"Name"}}`)
	s.API.Route("/form/2/questions", `{"3":{"type":"control_email","order":"1","text":"Email"},"1":{"type":"control_head","order":"0"}}`)

	_, err := s.run(&Options{Catalog: s.selectOnly(jotform.StreamQuestions), PageSize: 100})
	s.Require().NoError(err)

	s.Empty(s.records(jotform.StreamForms))
	s.Equal([]string{"SCHEMA:questions", "RECORD:questions", "RECORD:questions", "RECORD:questions", "STATE"}, s.messageTypes())

	questions := s.records(jotform.StreamQuestions)
	s.Equal(map[string]interface{}{
		"qid":      "1",
		"form_id":  "1",
		"type":     "control_textbox",
		"order":    float64(2),
		"question": map[string]interface{}{"type": "control_textbox", "order": "2", "text": "Name"},
	}, questions[0])
	s.Equal("2", questions[1]["form_id"])
	s.Equal("1", questions[1]["qid"])
	s.Equal("3", questions[2]["qid"])
}

func (s *SyncPipelineTestSuite) TestParentAndChildSelected() {
	s.API.Route("/user/forms", formsPage(1, 1))
	s.API.Route("/form/1/questions", `{"1":{"type":"control_textbox","order":"1"}}`)

	_, err := s.run(&Options{Catalog: s.selectOnly(jotform.StreamForms, jotform.StreamQuestions), PageSize: 100})
	s.Require().NoError(err)
	s.Equal([]string{"SCHEMA:forms", "SCHEMA:questions", "RECORD:forms", "RECORD:questions", "STATE"}, s.messageTypes())
}

func (s *SyncPipelineTestSuite) TestResumeFromBookmark() {
	s.API.Route("/user/submissions", `[]`)
	st := state.New()
	st.Set(jotform.StreamSubmissions, jotform.ReplicationKey, "2021-05-01 00:00:00")

	p, err := s.run(&Options{
		Catalog:       s.selectOnly(jotform.StreamSubmissions),
		State:         st,
		PageSize:      100,
		StartBookmark: "2020-01-01 00:00:00",
	})
	s.Require().NoError(err)

	requests := s.API.Requests("/user/submissions")
	s.Require().Len(requests, 1)
	s.Equal(`{"updated_at:gt": "2021-05-01 00:00:00"}`, requests[0].Get("filter"))

	value, _ := p.State().Get(jotform.StreamSubmissions)
	s.Equal("2021-05-01 00:00:00", value)
}

func (s *SyncPipelineTestSuite) TestStartDateWithoutBookmark() {
	s.API.Route("/user/forms", `[]`)

	_, err := s.run(&Options{
		Catalog:       s.selectOnly(jotform.StreamForms),
		PageSize:      100,
		StartBookmark: "2020-01-01 00:00:00",
	})
	s.Require().NoError(err)
	s.Equal(`{"updated_at:gt": "2020-01-01 00:00:00"}`, s.API.Requests("/user/forms")[0].Get("filter"))
}

func (s *SyncPipelineTestSuite) TestSubmissionAnswers() {
	s.API.Route("/user/submissions", `[{"id":"s1","created_at":"2021-01-01 00:00:00","answers":{"3":{"answer":"red"}}}]`)

	_, err := s.run(&Options{Catalog: s.selectOnly(jotform.StreamSubmissions), PageSize: 100})
	s.Require().NoError(err)

	records := s.records(jotform.StreamSubmissions)
	s.Require().Len(records, 1)
	s.Equal([]interface{}{
		map[string]interface{}{"qid": "3", "answer": `"red"`, "answer_object": "red"},
	}, records[0]["answers"])
}

func (s *SyncPipelineTestSuite) TestDuplicatesAreSkipped() {
	s.API.Route("/user/reports", `[{"id":"r1","fields":"a"},{"id":"r1","fields":"b"},{"id":"r2","fields":""}]`)

	p, err := s.run(&Options{Catalog: s.selectOnly(jotform.StreamReports), PageSize: 100})
	s.Require().NoError(err)

	records := s.records(jotform.StreamReports)
	s.Require().Len(records, 2)
	s.Equal([]interface{}{"a"}, records[0]["fields"])
	s.Equal([]interface{}{""}, records[1]["fields"])
	s.Equal(int64(1), p.Metrics()["records_skipped"])
}

func (s *SyncPipelineTestSuite) TestUndeclaredPropertiesDropped() {
	s.API.Route("/user/reports", `[{"id":"r1","fields":"a","internal":"x"}]`)

	_, err := s.run(&Options{Catalog: s.selectOnly(jotform.StreamReports), PageSize: 100})
	s.Require().NoError(err)

	record := s.records(jotform.StreamReports)[0]
	s.NotContains(record, "internal")
}

func (s *SyncPipelineTestSuite) TestMissingPrimaryKeyFails() {
	s.API.Route("/user/reports", `[{"title":"no id"}]`)

	_, err := s.run(&Options{Catalog: s.selectOnly(jotform.StreamReports), PageSize: 100})
	s.Require().Error(err)
	s.True(errors.IsType(err, errors.ErrorTypeValidation))
}

func (s *SyncPipelineTestSuite) TestInvalidRecordFails() {
	s.API.Route("/user/forms", `[{"id":"1","status":"UNKNOWN"}]`)

	_, err := s.run(&Options{Catalog: s.selectOnly(jotform.StreamForms), PageSize: 100})
	s.Require().Error(err)
	s.True(errors.IsType(err, errors.ErrorTypeValidation))
	s.NotContains(s.messageTypes(), "STATE")
}

func (s *SyncPipelineTestSuite) TestStateAfterEachStream() {
	s.API.Route("/user/forms", `[]`)
	s.API.Route("/user/submissions", `[]`)
	s.API.Route("/user/reports", `[]`)
	s.API.Route("/user/history", `[]`)
	s.API.Route("/user/folders", `{"id":"root","name":"Root","forms":[],"subfolders":[]}`)

	_, err := s.run(nil)
	s.Require().NoError(err)

	s.Equal([]string{
		"SCHEMA:forms", "SCHEMA:questions", "STATE",
		"SCHEMA:submissions", "STATE",
		"SCHEMA:reports", "STATE",
		"SCHEMA:user_history", "STATE",
		"SCHEMA:folders", "RECORD:folders", "STATE",
	}, s.messageTypes())
}

func (s *SyncPipelineTestSuite) TestSourceErrorAbortsRun() {
	s.API.Route("/user/forms", `[]`)

	_, err := s.run(&Options{Catalog: s.selectOnly(jotform.StreamForms, jotform.StreamSubmissions), PageSize: 100})
	s.Require().Error(err)
	s.True(errors.IsType(err, errors.ErrorTypeNotFound))
	s.Equal([]string{"SCHEMA:forms", "STATE", "SCHEMA:submissions"}, s.messageTypes())
}

func TestBuildCatalog(t *testing.T) {
	catalog := BuildCatalog(jotform.AllStreams())
	require.Len(t, catalog.Streams, 6)

	forms, ok := catalog.Entry(jotform.StreamForms)
	require.True(t, ok)
	assert.Equal(t, []string{"id"}, forms.KeyProperties)
	assert.Equal(t, jotform.ReplicationKey, forms.ReplicationKey)
	assert.Equal(t, singer.ReplicationIncremental, forms.ReplicationMethod)
	assert.True(t, catalog.Selected(jotform.StreamForms))

	questions, ok := catalog.Entry(jotform.StreamQuestions)
	require.True(t, ok)
	assert.Equal(t, jotform.StreamForms, questions.Metadata[0].Metadata["parent-tap-stream-id"])
	assert.Equal(t, singer.ReplicationFullTable, questions.ReplicationMethod)

	folders, ok := catalog.Entry(jotform.StreamFolders)
	require.True(t, ok)
	assert.Equal(t, true, folders.Metadata[0].Metadata["deprecated"])
}
