package jotform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/ajitpratap0/tap-jotform/pkg/config"
	"github.com/ajitpratap0/tap-jotform/pkg/connector/core"
	"github.com/ajitpratap0/tap-jotform/pkg/connector/registry"
	"github.com/ajitpratap0/tap-jotform/pkg/errors"
	"github.com/ajitpratap0/tap-jotform/pkg/pool"
	"github.com/ajitpratap0/tap-jotform/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestSource(t *testing.T, cfg *config.Config, logger *zap.Logger) *Source {
	t.Helper()
	src, err := NewSource(logger)
	require.NoError(t, err)
	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, src.Initialize(ctx, cfg))
	t.Cleanup(func() { _ = src.Close(context.Background()) })
	return src.(*Source)
}

func streamNamed(t *testing.T, src *Source, name string) *core.Stream {
	t.Helper()
	for _, s := range src.Streams() {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("stream %s not offered", name)
	return nil
}

func collect(t *testing.T, rs *core.RecordStream) ([]*pool.Record, error) {
	t.Helper()
	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	defer rs.Close()

	var records []*pool.Record
	for {
		r, err := rs.Next(ctx)
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, r)
	}
}

func formsPage(n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"id":"%d","count":"%d","created_at":"2021-01-01 00:00:00","updated_at":null}`, i+1, i)
	}
	return "[" + strings.Join(items, ",") + "]"
}

func TestSource_PaginatesUntilEmptyPage(t *testing.T) {
	api := testutil.NewFakeJotform(t).Route("/user/forms", formsPage(100))
	src := newTestSource(t, testutil.TestConfig(api.URL), testutil.TestLogger(t))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	rs, err := src.Read(ctx, streamNamed(t, src, StreamForms), &core.StreamRequest{PageSize: 100})
	require.NoError(t, err)

	records, err := collect(t, rs)
	require.NoError(t, err)
	require.Len(t, records, 100)

	requests := api.Requests("/user/forms")
	require.Len(t, requests, 2)
	assert.Equal(t, "100", requests[0].Get("limit"))
	assert.False(t, requests[0].Has("offset"))
	assert.False(t, requests[0].Has("filter"))
	assert.Equal(t, "100", requests[1].Get("offset"))
	assert.Equal(t, "test-key", requests[0].Get("apikey"))

	first := records[0]
	assert.Equal(t, StreamForms, first.GetStreamID())
	assert.Equal(t, ConnectorName, first.Metadata.Source)
	assert.Equal(t, int64(0), first.Data["count"])
	assert.Equal(t, "2021-01-01 00:00:00", first.Data["updated_at"])
	assert.Equal(t, int64(99), records[99].Metadata.Offset)
}

func TestSource_FetchesNextPageOnlyWhenPulled(t *testing.T) {
	api := testutil.NewFakeJotform(t).Route("/user/forms", formsPage(100))
	src := newTestSource(t, testutil.TestConfig(api.URL), testutil.TestLogger(t))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	rs, err := src.Read(ctx, streamNamed(t, src, StreamForms), &core.StreamRequest{PageSize: 100})
	require.NoError(t, err)
	defer rs.Close()
	assert.Empty(t, api.Requests("/user/forms"))

	for i := 0; i < 100; i++ {
		r, err := rs.Next(ctx)
		require.NoError(t, err)
		r.Release()
		assert.Len(t, api.Requests("/user/forms"), 1)
	}

	_, err = rs.Next(ctx)
	assert.Equal(t, io.EOF, err)
	assert.Len(t, api.Requests("/user/forms"), 2)

	_, err = rs.Next(ctx)
	assert.Equal(t, io.EOF, err)
	assert.Len(t, api.Requests("/user/forms"), 2)
}

func TestSource_FilterOnResume(t *testing.T) {
	api := testutil.NewFakeJotform(t).Route("/user/submissions", `[]`)
	obsCore, logs := observer.New(zap.InfoLevel)
	src := newTestSource(t, testutil.TestConfig(api.URL), zap.New(obsCore))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	rs, err := src.Read(ctx, streamNamed(t, src, StreamSubmissions), &core.StreamRequest{
		PageSize: 100,
		Bookmark: "2021-03-01 10:00:00",
	})
	require.NoError(t, err)
	records, err := collect(t, rs)
	require.NoError(t, err)
	assert.Empty(t, records)

	requests := api.Requests("/user/submissions")
	require.Len(t, requests, 1)
	assert.Equal(t, `{"updated_at:gt": "2021-03-01 10:00:00"}`, requests[0].Get("filter"))
	assert.Equal(t, 1, logs.FilterMessage("Bookmark found").Len())
}

func TestSource_Questions(t *testing.T) {
	api := testutil.NewFakeJotform(t).Route("/form/42/questions",
		`{"1":{"type":"control_textbox","order":"2","text":"Name"}}`)
	src := newTestSource(t, testutil.TestConfig(api.URL), testutil.TestLogger(t))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	rs, err := src.Read(ctx, streamNamed(t, src, StreamQuestions), &core.StreamRequest{
		Context:  core.Context{"form_id": "42"},
		PageSize: 100,
	})
	require.NoError(t, err)
	records, err := collect(t, rs)
	require.NoError(t, err)
	require.Len(t, records, 1)

	data := records[0].Data
	assert.Equal(t, "1", data["qid"])
	assert.Equal(t, "control_textbox", data["type"])
	assert.Equal(t, int64(2), data["order"])
	assert.Equal(t, "Name", data["question"].(map[string]interface{})["text"])

	ctxValue, ok := records[0].GetMetadata("context")
	require.True(t, ok)
	assert.Equal(t, core.Context{"form_id": "42"}, ctxValue)

	requests := api.Requests("/form/42/questions")
	require.Len(t, requests, 1)
	assert.False(t, requests[0].Has("limit"))
}

func TestSource_UserHistoryFixedParams(t *testing.T) {
	api := testutil.NewFakeJotform(t).Route("/user/history",
		`[{"type":"userLogin","username":"ada","timestamp":"1614556800"}]`)
	src := newTestSource(t, testutil.TestConfig(api.URL), testutil.TestLogger(t))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	rs, err := src.Read(ctx, streamNamed(t, src, StreamUserHistory), &core.StreamRequest{PageSize: 100})
	require.NoError(t, err)
	records, err := collect(t, rs)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1614556800), records[0].Data["timestamp"])

	q := api.Requests("/user/history")[0]
	assert.Equal(t, "all", q.Get("action"))
	assert.Equal(t, "lastWeek", q.Get("date"))
	assert.Equal(t, "ASC", q.Get("sortBy"))
	assert.False(t, q.Has("limit"))
	assert.False(t, q.Has("filter"))
}

func TestSource_FoldersObjectContent(t *testing.T) {
	api := testutil.NewFakeJotform(t).Route("/user/folders",
		`{"id":"root","name":"Root","forms":{"7":{"id":"7","count":"1","created_at":"2021-01-01 00:00:00"}},"subfolders":[]}`)
	src := newTestSource(t, testutil.TestConfig(api.URL), testutil.TestLogger(t))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	rs, err := src.Read(ctx, streamNamed(t, src, StreamFolders), &core.StreamRequest{PageSize: 100})
	require.NoError(t, err)
	records, err := collect(t, rs)
	require.NoError(t, err)
	require.Len(t, records, 1)

	form := records[0].Data["forms"].(map[string]interface{})["7"].(map[string]interface{})
	assert.Equal(t, int64(1), form["count"])
	assert.Equal(t, "2021-01-01 00:00:00", form["updated_at"])
}

func TestSource_MissingContentFails(t *testing.T) {
	api := testutil.NewFakeJotform(t).Handle("/user/reports", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"responseCode":200,"message":"success"}`))
	})
	src := newTestSource(t, testutil.TestConfig(api.URL), testutil.TestLogger(t))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	rs, err := src.Read(ctx, streamNamed(t, src, StreamReports), &core.StreamRequest{PageSize: 100})
	require.NoError(t, err)
	records, err := collect(t, rs)
	assert.Empty(t, records)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestSource_HTTPErrorFails(t *testing.T) {
	api := testutil.NewFakeJotform(t).Handle("/user/forms", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"responseCode":401,"message":"You're not authorized to use (/user/forms)","content":""}`))
	})
	src := newTestSource(t, testutil.TestConfig(api.URL), testutil.TestLogger(t))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	rs, err := src.Read(ctx, streamNamed(t, src, StreamForms), &core.StreamRequest{PageSize: 100})
	require.NoError(t, err)
	_, err = collect(t, rs)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
}

func TestSource_DeprecatedStreams(t *testing.T) {
	cfg := testutil.TestConfig("http://127.0.0.1:1")
	cfg.IncludeDeprecatedStreams = false
	src := newTestSource(t, cfg, testutil.TestLogger(t))

	var names []string
	for _, s := range src.Streams() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{StreamForms, StreamQuestions, StreamSubmissions, StreamReports, StreamUserHistory}, names)

	all := Streams(true)
	assert.Equal(t, StreamFolders, all[len(all)-1].Name)
	assert.True(t, all[len(all)-1].Deprecated)
}

func TestSource_ReadBeforeInitialize(t *testing.T) {
	src, err := NewSource(testutil.TestLogger(t))
	require.NoError(t, err)
	_, err = src.Read(context.Background(), AllStreams()[0], &core.StreamRequest{PageSize: 100})
	assert.Error(t, err)
}

func TestSource_Registered(t *testing.T) {
	assert.True(t, registry.HasSource(ConnectorName))
	src, err := registry.CreateSource(ConnectorName, testutil.TestLogger(t))
	require.NoError(t, err)
	assert.Len(t, src.Streams(), len(AllStreams()))

	info, err := registry.GetConnectorInfo(ConnectorName)
	require.NoError(t, err)
	assert.Equal(t, config.Version, info.Version)
}

func TestSource_CachedResponses(t *testing.T) {
	api := testutil.NewFakeJotform(t).Route("/user/reports", `[{"id":"r1","fields":"a,b"}]`)
	cfg := testutil.TestConfig(api.URL)
	cfg.RequestsCache.Enabled = true
	cfg.RequestsCache.Config.Backend = config.CacheBackendMemory
	src := newTestSource(t, cfg, testutil.TestLogger(t))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	for i := 0; i < 2; i++ {
		rs, err := src.Read(ctx, streamNamed(t, src, StreamReports), &core.StreamRequest{PageSize: 100})
		require.NoError(t, err)
		records, err := collect(t, rs)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, []interface{}{"a", "b"}, records[0].Data["fields"])
	}
	assert.Len(t, api.Requests("/user/reports"), 1)
}
