package singer

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ajitpratap0/tap-jotform/pkg/compression"
	"github.com/ajitpratap0/tap-jotform/pkg/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_Messages(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	schema := map[string]interface{}{"type": "object"}
	require.NoError(t, w.WriteSchema(NewSchemaMessage("forms", schema, []string{"id"}, "updated_at")))
	require.NoError(t, w.WriteRecord("forms", map[string]interface{}{"id": "1", "url": "https://a.b/c?d<e"}, time.Time{}))
	require.NoError(t, w.WriteState(map[string]interface{}{"bookmarks": map[string]interface{}{}}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.JSONEq(t, `{"type":"SCHEMA","stream":"forms","schema":{"type":"object"},"key_properties":["id"],"bookmark_properties":["updated_at"]}`, lines[0])
	assert.JSONEq(t, `{"type":"RECORD","stream":"forms","record":{"id":"1","url":"https://a.b/c?d<e"}}`, lines[1])
	assert.Contains(t, lines[1], "d<e")
	assert.JSONEq(t, `{"type":"STATE","value":{"bookmarks":{}}}`, lines[2])

	assert.Equal(t, Stats{Schemas: 1, Records: 1, States: 1}, w.Stats())
	require.NoError(t, w.Close())
	assert.Error(t, w.WriteRecord("forms", nil, time.Time{}))
}

func TestWriter_StateFlushes(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteRecord("reports", map[string]interface{}{"id": "1"}, time.Time{}))
	assert.Equal(t, 0, buf.Len())

	require.NoError(t, w.WriteState(map[string]interface{}{}))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
}

func TestSchemaMessage_EmptyKeys(t *testing.T) {
	msg := NewSchemaMessage("reports", map[string]interface{}{}, nil, "")
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"key_properties":[]`)
	assert.NotContains(t, string(data), "bookmark_properties")
}

func TestOpen_CompressedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl.gz")
	w, err := Open(path, compression.Default)
	require.NoError(t, err)
	require.NoError(t, w.WriteRecord("forms", map[string]interface{}{"id": "1"}, time.Time{}))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	plain, err := compression.Decompress(raw, compression.Gzip)
	require.NoError(t, err)

	scanner := bufio.NewScanner(bytes.NewReader(plain))
	require.True(t, scanner.Scan())
	assert.JSONEq(t, `{"type":"RECORD","stream":"forms","record":{"id":"1"}}`, scanner.Text())
}

func TestNewCatalogEntry(t *testing.T) {
	entry := NewCatalogEntry("forms", map[string]interface{}{"type": "object"}, []string{"id", "title", "updated_at"}, []string{"id"}, "updated_at")

	assert.Equal(t, ReplicationIncremental, entry.ReplicationMethod)
	assert.True(t, entry.Selected())
	require.Len(t, entry.Metadata, 4)
	assert.Equal(t, "automatic", entry.Metadata[1].Metadata["inclusion"])
	assert.Equal(t, "available", entry.Metadata[2].Metadata["inclusion"])
	assert.Equal(t, "automatic", entry.Metadata[3].Metadata["inclusion"])

	full := NewCatalogEntry("reports", nil, nil, []string{"id"}, "")
	assert.Equal(t, ReplicationFullTable, full.ReplicationMethod)
}

func TestCatalog_Selection(t *testing.T) {
	var nilCatalog *Catalog
	assert.True(t, nilCatalog.Selected("forms"))

	catalog := &Catalog{Streams: []CatalogEntry{
		NewCatalogEntry("forms", nil, nil, []string{"id"}, "updated_at"),
		{TapStreamID: "reports", Stream: "reports", Metadata: []MetadataEntry{
			{Breadcrumb: []string{}, Metadata: map[string]interface{}{"selected": false}},
		}},
		{TapStreamID: "folders", Stream: "folders"},
	}}

	assert.True(t, catalog.Selected("forms"))
	assert.False(t, catalog.Selected("reports"))
	assert.True(t, catalog.Selected("folders"))
	assert.False(t, catalog.Selected("submissions"))
}

func TestCatalog_RoundTripFiles(t *testing.T) {
	catalog := &Catalog{Streams: []CatalogEntry{
		NewCatalogEntry("forms", map[string]interface{}{"type": "object"}, []string{"id"}, []string{"id"}, "updated_at"),
	}}
	catalog.Streams[0].Metadata[0].Metadata["selected"] = false
	dir := t.TempDir()

	var jsonBuf, yamlBuf bytes.Buffer
	require.NoError(t, catalog.WriteJSON(&jsonBuf))
	require.NoError(t, catalog.WriteYAML(&yamlBuf))

	jsonPath := filepath.Join(dir, "catalog.json")
	yamlPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(jsonPath, jsonBuf.Bytes(), 0o600))
	require.NoError(t, os.WriteFile(yamlPath, yamlBuf.Bytes(), 0o600))

	for _, path := range []string{jsonPath, yamlPath} {
		loaded, err := LoadCatalog(path)
		require.NoError(t, err, path)
		require.Len(t, loaded.Streams, 1)
		assert.Equal(t, "updated_at", loaded.Streams[0].ReplicationKey)
		assert.False(t, loaded.Selected("forms"), path)
	}
}
