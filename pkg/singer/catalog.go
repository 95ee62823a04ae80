package singer

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/tap-jotform/pkg/errors"
	"github.com/ajitpratap0/tap-jotform/pkg/json"
	"gopkg.in/yaml.v3"
)

// Replication methods.
const (
	ReplicationIncremental = "INCREMENTAL"
	ReplicationFullTable   = "FULL_TABLE"
)

// Catalog lists the streams a tap can produce and which are selected.
type Catalog struct {
	Streams []CatalogEntry `json:"streams" yaml:"streams"`
}

// CatalogEntry describes one stream.
type CatalogEntry struct {
	TapStreamID       string                 `json:"tap_stream_id" yaml:"tap_stream_id"`
	Stream            string                 `json:"stream" yaml:"stream"`
	Schema            map[string]interface{} `json:"schema" yaml:"schema"`
	KeyProperties     []string               `json:"key_properties" yaml:"key_properties"`
	ReplicationKey    string                 `json:"replication_key,omitempty" yaml:"replication_key,omitempty"`
	ReplicationMethod string                 `json:"replication_method,omitempty" yaml:"replication_method,omitempty"`
	Metadata          []MetadataEntry        `json:"metadata" yaml:"metadata"`
}

// MetadataEntry attaches metadata to a breadcrumb. The empty breadcrumb is
// the stream itself; ["properties", name] is a property.
type MetadataEntry struct {
	Breadcrumb []string               `json:"breadcrumb" yaml:"breadcrumb"`
	Metadata   map[string]interface{} `json:"metadata" yaml:"metadata"`
}

// NewCatalogEntry builds a selected entry for a stream. properties are the
// top-level property names in schema order.
func NewCatalogEntry(stream string, schema map[string]interface{}, properties, keys []string, replicationKey string) CatalogEntry {
	if keys == nil {
		keys = []string{}
	}
	method := ReplicationFullTable
	if replicationKey != "" {
		method = ReplicationIncremental
	}

	root := map[string]interface{}{
		"inclusion":                 "available",
		"selected":                  true,
		"table-key-properties":      keys,
		"forced-replication-method": method,
	}
	if replicationKey != "" {
		root["valid-replication-keys"] = []string{replicationKey}
	}

	automatic := make(map[string]bool, len(keys)+1)
	for _, k := range keys {
		automatic[k] = true
	}
	if replicationKey != "" {
		automatic[replicationKey] = true
	}

	metadata := make([]MetadataEntry, 0, len(properties)+1)
	metadata = append(metadata, MetadataEntry{Breadcrumb: []string{}, Metadata: root})
	for _, name := range properties {
		inclusion := "available"
		if automatic[name] {
			inclusion = "automatic"
		}
		metadata = append(metadata, MetadataEntry{
			Breadcrumb: []string{"properties", name},
			Metadata:   map[string]interface{}{"inclusion": inclusion},
		})
	}

	return CatalogEntry{
		TapStreamID:       stream,
		Stream:            stream,
		Schema:            schema,
		KeyProperties:     keys,
		ReplicationKey:    replicationKey,
		ReplicationMethod: method,
		Metadata:          metadata,
	}
}

// LoadCatalog reads a catalog from a .json, .yaml or .yml file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read catalog").
			WithDetail("path", path)
	}

	var catalog Catalog
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &catalog)
	default:
		err = json.Unmarshal(data, &catalog)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse catalog").
			WithDetail("path", path)
	}
	return &catalog, nil
}

// Entry returns the entry for stream.
func (c *Catalog) Entry(stream string) (*CatalogEntry, bool) {
	for i := range c.Streams {
		if c.Streams[i].TapStreamID == stream || c.Streams[i].Stream == stream {
			return &c.Streams[i], true
		}
	}
	return nil, false
}

// Selected reports whether stream should be synced. A nil catalog selects
// everything; a stream missing from a catalog is not selected.
func (c *Catalog) Selected(stream string) bool {
	if c == nil {
		return true
	}
	entry, ok := c.Entry(stream)
	if !ok {
		return false
	}
	return entry.Selected()
}

// Selected reads the root "selected" metadata, then a legacy schema-level
// "selected" flag, and defaults to true.
func (e *CatalogEntry) Selected() bool {
	for _, m := range e.Metadata {
		if len(m.Breadcrumb) != 0 {
			continue
		}
		if v, ok := m.Metadata["selected"].(bool); ok {
			return v
		}
	}
	if v, ok := e.Schema["selected"].(bool); ok {
		return v
	}
	return true
}

// WriteJSON writes the catalog as indented JSON.
func (c *Catalog) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// WriteYAML writes the catalog as YAML.
func (c *Catalog) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
