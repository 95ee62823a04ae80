package pipeline

import (
	"github.com/ajitpratap0/tap-jotform/pkg/connector/core"
	"github.com/ajitpratap0/tap-jotform/pkg/singer"
)

// BuildCatalog describes streams as a catalog with every stream selected.
func BuildCatalog(streams []*core.Stream) *singer.Catalog {
	catalog := &singer.Catalog{Streams: make([]singer.CatalogEntry, 0, len(streams))}
	for _, s := range streams {
		entry := singer.NewCatalogEntry(s.Name, s.Schema.JSONSchema(), s.Schema.Names(), s.PrimaryKeys, s.ReplicationKey)
		if s.Deprecated {
			entry.Metadata[0].Metadata["deprecated"] = true
		}
		if s.IsChild() {
			entry.Metadata[0].Metadata["parent-tap-stream-id"] = s.Parent
		}
		catalog.Streams = append(catalog.Streams, entry)
	}
	return catalog
}
