// Package singer writes the Singer message stream and reads catalogs.
//
// Messages are written one JSON document per line. Only messages go to the
// writer's output; logs belong on stderr.
package singer

import "time"

// MessageType is the Singer "type" discriminator.
type MessageType string

const (
	TypeSchema MessageType = "SCHEMA"
	TypeRecord MessageType = "RECORD"
	TypeState  MessageType = "STATE"
)

// SchemaMessage announces a stream and its JSON Schema.
type SchemaMessage struct {
	Type               MessageType            `json:"type"`
	Stream             string                 `json:"stream"`
	Schema             map[string]interface{} `json:"schema"`
	KeyProperties      []string               `json:"key_properties"`
	BookmarkProperties []string               `json:"bookmark_properties,omitempty"`
}

// RecordMessage carries one record.
type RecordMessage struct {
	Type          MessageType            `json:"type"`
	Stream        string                 `json:"stream"`
	Record        map[string]interface{} `json:"record"`
	TimeExtracted string                 `json:"time_extracted,omitempty"`
}

// StateMessage carries the resumable state.
type StateMessage struct {
	Type  MessageType `json:"type"`
	Value interface{} `json:"value"`
}

// NewSchemaMessage builds a SCHEMA message. key properties are never null.
func NewSchemaMessage(stream string, schema map[string]interface{}, keys []string, replicationKey string) SchemaMessage {
	if keys == nil {
		keys = []string{}
	}
	msg := SchemaMessage{
		Type:          TypeSchema,
		Stream:        stream,
		Schema:        schema,
		KeyProperties: keys,
	}
	if replicationKey != "" {
		msg.BookmarkProperties = []string{replicationKey}
	}
	return msg
}

// NewRecordMessage builds a RECORD message. A zero extracted time is omitted.
func NewRecordMessage(stream string, record map[string]interface{}, extracted time.Time) RecordMessage {
	msg := RecordMessage{
		Type:   TypeRecord,
		Stream: stream,
		Record: record,
	}
	if !extracted.IsZero() {
		msg.TimeExtracted = extracted.UTC().Format(time.RFC3339Nano)
	}
	return msg
}

// NewStateMessage builds a STATE message.
func NewStateMessage(value interface{}) StateMessage {
	return StateMessage{Type: TypeState, Value: value}
}
