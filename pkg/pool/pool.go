// Package pool provides object pooling for records flowing from the API
// pages to the Singer writer.
//
// Example usage:
//
//	record := pool.NewRecord("forms", row)
//	defer record.Release()
//
//	record.SetData("updated_at", record.Data["created_at"])
package pool

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Pool represents a generic object pool with type safety.
// It wraps sync.Pool with statistics tracking and an optional reset hook.
// The pool is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		gets      int64
	}
}

// New creates a new typed pool with custom allocation and reset functions.
// The reset function runs before an object goes back into the pool.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return newFn()
	}
	return p
}

// Get retrieves an object from the pool, allocating one if it is empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	atomic.AddInt64(&p.stats.gets, 1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool for reuse.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns allocation count, objects currently checked out and total
// Get calls.
func (p *Pool[T]) Stats() (allocated, inUse, gets int64) {
	return atomic.LoadInt64(&p.stats.allocated),
		atomic.LoadInt64(&p.stats.inUse),
		atomic.LoadInt64(&p.stats.gets)
}

// RecordMetadata describes where a record came from.
type RecordMetadata struct {
	// Source identifies the connector
	Source string `json:"source,omitempty"`
	// StreamID is the stream the record belongs to
	StreamID string `json:"stream_id,omitempty"`
	// Offset is the page offset the record was read at
	Offset int64 `json:"offset,omitempty"`
	// Timestamp is the extraction time
	Timestamp time.Time `json:"timestamp"`
	// Custom metadata fields, e.g. the parent context of a child record
	Custom map[string]interface{} `json:"custom,omitempty"`
}

// Record is a single row read from the API. Data is owned by the record
// until Release; callers must not keep references to it afterwards.
type Record struct {
	ID       string                 `json:"id"`
	Data     map[string]interface{} `json:"data"`
	Metadata RecordMetadata         `json:"metadata"`
}

// RecordPool recycles Record shells. Data maps are not reused because
// transforms may hand nested values to other records.
var RecordPool = New(
	func() *Record {
		return &Record{}
	},
	func(r *Record) {
		r.ID = ""
		r.Data = nil
		r.Metadata = RecordMetadata{}
	},
)

var idCounter uint64

// GetRecord retrieves a Record from the global pool with a fresh timestamp.
// Records must be returned with Release when done.
func GetRecord() *Record {
	r := RecordPool.Get()
	r.Metadata.Timestamp = time.Now().UTC()
	return r
}

// PutRecord returns a Record to the global pool. Safe to call with nil.
func PutRecord(record *Record) {
	if record != nil {
		RecordPool.Put(record)
	}
}

// NewRecord creates a pooled record for stream holding data.
func NewRecord(stream string, data map[string]interface{}) *Record {
	r := GetRecord()
	r.ID = GenerateID(stream)
	r.Data = data
	r.Metadata.StreamID = stream
	return r
}

// GenerateID returns prefix-N with a process-wide increasing N.
func GenerateID(prefix string) string {
	id := atomic.AddUint64(&idCounter, 1)
	return prefix + "-" + strconv.FormatUint(id, 10)
}

// SetData sets a data field, initializing the map if needed.
func (r *Record) SetData(key string, value interface{}) {
	if r.Data == nil {
		r.Data = make(map[string]interface{}, 16)
	}
	r.Data[key] = value
}

// GetData retrieves a data field from the record.
func (r *Record) GetData(key string) (interface{}, bool) {
	if r.Data == nil {
		return nil, false
	}
	val, ok := r.Data[key]
	return val, ok
}

// SetMetadata sets a custom metadata field.
func (r *Record) SetMetadata(key string, value interface{}) {
	if r.Metadata.Custom == nil {
		r.Metadata.Custom = make(map[string]interface{}, 4)
	}
	r.Metadata.Custom[key] = value
}

// GetMetadata retrieves a custom metadata field.
func (r *Record) GetMetadata(key string) (interface{}, bool) {
	if r.Metadata.Custom == nil {
		return nil, false
	}
	val, ok := r.Metadata.Custom[key]
	return val, ok
}

// SetStreamID sets the stream the record belongs to.
func (r *Record) SetStreamID(streamID string) {
	r.Metadata.StreamID = streamID
}

// GetStreamID returns the stream the record belongs to.
func (r *Record) GetStreamID() string {
	return r.Metadata.StreamID
}

// SetOffset records the page offset the record was read at.
func (r *Record) SetOffset(offset int64) {
	r.Metadata.Offset = offset
}

// GetTimestamp returns the extraction time.
func (r *Record) GetTimestamp() time.Time {
	return r.Metadata.Timestamp
}

// Release returns the record to the pool.
func (r *Record) Release() {
	PutRecord(r)
}
