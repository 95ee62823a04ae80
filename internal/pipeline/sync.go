// Package pipeline runs a sync: it drives a source stream by stream and
// writes Singer messages for everything the catalog selects.
//
// # Overview
//
// For each top-level stream, in the order the source declares them, the
// pipeline:
//   - Writes the SCHEMA of the stream and of its selected children
//   - Reads every page through the source
//   - Runs each selected child stream once per parent record
//   - Conforms, validates and deduplicates records before writing them
//   - Advances the stream bookmark and writes STATE when the stream is done
//
// # Basic Usage
//
//	p := pipeline.NewSyncPipeline(source, writer, &pipeline.Options{
//	    Catalog:       catalog,
//	    State:         st,
//	    PageSize:      cfg.PageSize,
//	    StartBookmark: cfg.StartBookmark(),
//	}, logger)
//
//	if err := p.Run(ctx); err != nil {
//	    return err
//	}
//	final := p.State()
package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/ajitpratap0/tap-jotform/pkg/config"
	"github.com/ajitpratap0/tap-jotform/pkg/connector/core"
	"github.com/ajitpratap0/tap-jotform/pkg/errors"
	"github.com/ajitpratap0/tap-jotform/pkg/logger"
	"github.com/ajitpratap0/tap-jotform/pkg/metrics"
	"github.com/ajitpratap0/tap-jotform/pkg/observability"
	"github.com/ajitpratap0/tap-jotform/pkg/pool"
	"github.com/ajitpratap0/tap-jotform/pkg/schema"
	"github.com/ajitpratap0/tap-jotform/pkg/singer"
	"github.com/ajitpratap0/tap-jotform/pkg/state"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Options configures a SyncPipeline.
type Options struct {
	// Catalog selects streams; nil selects everything the source offers
	Catalog *singer.Catalog
	// State holds the bookmarks of a previous run; nil starts fresh
	State *state.State
	// PageSize is the page limit for paginated streams
	PageSize int
	// StartBookmark is used for incremental streams without a bookmark
	StartBookmark string
}

// SyncPipeline writes one sync run of a source to a Singer writer.
type SyncPipeline struct {
	source        core.Source
	writer        *singer.Writer
	catalog       *singer.Catalog
	state         *state.State
	pageSize      int
	startBookmark string

	streams  []*core.Stream
	children map[string][]*core.Stream
	seen       map[string]map[string]struct{}
	validators map[string]*schema.Validator
	progress   map[string]*observability.StreamProgress

	// Metrics
	recordsEmitted int64
	recordsSkipped int64
	startTime      time.Time

	logger *zap.Logger
}

// NewSyncPipeline creates a pipeline over an initialized source.
func NewSyncPipeline(source core.Source, writer *singer.Writer, opts *Options, logger *zap.Logger) *SyncPipeline {
	if opts == nil {
		opts = &Options{}
	}
	st := opts.State
	if st == nil {
		st = state.New()
	} else {
		st = st.Clone()
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = config.DefaultPageSize
	}

	p := &SyncPipeline{
		source:        source,
		writer:        writer,
		catalog:       opts.Catalog,
		state:         st,
		pageSize:      pageSize,
		startBookmark: opts.StartBookmark,
		streams:       source.Streams(),
		children:      make(map[string][]*core.Stream),
		seen:          make(map[string]map[string]struct{}),
		validators:    make(map[string]*schema.Validator),
		progress:      make(map[string]*observability.StreamProgress),
		logger:        logger.With(zap.String("component", "sync_pipeline")),
	}
	for _, s := range p.streams {
		if s.IsChild() {
			p.children[s.Parent] = append(p.children[s.Parent], s)
		}
	}
	return p
}

// Run syncs every selected stream. It stops at the first error; STATE
// already written for completed streams stays valid.
func (p *SyncPipeline) Run(ctx context.Context) (err error) {
	p.startTime = time.Now()
	ctx, span := observability.StartSpan(ctx, "sync")
	defer func() { observability.EndSpan(span, err) }()

	p.logger.Info("starting sync",
		zap.Int("streams", len(p.streams)),
		zap.Int("page_size", p.pageSize))

	for _, s := range p.streams {
		if s.IsChild() {
			continue
		}
		if !p.selected(s) && len(p.selectedChildren(s)) == 0 {
			p.logger.Debug("stream not selected", zap.String("stream", s.Name))
			continue
		}
		if err := p.syncStream(ctx, s); err != nil {
			return err
		}
	}

	duration := time.Since(p.startTime)
	p.logger.Info("sync completed",
		zap.Int64("records_emitted", p.recordsEmitted),
		zap.Int64("records_skipped", p.recordsSkipped),
		zap.Duration("duration", duration))
	return p.writer.Flush()
}

// State returns the bookmarks after the run.
func (p *SyncPipeline) State() *state.State {
	return p.state.Clone()
}

// Metrics returns run counters.
func (p *SyncPipeline) Metrics() map[string]interface{} {
	duration := time.Since(p.startTime)
	perStream := make(map[string]int64, len(p.progress))
	for name, prog := range p.progress {
		perStream[name] = prog.Records()
	}
	return map[string]interface{}{
		"records_emitted": p.recordsEmitted,
		"records_skipped": p.recordsSkipped,
		"duration":        duration.String(),
		"streams":         perStream,
	}
}

// syncStream runs a top-level stream and the children nested under it, then
// writes STATE.
func (p *SyncPipeline) syncStream(ctx context.Context, s *core.Stream) (err error) {
	ctx = logger.ContextWithStream(ctx, s.Name)
	ctx, span := observability.StartSpan(ctx, "stream "+s.Name, attribute.String("stream", s.Name))
	defer func() { observability.EndSpan(span, err) }()
	log := logger.FromContext(ctx, p.logger)

	timer := metrics.NewTimer()
	children := p.selectedChildren(s)
	if p.selected(s) {
		if err := p.writeSchema(s); err != nil {
			return err
		}
	}
	for _, child := range children {
		if err := p.writeSchema(child); err != nil {
			return err
		}
	}

	req := &core.StreamRequest{PageSize: p.pageSize, Bookmark: p.bookmark(s)}
	log.Info("syncing stream",
		zap.Bool("selected", p.selected(s)),
		zap.Int("children", len(children)),
		zap.String("bookmark", req.Bookmark))

	if err := p.runPass(ctx, s, req); err != nil {
		return err
	}

	for _, stream := range append([]*core.Stream{s}, children...) {
		if prog, ok := p.progress[stream.Name]; ok {
			prog.LogFinal()
		}
	}
	metrics.StreamDuration.WithLabelValues(s.Name).Observe(timer.Stop().Seconds())

	if err := p.writer.WriteState(p.state.Clone()); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write state").
			WithDetail("stream", s.Name)
	}
	return nil
}

// runPass pulls one pass of stream and handles each record, children
// included, before the next page is requested.
func (p *SyncPipeline) runPass(ctx context.Context, s *core.Stream, req *core.StreamRequest) error {
	rs, err := p.source.Read(ctx, s, req)
	if err != nil {
		return err
	}
	defer rs.Close()

	for {
		record, err := rs.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := p.handleRecord(ctx, s, record); err != nil {
			return err
		}
	}
}

// handleRecord writes record when its stream is selected, then runs the
// selected children for it.
func (p *SyncPipeline) handleRecord(ctx context.Context, s *core.Stream, record *pool.Record) error {
	defer record.Release()
	data := record.Data

	if s.IsChild() {
		if v, ok := record.GetMetadata("context"); ok {
			if parent, ok := v.(core.Context); ok {
				for k, value := range parent {
					data[k] = value
				}
			}
		}
	}

	if p.selected(s) {
		written, err := p.writeRecord(s, data, record.GetTimestamp())
		if err != nil {
			return err
		}
		if !written {
			return nil
		}
	}

	children := p.selectedChildren(s)
	if len(children) == 0 {
		return nil
	}
	childCtx, err := s.ChildContext(data)
	if err != nil {
		return err
	}
	for _, child := range children {
		req := &core.StreamRequest{Context: childCtx, PageSize: p.pageSize}
		if err := p.runPass(ctx, child, req); err != nil {
			return errors.Wrap(err, errors.TypeOf(err), "child stream failed").
				WithDetail("stream", child.Name).
				WithDetail("parent", s.Name)
		}
	}
	return nil
}

// validator returns the compiled schema of s, compiling it on first use.
func (p *SyncPipeline) validator(s *core.Stream) (*schema.Validator, error) {
	if v, ok := p.validators[s.Name]; ok {
		return v, nil
	}
	v, err := schema.Compile(s.Schema)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to compile stream schema").
			WithDetail("stream", s.Name)
	}
	p.validators[s.Name] = v
	return v, nil
}

// writeRecord conforms, validates and writes data. It reports false when
// the record was a duplicate and was dropped.
func (p *SyncPipeline) writeRecord(s *core.Stream, data map[string]interface{}, extracted time.Time) (bool, error) {
	if removed := s.Schema.Conform(data, s.Conformance); len(removed) > 0 {
		p.logger.Debug("dropped undeclared properties",
			zap.String("stream", s.Name),
			zap.Strings("properties", removed))
	}
	validator, err := p.validator(s)
	if err != nil {
		return false, err
	}
	if err := validator.Validate(data); err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeValidation, "record does not match schema").
			WithDetail("stream", s.Name)
	}

	key, err := s.KeyOf(data)
	if err != nil {
		return false, err
	}
	seen := p.seen[s.Name]
	if seen == nil {
		seen = make(map[string]struct{})
		p.seen[s.Name] = seen
	}
	prog := p.streamProgress(s.Name)
	if _, dup := seen[key]; dup {
		p.logger.Warn("duplicate record skipped",
			zap.String("stream", s.Name),
			zap.Strings("key_properties", s.PrimaryKeys),
			zap.String("key", key))
		metrics.RecordsSkipped.WithLabelValues(s.Name, "duplicate_key").Inc()
		prog.RecordSkipped()
		p.recordsSkipped++
		return false, nil
	}
	seen[key] = struct{}{}

	if err := p.writer.WriteRecord(s.Name, data, extracted); err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeFile, "failed to write record").
			WithDetail("stream", s.Name)
	}
	metrics.RecordsEmitted.WithLabelValues(s.Name).Inc()
	prog.RecordsEmitted(1)
	p.recordsEmitted++

	if s.IsIncremental() {
		if v, ok := data[s.ReplicationKey].(string); ok {
			p.state.Advance(s.Name, s.ReplicationKey, v)
		}
	}
	return true, nil
}

func (p *SyncPipeline) writeSchema(s *core.Stream) error {
	msg := singer.NewSchemaMessage(s.Name, s.Schema.JSONSchema(), s.PrimaryKeys, s.ReplicationKey)
	if err := p.writer.WriteSchema(msg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write schema").
			WithDetail("stream", s.Name)
	}
	return nil
}

func (p *SyncPipeline) streamProgress(stream string) *observability.StreamProgress {
	prog, ok := p.progress[stream]
	if !ok {
		prog = observability.NewStreamProgress(p.logger, stream)
		p.progress[stream] = prog
	}
	return prog
}

// bookmark returns the lower bound for an incremental stream: the saved
// bookmark, else the start date.
func (p *SyncPipeline) bookmark(s *core.Stream) string {
	if !s.IsIncremental() {
		return ""
	}
	if v, ok := p.state.Get(s.Name); ok {
		return v
	}
	return p.startBookmark
}

func (p *SyncPipeline) selected(s *core.Stream) bool {
	return p.catalog.Selected(s.Name)
}

func (p *SyncPipeline) selectedChildren(s *core.Stream) []*core.Stream {
	var out []*core.Stream
	for _, child := range p.children[s.Name] {
		if p.selected(child) {
			out = append(out, child)
		}
	}
	return out
}
