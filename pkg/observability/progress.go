package observability

import (
	"time"

	"go.uber.org/zap"
)

// StreamProgress logs record counts for one stream at a fixed interval and
// a summary when the stream completes.
type StreamProgress struct {
	logger      *zap.Logger
	stream      string
	records     int64
	pages       int64
	skipped     int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	now         func() time.Time
}

// NewStreamProgress creates a progress logger for stream.
func NewStreamProgress(logger *zap.Logger, stream string) *StreamProgress {
	now := time.Now()
	return &StreamProgress{
		logger:      logger.With(zap.String("stream", stream)),
		stream:      stream,
		startTime:   now,
		lastLogTime: now,
		logInterval: 30 * time.Second,
		now:         time.Now,
	}
}

// SetLogInterval sets the interval for progress logging
func (p *StreamProgress) SetLogInterval(interval time.Duration) {
	p.logInterval = interval
}

// PageFetched counts one page.
func (p *StreamProgress) PageFetched() {
	p.pages++
}

// RecordsEmitted counts emitted records and logs progress if the interval
// has passed.
func (p *StreamProgress) RecordsEmitted(count int) {
	p.records += int64(count)

	if p.now().Sub(p.lastLogTime) >= p.logInterval {
		p.LogProgress()
		p.lastLogTime = p.now()
	}
}

// RecordSkipped counts a dropped record.
func (p *StreamProgress) RecordSkipped() {
	p.skipped++
}

// Records returns the number of records emitted so far.
func (p *StreamProgress) Records() int64 { return p.records }

// LogProgress logs current progress
func (p *StreamProgress) LogProgress() {
	elapsed := p.now().Sub(p.startTime)
	p.logger.Info("sync progress",
		zap.Int64("records", p.records),
		zap.Int64("pages", p.pages),
		zap.Float64("records_per_second", rate(p.records, elapsed)),
		zap.Duration("elapsed", elapsed),
	)
}

// LogFinal logs final statistics
func (p *StreamProgress) LogFinal() {
	elapsed := p.now().Sub(p.startTime)
	p.logger.Info("stream completed",
		zap.Int64("total_records", p.records),
		zap.Int64("total_pages", p.pages),
		zap.Int64("skipped_records", p.skipped),
		zap.Float64("avg_records_per_second", rate(p.records, elapsed)),
		zap.Duration("total_duration", elapsed),
	)
}

func rate(n int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / elapsed.Seconds()
}
