package ingest

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/bibmerge/internal/engine"
	"github.com/sells-group/bibmerge/internal/model"
	"github.com/sells-group/bibmerge/internal/resilience"
)

// maxLineBytes bounds a single JSONL record.
const maxLineBytes = 16 << 20

// Ingester is the part of the engine a batch drives.
type Ingester interface {
	IngestRecord(ctx context.Context, rec model.RawRecord) (*engine.Result, error)
}

// DeadLetters persists records whose ingestion failed.
type DeadLetters interface {
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
}

// Config tunes a batch.
type Config struct {
	// DecodeWorkers parse lines in parallel. Records still reach the engine
	// in file order.
	DecodeWorkers int
	// MaxRecordsPerSec throttles ingestion; 0 disables throttling.
	MaxRecordsPerSec float64
	// HistoryDir receives a JSONL file of accepted records; "" disables it.
	HistoryDir string
	// CommitAttempts is how often a transient storage failure is retried.
	CommitAttempts int
	// DLQMaxRetries and DLQBackoff schedule dead-letter retries.
	DLQMaxRetries int
	DLQBackoff    time.Duration
	// BreakerThreshold consecutive storage failures stop commits for
	// BreakerCooldown; records arriving meanwhile are dead-lettered.
	BreakerThreshold int
	BreakerCooldown  time.Duration
	Decoder          Decoder
}

// BatchResult summarizes a batch.
type BatchResult struct {
	ID         string `json:"id" yaml:"id"`
	Files      int    `json:"files" yaml:"files"`
	Lines      int    `json:"lines" yaml:"lines"`
	Ingested   int    `json:"ingested" yaml:"ingested"`
	Duplicates int    `json:"duplicates" yaml:"duplicates"`
	Rejected   int    `json:"rejected" yaml:"rejected"`
	Failed     int    `json:"failed" yaml:"failed"`
	Conflicts  int    `json:"conflicts" yaml:"conflicts"`
	Reviews    int    `json:"reviews" yaml:"reviews"`
	History    string `json:"history,omitempty" yaml:"history,omitempty"`
}

// Batch ingests record files.
type Batch struct {
	eng     Ingester
	dlq     DeadLetters
	cfg     Config
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
	log     *zap.Logger
	now     func() time.Time
}

// NewBatch creates a Batch. dlq may be nil, in which case failed records
// are only counted and logged.
func NewBatch(eng Ingester, dlq DeadLetters, cfg Config) *Batch {
	if cfg.DecodeWorkers <= 0 {
		cfg.DecodeWorkers = 1
	}
	if cfg.DLQMaxRetries <= 0 {
		cfg.DLQMaxRetries = 3
	}
	if cfg.DLQBackoff <= 0 {
		cfg.DLQBackoff = 30 * time.Second
	}
	if cfg.Decoder.Quality == 0 {
		cfg.Decoder.Quality = 0.5
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.MaxRecordsPerSec > 0 {
		burst := int(cfg.MaxRecordsPerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxRecordsPerSec), burst)
	}

	retry := resilience.FromRetryConfig(cfg.CommitAttempts, 0, 0)
	retry.ShouldRetry = func(err error) bool {
		return engine.IsStorage(err) && resilience.IsTransient(err)
	}
	retry.OnRetry = resilience.RetryLogger("ingest", "commit")

	log := zap.L().With(zap.String("component", "ingest"))
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Threshold:  cfg.BreakerThreshold,
		Cooldown:   cfg.BreakerCooldown,
		ShouldTrip: engine.IsStorage,
		OnStateChange: func(from, to resilience.BreakerState) {
			log.Warn("store breaker state change", zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	return &Batch{
		eng:     eng,
		dlq:     dlq,
		cfg:     cfg,
		limiter: limiter,
		retry:   retry,
		breaker: breaker,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type line struct {
	n    int
	data []byte
}

type decoded struct {
	rec model.RawRecord
	err error
}

// Run ingests every file in order. Per-record failures are counted, not
// returned; Run fails only on I/O errors or cancellation.
func (b *Batch) Run(ctx context.Context, paths []string) (*BatchResult, error) {
	res := &BatchResult{ID: uuid.NewString()}
	log := b.log.With(zap.String("batch_id", res.ID))

	var hist *History
	if b.cfg.HistoryDir != "" {
		h, err := OpenHistory(b.cfg.HistoryDir, b.now())
		if err != nil {
			return nil, err
		}
		hist = h
		defer func() {
			if err := hist.Close(); err != nil {
				log.Warn("close history", zap.Error(err))
			}
		}()
		res.History = h.Path()
	}

	for _, path := range paths {
		if err := b.runFile(ctx, path, res, hist); err != nil {
			return res, err
		}
		res.Files++
	}
	if hist != nil && hist.Len() == 0 {
		res.History = ""
	}

	log.Info("batch complete",
		zap.Int("files", res.Files),
		zap.Int("ingested", res.Ingested),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("rejected", res.Rejected),
		zap.Int("failed", res.Failed),
		zap.Int("conflicts", res.Conflicts),
		zap.Int("reviews", res.Reviews),
	)
	return res, nil
}

func (b *Batch) runFile(ctx context.Context, path string, res *BatchResult, hist *History) error {
	lines, err := readLines(path)
	if err != nil {
		return err
	}
	res.Lines += len(lines)
	log := b.log.With(zap.String("file", path))
	log.Info("ingesting file", zap.Int("lines", len(lines)))

	out := make([]decoded, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.DecodeWorkers)
	for i, l := range lines {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := b.cfg.Decoder.Decode(l.data)
			out[i] = decoded{rec: rec, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "ingest: decode")
	}

	for i, d := range out {
		if err := b.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "ingest: throttle")
		}
		origin := path + ":" + strconv.Itoa(lines[i].n)
		if d.err != nil {
			res.Rejected++
			log.Warn("record rejected", zap.String("origin", origin), zap.Error(d.err))
			continue
		}
		b.ingestOne(ctx, d.rec, origin, res, hist)
	}
	return ctx.Err()
}

func (b *Batch) ingestOne(ctx context.Context, rec model.RawRecord, origin string, res *BatchResult, hist *History) {
	r, err := b.commit(ctx, rec)
	switch {
	case err == nil:
	case model.IsValidation(err):
		res.Rejected++
		b.log.Warn("record rejected", zap.String("origin", origin), zap.Error(err))
		return
	default:
		res.Failed++
		b.log.Error("record failed", zap.String("origin", origin), zap.Error(err))
		b.deadLetter(ctx, rec, origin, err)
		return
	}

	if r.State == engine.StateDuplicate {
		res.Duplicates++
		return
	}
	res.Ingested++
	res.Conflicts += r.Conflicts
	res.Reviews += len(r.Reviews)
	if hist != nil {
		if err := hist.Append(rec); err != nil {
			b.log.Warn("history append failed", zap.String("origin", origin), zap.Error(err))
		}
	}
}

// commit ingests rec, retrying transient storage failures behind the store
// breaker.
func (b *Batch) commit(ctx context.Context, rec model.RawRecord) (*engine.Result, error) {
	return resilience.BreakVal(ctx, b.breaker, func(ctx context.Context) (*engine.Result, error) {
		return resilience.DoVal(ctx, b.retry, func(ctx context.Context) (*engine.Result, error) {
			return b.eng.IngestRecord(ctx, rec)
		})
	})
}

func (b *Batch) deadLetter(ctx context.Context, rec model.RawRecord, origin string, cause error) {
	if b.dlq == nil {
		return
	}
	now := b.now()
	entry := resilience.DLQEntry{
		ID:           uuid.NewString(),
		Record:       rec,
		Origin:       origin,
		Error:        cause.Error(),
		ErrorType:    resilience.ClassifyError(cause),
		MaxRetries:   b.cfg.DLQMaxRetries,
		NextRetryAt:  resilience.NextRetry(now, 0, b.cfg.DLQBackoff, 64*b.cfg.DLQBackoff),
		CreatedAt:    now,
		LastFailedAt: now,
	}
	if err := b.dlq.EnqueueDLQ(ctx, entry); err != nil {
		b.log.Error("dead letter enqueue failed", zap.String("origin", origin), zap.Error(err))
	}
}

// RetryResult summarizes a dead-letter retry pass.
type RetryResult struct {
	Retried   int `json:"retried" yaml:"retried"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Failed    int `json:"failed" yaml:"failed"`
	Dropped   int `json:"dropped" yaml:"dropped"`
}

// RetryDLQ re-ingests dead letters selected by filter. A record that now
// succeeds, or is now a duplicate, leaves the queue; one that fails with a
// validation error is dropped; any other failure is rescheduled with
// backoff.
func (b *Batch) RetryDLQ(ctx context.Context, filter resilience.DLQFilter) (*RetryResult, error) {
	if b.dlq == nil {
		return nil, eris.New("ingest: no dead letter queue configured")
	}
	entries, err := b.dlq.DequeueDLQ(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: dequeue dead letters")
	}

	res := &RetryResult{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !filter.All && !entry.CanRetry() {
			continue
		}
		res.Retried++
		log := b.log.With(zap.String("dlq_id", entry.ID), zap.String("origin", entry.Origin))

		_, err := b.commit(ctx, entry.Record)
		switch {
		case err == nil:
			res.Succeeded++
			if rmErr := b.dlq.RemoveDLQ(ctx, entry.ID); rmErr != nil {
				return res, eris.Wrap(rmErr, "ingest: remove dead letter")
			}
			log.Info("dead letter ingested")
		case model.IsValidation(err):
			res.Dropped++
			if rmErr := b.dlq.RemoveDLQ(ctx, entry.ID); rmErr != nil {
				return res, eris.Wrap(rmErr, "ingest: remove dead letter")
			}
			log.Warn("dead letter dropped", zap.Error(err))
		default:
			res.Failed++
			next := resilience.NextRetry(b.now(), entry.RetryCount+1, b.cfg.DLQBackoff, 64*b.cfg.DLQBackoff)
			if incErr := b.dlq.IncrementDLQRetry(ctx, entry.ID, next, err.Error()); incErr != nil {
				return res, eris.Wrap(incErr, "ingest: reschedule dead letter")
			}
			log.Warn("dead letter retry failed", zap.Int("retry_count", entry.RetryCount+1), zap.Error(err))
		}
	}
	return res, nil
}

// Replay re-ingests every history file in dir. Records already folded are
// duplicates, so replaying onto a populated store is a no-op. Replay never
// writes history of its own.
func (b *Batch) Replay(ctx context.Context, dir string) (*BatchResult, error) {
	paths, err := HistoryFiles(dir)
	if err != nil {
		return nil, err
	}
	rb := *b
	rb.cfg.HistoryDir = ""
	return rb.Run(ctx, paths)
}

func readLines(path string) ([]line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var lines []line
	n := 0
	for sc.Scan() {
		n++
		b := sc.Bytes()
		if isBlank(b) {
			continue
		}
		lines = append(lines, line{n: n, data: append([]byte(nil), b...)})
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}
	return lines, nil
}

func isBlank(b []byte) bool {
	for _, c := range b {
		if c != ' ' && c != '\t' && c != '\r' {
			return false
		}
	}
	return true
}
