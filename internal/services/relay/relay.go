// Package relay republishes sink rows to the open-data portal.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/LeonardoBeccarini/road-conditions/internal/model"
	"github.com/LeonardoBeccarini/road-conditions/pkg/dedup"
	"github.com/LeonardoBeccarini/road-conditions/pkg/socrata"
)

// Portal is implemented by *socrata.Client.
type Portal interface {
	Upsert(ctx context.Context, rows any) (socrata.UpsertResult, error)
	ResourceID() string
}

type Config struct {
	Rollback  time.Duration
	ChunkSize int
	// PageSize 0 leaves the page size to the sink.
	PageSize int
	Location *time.Location
}

// Summary describes one run.
type Summary struct {
	RunID        string
	Since        string
	Pulled       int
	Pages        int
	Duplicates   int
	Pushed       int
	Chunks       int
	FailedChunks int
	Created      int
	Updated      int
	Duration     time.Duration
}

type Relay struct {
	cfg     Config
	sink    RowReader
	portal  Portal
	log     *logrus.Logger
	metrics *Metrics
	now     func() time.Time
}

func New(cfg Config, sink RowReader, portal Portal, log *logrus.Logger, m *Metrics) *Relay {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Relay{cfg: cfg, sink: sink, portal: portal, log: log, metrics: m, now: time.Now}
}

// Run pulls everything since the rolled back watermark and upserts it in
// chunks. Every chunk is attempted; the returned error joins all failures.
func (r *Relay) Run(ctx context.Context, wm Watermark) (Summary, error) {
	start := r.now()
	sum := Summary{RunID: uuid.NewString(), Since: "<no filter>"}
	if since, ok := wm.Since(r.cfg.Rollback); ok {
		sum.Since = since.UTC().Format(FilterLayout)
	}
	log := r.log.WithFields(logrus.Fields{"run_id": sum.RunID, "resource": r.portal.ResourceID()})

	err := r.run(ctx, wm, log, &sum)
	sum.Duration = r.now().Sub(start)
	r.metrics.observe(sum, err != nil)

	entry := log.WithFields(logrus.Fields{
		"since":         sum.Since,
		"pulled":        sum.Pulled,
		"duplicates":    sum.Duplicates,
		"pushed":        sum.Pushed,
		"chunks":        sum.Chunks,
		"failed_chunks": sum.FailedChunks,
		"duration":      sum.Duration.Round(time.Millisecond).String(),
	})
	if err != nil {
		entry.WithError(err).Error("relay run failed")
		return sum, err
	}
	entry.Info("relay run complete")
	return sum, nil
}

func (r *Relay) run(ctx context.Context, wm Watermark, log *logrus.Entry, sum *Summary) error {
	log.WithField("since", sum.Since).Debug("getting new data")
	rows, pages, err := Pull(ctx, r.sink, wm.Filters(r.cfg.Rollback), r.cfg.PageSize, log)
	sum.Pages = pages
	if err != nil {
		return err
	}
	sum.Pulled = len(rows)

	rows, sum.Duplicates = dedup.Filter(dedup.New(0, 0), rows, rowKey)
	if sum.Duplicates > 0 {
		log.WithField("duplicates", sum.Duplicates).Warn("dropped repeated rows")
	}

	if err := Transform(rows, r.cfg.Location); err != nil {
		return fmt.Errorf("transform: %w", err)
	}

	chunks := Chunk(rows, r.cfg.ChunkSize)
	sum.Chunks = len(chunks)
	log.WithFields(logrus.Fields{"rows": len(rows), "chunks": len(chunks)}).Debug("publishing")

	var errs []error
	for i, c := range chunks {
		entry := log.WithFields(logrus.Fields{"chunk": i + 1, "chunks": len(chunks), "rows": len(c)})
		if err := ctx.Err(); err != nil {
			sum.FailedChunks += len(chunks) - i
			errs = append(errs, fmt.Errorf("chunk %d/%d not sent: %w", i+1, len(chunks), err))
			break
		}
		res, err := r.portal.Upsert(ctx, c)
		if err != nil {
			sum.FailedChunks++
			entry.WithError(err).Error("chunk upsert failed")
			errs = append(errs, fmt.Errorf("chunk %d/%d (%d rows): %w", i+1, len(chunks), len(c), err))
			continue
		}
		sum.Pushed += len(c)
		sum.Created += res.Created
		sum.Updated += res.Updated
		entry.WithFields(logrus.Fields{"created": res.Created, "updated": res.Updated}).Debug("chunk upserted")
	}
	return errors.Join(errs...)
}

// rowKey identifies a sink row by its primary key, falling back to the
// natural key of sensor and reading time.
func rowKey(row model.RelayRow) string {
	if id, ok := row["id"]; ok && id != nil {
		return "id:" + fmt.Sprint(id)
	}
	sid, _ := row[model.FieldSensorID].(string)
	ts, _ := row[model.FieldTimestamp].(string)
	return dedup.Key(sid, ts)
}
