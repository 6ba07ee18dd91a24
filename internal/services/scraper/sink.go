package scraper

import (
	"context"

	"github.com/LeonardoBeccarini/road-conditions/internal/model"
)

// Inserter is implemented by *postgrest.Client.
type Inserter interface {
	Insert(ctx context.Context, v any) error
}

// SinkUploader posts each record as one JSON object.
type SinkUploader struct {
	ins Inserter
}

func NewSinkUploader(ins Inserter) *SinkUploader {
	return &SinkUploader{ins: ins}
}

func (s *SinkUploader) Upload(ctx context.Context, rec model.SensorRecord) error {
	return s.ins.Insert(ctx, rec)
}
