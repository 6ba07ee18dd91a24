package relay

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/LeonardoBeccarini/road-conditions/internal/model"
	"github.com/LeonardoBeccarini/road-conditions/pkg/postgrest"
)

// RowReader is implemented by *postgrest.Client.
type RowReader interface {
	Read(ctx context.Context, q postgrest.Query, out any) error
}

// PageOrder sorts sink rows by time with the primary key as tiebreaker, so
// rows sharing a timestamp keep their place across pages.
const PageOrder = "timestamp.asc,id.asc"

// Pull pages through the sink in PageOrder, advancing the
// offset by the size of each page until a page comes back empty.
func Pull(ctx context.Context, r RowReader, filters map[string]string, pageSize int, log *logrus.Entry) ([]model.RelayRow, int, error) {
	var rows []model.RelayRow
	q := postgrest.Query{
		Order:   PageOrder,
		Limit:   pageSize,
		Filters: filters,
	}
	for pages := 1; ; pages++ {
		var page []model.RelayRow
		if err := r.Read(ctx, q, &page); err != nil {
			return nil, pages, fmt.Errorf("sink read at offset %d: %w", q.Offset, err)
		}
		log.WithFields(logrus.Fields{"offset": q.Offset, "rows": len(page)}).Debug("sink page")
		if len(page) == 0 {
			return rows, pages, nil
		}
		rows = append(rows, page...)
		q.Offset += len(page)
	}
}
