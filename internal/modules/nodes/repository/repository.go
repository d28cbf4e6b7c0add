package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"cloudpico-humidity/internal/modules/nodes/types"
)

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/get-latest-readings.sql
var getLatestReadingsSQL string

//go:embed sql/insert-rejection.sql
var insertRejectionSQL string

//go:embed sql/get-latest-rejections.sql
var getLatestRejectionsSQL string

// Fixed-width UTC timestamps sort lexically in time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

type NodesRepository interface {
	InsertReading(ctx context.Context, r types.Reading) (int64, error)
	GetLatestReadings(ctx context.Context, node string, limit int) ([]types.Reading, error)
	InsertRejection(ctx context.Context, r types.Rejection) (int64, error)
	GetLatestRejections(ctx context.Context, node string, limit int) ([]types.Rejection, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) NodesRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) InsertReading(ctx context.Context, rd types.Reading) (int64, error) {
	var dewPoint any
	if rd.DewPointC != nil {
		dewPoint = *rd.DewPointC
	}
	res, err := r.db.ExecContext(ctx, insertReadingSQL,
		rd.Node,
		rd.MsgID,
		formatTS(rd.Time),
		rd.Formula,
		rd.TemperatureC,
		rd.HumidityPct,
		dewPoint,
		rd.AbsoluteHumidityGM3,
	)
	if err != nil {
		return 0, fmt.Errorf("insert reading: %w", err)
	}
	return res.LastInsertId()
}

func (r *repositoryImpl) GetLatestReadings(ctx context.Context, node string, limit int) ([]types.Reading, error) {
	rows, err := r.db.QueryContext(ctx, getLatestReadingsSQL, node, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close readings rows", "error", err)
		}
	}()

	out := []types.Reading{}
	for rows.Next() {
		var (
			rec      types.Reading
			ts       string
			dewPoint sql.NullFloat64
		)
		if err := rows.Scan(
			&rec.ID, &rec.Node, &rec.MsgID, &ts, &rec.Formula,
			&rec.TemperatureC, &rec.HumidityPct, &dewPoint, &rec.AbsoluteHumidityGM3,
		); err != nil {
			return nil, err
		}
		if rec.Time, err = parseTS(ts); err != nil {
			return nil, err
		}
		if dewPoint.Valid {
			v := dewPoint.Float64
			rec.DewPointC = &v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) InsertRejection(ctx context.Context, rj types.Rejection) (int64, error) {
	res, err := r.db.ExecContext(ctx, insertRejectionSQL,
		rj.Node,
		rj.MsgID,
		formatTS(rj.Time),
		rj.Kind,
		rj.Message,
	)
	if err != nil {
		return 0, fmt.Errorf("insert rejection: %w", err)
	}
	return res.LastInsertId()
}

func (r *repositoryImpl) GetLatestRejections(ctx context.Context, node string, limit int) ([]types.Rejection, error) {
	rows, err := r.db.QueryContext(ctx, getLatestRejectionsSQL, node, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close rejections rows", "error", err)
		}
	}()

	out := []types.Rejection{}
	for rows.Next() {
		var (
			rec types.Rejection
			ts  string
		)
		if err := rows.Scan(&rec.ID, &rec.Node, &rec.MsgID, &ts, &rec.Kind, &rec.Message); err != nil {
			return nil, err
		}
		if rec.Time, err = parseTS(ts); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func formatTS(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
