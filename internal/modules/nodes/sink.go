package nodes

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"cloudpico-humidity/internal/flow"
	"cloudpico-humidity/internal/humidity"
	"cloudpico-humidity/internal/modules/nodes/repository"
	"cloudpico-humidity/internal/modules/nodes/types"
)

// StoreSink writes emissions to the readings log and validation failures to
// the rejections table.
type StoreSink struct {
	repo repository.NodesRepository
	now  func() time.Time
}

func NewStoreSink(db *sql.DB) *StoreSink {
	return newStoreSink(repository.NewRepository(db))
}

func newStoreSink(repo repository.NodesRepository) *StoreSink {
	return &StoreSink{repo: repo, now: time.Now}
}

func (s *StoreSink) Emit(ctx context.Context, def flow.Definition, em *humidity.Emission) error {
	r := em.Reading
	rec := types.Reading{
		Node:                def.Name,
		MsgID:               em.Message.ID(),
		Time:                s.now(),
		Formula:             r.Formula.String(),
		TemperatureC:        r.Temperature,
		HumidityPct:         r.RelativeHumidity,
		AbsoluteHumidityGM3: r.AbsoluteHumidity,
	}
	if !math.IsNaN(r.DewPoint) && !math.IsInf(r.DewPoint, 0) {
		dp := r.DewPoint
		rec.DewPointC = &dp
	}
	_, err := s.repo.InsertReading(ctx, rec)
	return err
}

func (s *StoreSink) Reject(ctx context.Context, def flow.Definition, msg humidity.Message, cause error) error {
	_, err := s.repo.InsertRejection(ctx, types.Rejection{
		Node:    def.Name,
		MsgID:   msg.ID(),
		Time:    s.now(),
		Kind:    rejectionKind(cause),
		Message: cause.Error(),
	})
	return err
}

func rejectionKind(err error) string {
	switch {
	case errors.Is(err, humidity.ErrInvalidHumidity):
		return types.RejectionInvalidHumidity
	case errors.Is(err, humidity.ErrInvalidTemperature):
		return types.RejectionInvalidTemperature
	default:
		return types.RejectionOther
	}
}
