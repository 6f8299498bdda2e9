package repository

import (
	"context"
	"errors"

	"FlockWatch/internal/domain/models"
)

// ErrNoData is returned when the supplier has no observations for the
// requested room/metric/period. Fatal to the whole detection call.
var ErrNoData = errors.New("no data for requested window")

// WindowSupplier provides read-only access to historical signal windows.
// Implementations own the query path; the detection core never touches
// storage directly.
type WindowSupplier interface {
	// FetchWindow returns the last `days` of one metric for one room,
	// ordered by timestamp ascending, or ErrNoData.
	FetchWindow(ctx context.Context, roomID string, metric models.MetricName, days int) (*models.SignalWindow, error)

	// Rooms lists the room IDs belonging to a farm.
	Rooms(ctx context.Context, farmID string) ([]string, error)
}
