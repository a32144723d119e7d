package mock

import (
	"context"

	"github.com/influxdata/coreraft/cluster"
)

// StatusService is a mock implementation of http.StatusService.
type StatusService struct {
	StatusFn func(ctx context.Context) (*cluster.Status, error)
}

// Status calls StatusFn.
func (s *StatusService) Status(ctx context.Context) (*cluster.Status, error) {
	return s.StatusFn(ctx)
}
