package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bundlehub/internal/backend"
)

// TypeSalesReport is the asynq task type that rebuilds the sales report.
const TypeSalesReport = "report:sales"

type salesPayload struct {
	RequestedBy string `json:"requestedBy"`
}

// NewSalesTask builds a report task on behalf of the given administrator.
func NewSalesTask(requestedBy string) (*asynq.Task, error) {
	raw, err := json.Marshal(salesPayload{RequestedBy: requestedBy})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSalesReport, raw, asynq.Timeout(2*time.Minute)), nil
}

// Orders lists every order.
type Orders interface {
	AdminOrders(ctx context.Context) ([]backend.Purchase, error)
}

// Processor handles report:sales tasks.
type Processor struct {
	Orders Orders
	Store  Store
	Now    func() time.Time
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (p Processor) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload salesPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("report: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	orders, err := p.Orders.AdminOrders(ctx)
	if err != nil {
		return fmt.Errorf("report: list orders: %w", err)
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	rep := Compute(orders, now())
	rep.RequestedBy = payload.RequestedBy
	if err := p.Store.Save(ctx, rep); err != nil {
		return fmt.Errorf("report: save: %w", err)
	}
	p.Logger.Info().
		Int("transactions", rep.Transactions).
		Str("revenue", rep.Revenue.StringFixed(2)).
		Str("requested_by", rep.RequestedBy).
		Msg("sales report generated")
	return nil
}
