package payment

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"github.com/mshadianto/mnee-sentinel/internal/metrics"
	"github.com/shopspring/decimal"
)

const ModeSimulation = "SIMULATION"

// SimulatedRail produces deterministic fake transaction hashes without
// touching a chain. It stands in for the real MNEE transfer rail in
// development and demos; hashes carry a 0xsim prefix so downstream tooling
// can tell them apart from real ones.
type SimulatedRail struct {
	logger  *slog.Logger
	nowFunc func() time.Time
}

func NewSimulatedRail(logger *slog.Logger) *SimulatedRail {
	return &SimulatedRail{
		logger:  logger.With("component", "payment_rail", "mode", ModeSimulation),
		nowFunc: time.Now,
	}
}

// WithClock overrides the rail's clock, for deterministic hashes in tests.
func (r *SimulatedRail) WithClock(now func() time.Time) *SimulatedRail {
	r.nowFunc = now
	return r
}

func (r *SimulatedRail) Execute(ctx context.Context, address string, amount decimal.Decimal) (TxResult, error) {
	if err := ctx.Err(); err != nil {
		metrics.RailExecutionsTotal.WithLabelValues("failed", ModeSimulation).Inc()
		return TxResult{Success: false, Mode: ModeSimulation, Err: err.Error()}, err
	}

	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(address)))
	txHash := fmt.Sprintf("0xsim%x%06x", r.nowFunc().Unix(), h.Sum32()%1000000)

	r.logger.Info("simulated transfer executed",
		"recipient", address,
		"amount", amount.String(),
		"tx_hash", txHash,
	)
	metrics.RailExecutionsTotal.WithLabelValues("success", ModeSimulation).Inc()

	return TxResult{Success: true, TxHash: txHash, Mode: ModeSimulation}, nil
}
