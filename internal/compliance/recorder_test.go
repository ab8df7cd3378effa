package compliance

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mshadianto/mnee-sentinel/internal/alert"
	"github.com/mshadianto/mnee-sentinel/internal/domain/model"
	"github.com/mshadianto/mnee-sentinel/internal/payment"
	"github.com/mshadianto/mnee-sentinel/internal/retry"
	"github.com/mshadianto/mnee-sentinel/internal/store"
	storemocks "github.com/mshadianto/mnee-sentinel/internal/store/mocks"
)

// fakeDriver / fakeConn / fakeTxImpl provide a minimal sql.Driver
// so we can call BeginTx and get a real *sql.Tx for testing.
type fakeDriver struct{}
type fakeConn struct{}
type fakeTxImpl struct{}

func (d *fakeDriver) Open(name string) (driver.Conn, error) { return &fakeConn{}, nil }
func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("not implemented")
}
func (c *fakeConn) Close() error              { return nil }
func (c *fakeConn) Begin() (driver.Tx, error) { return &fakeTxImpl{}, nil }
func (tx *fakeTxImpl) Commit() error          { return nil }
func (tx *fakeTxImpl) Rollback() error        { return nil }

func init() {
	sql.Register("fake_recorder", &fakeDriver{})
}

func openFakeDB() *sql.DB {
	db, _ := sql.Open("fake_recorder", "")
	return db
}

type recorderAlerts struct {
	sent []alert.Alert
}

func (a *recorderAlerts) Send(_ context.Context, al alert.Alert) error {
	a.sent = append(a.sent, al)
	return nil
}

type recorderFixture struct {
	db       *storemocks.MockTxBeginner
	audits   *storemocks.MockAuditLogRepository
	budgets  *storemocks.MockBudgetRepository
	velocity *storemocks.MockVelocityRepository
	alerts   *recorderAlerts
	recorder *Recorder
}

func newRecorderFixture(t *testing.T) *recorderFixture {
	ctrl := gomock.NewController(t)
	f := &recorderFixture{
		db:       storemocks.NewMockTxBeginner(ctrl),
		audits:   storemocks.NewMockAuditLogRepository(ctrl),
		budgets:  storemocks.NewMockBudgetRepository(ctrl),
		velocity: storemocks.NewMockVelocityRepository(ctrl),
		alerts:   &recorderAlerts{},
	}
	tracker := NewTracker(f.velocity, 24*time.Hour, 10, slog.Default())
	f.recorder = NewRecorder(
		f.db, f.audits, f.budgets, tracker, f.alerts, slog.Default(),
		WithRecorderSleep(func(context.Context, time.Duration) error { return nil }),
	)
	return f
}

func (f *recorderFixture) expectBeginTx(times int) {
	fakeDB := openFakeDB()
	f.db.EXPECT().BeginTx(gomock.Any(), gomock.Nil()).
		DoAndReturn(func(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
			return fakeDB.BeginTx(ctx, opts)
		}).Times(times)
}

func approvedDecision() *model.AuditDecision {
	return &model.AuditDecision{
		Decision:   model.DecisionApproved,
		Reasoning:  "all compliance checks passed",
		Confidence: dec("0.92"),
		Details:    map[string]any{model.CheckBudget: model.CheckPassed},
		Vendor:     testVendor(),
		Budget:     testBudget(),
	}
}

func successExec() *payment.TxResult {
	return &payment.TxResult{Success: true, TxHash: "0xsim123abc", Mode: payment.ModeSimulation}
}

func TestRecord_ApprovedExecuted_WritesAuditBudgetAndVelocity(t *testing.T) {
	f := newRecorderFixture(t)
	p := testProposal()

	f.expectBeginTx(1)
	f.audits.EXPECT().AppendTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	f.budgets.EXPECT().IncrementSpentTx(gomock.Any(), gomock.Any(), model.CategorySoftware, p.Amount).Return(nil)
	f.velocity.EXPECT().RecordTx(gomock.Any(), gomock.Any(), testVendorAddr, p.Amount, gomock.Any(), gomock.Any()).Return(nil)

	entry, err := f.recorder.Record(context.Background(), p, approvedDecision(), successExec())
	require.NoError(t, err)

	assert.Equal(t, model.DecisionApproved, entry.Decision)
	require.NotNil(t, entry.TransactionHash)
	assert.Equal(t, "0xsim123abc", *entry.TransactionHash)
	assert.Equal(t, p.SourceText, entry.ProposalText)
	assert.Empty(t, f.alerts.sent)
}

func TestRecord_Rejected_WritesAuditOnly(t *testing.T) {
	f := newRecorderFixture(t)
	p := testProposal()

	rejected := &model.AuditDecision{
		Decision:   model.DecisionRejected,
		Reasoning:  "vendor not whitelisted",
		Confidence: p.Confidence,
		Details:    map[string]any{},
	}

	f.expectBeginTx(1)
	f.audits.EXPECT().AppendTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	entry, err := f.recorder.Record(context.Background(), p, rejected, nil)
	require.NoError(t, err)

	assert.Equal(t, model.DecisionRejected, entry.Decision)
	assert.Nil(t, entry.TransactionHash)
}

func TestRecord_ApprovedButExecutionFailed_NoMutations(t *testing.T) {
	f := newRecorderFixture(t)
	p := testProposal()

	f.expectBeginTx(1)
	f.audits.EXPECT().AppendTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	failed := &payment.TxResult{Success: false, Mode: payment.ModeSimulation, Err: "rail offline"}
	entry, err := f.recorder.Record(context.Background(), p, approvedDecision(), failed)
	require.NoError(t, err)
	assert.Nil(t, entry.TransactionHash)
}

func TestRecord_BudgetExhaustedAtCommit_DowngradesToRejection(t *testing.T) {
	f := newRecorderFixture(t)
	p := testProposal()
	decn := approvedDecision()

	// First attempt: the in-database guard trips because a concurrent
	// disbursement consumed the budget between evaluation and commit.
	// Second attempt: the downgraded rejection is written audit-only.
	f.expectBeginTx(2)
	gomock.InOrder(
		f.audits.EXPECT().AppendTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
		f.budgets.EXPECT().IncrementSpentTx(gomock.Any(), gomock.Any(), model.CategorySoftware, p.Amount).Return(store.ErrBudgetExceeded),
		f.audits.EXPECT().AppendTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
	)

	entry, err := f.recorder.Record(context.Background(), p, decn, successExec())
	require.NoError(t, err)

	assert.Equal(t, model.DecisionRejected, entry.Decision)
	assert.Contains(t, entry.Reasoning, "insufficient budget in Software category at commit time")
	assert.Nil(t, entry.TransactionHash)
	assert.Equal(t, model.DecisionRejected, decn.Decision)
	assert.Equal(t, model.CheckFailed, decn.Details[model.CheckBudget])
}

func TestRecord_BudgetExhaustedOnFinalAttempt_RejectionStillWritten(t *testing.T) {
	f := newRecorderFixture(t)
	p := testProposal()
	decn := approvedDecision()

	// Transient failures burn all but the last attempt, then the guard trips
	// on that last attempt. The downgrade rewrite is not a failed attempt, so
	// the rejection must still reach the audit log.
	f.expectBeginTx(4)
	gomock.InOrder(
		f.audits.EXPECT().AppendTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("connection refused")),
		f.audits.EXPECT().AppendTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("connection refused")),
		f.audits.EXPECT().AppendTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
		f.budgets.EXPECT().IncrementSpentTx(gomock.Any(), gomock.Any(), model.CategorySoftware, p.Amount).Return(store.ErrBudgetExceeded),
		f.audits.EXPECT().AppendTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
	)

	entry, err := f.recorder.Record(context.Background(), p, decn, successExec())
	require.NoError(t, err)

	assert.Equal(t, model.DecisionRejected, entry.Decision)
	assert.Contains(t, entry.Reasoning, "insufficient budget in Software category at commit time")
	assert.Nil(t, entry.TransactionHash)
	assert.Empty(t, f.alerts.sent)
}

func TestRecord_TransientFailureThenSuccess_Retries(t *testing.T) {
	f := newRecorderFixture(t)
	p := testProposal()

	f.expectBeginTx(2)
	gomock.InOrder(
		f.audits.EXPECT().AppendTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("connection refused")),
		f.audits.EXPECT().AppendTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
	)

	rejected := &model.AuditDecision{Decision: model.DecisionRejected, Reasoning: "nope", Confidence: p.Confidence}
	entry, err := f.recorder.Record(context.Background(), p, rejected, nil)
	require.NoError(t, err)
	assert.Equal(t, model.DecisionRejected, entry.Decision)
}

func TestRecord_TerminalFailure_NoRetryAndSurfaced(t *testing.T) {
	f := newRecorderFixture(t)
	p := testProposal()

	f.expectBeginTx(1)
	f.audits.EXPECT().AppendTx(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(retry.Terminal(errors.New("constraint violation")))

	rejected := &model.AuditDecision{Decision: model.DecisionRejected, Reasoning: "nope", Confidence: p.Confidence}
	entry, err := f.recorder.Record(context.Background(), p, rejected, nil)

	require.Error(t, err)
	assert.Nil(t, entry)
	assert.ErrorIs(t, err, ErrDecisionNotRecorded)
	require.Len(t, f.alerts.sent, 1)
	assert.Equal(t, alert.AlertTypeAuditWriteFailed, f.alerts.sent[0].Type)
}

func TestRecord_TransientExhaustion_SurfacesNotRecorded(t *testing.T) {
	f := newRecorderFixture(t)
	p := testProposal()

	f.expectBeginTx(3)
	f.audits.EXPECT().AppendTx(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("i/o timeout")).Times(3)

	rejected := &model.AuditDecision{Decision: model.DecisionRejected, Reasoning: "nope", Confidence: p.Confidence}
	entry, err := f.recorder.Record(context.Background(), p, rejected, nil)

	require.Error(t, err)
	assert.Nil(t, entry)
	assert.ErrorIs(t, err, ErrDecisionNotRecorded)
	require.Len(t, f.alerts.sent, 1)
}
