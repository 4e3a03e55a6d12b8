package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"auctionhouse/core/events"
	"auctionhouse/core/state"
	"auctionhouse/core/types"
	"auctionhouse/crypto"
	"auctionhouse/native/auction"
	"auctionhouse/native/custody"
	"auctionhouse/observability/metrics"
	"auctionhouse/storage"
)

var (
	ErrNilOperation  = errors.New("executor: nil operation")
	ErrMissingCaller = errors.New("executor: operation has no caller")
	ErrNonceMismatch = errors.New("executor: nonce mismatch")
)

var genesisMarker = []byte("genesis/applied")

var tracer = otel.Tracer("auctionhouse/core")

// Options configure an Executor. Zero values are valid: deposits default to
// zero, the clock to wall time, the logger to slog.Default and events are
// dropped after commit.
type Options struct {
	ProgramID      []byte
	RecordDeposit  uint64
	AccountDeposit uint64
	Now            func() int64
	Logger         *slog.Logger
	Emitter        events.Emitter
	Metrics        *metrics.AuctionMetrics
}

// Executor applies operations one at a time. Each operation runs against a
// state snapshot; on failure every write it made is reverted and its events
// are dropped, on success the writes are committed as one batch and the
// events are forwarded downstream.
type Executor struct {
	mu      sync.Mutex
	state   *state.Manager
	ledger  *custody.Ledger
	engine  *auction.Engine
	pending *events.Buffer
	emitter events.Emitter
	logger  *slog.Logger
	metrics *metrics.AuctionMetrics
}

// NewExecutor wires the custody ledger and auction engine over db.
func NewExecutor(db storage.Database, opts Options) *Executor {
	mgr := state.NewManager(db)

	ledger := custody.NewLedger()
	ledger.SetState(mgr)
	ledger.SetAccountDeposit(opts.AccountDeposit)

	pending := &events.Buffer{}
	engine := auction.NewEngine(opts.ProgramID)
	engine.SetState(mgr)
	engine.SetLedger(ledger)
	engine.SetRecordDeposit(opts.RecordDeposit)
	engine.SetEmitter(pending)
	engine.SetNowFunc(opts.Now)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Executor{
		state:   mgr,
		ledger:  ledger,
		engine:  engine,
		pending: pending,
		emitter: emitter,
		logger:  logger.With(slog.String("component", "executor")),
		metrics: opts.Metrics,
	}
}

// ControlIdentity returns the identity holding authority over escrowed
// accounts.
func (x *Executor) ControlIdentity() [20]byte {
	return x.engine.ControlIdentity()
}

// Apply validates the operation header and runs the operation atomically.
// A failed operation still consumes the signer's nonce so a rejected signed
// request cannot be replayed later.
func (x *Executor) Apply(ctx context.Context, op Operation) (*Receipt, error) {
	if op == nil {
		return nil, ErrNilOperation
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := op.header()
	if h.Caller == ([20]byte{}) {
		return nil, ErrMissingCaller
	}
	name := op.Name()

	_, span := tracer.Start(ctx, "executor."+name, trace.WithAttributes(
		attribute.String("op", name),
		attribute.Int64("nonce", int64(h.Nonce)),
	))
	defer span.End()
	receipt, err := x.runOperation(op, h, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("events", len(receipt.Events)))
	return receipt, nil
}

func (x *Executor) runOperation(op Operation, h Header, name string) (*Receipt, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	expected, err := x.nonceLocked(h.Caller)
	if err != nil {
		return nil, err
	}
	if h.Nonce != expected {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrNonceMismatch, expected, h.Nonce)
	}

	receipt := &Receipt{Operation: name, Caller: h.Caller, Nonce: h.Nonce}
	snap := x.state.Snapshot()
	opErr := op.apply(x, h.Caller, receipt)
	if opErr != nil {
		x.state.RevertToSnapshot(snap)
		x.pending.Reset()
	}
	if err := x.state.KVPut(nonceKey(h.Caller), expected+1); err != nil {
		x.abortLocked()
		return nil, err
	}
	if err := x.state.Commit(); err != nil {
		x.abortLocked()
		return nil, err
	}

	caller := slog.String("caller", crypto.AddressFromRaw(crypto.IdentityPrefix, h.Caller).String())
	if opErr != nil {
		kind := auction.KindOf(opErr)
		x.metrics.ObserveOperation(name, "rejected")
		x.metrics.ObserveError(name, kind.String())
		x.logger.Warn("operation rejected",
			slog.String("op", name),
			caller,
			slog.Uint64("nonce", h.Nonce),
			slog.String("kind", kind.String()),
			slog.Any("error", opErr))
		return nil, fmt.Errorf("%s: %w", name, opErr)
	}

	flushed := x.pending.Flush(x.emitter)
	receipt.Events = make([]*types.Event, 0, len(flushed))
	for _, evt := range flushed {
		if payload := evt.Event(); payload != nil {
			receipt.Events = append(receipt.Events, payload)
		}
	}
	x.metrics.ObserveOperation(name, "ok")
	x.logger.Info("operation applied",
		slog.String("op", name),
		caller,
		slog.Uint64("nonce", h.Nonce),
		slog.Int("events", len(receipt.Events)))
	return receipt, nil
}

func (x *Executor) abortLocked() {
	x.state.Discard()
	x.pending.Reset()
}

// EnsureSchema stamps a fresh data directory with the current schema version
// and refuses one written by an incompatible binary unless allowMigrate is set.
func (x *Executor) EnsureSchema(allowMigrate bool) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	stamped, err := x.state.CheckSchemaVersion(allowMigrate)
	if err != nil || stamped {
		return err
	}
	if err := x.state.SetSchemaVersion(state.SchemaVersion); err != nil {
		x.abortLocked()
		return err
	}
	if err := x.state.Commit(); err != nil {
		x.abortLocked()
		return err
	}
	return nil
}

// InitGenesis credits the supplied reserves exactly once per data directory.
// It reports whether the allocations were applied by this call.
func (x *Executor) InitGenesis(reserves map[[20]byte]uint64) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	var applied bool
	ok, err := x.state.KVGet(genesisMarker, &applied)
	if err != nil {
		return false, err
	}
	if ok && applied {
		return false, nil
	}
	for id, amount := range reserves {
		if err := x.ledger.CreditReserve(id, amount); err != nil {
			x.abortLocked()
			return false, fmt.Errorf("genesis: %w", err)
		}
	}
	if err := x.state.KVPut(genesisMarker, true); err != nil {
		x.abortLocked()
		return false, err
	}
	if err := x.state.Commit(); err != nil {
		x.abortLocked()
		return false, err
	}
	x.logger.Info("genesis reserves applied", slog.Int("identities", len(reserves)))
	return true, nil
}

func nonceKey(id [20]byte) []byte {
	return append([]byte("nonce/"), id[:]...)
}

func (x *Executor) nonceLocked(id [20]byte) (uint64, error) {
	var nonce uint64
	if _, err := x.state.KVGet(nonceKey(id), &nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

// Nonce returns the nonce the next operation signed by id must carry.
func (x *Executor) Nonce(id [20]byte) (uint64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.nonceLocked(id)
}

// Auction returns an open auction record.
func (x *Executor) Auction(id [32]byte) (*auction.Auction, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.engine.Auction(id)
}

// Status returns the lifecycle tag of an auction slot.
func (x *Executor) Status(id [32]byte) (auction.Status, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.engine.Status(id)
}

// Account returns a custody account.
func (x *Executor) Account(addr [20]byte) (*custody.Account, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.ledger.Account(addr)
}

// Mint returns a mint definition.
func (x *Executor) Mint(id [20]byte) (*custody.Mint, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.ledger.Mint(id)
}

// Reserve returns an identity's native reserve balance.
func (x *Executor) Reserve(id [20]byte) (uint64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.ledger.Reserve(id)
}
