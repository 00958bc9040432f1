// Package pool implements a StableSwap liquidity pool: deposits, proportional and
// imbalanced withdrawals, single-coin withdrawals and exchanges, with imbalance and
// swap fees and an admin share of every fee.
package pool

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"stableswap/internal/fixedpoint"
	"stableswap/internal/invariant"
	"stableswap/internal/metrics"
	"stableswap/internal/model"
)

// Phase is the liquidity lifecycle of a pool.
type Phase string

const (
	PhaseEmpty  Phase = "empty"
	PhaseSeeded Phase = "seeded"
	PhaseActive Phase = "active"
)

// Deps are the collaborators a pool calls into.
type Deps struct {
	Tokens  []Token
	LPToken ShareToken
	// Journal undoes the token movements of a failed operation. Required.
	Journal Journal
	// Store is optional; without it the pool is memory only.
	Store   Store
	Solver  *invariant.Solver
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type state struct {
	balances      []*uint256.Int
	adminBalances []*uint256.Int
	totalSupply   *uint256.Int
	d             *uint256.Int
	a             uint64
	fee           uint64
	adminFee      uint64
	phase         Phase
	seq           uint64
}

func (s *state) clone() *state {
	return &state{
		balances:      fixedpoint.Clone(s.balances),
		adminBalances: fixedpoint.Clone(s.adminBalances),
		totalSupply:   s.totalSupply.Clone(),
		d:             s.d.Clone(),
		a:             s.a,
		fee:           s.fee,
		adminFee:      s.adminFee,
		phase:         s.phase,
		seq:           s.seq,
	}
}

// Pool is a single StableSwap pool. All public methods are safe for concurrent use;
// mutating operations run one at a time.
type Pool struct {
	mu sync.Mutex

	cfg        Config
	precisions []*uint256.Int
	tokens     []Token
	lp         ShareToken
	journal    Journal
	store      Store
	solver     invariant.Solver
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	st *state
}

// New builds an empty pool.
func New(cfg Config, deps Deps) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(deps.Tokens) != len(cfg.Coins) {
		return nil, fmt.Errorf("%w: %d token handles for %d coins", ErrInvalidConfig, len(deps.Tokens), len(cfg.Coins))
	}
	if deps.LPToken == nil {
		return nil, fmt.Errorf("%w: lp token is nil", ErrInvalidConfig)
	}
	if deps.Journal == nil {
		return nil, fmt.Errorf("%w: journal is nil", ErrInvalidConfig)
	}
	precisions, err := fixedpoint.Precisions(cfg.decimals())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	solver := invariant.DefaultSolver()
	if deps.Solver != nil {
		solver = *deps.Solver
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	n := len(cfg.Coins)
	return &Pool{
		cfg:        cfg,
		precisions: precisions,
		tokens:     deps.Tokens,
		lp:         deps.LPToken,
		journal:    deps.Journal,
		store:      deps.Store,
		solver:     solver,
		logger:     logger.With(zap.String("pool", cfg.Name)),
		metrics:    deps.Metrics,
		now:        now,
		st: &state{
			balances:      zeros(n),
			adminBalances: zeros(n),
			totalSupply:   new(uint256.Int),
			d:             new(uint256.Int),
			a:             cfg.A,
			fee:           cfg.Fee,
			adminFee:      cfg.AdminFee,
			phase:         PhaseEmpty,
		},
	}, nil
}

// N returns the number of coins.
func (p *Pool) N() int {
	return len(p.cfg.Coins)
}

// Config returns the pool identity with its current parameters.
func (p *Pool) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	cfg := p.cfg
	cfg.Coins = append([]Coin(nil), p.cfg.Coins...)
	cfg.A, cfg.Fee, cfg.AdminFee = p.st.a, p.st.fee, p.st.adminFee
	return cfg
}

// Balances returns the LP-owned balances in native units.
func (p *Pool) Balances() []*uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fixedpoint.Clone(p.st.balances)
}

// AdminBalances returns fees accrued to the admin and not yet withdrawn.
func (p *Pool) AdminBalances() []*uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fixedpoint.Clone(p.st.adminBalances)
}

// TotalSupply returns the LP token supply.
func (p *Pool) TotalSupply() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st.totalSupply.Clone()
}

// Invariant returns D as of the last committed operation.
func (p *Pool) Invariant() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st.d.Clone()
}

// Phase returns the lifecycle phase.
func (p *Pool) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st.phase
}

// VirtualPrice returns D per LP share scaled by 10^18.
func (p *Pool) VirtualPrice() (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.st.totalSupply.IsZero() {
		return nil, ErrEmptyPool
	}
	d, err := p.getD(p.st, p.st.balances)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(d, fixedpoint.Precision, p.st.totalSupply)
}

// Snapshot returns the durable form of the current state.
func (p *Pool) Snapshot() model.PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.toModel(p.st)
}

// Restore replaces the in-memory state with a previously persisted snapshot. The
// snapshot must describe the same coins; its parameters override the config.
func (p *Pool) Restore(ps model.PoolState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.N()
	if len(ps.Coins) != n || len(ps.Balances) != n || len(ps.AdminBalances) != n {
		return fmt.Errorf("%w: snapshot has %d coins, pool has %d", ErrInvalidConfig, len(ps.Coins), n)
	}
	for i, coin := range ps.Coins {
		if !strings.EqualFold(coin.Address, p.cfg.Coins[i].Address.Hex()) || coin.Decimals != p.cfg.Coins[i].Decimals {
			return fmt.Errorf("%w: snapshot coin %d is %s/%d", ErrInvalidConfig, i, coin.Address, coin.Decimals)
		}
	}

	next := &state{
		a:        ps.A,
		fee:      ps.Fee,
		adminFee: ps.AdminFee,
		phase:    Phase(ps.Phase),
		seq:      ps.Sequence,
	}
	check := p.cfg
	check.A, check.Fee, check.AdminFee = ps.A, ps.Fee, ps.AdminFee
	if err := check.Validate(); err != nil {
		return err
	}
	var err error
	if next.balances, err = parseAll(ps.Balances); err != nil {
		return fmt.Errorf("balances: %w", err)
	}
	if next.adminBalances, err = parseAll(ps.AdminBalances); err != nil {
		return fmt.Errorf("admin balances: %w", err)
	}
	if next.totalSupply, err = fixedpoint.Parse(ps.TotalSupply); err != nil {
		return fmt.Errorf("total supply: %w", err)
	}
	if next.d, err = p.getD(next, next.balances); err != nil {
		return fmt.Errorf("invariant: %w", err)
	}
	if ps.Invariant != "" && ps.Invariant != fixedpoint.Format(next.d) {
		p.logger.Warn("restored invariant differs from recomputed value",
			zap.String("stored", ps.Invariant),
			zap.String("computed", fixedpoint.Format(next.d)),
		)
	}
	switch next.phase {
	case PhaseEmpty, PhaseSeeded, PhaseActive:
	default:
		next.phase = PhaseActive
	}
	if next.totalSupply.IsZero() {
		next.phase = PhaseEmpty
	}

	p.st = next
	return nil
}

func (p *Pool) toModel(st *state) model.PoolState {
	coins := make([]model.CoinMeta, len(p.cfg.Coins))
	for i, coin := range p.cfg.Coins {
		coins[i] = model.CoinMeta{Address: coin.Address.Hex(), Decimals: coin.Decimals}
	}
	return model.PoolState{
		Name:          p.cfg.Name,
		Address:       p.cfg.Address.Hex(),
		LPToken:       p.cfg.LPToken.Hex(),
		Owner:         p.cfg.Owner.Hex(),
		Coins:         coins,
		A:             st.a,
		Fee:           st.fee,
		AdminFee:      st.adminFee,
		Balances:      formatAll(st.balances),
		AdminBalances: formatAll(st.adminBalances),
		TotalSupply:   fixedpoint.Format(st.totalSupply),
		Invariant:     fixedpoint.Format(st.d),
		Phase:         string(st.phase),
		Sequence:      st.seq,
		UpdatedAt:     p.now().UTC().Format(time.RFC3339Nano),
	}
}

// execute runs one operation as a single critical section. fn mutates a copy of the
// state; the copy is persisted and swapped in only if fn, and then the store, succeed.
// On any failure token movements recorded since the journal snapshot are reverted.
func (p *Pool) execute(ctx context.Context, op string, fn func(tx *txn) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	start := time.Now()

	snapshot := p.journal.Snapshot()
	tx := &txn{pool: p, st: p.st.clone()}

	if err := fn(tx); err != nil {
		p.abort(op, snapshot, start, err)
		return err
	}

	tx.st.seq++
	stamp := p.now().UTC().Format(time.RFC3339Nano)
	for i := range tx.events {
		tx.events[i].Pool = p.cfg.Address.Hex()
		tx.events[i].Sequence = tx.st.seq
		tx.events[i].Timestamp = stamp
	}
	if p.store != nil {
		if err := p.store.Commit(ctx, p.toModel(tx.st), tx.events); err != nil {
			err = fmt.Errorf("persist %s: %w", op, err)
			p.abort(op, snapshot, start, err)
			return err
		}
	}

	p.st = tx.st
	p.logger.Debug("operation committed",
		zap.String("op", op),
		zap.Uint64("sequence", p.st.seq),
		zap.String("phase", string(p.st.phase)),
		zap.String("total_supply", fixedpoint.Format(p.st.totalSupply)),
		zap.String("invariant", fixedpoint.Format(p.st.d)),
	)
	p.metrics.ObserveOperation(p.cfg.Name, op, metrics.OutcomeOK, time.Since(start))
	return nil
}

func (p *Pool) abort(op string, snapshot int, start time.Time, err error) {
	p.journal.RevertToSnapshot(snapshot)
	outcome := metrics.OutcomeRejected
	if IsFatal(err) {
		outcome = metrics.OutcomeFatal
	}
	p.metrics.ObserveOperation(p.cfg.Name, op, outcome, time.Since(start))
	p.logger.Warn("operation aborted", zap.String("op", op), zap.Bool("fatal", IsFatal(err)), zap.Error(err))
}

// txn accumulates the next state and events of one operation.
type txn struct {
	pool   *Pool
	st     *state
	events []model.PoolEvent
}

func (tx *txn) emit(name string, data interface{}) {
	tx.events = append(tx.events, model.PoolEvent{EventName: name, Data: data})
}

func (tx *txn) pull(i int, payer common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := tx.pool.tokens[i].TransferFrom(payer, tx.pool.cfg.Address, amount); err != nil {
		return fmt.Errorf("transferFrom coin %d: %w: %w", i, ErrExternalCall, err)
	}
	return nil
}

func (tx *txn) push(i int, recipient common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := tx.pool.tokens[i].Transfer(recipient, amount); err != nil {
		return fmt.Errorf("transfer coin %d: %w: %w", i, ErrExternalCall, err)
	}
	return nil
}

func (tx *txn) mint(recipient common.Address, amount *uint256.Int) error {
	if err := tx.pool.lp.Mint(recipient, amount); err != nil {
		return fmt.Errorf("mint lp: %w: %w", ErrExternalCall, err)
	}
	return nil
}

func (tx *txn) burn(holder common.Address, amount *uint256.Int) error {
	if err := tx.pool.lp.Burn(holder, amount); err != nil {
		return fmt.Errorf("burn lp: %w: %w", ErrExternalCall, err)
	}
	return nil
}

// checkPerShare enforces D1/S1 >= D0/S0 up to the solver tolerance on D.
func (p *Pool) checkPerShare(d0, s0, d1, s1 *uint256.Int) error {
	if s0.IsZero() || s1.IsZero() {
		return nil
	}
	tol := new(big.Int)
	if p.solver.Tolerance != nil {
		tol = p.solver.Tolerance.ToBig()
	}
	left := new(big.Int).Add(d1.ToBig(), tol)
	left.Mul(left, s0.ToBig())
	right := new(big.Int).Mul(d0.ToBig(), s1.ToBig())
	if left.Cmp(right) < 0 {
		return fmt.Errorf("%w: D %s/%s -> %s/%s", ErrInvariantViolated,
			fixedpoint.Format(d0), fixedpoint.Format(s0), fixedpoint.Format(d1), fixedpoint.Format(s1))
	}
	return nil
}

func zeros(n int) []*uint256.Int {
	out := make([]*uint256.Int, n)
	for i := range out {
		out[i] = new(uint256.Int)
	}
	return out
}

func formatAll(values []*uint256.Int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fixedpoint.Format(v)
	}
	return out
}

func parseAll(values []string) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(values))
	for i, v := range values {
		parsed, err := fixedpoint.Parse(v)
		if err != nil {
			return nil, err
		}
		out[i] = parsed
	}
	return out, nil
}
