package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"stableswap/internal/fixedpoint"
	"stableswap/internal/invariant"
	"stableswap/internal/pool"
	"stableswap/internal/storage"
)

// Scenario operations.
const (
	OpAdd               = "add"
	OpRemove            = "remove"
	OpRemoveImbalance   = "remove_imbalance"
	OpRemoveOne         = "remove_one"
	OpExchange          = "exchange"
	OpWithdrawAdminFees = "withdraw_admin_fees"
	OpMint              = "mint"
	OpApprove           = "approve"
)

// Step statuses.
const (
	StepOK         = "ok"
	StepFailed     = "failed"
	StepUnexpected = "unexpected"
)

// Op is one line of a scenario script. Amounts are base-10 strings in native units.
// Actor is a hex address or a name hashed into one.
type Op struct {
	Op         string   `json:"op"`
	Actor      string   `json:"actor"`
	Amounts    []string `json:"amounts,omitempty"`
	Amount     string   `json:"amount,omitempty"`
	I          int      `json:"i,omitempty"`
	J          int      `json:"j,omitempty"`
	Min        string   `json:"min,omitempty"`
	MinAmounts []string `json:"min_amounts,omitempty"`
	Max        string   `json:"max,omitempty"`
	// ExpectError names the error the step must fail with, e.g. "slippage".
	ExpectError string `json:"expect_error,omitempty"`
}

// StepResult records the outcome of one Op and the pool right after it.
type StepResult struct {
	Step         int      `json:"step"`
	Op           string   `json:"op"`
	Actor        string   `json:"actor"`
	Status       string   `json:"status"`
	Output       []string `json:"output,omitempty"`
	Error        string   `json:"error,omitempty"`
	Balances     []string `json:"balances"`
	TotalSupply  string   `json:"total_supply"`
	Invariant    string   `json:"invariant"`
	VirtualPrice string   `json:"virtual_price,omitempty"`
}

var namedErrors = map[string]error{
	"slippage":               pool.ErrSlippage,
	"insufficient_liquidity": pool.ErrInsufficientLiquidity,
	"insufficient_shares":    pool.ErrInsufficientShares,
	"zero_amount":            pool.ErrZeroAmount,
	"amounts_length":         pool.ErrAmountsLength,
	"initial_deposit":        pool.ErrInitialDeposit,
	"empty_pool":             pool.ErrEmptyPool,
	"unauthorized":           pool.ErrUnauthorized,
	"invariant_violated":     pool.ErrInvariantViolated,
	"external_call":          pool.ErrExternalCall,
	"coin_index":             invariant.ErrCoinIndex,
	"same_coin":              invariant.ErrSameCoin,
	"convergence":            invariant.ErrConvergence,
	"overflow":               fixedpoint.ErrOverflow,
}

// ActorAddress resolves a scenario actor.
func ActorAddress(actor string) common.Address {
	if common.IsHexAddress(actor) {
		return common.HexToAddress(actor)
	}
	return common.BytesToAddress(crypto.Keccak256([]byte(strings.ToLower(actor)))[12:])
}

// ReadOps loads a JSONL scenario.
func ReadOps(path string) ([]Op, error) {
	var ops []Op
	err := storage.ReadJSONL(path, func(line []byte) error {
		var op Op
		if err := json.Unmarshal(line, &op); err != nil {
			return err
		}
		ops = append(ops, op)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ops, nil
}

// Runner applies scenario ops to an Env.
type Runner struct {
	env    *Env
	logger *zap.Logger
}

func NewRunner(env *Env, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{env: env, logger: logger}
}

// Run applies every op in order. Failing steps are recorded and the run continues;
// it stops with an error on a fatal pool error or an op it cannot parse.
func (r *Runner) Run(ctx context.Context, ops []Op) ([]StepResult, error) {
	results := make([]StepResult, 0, len(ops))
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		out, opErr := r.apply(ctx, op)
		r.env.Bank.Finalise()

		res := r.snapshot(i, op)
		res.Output = out
		switch {
		case op.ExpectError != "":
			want, ok := namedErrors[op.ExpectError]
			if !ok {
				return results, fmt.Errorf("step %d: unknown expected error %q", i, op.ExpectError)
			}
			res.Status = StepOK
			if !errors.Is(opErr, want) {
				res.Status = StepUnexpected
			}
		case opErr != nil:
			res.Status = StepFailed
		default:
			res.Status = StepOK
		}
		if opErr != nil {
			res.Error = opErr.Error()
		}
		results = append(results, res)

		r.logger.Debug("scenario step", zap.Int("step", i), zap.String("op", op.Op), zap.String("status", res.Status), zap.Error(opErr))
		if pool.IsFatal(opErr) && op.ExpectError == "" {
			return results, fmt.Errorf("step %d %s: %w", i, op.Op, opErr)
		}
	}
	return results, nil
}

func (r *Runner) snapshot(step int, op Op) StepResult {
	p := r.env.Pool
	res := StepResult{
		Step:        step,
		Op:          op.Op,
		Actor:       ActorAddress(op.Actor).Hex(),
		Balances:    formatAll(p.Balances()),
		TotalSupply: fixedpoint.Format(p.TotalSupply()),
		Invariant:   fixedpoint.Format(p.Invariant()),
	}
	if vp, err := p.VirtualPrice(); err == nil {
		res.VirtualPrice = fixedpoint.Format(vp)
	}
	return res
}

func (r *Runner) apply(ctx context.Context, op Op) ([]string, error) {
	actor := ActorAddress(op.Actor)
	p := r.env.Pool
	switch op.Op {
	case OpMint:
		amount, err := parseAmount(op.Amount)
		if err != nil {
			return nil, err
		}
		return nil, r.env.Fund(actor, op.I, amount)
	case OpApprove:
		amount, err := parseAmount(op.Amount)
		if err != nil {
			return nil, err
		}
		if op.I < 0 || op.I >= p.N() {
			return nil, fmt.Errorf("%w: coin %d", invariant.ErrCoinIndex, op.I)
		}
		return nil, r.env.Bank.Approve(r.env.Config.Coins[op.I].Address, actor, r.env.Config.Address, amount)
	case OpAdd:
		amounts, err := parseAmounts(op.Amounts)
		if err != nil {
			return nil, err
		}
		minMint, err := parseOptional(op.Min)
		if err != nil {
			return nil, err
		}
		minted, err := p.AddLiquidity(ctx, actor, amounts, minMint)
		return one(minted), err
	case OpRemove:
		burn, err := parseAmount(op.Amount)
		if err != nil {
			return nil, err
		}
		mins, err := parseAmounts(op.MinAmounts)
		if err != nil {
			return nil, err
		}
		if len(mins) == 0 {
			mins = make([]*uint256.Int, p.N())
			for i := range mins {
				mins[i] = new(uint256.Int)
			}
		}
		paid, err := p.RemoveLiquidity(ctx, actor, burn, mins)
		return formatAll(paid), err
	case OpRemoveImbalance:
		amounts, err := parseAmounts(op.Amounts)
		if err != nil {
			return nil, err
		}
		maxBurn, err := parseOptional(op.Max)
		if err != nil {
			return nil, err
		}
		burned, err := p.RemoveLiquidityImbalance(ctx, actor, amounts, maxBurn)
		return one(burned), err
	case OpRemoveOne:
		burn, err := parseAmount(op.Amount)
		if err != nil {
			return nil, err
		}
		minAmount, err := parseOptional(op.Min)
		if err != nil {
			return nil, err
		}
		paid, err := p.RemoveLiquidityOneCoin(ctx, actor, burn, op.I, minAmount)
		return one(paid), err
	case OpExchange:
		dx, err := parseAmount(op.Amount)
		if err != nil {
			return nil, err
		}
		minDy, err := parseOptional(op.Min)
		if err != nil {
			return nil, err
		}
		dy, err := p.Exchange(ctx, actor, op.I, op.J, dx, minDy)
		return one(dy), err
	case OpWithdrawAdminFees:
		paid, err := p.WithdrawAdminFees(ctx, actor)
		return formatAll(paid), err
	default:
		return nil, fmt.Errorf("unknown op %q", op.Op)
	}
}

func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("amount is required")
	}
	return fixedpoint.Parse(s)
}

func parseOptional(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	return fixedpoint.Parse(s)
}

func parseAmounts(values []string) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(values))
	for i, v := range values {
		parsed, err := fixedpoint.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("amount %d: %w", i, err)
		}
		out[i] = parsed
	}
	return out, nil
}

func one(v *uint256.Int) []string {
	if v == nil {
		return nil
	}
	return []string{fixedpoint.Format(v)}
}

func formatAll(values []*uint256.Int) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fixedpoint.Format(v)
	}
	return out
}
