// Package scenario parses and runs scenario files: ordered steps that set
// up world state, send transactions to the VM and check the outcome.
package scenario

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/gasschedule"
	"github.com/fortiblox/X1-Scenario/pkg/txcache"
	"github.com/fortiblox/X1-Scenario/pkg/vm"
	"github.com/fortiblox/X1-Scenario/pkg/vm/executor"
	"github.com/fortiblox/X1-Scenario/pkg/world"
)

// MaxExternalDepth bounds externalSteps nesting.
const MaxExternalDepth = 16

// DefaultDeployMetadata is used by scDeploy steps that do not set codeMetadata.
const DefaultDeployMetadata = types.MetadataUpgradeable | types.MetadataReadable | types.MetadataPayable | types.MetadataPayableBySC

var (
	// ErrCheckFailed is wrapped by every CheckError.
	ErrCheckFailed = errors.New("check failed")

	// ErrTransferFailed is returned when a transfer step does not succeed.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrExternalStepsDepth is returned when externalSteps nest too deep.
	ErrExternalStepsDepth = errors.New("externalSteps nested too deep")

	// ErrMixedPayment is returned when a transaction carries both native value and tokens.
	ErrMixedPayment = errors.New("native value and token payments are mutually exclusive")
)

// CheckError reports the mismatches found by one step.
type CheckError struct {
	Scenario string
	Step     int
	ID       string
	Kind     StepKind
	Failures []string
}

func (e *CheckError) Error() string {
	where := fmt.Sprintf("step %d (%s", e.Step, e.Kind)
	if e.ID != "" {
		where += " " + e.ID
	}
	where += ")"
	if e.Scenario != "" {
		where = e.Scenario + ": " + where
	}
	return where + ": " + strings.Join(e.Failures, "; ")
}

// Unwrap makes errors.Is(err, ErrCheckFailed) hold.
func (e *CheckError) Unwrap() error {
	return ErrCheckFailed
}

// StepRecord describes an executed step.
type StepRecord struct {
	Scenario string
	Index    int
	ID       string
	Kind     StepKind
	Result   *vm.TxResult

	// NewAddress is set by scDeploy steps.
	NewAddress types.Address

	// Failure is the check error of the step, if any.
	Failure string
}

// Tracer receives a record of every executed step.
type Tracer interface {
	TraceStep(rec StepRecord) error
}

// Config configures a Runner.
type Config struct {
	// BaseDir resolves file expressions given to RegisterContract.
	BaseDir string

	// AllowMissingFiles makes unreadable files evaluate to a MISSING: marker.
	AllowMissingFiles bool

	// Registry resolves contract code. A fresh registry is used when nil.
	Registry *executor.Registry

	// Schedule overrides the gasSchedule field of scenarios when set.
	Schedule *gasschedule.Schedule

	// Tracer, when set, records every executed step.
	Tracer Tracer

	// OnDump is called by dumpState steps.
	OnDump func(name string, state *world.State) error

	// State is the starting world. An empty world is used when nil.
	State *world.State

	Logger *zap.Logger
}

// DefaultConfig returns a configuration with a fresh registry.
func DefaultConfig() Config {
	return Config{
		Registry: executor.NewRegistry(),
		Logger:   zap.NewNop(),
	}
}

// Runner executes scenarios against its own world.
type Runner struct {
	cfg      Config
	logger   *zap.Logger
	state    *world.State
	vm       *executor.VM
	checkGas bool
	results  map[string]*vm.TxResult
	executed int
}

// NewRunner creates a runner over cfg.State, or an empty world.
func NewRunner(cfg Config) *Runner {
	if cfg.Registry == nil {
		cfg.Registry = executor.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	state := cfg.State
	if state == nil {
		state = world.NewState()
	}
	return &Runner{
		cfg:     cfg,
		logger:  cfg.Logger.With(zap.String("component", "scenario")),
		state:   state,
		results: make(map[string]*vm.TxResult),
	}
}

// RegisterContract binds the code that codeExpr evaluates to, such as
// "file:output/adder.wasm", to a compiled-in contract.
func (r *Runner) RegisterContract(codeExpr string, c *executor.ContractContainer) error {
	ip := &Interpreter{Dir: r.cfg.BaseDir, AllowMissingFiles: r.cfg.AllowMissingFiles}
	code, err := ip.Interpret(codeExpr)
	if err != nil {
		return errors.Wrapf(err, "contract %s", c.Name())
	}
	return r.cfg.Registry.Register(code, c)
}

// State returns the world.
func (r *Runner) State() *world.State {
	return r.state
}

// Result returns the result of the transaction step with the given id.
func (r *Runner) Result(id string) (*vm.TxResult, bool) {
	res, ok := r.results[id]
	return res, ok
}

// StepsExecuted returns the number of steps run so far, external ones included.
func (r *Runner) StepsExecuted() int {
	return r.executed
}

// RunFile parses and runs a scenario file.
func (r *Runner) RunFile(ctx context.Context, path string) error {
	return r.runFile(ctx, path, 0)
}

func (r *Runner) runFile(ctx context.Context, path string, depth int) error {
	s, err := ParseFile(path, r.cfg.AllowMissingFiles)
	if err != nil {
		return err
	}
	if s.Name == "" {
		s.Name = filepath.Base(path)
	}
	return r.run(ctx, s, filepath.Dir(path), depth)
}

// Run executes the steps of s. dir resolves externalSteps paths.
func (r *Runner) Run(ctx context.Context, s *Scenario, dir string) error {
	return r.run(ctx, s, dir, 0)
}

func (r *Runner) run(ctx context.Context, s *Scenario, dir string, depth int) error {
	if depth > MaxExternalDepth {
		return ErrExternalStepsDepth
	}
	if depth == 0 {
		r.checkGas = s.CheckGas
	}
	if r.vm == nil {
		schedule := r.cfg.Schedule
		if schedule == nil {
			var err error
			if schedule, err = gasschedule.Named(s.GasSchedule); err != nil {
				return err
			}
		}
		r.vm = executor.New(executor.Config{Registry: r.cfg.Registry, Schedule: schedule, Logger: r.cfg.Logger})
	}

	for i, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		h := step.Header()
		r.logger.Debug("step",
			zap.String("scenario", s.Name),
			zap.Int("index", i),
			zap.String("kind", string(step.Kind())),
			zap.String("id", h.ID))

		rec := StepRecord{Scenario: s.Name, Index: i, ID: h.ID, Kind: step.Kind()}
		fails, err := r.runStep(ctx, s, i, step, &rec, dir, depth)
		if err != nil {
			return errors.Wrapf(err, "%s: step %d (%s %s)", s.Name, i, step.Kind(), h.ID)
		}
		r.executed++

		var checkErr *CheckError
		if len(fails) > 0 {
			checkErr = &CheckError{Scenario: s.Name, Step: i, ID: h.ID, Kind: step.Kind(), Failures: fails}
			rec.Failure = checkErr.Error()
			r.logger.Warn("check failed", zap.String("scenario", s.Name), zap.Int("index", i), zap.Strings("failures", fails))
		}
		if r.cfg.Tracer != nil && step.Kind() != KindExternalSteps {
			if err := r.cfg.Tracer.TraceStep(rec); err != nil {
				return errors.Wrap(err, "trace step")
			}
		}
		if checkErr != nil {
			return checkErr
		}
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, s *Scenario, index int, step Step, rec *StepRecord, dir string, depth int) (failures, error) {
	switch st := step.(type) {
	case *SetStateStep:
		return nil, ApplySetState(r.state, st)
	case *ScCallStep:
		in, err := r.callInput(st)
		if err != nil {
			return nil, err
		}
		in.TxHash = r.txHash(st.TxHash, s, index, st.ID)
		res := r.vm.ExecuteTx(r.state, in)
		return r.finishTx(st.ID, res, st.Expect, rec), nil
	case *ScDeployStep:
		in, err := r.deployInput(st)
		if err != nil {
			return nil, err
		}
		in.TxHash = r.txHash(st.TxHash, s, index, st.ID)
		md := DefaultDeployMetadata
		if st.Tx.CodeMetadata.IsSet() {
			md = types.CodeMetadataFromBytes(st.Tx.CodeMetadata.Bytes)
		}
		addr, res := r.vm.Deploy(r.state, in, st.Tx.ContractCode.Bytes, md)
		rec.NewAddress = addr
		if res.IsSuccess() {
			r.logger.Debug("deployed", zap.Stringer("address", addr))
		}
		return r.finishTx(st.ID, res, st.Expect, rec), nil
	case *ScQueryStep:
		to, err := toAddress(st.Tx.To)
		if err != nil {
			return nil, err
		}
		res := r.vm.Query(r.state, vm.TxInput{
			From:     to,
			To:       to,
			FuncName: st.Tx.Function,
			Args:     argBytes(st.Tx.Arguments),
			Readonly: true,
		})
		return r.finishTx(st.ID, res, st.Expect, rec), nil
	case *TransferStep:
		in, err := r.transferInput(st.Tx)
		if err != nil {
			return nil, err
		}
		in.TxHash = r.txHash(st.TxHash, s, index, st.ID)
		res := r.vm.ExecuteTx(r.state, in)
		rec.Result = res
		if !res.IsSuccess() {
			return nil, errors.Wrapf(ErrTransferFailed, "%s: %s", res.Status, res.Message)
		}
		return nil, nil
	case *ValidatorRewardStep:
		return nil, r.validatorReward(st)
	case *CheckStateStep:
		return checkState(r.state, st), nil
	case *DumpStateStep:
		r.logger.Info("state dump", zap.String("scenario", s.Name), zap.Int("accounts", r.state.Len()))
		if r.cfg.OnDump != nil {
			return nil, r.cfg.OnDump(s.Name, r.state)
		}
		return nil, nil
	case *ExternalStepsStep:
		path := st.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		return nil, r.runFile(ctx, path, depth+1)
	default:
		return nil, errors.Wrapf(ErrUnknownStep, "%T", step)
	}
}

func (r *Runner) finishTx(id string, res *vm.TxResult, expect *TxExpect, rec *StepRecord) failures {
	rec.Result = res
	if id != "" {
		r.results[id] = res
	}
	if !res.IsSuccess() {
		r.logger.Debug("transaction failed", zap.String("id", id), zap.Stringer("status", res.Status), zap.String("message", res.Message))
	}
	if expect == nil {
		return nil
	}
	return checkTx(expect, res, r.checkGas)
}

// txHash is the explicit hash of the step, or one derived from its id.
func (r *Runner) txHash(explicit Value, s *Scenario, index int, id string) types.Hash {
	var h types.Hash
	if len(explicit.Bytes) > 0 {
		copy(h[:], explicit.Bytes)
		return h
	}
	seed := id
	if seed == "" {
		seed = fmt.Sprintf("%s#%d", s.Name, index)
	}
	return types.Hash(blake3.Sum256([]byte(seed)))
}

func argBytes(values []Value) [][]byte {
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = append([]byte{}, v.Bytes...)
	}
	return out
}

func paymentsOf(payments []Payment) []vm.TokenTransfer {
	if len(payments) == 0 {
		return nil
	}
	out := make([]vm.TokenTransfer, len(payments))
	for i, p := range payments {
		out[i] = vm.TokenTransfer{
			TokenID: string(p.TokenID.Bytes),
			Nonce:   p.Nonce.Uint64(),
			Value:   p.Value.BigInt(),
		}
	}
	return out
}

// checkPayment rejects a top-level transaction that sends native value
// together with tokens.
func checkPayment(value *big.Int, payments []vm.TokenTransfer) error {
	if value != nil && value.Sign() != 0 && len(payments) > 0 {
		return errors.Wrapf(ErrMixedPayment, "value %s with %d token payments", value, len(payments))
	}
	return nil
}

func (r *Runner) callInput(st *ScCallStep) (vm.TxInput, error) {
	from, err := toAddress(st.Tx.From)
	if err != nil {
		return vm.TxInput{}, errors.Wrap(err, "from")
	}
	to, err := toAddress(st.Tx.To)
	if err != nil {
		return vm.TxInput{}, errors.Wrap(err, "to")
	}
	value, payments := st.Tx.EGLDValue.BigInt(), paymentsOf(st.Tx.ESDTValue)
	if err := checkPayment(value, payments); err != nil {
		return vm.TxInput{}, err
	}
	return vm.TxInput{
		From:       from,
		To:         to,
		EGLDValue:  value,
		ESDTValues: payments,
		FuncName:   st.Tx.Function,
		Args:       argBytes(st.Tx.Arguments),
		GasLimit:   st.Tx.GasLimit.Uint64(),
		GasPrice:   st.Tx.GasPrice.Uint64(),
		CallType:   vm.DirectCall,
	}, nil
}

func (r *Runner) deployInput(st *ScDeployStep) (vm.TxInput, error) {
	from, err := toAddress(st.Tx.From)
	if err != nil {
		return vm.TxInput{}, errors.Wrap(err, "from")
	}
	return vm.TxInput{
		From:      from,
		EGLDValue: st.Tx.EGLDValue.BigInt(),
		Args:      argBytes(st.Tx.Arguments),
		GasLimit:  st.Tx.GasLimit.Uint64(),
		GasPrice:  st.Tx.GasPrice.Uint64(),
		CallType:  vm.DirectCall,
	}, nil
}

func (r *Runner) transferInput(tx TxTransfer) (vm.TxInput, error) {
	from, err := toAddress(tx.From)
	if err != nil {
		return vm.TxInput{}, errors.Wrap(err, "from")
	}
	to, err := toAddress(tx.To)
	if err != nil {
		return vm.TxInput{}, errors.Wrap(err, "to")
	}
	value, payments := tx.EGLDValue.BigInt(), paymentsOf(tx.ESDTValue)
	if err := checkPayment(value, payments); err != nil {
		return vm.TxInput{}, err
	}
	return vm.TxInput{
		From:       from,
		To:         to,
		EGLDValue:  value,
		ESDTValues: payments,
		GasLimit:   tx.GasLimit.Uint64(),
		GasPrice:   tx.GasPrice.Uint64(),
		CallType:   vm.DirectCall,
	}, nil
}

// validatorReward credits the reward to the balance and adds it to the
// reward counter in protected storage.
func (r *Runner) validatorReward(st *ValidatorRewardStep) error {
	to, err := toAddress(st.Tx.To)
	if err != nil {
		return errors.Wrap(err, "to")
	}
	amount := st.Tx.EGLDValue.BigInt()
	cache := txcache.New(r.state)
	if err := cache.IncreaseEGLD(to, amount); err != nil {
		return err
	}
	err = cache.UpdateAccount(to, func(acc *world.Account) error {
		key := []byte(types.RewardStorageKey)
		total := Value{Bytes: acc.StorageValue(key)}.BigInt()
		acc.SetStorage(key, total.Add(total, amount).Bytes())
		return nil
	})
	if err != nil {
		return err
	}
	cache.Commit(r.state)
	return nil
}
