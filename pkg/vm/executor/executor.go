// Package executor runs contract calls against the world.
//
// A VM executes top-level transactions (calls, deploys, upgrades, transfers
// and queries) following the protocol's default execution: gas fee, nonce,
// value transfer, built-in dispatch, contract dispatch, then async calls and
// promises. Contracts are Go functions registered in a Registry under their
// code bytes; they reach the chain through the API handed to each endpoint.
//
// A VM is not safe for concurrent use. Run one VM per goroutine.
package executor

import (
	"fmt"
	"math/big"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/gasschedule"
	"github.com/fortiblox/X1-Scenario/pkg/txcache"
	"github.com/fortiblox/X1-Scenario/pkg/vm"
	"github.com/fortiblox/X1-Scenario/pkg/vm/builtin"
	"github.com/fortiblox/X1-Scenario/pkg/vm/managed"
	"github.com/fortiblox/X1-Scenario/pkg/world"
)

// UpgradeContractFuncName is the transaction function that replaces contract code.
// Its arguments are the new code, the new code metadata and the upgrade arguments.
const UpgradeContractFuncName = "upgradeContract"

// TransferValueOnlyEndpoint names the synthetic log of contract-originated value transfers.
const TransferValueOnlyEndpoint = "transferValueOnly"

// Failure messages raised by the executor.
const (
	MsgContractInvalid   = "contract invalid"
	MsgWrongNumArgs      = "wrong number of arguments"
	MsgArgumentDecode    = "argument decode error"
	MsgStorageDecode     = "storage decode error"
	MsgAsyncAlreadySet   = "only one async call allowed"
	MsgBadESDTCount      = "incorrect number of ESDT transfers"
	MsgReadonlyWrite     = "cannot write in readonly mode"
	MsgInvalidCodeSource = "invalid code source address"
)

// Config configures a VM.
type Config struct {
	// Registry resolves code to contracts. A fresh empty registry is used when nil.
	Registry *Registry

	// Schedule prices API calls and built-ins.
	Schedule *gasschedule.Schedule

	Logger *zap.Logger
}

// DefaultConfig returns a configuration with the embedded gas schedule.
func DefaultConfig() Config {
	return Config{
		Registry: NewRegistry(),
		Schedule: gasschedule.Default(),
		Logger:   zap.NewNop(),
	}
}

// VM executes transactions.
type VM struct {
	registry *Registry
	builtins *builtin.Dispatcher
	schedule *gasschedule.Schedule
	logger   *zap.Logger
	stack    stack
}

// New creates a VM.
func New(cfg Config) *VM {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Schedule == nil {
		cfg.Schedule = gasschedule.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &VM{
		registry: cfg.Registry,
		builtins: builtin.NewDispatcher(builtin.Config{Schedule: cfg.Schedule, Logger: cfg.Logger}),
		schedule: cfg.Schedule,
		logger:   cfg.Logger.With(zap.String("component", "vm")),
	}
}

// Registry returns the contract registry.
func (v *VM) Registry() *Registry {
	return v.registry
}

// Schedule returns the gas schedule.
func (v *VM) Schedule() *gasschedule.Schedule {
	return v.schedule
}

// frame describes where a call runs.
type frame struct {
	// arena is shared with the caller for synchronous calls. Nil allocates a fresh one.
	arena *managed.Arena

	parent *TxContext

	// prepaid marks calls whose payments were already delivered by a built-in.
	prepaid bool
}

func (f frame) depth() int {
	if f.parent == nil {
		return 0
	}
	return f.parent.depth + 1
}

func newGasMeter(limit uint64) *vm.GasMeter {
	if limit == 0 {
		return vm.NewGasMeterDisabled()
	}
	return vm.NewGasMeter(limit)
}

// ExecuteTx runs a call or transfer transaction and commits its effects to state.
// The sender's nonce increases and the gas fee is charged whatever the outcome.
func (v *VM) ExecuteTx(state *world.State, in vm.TxInput) *vm.TxResult {
	return v.runTx(state, &in, func(env *txEnv, cache *txcache.Cache, _ uint64) *vm.TxResult {
		res, _ := v.executeCall(env, cache, &in, frame{})
		return res
	})
}

// Deploy runs a deploy transaction. The new address is returned even when
// init fails, in which case nothing but the sender's nonce and fee changed.
func (v *VM) Deploy(state *world.State, in vm.TxInput, code []byte, metadata types.CodeMetadata) (types.Address, *vm.TxResult) {
	var addr types.Address
	res := v.runTx(state, &in, func(env *txEnv, cache *txcache.Cache, nonce uint64) *vm.TxResult {
		var res *vm.TxResult
		addr, res, _ = v.deploy(env, cache, &in, nonce, code, metadata, frame{})
		return res
	})
	return addr, res
}

// Query runs a call without charging the sender and discards every change.
func (v *VM) Query(state *world.State, in vm.TxInput) *vm.TxResult {
	env := &txEnv{state: state, gas: newGasMeter(in.GasLimit)}
	cache := txcache.New(state)
	res, _ := v.executeCall(env, cache, &in, frame{})
	res.GasRemaining = env.gas.Remaining()
	res.GasRefund = env.gas.Refund()
	return res
}

// runTx wraps body in the transaction prologue and epilogue.
func (v *VM) runTx(state *world.State, in *vm.TxInput, body func(env *txEnv, cache *txcache.Cache, nonce uint64) *vm.TxResult) *vm.TxResult {
	env := &txEnv{state: state, gas: newGasMeter(in.GasLimit)}
	finish := func(res *vm.TxResult) *vm.TxResult {
		res.GasRemaining = env.gas.Remaining()
		res.GasRefund = env.gas.Refund()
		return res
	}

	pre := txcache.New(state)
	sender := pre.Account(in.From)
	if sender == nil {
		return finish(vm.FailedResult(vm.ExecutionFailed, vm.MsgSenderNotFound))
	}
	nonce := sender.Nonce
	if err := pre.SubtractTxGas(in.From, in.GasLimit, in.GasPrice); err != nil {
		return finish(vm.FailedResult(vm.OutOfFunds, vm.MsgInsufficientFunds))
	}
	if err := pre.IncreaseNonce(in.From); err != nil {
		return finish(failure(err))
	}

	cache := txcache.New(pre)
	res := body(env, cache, nonce)
	if res.IsSuccess() {
		cache.Commit(pre)
		v.runPending(env, pre, res, 0)
	} else {
		v.logger.Debug("transaction failed",
			zap.Stringer("from", in.From),
			zap.Stringer("to", in.To),
			zap.String("function", in.FuncName),
			zap.Stringer("status", res.Status),
			zap.String("message", res.Message))
	}
	pre.Commit(state)
	return finish(res)
}

// executeCall runs one call against cache. The caller owns cache and drops
// it when the result is a failure. The second result is what the callee sent
// back to its caller.
func (v *VM) executeCall(env *txEnv, cache *txcache.Cache, in *vm.TxInput, f frame) (*vm.TxResult, *vm.BackTransfers) {
	sent := vm.NewBackTransfers()
	if f.depth() >= vm.MaxCallDepth {
		return vm.FailedResult(vm.CallStackOverflow, vm.MsgCallStackOverflow), sent
	}

	res := vm.NewResult()
	if !f.prepaid {
		value := in.Value()
		if err := cache.TransferEGLD(in.From, in.To, value); err != nil {
			return failure(err), sent
		}
		if value.Sign() > 0 && in.From.IsSmartContract() {
			res.Logs = append(res.Logs, vm.Log{
				Address:  in.From,
				Endpoint: TransferValueOnlyEndpoint,
				Topics:   [][]byte{in.From.Bytes(), in.To.Bytes(), value.Bytes()},
				Data:     []byte(in.CallType.String()),
			})
		}
	}

	switch {
	case builtin.IsBuiltIn(in.FuncName):
		return v.executeBuiltIn(env, cache, in, res, f)
	case in.FuncName == UpgradeContractFuncName:
		return v.executeUpgradeTx(env, cache, in, res, f)
	}

	if !f.prepaid && len(in.ESDTValues) > 0 {
		tin, _ := builtin.TransferInput(in.From, in.To, nil, in.ESDTValues, "", nil)
		tin.TxHash = in.TxHash
		out, err := v.builtins.Process(cache, &tin, env.gas)
		if err != nil {
			return vm.ResultFromTrap(vm.AsTrap(err)), sent
		}
		res.Logs = append(res.Logs, out.Logs...)
	}

	to := cache.Account(in.To)
	if in.FuncName == "" || !in.To.IsSmartContract() {
		if !acceptsPayment(to, in) {
			return vm.FailedResult(vm.ExecutionFailed, vm.MsgNonPayable), sent
		}
		return res, sent
	}
	if to == nil || !to.HasCode() {
		return vm.FailedResult(vm.ContractNotFound, vm.MsgContractNotFound), sent
	}
	container, ok := v.registry.Lookup(to.Code)
	if !ok {
		return vm.FailedResult(vm.ContractNotFound, vm.MsgContractNotFound), sent
	}
	return v.runContract(env, cache, in, container, res, f)
}

// acceptsPayment reports whether a plain transfer may land on acc.
func acceptsPayment(acc *world.Account, in *vm.TxInput) bool {
	if acc == nil || !acc.HasCode() {
		return true
	}
	if in.Value().Sign() == 0 && len(in.ESDTValues) == 0 {
		return true
	}
	md := acc.CodeMetadata
	if md.Payable() {
		return true
	}
	return in.From.IsSmartContract() && md.PayableBySC()
}

// executeBuiltIn runs a built-in and the call it forwards to a contract, atomically.
func (v *VM) executeBuiltIn(env *txEnv, cache *txcache.Cache, in *vm.TxInput, res *vm.TxResult, f frame) (*vm.TxResult, *vm.BackTransfers) {
	sent := vm.NewBackTransfers()
	child := txcache.New(cache)
	out, err := v.builtins.Process(child, in, env.gas)
	if err != nil {
		return vm.ResultFromTrap(vm.AsTrap(err)), sent
	}
	res.Values = append(res.Values, out.Values...)
	res.Logs = append(res.Logs, out.Logs...)

	if builtin.IsTransfer(in.FuncName) {
		fwd := &vm.TxInput{
			From:       in.From,
			To:         out.Recipient,
			EGLDValue:  out.EGLD,
			ESDTValues: out.Transfers,
			FuncName:   out.ForwardFunc,
			Args:       out.ForwardArgs,
			GasLimit:   in.GasLimit,
			GasPrice:   in.GasPrice,
			TxHash:     in.TxHash,
			CallType:   in.CallType,
		}
		rcpt := child.Account(out.Recipient)
		switch {
		case out.HasForward() && out.Recipient.IsSmartContract():
			fres, fsent := v.executeCall(env, child, fwd, frame{arena: f.arena, parent: f.parent, prepaid: true})
			if !fres.IsSuccess() {
				return fres, sent
			}
			res.Values = append(res.Values, fres.Values...)
			res.Logs = append(res.Logs, fres.Logs...)
			res.PendingCalls = append(res.PendingCalls, fres.PendingCalls...)
			res.Promises = append(res.Promises, fres.Promises...)
			sent = fsent
		case !acceptsPayment(rcpt, fwd):
			return vm.FailedResult(vm.ExecutionFailed, vm.MsgNonPayable), sent
		}
	}

	child.Commit(cache)
	return res, sent
}

// runContract dispatches in to an endpoint of container.
func (v *VM) runContract(env *txEnv, cache *txcache.Cache, in *vm.TxInput, container *ContractContainer, res *vm.TxResult, f frame) (*vm.TxResult, *vm.BackTransfers) {
	sent := vm.NewBackTransfers()
	ep, ok := container.Lookup(in.FuncName)
	if !ok {
		return vm.FailedResult(vm.FunctionNotFound, vm.MsgFunctionNotFound), sent
	}
	if !ep.Payable && in.CallType != vm.AsyncCallback {
		if in.Value().Sign() > 0 {
			return vm.FailedResult(vm.UserError, vm.MsgEGLDNotAccepted), sent
		}
		if len(in.ESDTValues) > 0 {
			return vm.FailedResult(vm.UserError, vm.MsgESDTNotAccepted), sent
		}
	}

	arena := f.arena
	ctx := newTxContext(v, env, in, cache, arena, f.parent)
	if arena == nil {
		arena = managed.NewArena(ctx)
		ctx.arena = arena
		defer arena.Close()
	} else {
		prev := arena.SwapProvider(ctx)
		defer arena.SwapProvider(prev)
	}

	v.stack.push(ctx)
	trap := v.invoke(container, ep, ctx)
	if trap != nil {
		v.logger.Debug("contract call failed",
			zap.String("contract", container.Name()),
			zap.String("function", in.FuncName),
			zap.Int("depth", ctx.depth),
			zap.Stringer("status", trap.Status),
			zap.String("message", trap.Message))
		return vm.ResultFromTrap(trap), sent
	}

	out := ctx.result
	out.Logs = append(res.Logs, out.Logs...)
	out.Values = append(res.Values, out.Values...)
	if ctx.asyncCall != nil {
		out.PendingCalls = append(out.PendingCalls, *ctx.asyncCall)
	}
	out.Promises = append(out.Promises, ctx.promises...)
	return out, ctx.toCaller
}

// asyncExit unwinds a contract after it registered a legacy async call.
type asyncExit struct{}

// invoke runs the endpoint and turns panics raised by the API into traps.
// The context is popped from the stack on return.
func (v *VM) invoke(container *ContractContainer, ep Endpoint, ctx *TxContext) (trap *vm.Trap) {
	defer v.stack.pop()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch x := r.(type) {
		case *vm.Trap:
			trap = x
			return
		case asyncExit:
			trap = nil
			return
		case error:
			if errors.Is(x, txcache.ErrMutatedWhileShared) {
				trap = vm.NewTrap(vm.ExecutionFailed, x.Error())
				return
			}
		}
		if container.panicsAreErrors {
			trap = vm.NewTrap(vm.ExecutionFailed, fmt.Sprint(r))
			return
		}
		panic(r)
	}()
	ep.Fn(&API{ctx: ctx})
	return nil
}

// deploy creates a contract account and runs its init endpoint.
func (v *VM) deploy(env *txEnv, cache *txcache.Cache, in *vm.TxInput, creatorNonce uint64, code []byte, metadata types.CodeMetadata, f frame) (types.Address, *vm.TxResult, *vm.BackTransfers) {
	sent := vm.NewBackTransfers()
	addr, ok := cache.ConsumeNewAddress(in.From, creatorNonce)
	if !ok {
		addr = world.DeriveContractAddress(in.From, creatorNonce)
	}
	container, ok := v.registry.Lookup(code)
	if !ok {
		return addr, vm.FailedResult(vm.ContractInvalid, MsgContractInvalid), sent
	}

	if existing := cache.Account(addr); existing != nil {
		if existing.HasCode() {
			return addr, vm.FailedResult(vm.AccountCollision, vm.MsgAccountCollision), sent
		}
		err := cache.UpdateAccount(addr, func(acc *world.Account) error {
			setCode(acc, code, metadata)
			acc.Owner = in.From
			return nil
		})
		if err != nil {
			return addr, failure(err), sent
		}
	} else {
		acc := world.NewAccount(addr)
		setCode(acc, code, metadata)
		acc.Owner = in.From
		if err := cache.InsertAccount(acc); err != nil {
			return addr, failure(err), sent
		}
	}

	v.logger.Debug("deploy",
		zap.Stringer("creator", in.From),
		zap.Stringer("address", addr),
		zap.String("contract", container.Name()))

	initIn := *in
	initIn.To = addr
	initIn.FuncName = types.InitFuncName
	if _, ok := container.Lookup(types.InitFuncName); !ok {
		initIn.FuncName = ""
	}
	res, sent := v.executeCall(env, cache, &initIn, f)
	return addr, res, sent
}

// upgrade replaces the code of addr and runs its upgrade endpoint, or init
// when the new code has no upgrade endpoint.
func (v *VM) upgrade(env *txEnv, cache *txcache.Cache, in *vm.TxInput, code []byte, metadata types.CodeMetadata, f frame) (*vm.TxResult, *vm.BackTransfers) {
	sent := vm.NewBackTransfers()
	acc := cache.Account(in.To)
	if acc == nil || !acc.HasCode() {
		return vm.FailedResult(vm.ContractNotFound, vm.MsgContractNotFound), sent
	}
	if acc.Owner != in.From {
		return vm.FailedResult(vm.UserError, vm.MsgNotOwner), sent
	}
	if !acc.CodeMetadata.Upgradeable() {
		return vm.FailedResult(vm.UserError, vm.MsgNotUpgradeable), sent
	}
	container, ok := v.registry.Lookup(code)
	if !ok {
		return vm.FailedResult(vm.ContractInvalid, MsgContractInvalid), sent
	}
	err := cache.UpdateAccount(in.To, func(acc *world.Account) error {
		setCode(acc, code, metadata)
		return nil
	})
	if err != nil {
		return failure(err), sent
	}

	upIn := *in
	upIn.CallType = vm.UpgradeCall
	switch {
	case hasEndpoint(container, types.UpgradeFuncName):
		upIn.FuncName = types.UpgradeFuncName
	case hasEndpoint(container, types.InitFuncName):
		upIn.FuncName = types.InitFuncName
	default:
		upIn.FuncName = ""
	}
	return v.executeCall(env, cache, &upIn, f)
}

// executeUpgradeTx decodes an upgradeContract call. Its value was already moved.
func (v *VM) executeUpgradeTx(env *txEnv, cache *txcache.Cache, in *vm.TxInput, res *vm.TxResult, f frame) (*vm.TxResult, *vm.BackTransfers) {
	if len(in.Args) < 2 {
		return vm.FailedResult(vm.UserError, MsgWrongNumArgs), vm.NewBackTransfers()
	}
	upIn := *in
	upIn.Args = in.Args[2:]
	f.prepaid = true
	out, sent := v.upgrade(env, cache, &upIn, in.Args[0], types.CodeMetadataFromBytes(in.Args[1]), f)
	if out.IsSuccess() {
		out.Logs = append(res.Logs, out.Logs...)
	}
	return out, sent
}

func hasEndpoint(c *ContractContainer, name string) bool {
	_, ok := c.Lookup(name)
	return ok
}

func setCode(acc *world.Account, code []byte, metadata types.CodeMetadata) {
	acc.Code = append([]byte{}, code...)
	acc.CodeMetadata = metadata
}

// failure converts a cache error into a failed result.
func failure(err error) *vm.TxResult {
	switch {
	case errors.Is(err, txcache.ErrInsufficientFunds):
		return vm.FailedResult(vm.OutOfFunds, vm.MsgInsufficientFunds)
	case errors.Is(err, txcache.ErrAccountNotFound):
		return vm.FailedResult(vm.ExecutionFailed, vm.MsgSenderNotFound)
	case errors.Is(err, txcache.ErrAccountCollision):
		return vm.FailedResult(vm.AccountCollision, vm.MsgAccountCollision)
	}
	return vm.ResultFromTrap(vm.AsTrap(err))
}

// cloneInt copies x, treating nil as zero.
func cloneInt(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}
