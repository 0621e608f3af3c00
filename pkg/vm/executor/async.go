package executor

import (
	"go.uber.org/zap"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/txcache"
	"github.com/fortiblox/X1-Scenario/pkg/vm"
	"github.com/fortiblox/X1-Scenario/pkg/vm/builtin"
)

// runPending executes the async calls and promises registered by a
// successful call, each leg on its own cache committed into target.
// Callback results are merged into res.
func (v *VM) runPending(env *txEnv, target *txcache.Cache, res *vm.TxResult, depth int) {
	calls, promises := res.PendingCalls, res.Promises
	res.PendingCalls, res.Promises = nil, nil

	for _, call := range calls {
		callee := v.runLeg(env, target, asyncInput(call, vm.AsyncCall), depth)
		if callee.result.IsSuccess() {
			res.Logs = append(res.Logs, callee.result.Logs...)
		}
		if !v.hasCallback(target, call.From, types.CallbackFuncName) {
			continue
		}
		cb := callbackInput(call, callee, types.CallbackFuncName)
		res.Merge(v.runLeg(env, target, cb, depth).result)
	}

	for _, p := range promises {
		callee := v.runLeg(env, target, asyncInput(p.Call, vm.AsyncCall), depth)
		name := p.ErrorCallback
		if callee.result.IsSuccess() {
			res.Logs = append(res.Logs, callee.result.Logs...)
			name = p.SuccessCallback
		}
		if name == "" || !v.hasCallback(target, p.Call.From, name) {
			continue
		}
		call := p.Call
		call.CallbackClosure = p.CallbackClosure
		cb := callbackInput(call, callee, name)
		res.Merge(v.runLeg(env, target, cb, depth).result)
	}
}

// leg is the outcome of one async call or callback.
type leg struct {
	result *vm.TxResult
	sent   *vm.BackTransfers
}

// runLeg executes in as its own call tree with a fresh arena. Async calls
// registered inside it complete before it returns.
func (v *VM) runLeg(env *txEnv, target *txcache.Cache, in *vm.TxInput, depth int) leg {
	if depth >= vm.MaxCallDepth {
		return leg{result: vm.FailedResult(vm.CallStackOverflow, vm.MsgCallStackOverflow), sent: vm.NewBackTransfers()}
	}
	v.logger.Debug("async leg",
		zap.Stringer("type", in.CallType),
		zap.Stringer("from", in.From),
		zap.Stringer("to", in.To),
		zap.String("function", in.FuncName))

	cache := txcache.New(target)
	res, sent := v.executeCall(env, cache, in, frame{})
	if res.IsSuccess() {
		cache.Commit(target)
		v.runPending(env, target, res, depth+1)
	}
	return leg{result: res, sent: sent}
}

// asyncInput builds the callee input of an async call. Token payments travel
// through the transfer built-ins with the call forwarded.
func asyncInput(call vm.PendingAsyncCall, ct vm.CallType) *vm.TxInput {
	if tin, ok := builtin.TransferInput(call.From, call.To, call.EGLDValue, call.ESDTValues, call.FuncName, call.Args); ok {
		tin.TxHash = call.TxHash
		tin.GasLimit = call.GasLimit
		tin.CallType = ct
		return &tin
	}
	return &vm.TxInput{
		From:      call.From,
		To:        call.To,
		EGLDValue: cloneInt(call.EGLDValue),
		FuncName:  call.FuncName,
		Args:      call.Args,
		GasLimit:  call.GasLimit,
		TxHash:    call.TxHash,
		CallType:  ct,
	}
}

// hasCallback reports whether the contract at addr exports name.
func (v *VM) hasCallback(target *txcache.Cache, addr types.Address, name string) bool {
	acc := target.Account(addr)
	if acc == nil || !acc.HasCode() {
		return false
	}
	c, ok := v.registry.Lookup(acc.Code)
	return ok && hasEndpoint(c, name)
}

// callbackInput builds the callback of a finished callee. The first argument
// is the status byte, followed by the callee results or its error message.
// A failed callee never moved the attached payments, so the callback sees
// them returned.
func callbackInput(call vm.PendingAsyncCall, callee leg, name string) *vm.TxInput {
	args := [][]byte{{byte(callee.result.Status)}}
	payments := vm.CallbackPayments{EGLD: cloneInt(nil)}
	if callee.result.IsSuccess() {
		args = append(args, callee.result.Values...)
		payments.EGLD = cloneInt(callee.sent.EGLD)
		payments.ESDT = callee.sent.ESDT
	} else {
		args = append(args, []byte(callee.result.Message))
		payments.EGLD = cloneInt(call.EGLDValue)
		payments.ESDT = call.ESDTValues
	}
	return &vm.TxInput{
		From:             call.To,
		To:               call.From,
		EGLDValue:        cloneInt(nil),
		FuncName:         name,
		Args:             args,
		TxHash:           call.TxHash,
		CallType:         vm.AsyncCallback,
		CallbackPayments: payments,
		CallbackClosure:  call.CallbackClosure,
	}
}
