package executor

import (
	"math/big"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/txcache"
	"github.com/fortiblox/X1-Scenario/pkg/vm"
	"github.com/fortiblox/X1-Scenario/pkg/world"
)

// Call is a contract-initiated call.
type Call struct {
	To       types.Address
	EGLD     *big.Int
	Payments []vm.TokenTransfer
	Function string
	Args     [][]byte
}

// PromiseCall is a call whose outcome is delivered to one of two callbacks
// once the registering call has finished.
type PromiseCall struct {
	Call

	GasLimit        uint64
	SuccessCallback string
	ErrorCallback   string
	Closure         []byte
	CallbackGas     uint64
}

func copyPayments(payments []vm.TokenTransfer) []vm.TokenTransfer {
	if len(payments) == 0 {
		return nil
	}
	out := make([]vm.TokenTransfer, len(payments))
	for i, p := range payments {
		out[i] = vm.TokenTransfer{TokenID: p.TokenID, Nonce: p.Nonce, Value: cloneInt(p.Value)}
	}
	return out
}

func copyArgs(args [][]byte) [][]byte {
	out := make([][]byte, len(args))
	for i, a := range args {
		out[i] = append([]byte{}, a...)
	}
	return out
}

// callInput builds the nested input for c.
func (ctx *TxContext) callInput(c Call, ct vm.CallType) *vm.TxInput {
	return &vm.TxInput{
		From:       ctx.input.To,
		To:         c.To,
		EGLDValue:  cloneInt(c.EGLD),
		ESDTValues: copyPayments(c.Payments),
		FuncName:   c.Function,
		Args:       copyArgs(c.Args),
		GasLimit:   ctx.env.gas.Remaining(),
		TxHash:     ctx.input.TxHash,
		CallType:   ct,
		Readonly:   ctx.input.Readonly,
	}
}

// nested runs fn on a child cache over a shared view of the context cache,
// and applies the child's writes when fn succeeds and is not readonly.
func (ctx *TxContext) nested(readonly bool, fn func(child *txcache.Cache) *vm.TxResult) *vm.TxResult {
	var (
		res     *vm.TxResult
		updates *world.Updates
	)
	ctx.cache.WithShared(func(c *txcache.Cache) {
		child := txcache.New(c)
		res = fn(child)
		if res.IsSuccess() && !readonly {
			updates = child.Updates()
		}
	})
	if updates != nil {
		ctx.cache.Mut().Apply(updates)
	}
	return res
}

// absorb folds a successful child result into the context.
func (ctx *TxContext) absorb(res *vm.TxResult) {
	ctx.result.Merge(res)
	ctx.result.PendingCalls = append(ctx.result.PendingCalls, res.PendingCalls...)
	ctx.result.Promises = append(ctx.result.Promises, res.Promises...)
}

func (api *API) call(c Call, ct vm.CallType, readonly bool) *vm.TxResult {
	ctx := api.use(api.ctx.machine.schedule.APICost.ExecuteOnDestContext)
	in := ctx.callInput(c, ct)
	if readonly {
		in.Readonly = true
		in.EGLDValue = new(big.Int)
		in.ESDTValues = nil
	}

	var sent *vm.BackTransfers
	res := ctx.nested(in.Readonly, func(child *txcache.Cache) *vm.TxResult {
		var r *vm.TxResult
		r, sent = ctx.machine.executeCall(ctx.env, child, in, frame{arena: ctx.arena, parent: ctx})
		return r
	})
	if !res.IsSuccess() {
		return res
	}
	ctx.recordSent(in.To, in.EGLDValue, in.ESDTValues)
	ctx.backTransfers.Merge(sent)
	ctx.absorb(res)
	return res
}

// ExecuteOnDestContext runs a synchronous call. A failure rolls back the
// callee's changes and is returned; it does not fail the caller. On success
// the callee's results and logs are appended to the caller's.
func (api *API) ExecuteOnDestContext(c Call) *vm.TxResult {
	return api.call(c, vm.SyncCall, false)
}

// SyncCall runs a synchronous call and returns its results. A failure
// fails the caller with the callee's status and message.
func (api *API) SyncCall(c Call) [][]byte {
	res := api.ExecuteOnDestContext(c)
	if !res.IsSuccess() {
		vm.Throw(res.Status, res.Message)
	}
	return res.Values
}

// ExecuteReadOnly runs a synchronous call whose writes trap.
func (api *API) ExecuteReadOnly(c Call) *vm.TxResult {
	return api.call(c, vm.SyncCall, true)
}

// TransferExecute moves payments and runs c.Function at the destination.
// A failure fails the caller.
func (api *API) TransferExecute(c Call) {
	res := api.call(c, vm.TransferExecute, false)
	if !res.IsSuccess() {
		vm.Throw(res.Status, res.Message)
	}
}

// DirectEGLD sends native value.
func (api *API) DirectEGLD(to types.Address, amount *big.Int) {
	api.TransferExecute(Call{To: to, EGLD: amount})
}

// DirectESDT sends one token instance.
func (api *API) DirectESDT(to types.Address, token string, nonce uint64, amount *big.Int) {
	api.TransferExecute(Call{To: to, Payments: []vm.TokenTransfer{{TokenID: token, Nonce: nonce, Value: amount}}})
}

// DirectMulti sends native value and tokens in one transfer.
func (api *API) DirectMulti(to types.Address, egld *big.Int, payments []vm.TokenTransfer) {
	api.TransferExecute(Call{To: to, EGLD: egld, Payments: payments})
}

// BackTransfers returns what synchronous callees sent to the contract since
// the last reset.
func (api *API) BackTransfers() (*big.Int, []vm.TokenTransfer) {
	bt := api.context().backTransfers.Clone()
	return bt.EGLD, bt.ESDT
}

// BackTransfersReset clears the back transfers record.
func (api *API) BackTransfersReset() {
	api.context().backTransfers = vm.NewBackTransfers()
}

// AsyncCall registers the legacy async call and ends the endpoint. The call
// runs after the current call tree finished successfully; its outcome is
// delivered to the callBack endpoint together with closure.
func (api *API) AsyncCall(c Call, closure []byte) {
	ctx := api.use(api.ctx.machine.schedule.APICost.AsyncCall)
	if ctx.asyncCall != nil {
		vm.Throw(vm.ExecutionFailed, MsgAsyncAlreadySet)
	}
	in := ctx.callInput(c, vm.AsyncCall)
	ctx.asyncCall = &vm.PendingAsyncCall{
		From:            in.From,
		To:              in.To,
		EGLDValue:       in.EGLDValue,
		ESDTValues:      in.ESDTValues,
		FuncName:        in.FuncName,
		Args:            in.Args,
		TxHash:          in.TxHash,
		GasLimit:        in.GasLimit,
		CallbackClosure: append([]byte{}, closure...),
	}
	panic(asyncExit{})
}

// RegisterPromise schedules p. Promises run in registration order after the
// current call tree finished successfully.
func (api *API) RegisterPromise(p PromiseCall) {
	ctx := api.use(api.ctx.machine.schedule.APICost.AsyncCall)
	in := ctx.callInput(p.Call, vm.AsyncCall)
	gas := p.GasLimit
	if gas == 0 {
		gas = in.GasLimit
	}
	ctx.promises = append(ctx.promises, vm.Promise{
		Call: vm.PendingAsyncCall{
			From:       in.From,
			To:         in.To,
			EGLDValue:  in.EGLDValue,
			ESDTValues: in.ESDTValues,
			FuncName:   in.FuncName,
			Args:       in.Args,
			TxHash:     in.TxHash,
			GasLimit:   gas,
		},
		SuccessCallback: p.SuccessCallback,
		ErrorCallback:   p.ErrorCallback,
		CallbackClosure: append([]byte{}, p.Closure...),
		CallbackGas:     p.CallbackGas,
	})
}

// DeployContract deploys code from the contract and runs its init. The new
// address is derived from the contract address and nonce. A failure fails
// the caller.
func (api *API) DeployContract(code []byte, metadata types.CodeMetadata, egld *big.Int, args [][]byte) (types.Address, [][]byte) {
	ctx := api.use(api.ctx.machine.schedule.APICost.CreateContract)
	if ctx.input.Readonly {
		vm.Throw(vm.ExecutionFailed, MsgReadonlyWrite)
	}
	self := ctx.input.To
	acc := ctx.account(self)
	if acc == nil {
		vm.Throw(vm.ExecutionFailed, vm.MsgSenderNotFound)
	}
	nonce := acc.Nonce
	if err := ctx.cache.Mut().IncreaseNonce(self); err != nil {
		vm.Throw(vm.ExecutionFailed, err.Error())
	}

	in := ctx.callInput(Call{EGLD: egld, Args: args}, vm.SyncCall)
	var (
		addr types.Address
		sent *vm.BackTransfers
	)
	res := ctx.nested(in.Readonly, func(child *txcache.Cache) *vm.TxResult {
		var r *vm.TxResult
		addr, r, sent = ctx.machine.deploy(ctx.env, child, in, nonce, code, metadata, frame{arena: ctx.arena, parent: ctx})
		return r
	})
	if !res.IsSuccess() {
		vm.Throw(res.Status, res.Message)
	}
	ctx.backTransfers.Merge(sent)
	ctx.absorb(res)
	return addr, res.Values
}

// DeployFromSource deploys the code of an existing contract.
func (api *API) DeployFromSource(source types.Address, metadata types.CodeMetadata, egld *big.Int, args [][]byte) (types.Address, [][]byte) {
	return api.DeployContract(api.codeOf(source), metadata, egld, args)
}

// UpgradeContract replaces the code of a contract owned by the caller and
// runs its upgrade endpoint. A failure fails the caller.
func (api *API) UpgradeContract(addr types.Address, code []byte, metadata types.CodeMetadata, egld *big.Int, args [][]byte) [][]byte {
	ctx := api.use(api.ctx.machine.schedule.APICost.CreateContract)
	if ctx.input.Readonly {
		vm.Throw(vm.ExecutionFailed, MsgReadonlyWrite)
	}
	in := ctx.callInput(Call{To: addr, EGLD: egld, Args: args}, vm.UpgradeCall)
	var sent *vm.BackTransfers
	res := ctx.nested(in.Readonly, func(child *txcache.Cache) *vm.TxResult {
		var r *vm.TxResult
		r, sent = ctx.machine.upgrade(ctx.env, child, in, code, metadata, frame{arena: ctx.arena, parent: ctx})
		return r
	})
	if !res.IsSuccess() {
		vm.Throw(res.Status, res.Message)
	}
	ctx.backTransfers.Merge(sent)
	ctx.absorb(res)
	return res.Values
}

// UpgradeFromSource upgrades addr to the code of an existing contract.
func (api *API) UpgradeFromSource(addr, source types.Address, metadata types.CodeMetadata, egld *big.Int, args [][]byte) [][]byte {
	return api.UpgradeContract(addr, api.codeOf(source), metadata, egld, args)
}

func (api *API) codeOf(addr types.Address) []byte {
	acc := api.context().account(addr)
	if acc == nil || !acc.HasCode() {
		vm.Throw(vm.ExecutionFailed, MsgInvalidCodeSource)
	}
	return acc.Code
}
