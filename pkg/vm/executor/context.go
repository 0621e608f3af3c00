package executor

import (
	"math/big"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/txcache"
	"github.com/fortiblox/X1-Scenario/pkg/vm"
	"github.com/fortiblox/X1-Scenario/pkg/vm/managed"
	"github.com/fortiblox/X1-Scenario/pkg/world"
)

// txEnv is shared by every context of one transaction.
type txEnv struct {
	state *world.State
	gas   *vm.GasMeter
}

// TxContext is the state of one running contract call. Contexts form a stack
// on the VM; only the top context may touch the arena.
type TxContext struct {
	machine *VM
	env     *txEnv
	input   *vm.TxInput
	cache   *txcache.Shareable[*txcache.Cache]
	arena   *managed.Arena
	result  *vm.TxResult
	parent  *TxContext
	depth   int

	// backTransfers collects what synchronous callees sent to this contract.
	backTransfers *vm.BackTransfers

	// toCaller collects what this contract sent to its own caller.
	toCaller *vm.BackTransfers

	asyncCall *vm.PendingAsyncCall
	promises  []vm.Promise
}

var _ managed.ConstProvider = (*TxContext)(nil)

func newTxContext(v *VM, env *txEnv, in *vm.TxInput, cache *txcache.Cache, arena *managed.Arena, parent *TxContext) *TxContext {
	ctx := &TxContext{
		machine:       v,
		env:           env,
		input:         in,
		cache:         txcache.NewShareable(cache),
		arena:         arena,
		result:        vm.NewResult(),
		parent:        parent,
		backTransfers: vm.NewBackTransfers(),
		toCaller:      vm.NewBackTransfers(),
	}
	if parent != nil {
		ctx.depth = parent.depth + 1
	}
	return ctx
}

// Input returns the call input.
func (ctx *TxContext) Input() *vm.TxInput {
	return ctx.input
}

// Depth returns the nesting depth; the root call is at zero.
func (ctx *TxContext) Depth() int {
	return ctx.depth
}

// Caller implements managed.ConstProvider.
func (ctx *TxContext) Caller() types.Address {
	return ctx.input.From
}

// Self implements managed.ConstProvider.
func (ctx *TxContext) Self() types.Address {
	return ctx.input.To
}

// Owner implements managed.ConstProvider.
func (ctx *TxContext) Owner() types.Address {
	acc := ctx.cache.Get().Account(ctx.input.To)
	if acc == nil {
		return types.Address{}
	}
	return acc.Owner
}

// CallValue implements managed.ConstProvider. Callbacks see the callback payments.
func (ctx *TxContext) CallValue() *big.Int {
	if ctx.input.CallType == vm.AsyncCallback {
		if v := ctx.input.CallbackPayments.EGLD; v != nil {
			return v
		}
		return new(big.Int)
	}
	return ctx.input.Value()
}

// TokenPayments returns the ESDT payments visible to the contract.
func (ctx *TxContext) TokenPayments() []vm.TokenTransfer {
	if ctx.input.CallType == vm.AsyncCallback {
		return ctx.input.CallbackPayments.ESDT
	}
	return ctx.input.ESDTValues
}

// CallbackClosure implements managed.ConstProvider.
func (ctx *TxContext) CallbackClosure() []byte {
	return ctx.input.CallbackClosure
}

// TxHash implements managed.ConstProvider.
func (ctx *TxContext) TxHash() types.Hash {
	return ctx.input.TxHash
}

// RandomSeed implements managed.ConstProvider.
func (ctx *TxContext) RandomSeed() []byte {
	seed := ctx.env.state.CurrentBlock.RandomSeed
	return seed[:]
}

// account returns the current view of addr.
func (ctx *TxContext) account(addr types.Address) *world.Account {
	return ctx.cache.Get().Account(addr)
}

// recordSent tracks a payment made by this contract.
func (ctx *TxContext) recordSent(to types.Address, egld *big.Int, payments []vm.TokenTransfer) {
	if to != ctx.input.From {
		return
	}
	if egld != nil && egld.Sign() > 0 {
		ctx.toCaller.AddEGLD(egld)
	}
	for _, p := range payments {
		ctx.toCaller.AddESDT(p)
	}
}

// stack is the VM call stack.
type stack struct {
	frames []*TxContext
}

func (s *stack) push(ctx *TxContext) {
	s.frames = append(s.frames, ctx)
}

func (s *stack) pop() {
	s.frames[len(s.frames)-1] = nil
	s.frames = s.frames[:len(s.frames)-1]
}

func (s *stack) top() *TxContext {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

func (s *stack) len() int {
	return len(s.frames)
}
