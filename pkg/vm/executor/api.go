package executor

import (
	"crypto/sha256"
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/codec"
	"github.com/fortiblox/X1-Scenario/pkg/vm"
	"github.com/fortiblox/X1-Scenario/pkg/vm/managed"
	"github.com/fortiblox/X1-Scenario/pkg/world"
)

// API is the contract-facing interface of one running call.
//
// Every method acts on the context the API was handed to. Calling it while a
// nested call is running, or after the call returned, traps with "handle
// stale". Failures are raised as traps and unwind the endpoint.
type API struct {
	ctx *TxContext
}

// context returns the running context, or traps when it is not on top.
func (api *API) context() *TxContext {
	if api.ctx.machine.stack.top() != api.ctx {
		vm.Throw(vm.ExecutionFailed, vm.MsgHandleStale)
	}
	return api.ctx
}

func (api *API) use(cost uint64) *TxContext {
	ctx := api.context()
	ctx.env.gas.MustConsume(cost)
	return ctx
}

// Managed returns the arena of the running call tree.
func (api *API) Managed() *managed.Arena {
	return api.use(api.ctx.machine.schedule.APICost.ManagedOp).arena
}

// Self returns the contract address.
func (api *API) Self() types.Address {
	return api.context().input.To
}

// Caller returns the address that called the contract.
func (api *API) Caller() types.Address {
	return api.context().input.From
}

// Owner returns the owner of the contract.
func (api *API) Owner() types.Address {
	return api.context().Owner()
}

// FuncName returns the running endpoint name.
func (api *API) FuncName() string {
	return api.context().input.FuncName
}

// CallType returns how the call was entered.
func (api *API) CallType() vm.CallType {
	return api.context().input.CallType
}

// TxHash returns the hash of the originating transaction.
func (api *API) TxHash() types.Hash {
	return api.context().input.TxHash
}

// IsSmartContract reports whether addr is a contract address.
func (api *API) IsSmartContract(addr types.Address) bool {
	api.context()
	return addr.IsSmartContract()
}

// NumArgs returns the argument count.
func (api *API) NumArgs() int {
	return len(api.context().input.Args)
}

// CheckNumArgs traps unless exactly n arguments were passed.
func (api *API) CheckNumArgs(n int) {
	if api.NumArgs() != n {
		vm.Throw(vm.UserError, MsgWrongNumArgs)
	}
}

// Arg returns a copy of argument i.
func (api *API) Arg(i int) []byte {
	args := api.context().input.Args
	if i < 0 || i >= len(args) {
		vm.Throw(vm.UserError, MsgWrongNumArgs)
	}
	return append([]byte{}, args[i]...)
}

func argDecodeFailed(err error) {
	vm.Throwf(vm.UserError, "%s: %s", MsgArgumentDecode, err)
}

// ArgUint64 decodes argument i as a top-encoded u64.
func (api *API) ArgUint64(i int) uint64 {
	v, err := codec.TopDecodeUint64(api.Arg(i))
	if err != nil {
		argDecodeFailed(err)
	}
	return v
}

// ArgInt64 decodes argument i as a top-encoded i64.
func (api *API) ArgInt64(i int) int64 {
	v, err := codec.TopDecodeInt64(api.Arg(i))
	if err != nil {
		argDecodeFailed(err)
	}
	return v
}

// ArgBool decodes argument i as a bool.
func (api *API) ArgBool(i int) bool {
	v, err := codec.TopDecodeBool(api.Arg(i))
	if err != nil {
		argDecodeFailed(err)
	}
	return v
}

// ArgBigUint decodes argument i as an unsigned big integer.
func (api *API) ArgBigUint(i int) *big.Int {
	return codec.TopDecodeBigUint(api.Arg(i))
}

// ArgBigInt decodes argument i as a signed big integer.
func (api *API) ArgBigInt(i int) *big.Int {
	return codec.TopDecodeBigInt(api.Arg(i))
}

// ArgAddress decodes argument i as an address.
func (api *API) ArgAddress(i int) types.Address {
	addr, err := types.AddressFromBytes(api.Arg(i))
	if err != nil {
		argDecodeFailed(err)
	}
	return addr
}

// ArgString returns argument i as a string.
func (api *API) ArgString(i int) string {
	return string(api.Arg(i))
}

// ArgBuffer loads argument i into a managed buffer.
func (api *API) ArgBuffer(i int) managed.Handle {
	return api.Managed().NewBufferFromBytes(api.Arg(i))
}

// ArgBigUintHandle loads argument i into a managed big integer.
func (api *API) ArgBigUintHandle(i int) managed.Handle {
	return api.Managed().NewBigIntFrom(api.ArgBigUint(i))
}

// Finish appends a raw result value.
func (api *API) Finish(b []byte) {
	ctx := api.use(api.ctx.machine.schedule.APICost.Base)
	ctx.result.Values = append(ctx.result.Values, append([]byte{}, b...))
}

// FinishValue top-encodes v as a result. Managed handles are copied straight
// from the arena.
func (api *API) FinishValue(v interface{}) {
	ctx := api.use(api.ctx.machine.schedule.APICost.Base)
	out := &resultOutput{arena: ctx.arena}
	if err := codec.TopEncodeTo(v, out); err != nil {
		vm.Throw(vm.ExecutionFailed, err.Error())
	}
	ctx.result.Values = append(ctx.result.Values, append([]byte{}, out.buf...))
}

// FinishUint64 appends a top-encoded u64.
func (api *API) FinishUint64(v uint64) {
	api.Finish(codec.TopEncodeUint64(v))
}

// FinishBool appends a top-encoded bool.
func (api *API) FinishBool(v bool) {
	api.Finish(codec.TopEncodeBool(v))
}

// FinishBigUint appends an unsigned big integer.
func (api *API) FinishBigUint(x *big.Int) {
	b, err := codec.TopEncodeBigUint(x)
	if err != nil {
		vm.Throw(vm.ExecutionFailed, err.Error())
	}
	api.Finish(b)
}

// FinishBigInt appends a signed big integer.
func (api *API) FinishBigInt(x *big.Int) {
	api.Finish(codec.TopEncodeBigInt(x))
}

// FinishAddress appends an address.
func (api *API) FinishAddress(addr types.Address) {
	api.Finish(addr.Bytes())
}

// FinishString appends a string.
func (api *API) FinishString(s string) {
	api.Finish([]byte(s))
}

// FinishBuffer appends the content of a managed buffer.
func (api *API) FinishBuffer(h managed.Handle) {
	api.FinishValue(managed.Buffer{H: h})
}

// FinishBigUintHandle appends a managed big integer as unsigned.
func (api *API) FinishBigUintHandle(h managed.Handle) {
	api.FinishValue(managed.BigUint{H: h})
}

// resultOutput collects one top-encoded result value.
type resultOutput struct {
	arena *managed.Arena
	buf   []byte
}

var _ codec.SpecializedOutput = (*resultOutput)(nil)

func (o *resultOutput) Write(p []byte) {
	o.buf = append(o.buf, p...)
}

func (o *resultOutput) TryPushSpecialized(v interface{}) bool {
	switch x := v.(type) {
	case managed.Buffer:
		o.buf = append(o.buf, o.arena.Buffer(x.H)...)
	case managed.BigUint:
		o.buf = append(o.buf, o.arena.BigIntUnsignedBytes(x.H)...)
	case managed.BigInt:
		o.buf = append(o.buf, o.arena.BigIntSignedBytes(x.H)...)
	default:
		return false
	}
	return true
}

// SignalError fails the call with a user error.
func (api *API) SignalError(msg string) {
	api.context()
	vm.Throw(vm.UserError, msg)
}

// SignalErrorBuffer fails the call with the content of a managed buffer.
func (api *API) SignalErrorBuffer(h managed.Handle) {
	api.SignalError(string(api.Managed().Buffer(h)))
}

// Require fails the call with msg unless cond holds.
func (api *API) Require(cond bool, msg string) {
	if !cond {
		api.SignalError(msg)
	}
}

// StorageLoad reads a key of the contract storage.
func (api *API) StorageLoad(key []byte) []byte {
	return api.StorageLoadFrom(api.Self(), key)
}

// StorageLoadFrom reads a key of another account's storage.
func (api *API) StorageLoadFrom(addr types.Address, key []byte) []byte {
	ctx := api.use(api.ctx.machine.schedule.APICost.StorageLoad)
	acc := ctx.account(addr)
	if acc == nil {
		return []byte{}
	}
	return append([]byte{}, acc.StorageValue(key)...)
}

// StorageIsEmpty reports whether key holds nothing.
func (api *API) StorageIsEmpty(key []byte) bool {
	return len(api.StorageLoad(key)) == 0
}

// StorageStore writes a key of the contract storage. An empty value clears it.
// Keys under the protocol prefix are rejected.
func (api *API) StorageStore(key, value []byte) {
	s := api.ctx.machine.schedule
	ctx := api.context()
	if types.IsProtectedKey(key) {
		vm.Throw(vm.UserError, vm.MsgReservedKey)
	}
	if ctx.input.Readonly {
		vm.Throw(vm.ExecutionFailed, MsgReadonlyWrite)
	}

	self := ctx.input.To
	var prev []byte
	if acc := ctx.account(self); acc != nil {
		prev = acc.StorageValue(key)
	}
	if len(value) > len(prev) {
		ctx.env.gas.MustConsume(s.StorageStoreCost(len(value) - len(prev)))
	} else {
		ctx.env.gas.MustConsume(s.APICost.StorageStore)
		if len(value) < len(prev) {
			ctx.env.gas.AddRefund(s.StorageRefund(len(prev) - len(value)))
		}
	}

	err := ctx.cache.Mut().UpdateAccount(self, func(acc *world.Account) error {
		acc.SetStorage(key, value)
		return nil
	})
	if err != nil {
		vm.Throw(vm.ExecutionFailed, err.Error())
	}
}

// StorageClear removes a key.
func (api *API) StorageClear(key []byte) {
	api.StorageStore(key, nil)
}

func storageDecodeFailed(key []byte, err error) {
	vm.Throwf(vm.UserError, "%s (key: %s): %s", MsgStorageDecode, key, err)
}

// StorageLoadUint64 reads a top-encoded u64.
func (api *API) StorageLoadUint64(key []byte) uint64 {
	v, err := codec.TopDecodeUint64(api.StorageLoad(key))
	if err != nil {
		storageDecodeFailed(key, err)
	}
	return v
}

// StorageStoreUint64 writes a top-encoded u64.
func (api *API) StorageStoreUint64(key []byte, v uint64) {
	api.StorageStore(key, codec.TopEncodeUint64(v))
}

// StorageLoadBigUint reads an unsigned big integer.
func (api *API) StorageLoadBigUint(key []byte) *big.Int {
	return codec.TopDecodeBigUint(api.StorageLoad(key))
}

// StorageStoreBigUint writes an unsigned big integer.
func (api *API) StorageStoreBigUint(key []byte, x *big.Int) {
	b, err := codec.TopEncodeBigUint(x)
	if err != nil {
		vm.Throw(vm.ExecutionFailed, err.Error())
	}
	api.StorageStore(key, b)
}

// StorageLoadAddress reads an address. An empty key reads as the zero address.
func (api *API) StorageLoadAddress(key []byte) types.Address {
	b := api.StorageLoad(key)
	if len(b) == 0 {
		return types.Address{}
	}
	addr, err := types.AddressFromBytes(b)
	if err != nil {
		storageDecodeFailed(key, err)
	}
	return addr
}

// StorageStoreAddress writes an address.
func (api *API) StorageStoreAddress(key []byte, addr types.Address) {
	api.StorageStore(key, addr.Bytes())
}

// StorageLoadBuffer reads the key held in a managed buffer into a new buffer.
func (api *API) StorageLoadBuffer(key managed.Handle) managed.Handle {
	a := api.Managed()
	return a.NewBufferFromBytes(api.StorageLoad(a.Buffer(key)))
}

// StorageStoreBuffer writes a managed buffer under a managed key.
func (api *API) StorageStoreBuffer(key, value managed.Handle) {
	a := api.Managed()
	api.StorageStore(a.Buffer(key), a.Buffer(value))
}

// CallValue returns the native value of the call. In a callback it is the
// native part of the callback payments.
func (api *API) CallValue() *big.Int {
	return cloneInt(api.context().CallValue())
}

// ESDTTransfers returns the token payments of the call, or the token part of
// the callback payments in a callback.
func (api *API) ESDTTransfers() []vm.TokenTransfer {
	payments := api.context().TokenPayments()
	out := make([]vm.TokenTransfer, len(payments))
	for i, p := range payments {
		out[i] = vm.TokenTransfer{TokenID: p.TokenID, Nonce: p.Nonce, Value: cloneInt(p.Value)}
	}
	return out
}

// SingleESDT returns the only token payment, or traps.
func (api *API) SingleESDT() vm.TokenTransfer {
	payments := api.ESDTTransfers()
	if len(payments) != 1 {
		vm.Throw(vm.UserError, MsgBadESDTCount)
	}
	return payments[0]
}

// CallbackClosure returns the closure registered with the async call or promise.
func (api *API) CallbackClosure() []byte {
	return append([]byte{}, api.context().input.CallbackClosure...)
}

// Balance returns the native balance of addr.
func (api *API) Balance(addr types.Address) *big.Int {
	acc := api.use(api.ctx.machine.schedule.APICost.Base).account(addr)
	if acc == nil {
		return new(big.Int)
	}
	return cloneInt(acc.Balance)
}

// SelfBalance returns the native balance of the contract.
func (api *API) SelfBalance() *big.Int {
	return api.Balance(api.Self())
}

// ESDTBalance returns the token balance of addr.
func (api *API) ESDTBalance(addr types.Address, token string, nonce uint64) *big.Int {
	acc := api.use(api.ctx.machine.schedule.APICost.Base).account(addr)
	if acc == nil {
		return new(big.Int)
	}
	return cloneInt(acc.TokenBalance(token, nonce))
}

// ESDTMetadata returns a copy of the metadata of an NFT instance held by addr.
func (api *API) ESDTMetadata(addr types.Address, token string, nonce uint64) (world.InstanceMetadata, bool) {
	acc := api.use(api.ctx.machine.schedule.APICost.Base).account(addr)
	if acc == nil {
		return world.InstanceMetadata{}, false
	}
	data := acc.TokenData(token)
	if data == nil {
		return world.InstanceMetadata{}, false
	}
	inst := data.Instance(nonce)
	if inst == nil {
		return world.InstanceMetadata{}, false
	}
	return inst.Metadata.Clone(), true
}

// ESDTRoles returns the roles the contract holds for token.
func (api *API) ESDTRoles(token string) world.Roles {
	ctx := api.use(api.ctx.machine.schedule.APICost.Base)
	acc := ctx.account(ctx.input.To)
	if acc == nil {
		return 0
	}
	data := acc.TokenData(token)
	if data == nil {
		return 0
	}
	return data.Roles
}

// CurrentBlock returns the block the transaction executes in.
func (api *API) CurrentBlock() world.BlockInfo {
	return api.context().env.state.CurrentBlock
}

// PreviousBlock returns the block before the current one.
func (api *API) PreviousBlock() world.BlockInfo {
	return api.context().env.state.PreviousBlock
}

// BlockTimestamp returns the current block timestamp.
func (api *API) BlockTimestamp() uint64 {
	return api.CurrentBlock().Timestamp
}

// BlockNonce returns the current block nonce.
func (api *API) BlockNonce() uint64 {
	return api.CurrentBlock().Nonce
}

// BlockRandomSeed returns the current block random seed.
func (api *API) BlockRandomSeed() []byte {
	return api.context().RandomSeed()
}

// EmitEvent appends a log of the contract. The identifier is the first topic.
func (api *API) EmitEvent(identifier string, topics [][]byte, data []byte) {
	n := len(identifier) + len(data)
	for _, t := range topics {
		n += len(t)
	}
	ctx := api.use(api.ctx.machine.schedule.LogCost(n))

	all := make([][]byte, 0, len(topics)+1)
	all = append(all, []byte(identifier))
	for _, t := range topics {
		all = append(all, append([]byte{}, t...))
	}
	ctx.result.Logs = append(ctx.result.Logs, vm.Log{
		Address:  ctx.input.To,
		Endpoint: ctx.input.FuncName,
		Topics:   all,
		Data:     append([]byte{}, data...),
	})
}

// Keccak256 hashes data.
func (api *API) Keccak256(data []byte) []byte {
	api.use(api.ctx.machine.schedule.APICost.Keccak256)
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// Sha256 hashes data.
func (api *API) Sha256(data []byte) []byte {
	api.use(api.ctx.machine.schedule.APICost.Keccak256)
	sum := sha256.Sum256(data)
	return sum[:]
}

// GasLeft returns the remaining gas of the transaction.
func (api *API) GasLeft() uint64 {
	return api.context().env.gas.Remaining()
}
