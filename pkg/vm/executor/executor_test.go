package executor

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/gasschedule"
	"github.com/fortiblox/X1-Scenario/pkg/vm"
	"github.com/fortiblox/X1-Scenario/pkg/vm/managed"
	"github.com/fortiblox/X1-Scenario/pkg/world"
)

const (
	startBalance = 1_000_000
	gasLimit     = 100_000
	token        = "TOK-000001"
)

var (
	alice         = addr(0x01)
	bob           = addr(0x02)
	counterAddr   = scAddr(0x10)
	forwarderAddr = scAddr(0x11)

	counterCode   = []byte("file:counter.wasm")
	counter2Code  = []byte("file:counter-v2.wasm")
	forwarderCode = []byte("file:forwarder.wasm")

	countKey = []byte("count")
	trailKey = []byte("trail")
)

func addr(b byte) types.Address {
	var a types.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func scAddr(b byte) types.Address {
	var a types.Address
	a[8] = 0x05
	a[31] = b
	return a
}

func counterContract() *ContractContainer {
	return NewContract("counter",
		Endpoint{Name: "init", Fn: func(api *API) {
			if api.NumArgs() > 0 {
				api.StorageStoreBigUint(countKey, api.ArgBigUint(0))
			}
		}},
		Endpoint{Name: "increment", Fn: func(api *API) {
			n := api.StorageLoadBigUint(countKey)
			n.Add(n, big.NewInt(1))
			api.StorageStoreBigUint(countKey, n)
			api.EmitEvent("incremented", [][]byte{api.Caller().Bytes()}, n.Bytes())
			api.FinishBigUint(n)
		}},
		Endpoint{Name: "get", Fn: func(api *API) {
			api.FinishBigUint(api.StorageLoadBigUint(countKey))
		}},
		Endpoint{Name: "fail", Payable: true, Fn: func(api *API) {
			api.StorageStoreUint64([]byte("touched"), 1)
			api.SignalError("boom")
		}},
		Endpoint{Name: "writeReserved", Fn: func(api *API) {
			api.StorageStore([]byte("ELRONDkey"), []byte{1})
		}},
		Endpoint{Name: "deposit", Payable: true, Fn: func(api *API) {
			api.FinishBigUint(api.CallValue())
			for _, p := range api.ESDTTransfers() {
				api.FinishString(p.TokenID)
				api.FinishBigUint(p.Value)
			}
		}},
		Endpoint{Name: "sendBack", Payable: true, Fn: func(api *API) {
			half := new(big.Int).Div(api.CallValue(), big.NewInt(2))
			api.DirectEGLD(api.Caller(), half)
		}},
		Endpoint{Name: "recurse", Fn: func(api *API) {
			api.SyncCall(Call{To: api.Self(), Function: "recurse"})
		}},
	)
}

func counter2Contract() *ContractContainer {
	return NewContract("counter-v2",
		Endpoint{Name: "upgrade", Fn: func(api *API) {
			api.StorageStoreBigUint(countKey, api.ArgBigUint(0))
		}},
		Endpoint{Name: "get", Fn: func(api *API) {
			n := api.StorageLoadBigUint(countKey)
			api.FinishBigUint(n.Mul(n, big.NewInt(10)))
		}},
	)
}

func appendTrail(api *API, prefix string) {
	trail := api.StorageLoad(trailKey)
	trail = append(trail, prefix...)
	trail = append(trail, api.CallbackClosure()...)
	trail = append(trail, ';')
	api.StorageStore(trailKey, trail)
}

func forwarderContract() *ContractContainer {
	return NewContract("forwarder",
		Endpoint{Name: "callGet", Fn: func(api *API) {
			values := api.SyncCall(Call{To: api.ArgAddress(0), Function: "get"})
			api.Finish(values[0])
		}},
		Endpoint{Name: "callFail", Fn: func(api *API) {
			res := api.ExecuteOnDestContext(Call{To: api.ArgAddress(0), Function: "fail"})
			api.FinishUint64(uint64(res.Status))
			api.FinishString(res.Message)
		}},
		Endpoint{Name: "asyncCall", Payable: true, Fn: func(api *API) {
			api.AsyncCall(Call{To: api.ArgAddress(0), EGLD: api.CallValue(), Function: api.ArgString(1)}, []byte("closure"))
		}},
		Endpoint{Name: "callBack", Fn: func(api *API) {
			api.StorageStore([]byte("cbStatus"), api.Arg(0))
			if api.NumArgs() > 1 {
				api.StorageStore([]byte("cbData"), api.Arg(1))
			}
			api.StorageStore([]byte("cbClosure"), api.CallbackClosure())
			api.StorageStoreBigUint([]byte("cbValue"), api.CallValue())
		}},
		Endpoint{Name: "promises", Fn: func(api *API) {
			to := api.ArgAddress(0)
			api.RegisterPromise(PromiseCall{
				Call:            Call{To: to, Function: "increment"},
				SuccessCallback: "onOk",
				ErrorCallback:   "onErr",
				Closure:         []byte("first"),
			})
			api.RegisterPromise(PromiseCall{
				Call:            Call{To: to, Function: "fail"},
				SuccessCallback: "onOk",
				ErrorCallback:   "onErr",
				Closure:         []byte("second"),
			})
		}},
		Endpoint{Name: "onOk", Fn: func(api *API) { appendTrail(api, "ok:") }},
		Endpoint{Name: "onErr", Fn: func(api *API) { appendTrail(api, "err:") }},
		Endpoint{Name: "callSendBack", Payable: true, Fn: func(api *API) {
			api.ExecuteOnDestContext(Call{To: api.ArgAddress(0), EGLD: api.CallValue(), Function: "sendBack"})
			egld, _ := api.BackTransfers()
			api.FinishBigUint(egld)
		}},
		Endpoint{Name: "deployCounter", Fn: func(api *API) {
			addr, _ := api.DeployContract(counterCode, types.MetadataUpgradeable, nil, [][]byte{{7}})
			api.FinishAddress(addr)
		}},
	)
}

type fixture struct {
	t     *testing.T
	vm    *VM
	state *world.State
}

func contractAccount(a types.Address, code []byte, md types.CodeMetadata) *world.Account {
	acc := world.NewAccount(a)
	acc.Code = code
	acc.CodeMetadata = md
	acc.Owner = alice
	return acc
}

func newFixture(t *testing.T, extra ...*ContractContainer) *fixture {
	t.Helper()
	reg := NewRegistry()
	reg.MustRegister(counterCode, counterContract())
	reg.MustRegister(counter2Code, counter2Contract())
	reg.MustRegister(forwarderCode, forwarderContract())

	s := world.NewState()
	sender := world.NewAccount(alice)
	sender.Balance = big.NewInt(startBalance)
	sender.TokenDataMut(token).Add(0, big.NewInt(100), nil)
	require.NoError(t, s.SetAccount(sender))
	require.NoError(t, s.SetAccount(world.NewAccount(bob)))
	require.NoError(t, s.SetAccount(contractAccount(counterAddr, counterCode, types.MetadataUpgradeable)))
	require.NoError(t, s.SetAccount(contractAccount(forwarderAddr, forwarderCode, types.MetadataPayableBySC)))

	return &fixture{
		t:     t,
		vm:    New(Config{Registry: reg, Schedule: gasschedule.Zero()}),
		state: s,
	}
}

func (f *fixture) call(to types.Address, fn string, value int64, args ...[]byte) *vm.TxResult {
	return f.vm.ExecuteTx(f.state, vm.TxInput{
		From:      alice,
		To:        to,
		EGLDValue: big.NewInt(value),
		FuncName:  fn,
		Args:      args,
		GasLimit:  gasLimit,
		GasPrice:  1,
	})
}

func (f *fixture) storage(a types.Address, key string) []byte {
	acc := f.state.Account(a)
	require.NotNil(f.t, acc)
	return acc.StorageValue([]byte(key))
}

func (f *fixture) balance(a types.Address) int64 {
	acc := f.state.Account(a)
	require.NotNil(f.t, acc)
	return acc.Balance.Int64()
}

func requireOk(t *testing.T, res *vm.TxResult) {
	t.Helper()
	require.Equal(t, vm.Ok, res.Status, res.Message)
}

func TestDeployAndCall(t *testing.T) {
	f := newFixture(t)

	newAddr, res := f.vm.Deploy(f.state, vm.TxInput{
		From:     alice,
		Args:     [][]byte{{5}},
		GasLimit: gasLimit,
		GasPrice: 1,
	}, counterCode, types.MetadataUpgradeable)
	requireOk(t, res)
	assert.Equal(t, world.DeriveContractAddress(alice, 0), newAddr)
	assert.True(t, newAddr.IsSmartContract())

	deployed := f.state.Account(newAddr)
	require.NotNil(t, deployed)
	assert.Equal(t, alice, deployed.Owner)
	assert.Equal(t, []byte{5}, deployed.StorageValue(countKey))

	res = f.call(newAddr, "increment", 0)
	requireOk(t, res)
	assert.Equal(t, [][]byte{{6}}, res.Values)
	require.Len(t, res.Logs, 1)
	assert.Equal(t, "increment", res.Logs[0].Endpoint)
	assert.Equal(t, []byte("incremented"), res.Logs[0].Topics[0])
	assert.Equal(t, uint64(gasLimit), res.GasRemaining)

	assert.Equal(t, uint64(2), f.state.Account(alice).Nonce)
	assert.Equal(t, int64(startBalance-2*gasLimit), f.balance(alice))
}

func TestDeployUnknownCode(t *testing.T) {
	f := newFixture(t)
	_, res := f.vm.Deploy(f.state, vm.TxInput{From: alice}, []byte("file:unknown.wasm"), 0)
	assert.Equal(t, vm.ContractInvalid, res.Status)
	assert.Equal(t, uint64(1), f.state.Account(alice).Nonce)
}

func TestFailedCallRollsBack(t *testing.T) {
	f := newFixture(t)

	res := f.call(counterAddr, "fail", 10)
	assert.Equal(t, vm.UserError, res.Status)
	assert.Equal(t, "boom", res.Message)
	assert.Empty(t, f.storage(counterAddr, "touched"))
	assert.Equal(t, int64(0), f.balance(counterAddr))

	// Nonce and fee stay charged.
	assert.Equal(t, uint64(1), f.state.Account(alice).Nonce)
	assert.Equal(t, int64(startBalance-gasLimit), f.balance(alice))
}

func TestDispatchFailures(t *testing.T) {
	f := newFixture(t)

	res := f.call(counterAddr, "missing", 0)
	assert.Equal(t, vm.FunctionNotFound, res.Status)
	assert.Equal(t, vm.MsgFunctionNotFound, res.Message)

	res = f.call(scAddr(0x55), "get", 0)
	assert.Equal(t, vm.ContractNotFound, res.Status)

	res = f.call(counterAddr, "writeReserved", 0)
	assert.Equal(t, vm.UserError, res.Status)
	assert.Equal(t, vm.MsgReservedKey, res.Message)

	res = f.call(counterAddr, "get", 1)
	assert.Equal(t, vm.UserError, res.Status)
	assert.Equal(t, vm.MsgEGLDNotAccepted, res.Message)

	res = f.call(counterAddr, "", 1)
	assert.Equal(t, vm.ExecutionFailed, res.Status)
	assert.Equal(t, vm.MsgNonPayable, res.Message)
}

func TestInsufficientFunds(t *testing.T) {
	f := newFixture(t)

	res := f.call(bob, "", 10*startBalance)
	assert.Equal(t, vm.OutOfFunds, res.Status)
	assert.Equal(t, vm.MsgInsufficientFunds, res.Message)
	assert.Equal(t, uint64(1), f.state.Account(alice).Nonce)

	res = f.vm.ExecuteTx(f.state, vm.TxInput{From: alice, To: bob, GasLimit: 2 * startBalance, GasPrice: 1})
	assert.Equal(t, vm.OutOfFunds, res.Status)
	assert.Equal(t, uint64(1), f.state.Account(alice).Nonce)

	res = f.vm.ExecuteTx(f.state, vm.TxInput{From: addr(0x77), To: bob})
	assert.Equal(t, vm.MsgSenderNotFound, res.Message)
}

func TestPlainTransfer(t *testing.T) {
	f := newFixture(t)

	res := f.call(bob, "", 250)
	requireOk(t, res)
	assert.Equal(t, int64(250), f.balance(bob))
	assert.Empty(t, res.Logs)

	res = f.call(addr(0x09), "", 5)
	requireOk(t, res)
	assert.Equal(t, int64(5), f.balance(addr(0x09)))
}

func TestSyncCallAppendsResults(t *testing.T) {
	f := newFixture(t)
	requireOk(t, f.call(counterAddr, "increment", 0))

	res := f.call(forwarderAddr, "callGet", 0, counterAddr.Bytes())
	requireOk(t, res)
	assert.Equal(t, [][]byte{{1}, {1}}, res.Values)
}

func TestSyncCallFailureDoesNotFailCaller(t *testing.T) {
	f := newFixture(t)

	res := f.call(forwarderAddr, "callFail", 0, counterAddr.Bytes())
	requireOk(t, res)
	require.Len(t, res.Values, 2)
	assert.Equal(t, []byte{byte(vm.UserError)}, res.Values[0])
	assert.Equal(t, []byte("boom"), res.Values[1])
	assert.Empty(t, f.storage(counterAddr, "touched"))
}

func TestBackTransfers(t *testing.T) {
	f := newFixture(t)

	res := f.call(forwarderAddr, "callSendBack", 100, counterAddr.Bytes())
	requireOk(t, res)
	assert.Equal(t, [][]byte{{50}}, res.Values)
	assert.Equal(t, int64(50), f.balance(counterAddr))
	assert.Equal(t, int64(50), f.balance(forwarderAddr))

	var valueLogs int
	for _, l := range res.Logs {
		if l.Endpoint == TransferValueOnlyEndpoint {
			valueLogs++
		}
	}
	assert.Equal(t, 2, valueLogs)
}

func TestAsyncCallSuccess(t *testing.T) {
	f := newFixture(t)

	res := f.call(forwarderAddr, "asyncCall", 0, counterAddr.Bytes(), []byte("increment"))
	requireOk(t, res)

	assert.Equal(t, []byte{1}, f.storage(counterAddr, "count"))
	assert.Equal(t, []byte{0}, f.storage(forwarderAddr, "cbStatus"))
	assert.Equal(t, []byte{1}, f.storage(forwarderAddr, "cbData"))
	assert.Equal(t, []byte("closure"), f.storage(forwarderAddr, "cbClosure"))
}

func TestAsyncCallFailureReturnsValue(t *testing.T) {
	f := newFixture(t)

	res := f.call(forwarderAddr, "asyncCall", 10, counterAddr.Bytes(), []byte("fail"))
	requireOk(t, res)

	assert.Equal(t, []byte{byte(vm.UserError)}, f.storage(forwarderAddr, "cbStatus"))
	assert.Equal(t, []byte("boom"), f.storage(forwarderAddr, "cbData"))
	assert.Equal(t, []byte{10}, f.storage(forwarderAddr, "cbValue"))
	assert.Equal(t, int64(10), f.balance(forwarderAddr))
	assert.Equal(t, int64(0), f.balance(counterAddr))
	assert.Empty(t, f.storage(counterAddr, "touched"))
}

func TestPromisesRunInOrder(t *testing.T) {
	f := newFixture(t)

	res := f.call(forwarderAddr, "promises", 0, counterAddr.Bytes())
	requireOk(t, res)

	assert.Equal(t, "ok:first;err:second;", string(f.storage(forwarderAddr, "trail")))
	assert.Equal(t, []byte{1}, f.storage(counterAddr, "count"))
}

func TestESDTTransferAndExecute(t *testing.T) {
	f := newFixture(t)

	res := f.call(counterAddr, types.BuiltInESDTTransfer, 0,
		[]byte(token), big.NewInt(40).Bytes(), []byte("deposit"))
	requireOk(t, res)
	require.Len(t, res.Values, 3)
	assert.Empty(t, res.Values[0])
	assert.Equal(t, []byte(token), res.Values[1])
	assert.Equal(t, []byte{40}, res.Values[2])

	assert.Equal(t, int64(40), f.state.Account(counterAddr).TokenBalance(token, 0).Int64())
	assert.Equal(t, int64(60), f.state.Account(alice).TokenBalance(token, 0).Int64())
}

func TestESDTTransferToNonPayableContract(t *testing.T) {
	f := newFixture(t)

	res := f.call(counterAddr, types.BuiltInESDTTransfer, 0, []byte(token), big.NewInt(40).Bytes())
	assert.Equal(t, vm.ExecutionFailed, res.Status)
	assert.Equal(t, vm.MsgNonPayable, res.Message)
	assert.Equal(t, int64(100), f.state.Account(alice).TokenBalance(token, 0).Int64())
}

func TestForwardedCallFailureRevertsTransfer(t *testing.T) {
	f := newFixture(t)

	res := f.call(counterAddr, types.BuiltInESDTTransfer, 0,
		[]byte(token), big.NewInt(40).Bytes(), []byte("fail"))
	assert.Equal(t, vm.UserError, res.Status)
	assert.Equal(t, int64(100), f.state.Account(alice).TokenBalance(token, 0).Int64())
}

func TestUpgradeContract(t *testing.T) {
	f := newFixture(t)

	res := f.vm.ExecuteTx(f.state, vm.TxInput{
		From:     bob,
		To:       counterAddr,
		FuncName: UpgradeContractFuncName,
		Args:     [][]byte{counter2Code, types.MetadataUpgradeable.Bytes(), {3}},
	})
	assert.Equal(t, vm.UserError, res.Status)
	assert.Equal(t, vm.MsgNotOwner, res.Message)

	res = f.call(counterAddr, UpgradeContractFuncName, 0, counter2Code, types.MetadataUpgradeable.Bytes(), []byte{3})
	requireOk(t, res)
	assert.Equal(t, counter2Code, f.state.Account(counterAddr).Code)

	res = f.call(counterAddr, "get", 0)
	requireOk(t, res)
	assert.Equal(t, [][]byte{{30}}, res.Values)
}

func TestNestedDeploy(t *testing.T) {
	f := newFixture(t)

	res := f.call(forwarderAddr, "deployCounter", 0)
	requireOk(t, res)
	require.Len(t, res.Values, 1)

	child, err := types.AddressFromBytes(res.Values[0])
	require.NoError(t, err)
	assert.Equal(t, world.DeriveContractAddress(forwarderAddr, 0), child)
	assert.Equal(t, forwarderAddr, f.state.Account(child).Owner)
	assert.Equal(t, []byte{7}, f.storage(child, "count"))
	assert.Equal(t, uint64(1), f.state.Account(forwarderAddr).Nonce)
}

func TestCallStackOverflow(t *testing.T) {
	f := newFixture(t)

	res := f.call(counterAddr, "recurse", 0)
	assert.Equal(t, vm.CallStackOverflow, res.Status)
	assert.Equal(t, vm.MsgCallStackOverflow, res.Message)
}

func TestQueryDiscardsChanges(t *testing.T) {
	f := newFixture(t)

	res := f.vm.Query(f.state, vm.TxInput{From: alice, To: counterAddr, FuncName: "increment"})
	requireOk(t, res)
	assert.Equal(t, [][]byte{{1}}, res.Values)
	assert.Empty(t, f.storage(counterAddr, "count"))
	assert.Equal(t, uint64(0), f.state.Account(alice).Nonce)
}

func TestExecuteReadOnlyTrapsWrites(t *testing.T) {
	c := NewContract("viewer",
		Endpoint{Name: "readOnly", Fn: func(api *API) {
			res := api.ExecuteReadOnly(Call{To: api.ArgAddress(0), Function: api.ArgString(1)})
			api.FinishUint64(uint64(res.Status))
			api.FinishString(res.Message)
			for _, v := range res.Values {
				api.Finish(v)
			}
		}},
	)
	f := newFixture(t)
	code := []byte("file:viewer.wasm")
	f.vm.Registry().MustRegister(code, c)
	viewer := scAddr(0x23)
	require.NoError(t, f.state.SetAccount(contractAccount(viewer, code, 0)))
	requireOk(t, f.call(counterAddr, "increment", 0))

	res := f.call(viewer, "readOnly", 0, counterAddr.Bytes(), []byte("increment"))
	requireOk(t, res)
	require.Len(t, res.Values, 2)
	assert.Equal(t, []byte{byte(vm.ExecutionFailed)}, res.Values[0])
	assert.Equal(t, []byte(MsgReadonlyWrite), res.Values[1])
	assert.Equal(t, []byte{1}, f.storage(counterAddr, "count"))

	res = f.call(viewer, "readOnly", 0, counterAddr.Bytes(), []byte("get"))
	requireOk(t, res)
	// the callee's result is appended before the caller's own
	assert.Equal(t, [][]byte{{1}, {}, {}, {1}}, res.Values)
}

func TestOutOfGas(t *testing.T) {
	f := newFixture(t)
	f.vm = New(Config{Registry: f.vm.Registry(), Schedule: gasschedule.Default()})

	res := f.vm.ExecuteTx(f.state, vm.TxInput{From: alice, To: counterAddr, FuncName: "increment", GasLimit: 1000, GasPrice: 1})
	assert.Equal(t, vm.OutOfGas, res.Status)
	assert.Equal(t, vm.MsgOutOfGas, res.Message)
	assert.Empty(t, f.storage(counterAddr, "count"))
}

func TestStaleAPITraps(t *testing.T) {
	var outer *API
	c := NewContract("leaky",
		Endpoint{Name: "outer", Fn: func(api *API) {
			outer = api
			api.SyncCall(Call{To: api.Self(), Function: "inner"})
		}},
		Endpoint{Name: "inner", Fn: func(api *API) {
			outer.StorageLoad([]byte("x"))
		}},
	)
	f := newFixture(t)
	code := []byte("file:leaky.wasm")
	f.vm.Registry().MustRegister(code, c)
	require.NoError(t, f.state.SetAccount(contractAccount(scAddr(0x20), code, 0)))

	res := f.call(scAddr(0x20), "outer", 0)
	assert.Equal(t, vm.ExecutionFailed, res.Status)
	assert.Equal(t, vm.MsgHandleStale, res.Message)
}

func TestHandleFromPreviousTransactionIsStale(t *testing.T) {
	var kept managed.Handle
	c := NewContract("keeper",
		Endpoint{Name: "keep", Fn: func(api *API) {
			kept = api.Managed().NewBufferFromBytes([]byte("data"))
			api.FinishBuffer(kept)
		}},
		Endpoint{Name: "use", Fn: func(api *API) {
			api.FinishBuffer(kept)
		}},
	)
	f := newFixture(t)
	code := []byte("file:keeper.wasm")
	f.vm.Registry().MustRegister(code, c)
	require.NoError(t, f.state.SetAccount(contractAccount(scAddr(0x21), code, 0)))

	res := f.call(scAddr(0x21), "keep", 0)
	requireOk(t, res)
	assert.Equal(t, [][]byte{[]byte("data")}, res.Values)

	res = f.call(scAddr(0x21), "use", 0)
	assert.Equal(t, vm.ExecutionFailed, res.Status)
	assert.Equal(t, vm.MsgHandleStale, res.Message)
}

func TestPanicsAsErrors(t *testing.T) {
	c := NewContract("panicky",
		Endpoint{Name: "explode", Fn: func(api *API) { panic("kaboom") }},
	).WithPanicsAsErrors()
	f := newFixture(t)
	code := []byte("file:panicky.wasm")
	f.vm.Registry().MustRegister(code, c)
	require.NoError(t, f.state.SetAccount(contractAccount(scAddr(0x22), code, 0)))

	res := f.call(scAddr(0x22), "explode", 0)
	assert.Equal(t, vm.ExecutionFailed, res.Status)
	assert.Equal(t, "kaboom", res.Message)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	c := counterContract()
	require.NoError(t, reg.Register(counterCode, c))
	assert.ErrorIs(t, reg.Register(counterCode, c), ErrDuplicateContract)

	got, ok := reg.Lookup(counterCode)
	require.True(t, ok)
	assert.Equal(t, "counter", got.Name())

	_, ok = reg.Lookup([]byte("other"))
	assert.False(t, ok)

	limited := c.WithAllowedEndpoints("get")
	_, ok = limited.Lookup("increment")
	assert.False(t, ok)
	assert.Equal(t, []string{"get"}, limited.Endpoints())
}
