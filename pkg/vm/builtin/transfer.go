package builtin

import (
	"math/big"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/codec"
	"github.com/fortiblox/X1-Scenario/pkg/txcache"
	"github.com/fortiblox/X1-Scenario/pkg/vm"
)

// processESDTTransfer: token, amount [, function, args...]. The call target receives.
func (d *Dispatcher) processESDTTransfer(cache *txcache.Cache, in *vm.TxInput) (*Output, error) {
	a := newArgs(in.Args, 2)
	token := a.tokenID()
	amount := a.bigUint()

	out := newOutput(in)
	check(cache.TransferESDT(in.From, in.To, token, 0, amount))
	out.Transfers = []vm.TokenTransfer{{TokenID: token, Value: amount}}
	out.Logs = append(out.Logs, transferLog(in.From, in.FuncName,
		[]byte(token), nil, amount.Bytes(), in.To.Bytes()))
	a.forward(out)
	return out, nil
}

// processESDTNFTTransfer: token, nonce, amount, recipient [, function, args...].
// The call target is the sender itself.
func (d *Dispatcher) processESDTNFTTransfer(cache *txcache.Cache, in *vm.TxInput) (*Output, error) {
	a := newArgs(in.Args, 4)
	token := a.tokenID()
	nonce := a.u64()
	amount := a.bigUint()
	recipient := a.address()

	out := newOutput(in)
	out.Recipient = recipient
	check(cache.TransferESDT(in.From, recipient, token, nonce, amount))
	out.Transfers = []vm.TokenTransfer{{TokenID: token, Nonce: nonce, Value: amount}}
	out.Logs = append(out.Logs, transferLog(in.From, in.FuncName,
		[]byte(token), codec.TopEncodeUint64(nonce), amount.Bytes(), recipient.Bytes()))
	a.forward(out)
	return out, nil
}

// processMultiESDTNFTTransfer: recipient, n, (token, nonce, amount)*n [, function, args...].
// The native token may appear as EGLD-000000 with nonce 0.
func (d *Dispatcher) processMultiESDTNFTTransfer(cache *txcache.Cache, in *vm.TxInput) (*Output, error) {
	a := newArgs(in.Args, 2)
	recipient := a.address()
	n := a.u64()
	if uint64(a.remaining()) < 3*n {
		return nil, vm.NewTrap(vm.ExecutionFailed, vm.MsgInvalidArguments)
	}

	out := newOutput(in)
	out.Recipient = recipient
	var topics [][]byte
	for i := uint64(0); i < n; i++ {
		token := a.paymentTokenID()
		nonce := a.u64()
		amount := a.bigUint()

		if token == types.NativeTokenIDMulti && nonce == 0 {
			check(cache.TransferEGLD(in.From, recipient, amount))
			out.EGLD.Add(out.EGLD, amount)
		} else {
			check(cache.TransferESDT(in.From, recipient, token, nonce, amount))
			out.Transfers = append(out.Transfers, vm.TokenTransfer{TokenID: token, Nonce: nonce, Value: amount})
		}
		topics = append(topics, []byte(token), codec.TopEncodeUint64(nonce), amount.Bytes())
	}
	topics = append(topics, recipient.Bytes())
	out.Logs = append(out.Logs, transferLog(in.From, in.FuncName, topics...))
	a.forward(out)
	return out, nil
}

// TransferInput builds the built-in call that moves payments from one account
// to another, the way the protocol encodes contract-initiated transfers.
// With no token payments it returns false and the caller moves native value directly.
func TransferInput(from, to types.Address, egld *big.Int, payments []vm.TokenTransfer, function string, fnArgs [][]byte) (vm.TxInput, bool) {
	in := vm.TxInput{From: from, EGLDValue: new(big.Int)}
	nativeValue := egld != nil && egld.Sign() > 0
	switch {
	case len(payments) == 0:
		return in, false
	case len(payments) == 1 && !nativeValue && payments[0].Nonce == 0:
		p := payments[0]
		in.To = to
		in.FuncName = types.BuiltInESDTTransfer
		in.Args = [][]byte{[]byte(p.TokenID), p.Value.Bytes()}
	case len(payments) == 1 && !nativeValue:
		p := payments[0]
		in.To = from
		in.FuncName = types.BuiltInESDTNFTTransfer
		in.Args = [][]byte{[]byte(p.TokenID), codec.TopEncodeUint64(p.Nonce), p.Value.Bytes(), to.Bytes()}
	default:
		in.To = from
		in.FuncName = types.BuiltInMultiESDTNFTTransfer
		count := uint64(len(payments))
		if nativeValue {
			count++
		}
		in.Args = [][]byte{to.Bytes(), codec.TopEncodeUint64(count)}
		if nativeValue {
			in.Args = append(in.Args, []byte(types.NativeTokenIDMulti), nil, egld.Bytes())
		}
		for _, p := range payments {
			in.Args = append(in.Args, []byte(p.TokenID), codec.TopEncodeUint64(p.Nonce), p.Value.Bytes())
		}
	}
	if function != "" {
		in.Args = append(in.Args, []byte(function))
		in.Args = append(in.Args, fnArgs...)
	}
	return in, true
}
