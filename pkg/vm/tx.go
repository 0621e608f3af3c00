package vm

import (
	"math/big"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/holiman/uint256"
)

// CallType distinguishes how a call was entered.
type CallType int

// Call types.
const (
	DirectCall CallType = iota
	SyncCall
	AsyncCall
	AsyncCallback
	TransferExecute
	UpgradeCall
)

func (c CallType) String() string {
	switch c {
	case DirectCall:
		return "DirectCall"
	case SyncCall:
		return "SyncCall"
	case AsyncCall:
		return "AsyncCall"
	case AsyncCallback:
		return "AsyncCallback"
	case TransferExecute:
		return "TransferExecute"
	case UpgradeCall:
		return "UpgradeCall"
	default:
		return "Unknown"
	}
}

// TokenTransfer is one issued-token payment.
type TokenTransfer struct {
	TokenID string
	Nonce   uint64
	Value   *big.Int
}

// CallbackPayments are the tokens a callee sent back to the originator of an
// async call or promise. They are visible to the callback as call value.
type CallbackPayments struct {
	EGLD *big.Int
	ESDT []TokenTransfer
}

// TxInput describes one call.
type TxInput struct {
	From       types.Address
	To         types.Address
	EGLDValue  *big.Int
	ESDTValues []TokenTransfer
	FuncName   string
	Args       [][]byte
	GasLimit   uint64
	GasPrice   uint64
	TxHash     types.Hash
	CallType   CallType

	// Readonly marks queries: state changes are never committed.
	Readonly bool

	// CallbackPayments is set on async callbacks.
	CallbackPayments CallbackPayments

	// CallbackClosure carries the closure bytes registered with the async call or promise.
	CallbackClosure []byte
}

// Value returns the native value, never nil.
func (in *TxInput) Value() *big.Int {
	if in.EGLDValue == nil {
		return new(big.Int)
	}
	return in.EGLDValue
}

// Log is an event emitted by a contract or a built-in function.
type Log struct {
	Address  types.Address
	Endpoint string
	Topics   [][]byte
	Data     []byte
}

// PendingAsyncCall is a legacy async call registered by a contract.
type PendingAsyncCall struct {
	From      types.Address
	To        types.Address
	EGLDValue *big.Int
	FuncName  string
	Args      [][]byte
	TxHash    types.Hash
	GasLimit  uint64

	// ESDTValues are the tokens attached to the call.
	ESDTValues []TokenTransfer

	// CallbackClosure is handed to the callback unchanged.
	CallbackClosure []byte
}

// Promise is a deferred call with its own success and error callbacks.
type Promise struct {
	Call PendingAsyncCall

	SuccessCallback string
	ErrorCallback   string
	CallbackClosure []byte
	CallbackGas     uint64
}

// TxResult is the outcome of a call.
type TxResult struct {
	Status       ReturnCode
	Message      string
	Values       [][]byte
	Logs         []Log
	GasRemaining uint64
	GasRefund    *uint256.Int

	// PendingCalls holds the legacy async call registered by the contract, if any.
	PendingCalls []PendingAsyncCall

	// Promises holds the registered promises, in registration order.
	Promises []Promise
}

// NewResult creates an empty successful result.
func NewResult() *TxResult {
	return &TxResult{GasRefund: uint256.NewInt(0)}
}

// FailedResult creates a failed result.
func FailedResult(status ReturnCode, message string) *TxResult {
	r := NewResult()
	r.Status = status
	r.Message = message
	return r
}

// ResultFromTrap creates a failed result from a trap.
func ResultFromTrap(t *Trap) *TxResult {
	return FailedResult(t.Status, t.Message)
}

// IsSuccess reports whether the status is Ok.
func (r *TxResult) IsSuccess() bool {
	return r.Status == Ok
}

// Merge folds a child result into r. A successful child appends its values
// and logs; a failed child replaces the status and message, keeping what r
// already collected.
func (r *TxResult) Merge(child *TxResult) {
	if child.IsSuccess() {
		r.Values = append(r.Values, child.Values...)
		r.Logs = append(r.Logs, child.Logs...)
		return
	}
	r.Status = child.Status
	r.Message = child.Message
}

// BackTransfers records what nested synchronous callees sent to their caller.
type BackTransfers struct {
	EGLD *big.Int
	ESDT []TokenTransfer
}

// NewBackTransfers creates an empty record.
func NewBackTransfers() *BackTransfers {
	return &BackTransfers{EGLD: new(big.Int)}
}

// AddEGLD accumulates native value.
func (bt *BackTransfers) AddEGLD(v *big.Int) {
	bt.EGLD.Add(bt.EGLD, v)
}

// AddESDT accumulates a token payment, merging with an existing entry for the same instance.
func (bt *BackTransfers) AddESDT(t TokenTransfer) {
	for i := range bt.ESDT {
		if bt.ESDT[i].TokenID == t.TokenID && bt.ESDT[i].Nonce == t.Nonce {
			bt.ESDT[i].Value = new(big.Int).Add(bt.ESDT[i].Value, t.Value)
			return
		}
	}
	bt.ESDT = append(bt.ESDT, TokenTransfer{TokenID: t.TokenID, Nonce: t.Nonce, Value: new(big.Int).Set(t.Value)})
}

// Merge accumulates another record.
func (bt *BackTransfers) Merge(o *BackTransfers) {
	bt.AddEGLD(o.EGLD)
	for _, t := range o.ESDT {
		bt.AddESDT(t)
	}
}

// Clone copies the record.
func (bt *BackTransfers) Clone() *BackTransfers {
	c := NewBackTransfers()
	c.Merge(bt)
	return c
}
