// Package vm holds the types shared by the execution core, the managed-type
// arena and the built-in functions: return codes, traps, the gas meter, and
// the transaction input/result records.
//
// The execution core lives in vm/executor, the arena in vm/managed and the
// protocol built-in functions in vm/builtin.
package vm

import (
	"fmt"

	"github.com/pkg/errors"
)

// ReturnCode is the status of a call. Zero is success.
type ReturnCode uint64

// Return codes, matching the on-chain numbering.
const (
	Ok                     ReturnCode = 0
	FunctionNotFound       ReturnCode = 1
	FunctionWrongSignature ReturnCode = 2
	ContractNotFound       ReturnCode = 3
	UserError              ReturnCode = 4
	OutOfGas               ReturnCode = 5
	AccountCollision       ReturnCode = 6
	OutOfFunds             ReturnCode = 7
	CallStackOverflow      ReturnCode = 8
	ContractInvalid        ReturnCode = 9
	ExecutionFailed        ReturnCode = 10
)

var returnCodeNames = map[ReturnCode]string{
	Ok:                     "ok",
	FunctionNotFound:       "function not found",
	FunctionWrongSignature: "wrong signature for function",
	ContractNotFound:       "contract not found",
	UserError:              "user error",
	OutOfGas:               "out of gas",
	AccountCollision:       "account collision",
	OutOfFunds:             "out of funds",
	CallStackOverflow:      "call stack overflow",
	ContractInvalid:        "contract invalid",
	ExecutionFailed:        "execution failed",
}

func (c ReturnCode) String() string {
	if name, ok := returnCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("status %d", uint64(c))
}

// Canonical failure messages. Scenario files check these verbatim.
const (
	MsgOutOfGas            = "not enough gas"
	MsgFunctionNotFound    = "invalid function (not found)"
	MsgContractNotFound    = "contract not found"
	MsgInsufficientFunds   = "insufficient funds"
	MsgNonPayable          = "sending value to non payable contract"
	MsgReservedKey         = "cannot write to storage under reserved key"
	MsgActionNotAllowed    = "action is not allowed"
	MsgInvalidArguments    = "invalid arguments"
	MsgHandleStale         = "handle stale"
	MsgDivisionByZero      = "division by zero"
	MsgBadBoundsLower      = "bad bounds (lower)"
	MsgCallStackOverflow   = "max call depth reached"
	MsgAccountCollision    = "account already exists"
	MsgNotOwner            = "caller is not the owner"
	MsgNotUpgradeable      = "contract is not upgradeable"
	MsgEGLDNotAccepted     = "function does not accept EGLD payment"
	MsgESDTNotAccepted     = "function does not accept ESDT payment"
	MsgSenderNotFound      = "sender account not found"
	MsgUserNameAlreadySet  = "user name already set"
	MsgNFTRoyaltiesTooHigh = "invalid royalties value"
)

// MaxCallDepth bounds the number of nested contexts in one call tree.
const MaxCallDepth = 64

// Trap is a contract-level failure: a status code and its message.
// Contract API functions raise traps by panicking with a *Trap; the executor
// recovers them at the call boundary and turns them into a failed result.
type Trap struct {
	Status  ReturnCode
	Message string
}

// Error implements error.
func (t *Trap) Error() string {
	return t.Message
}

// NewTrap creates a trap.
func NewTrap(status ReturnCode, message string) *Trap {
	return &Trap{Status: status, Message: message}
}

// Throw raises a trap.
func Throw(status ReturnCode, message string) {
	panic(NewTrap(status, message))
}

// Throwf raises a trap with a formatted message.
func Throwf(status ReturnCode, format string, args ...interface{}) {
	panic(NewTrap(status, fmt.Sprintf(format, args...)))
}

// AsTrap extracts a trap from err. Errors that are not traps become
// ExecutionFailed with the error text.
func AsTrap(err error) *Trap {
	if err == nil {
		return nil
	}
	var t *Trap
	if errors.As(err, &t) {
		return t
	}
	return NewTrap(ExecutionFailed, err.Error())
}
