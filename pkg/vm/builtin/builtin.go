// Package builtin implements the protocol built-in functions.
//
// Built-ins are reserved function names that act directly on the
// transaction cache instead of running contract code:
// - ESDT transfers (single, NFT, multi), with an optional forwarded call
// - local mint and burn
// - NFT create, add quantity, burn, add URI, update attributes
// - role management (system SC only)
// - owner change, user names, developer rewards
//
// Every built-in is atomic: it runs on a child cache that is committed only
// when all of its effects succeeded.
package builtin

import (
	"math/big"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/codec"
	"github.com/fortiblox/X1-Scenario/pkg/gasschedule"
	"github.com/fortiblox/X1-Scenario/pkg/txcache"
	"github.com/fortiblox/X1-Scenario/pkg/vm"
)

// Failure messages specific to built-ins.
const (
	MsgMissingRole       = vm.MsgActionNotAllowed
	MsgNFTNotFound       = "NFT instance not found"
	MsgUserNameNotSet    = "user name not set"
	MsgNotSystemContract = "only the system smart contract may manage roles"
	MsgInvalidRecipient  = "invalid recipient address"
	MsgInvalidTokenID    = "invalid token identifier"
	MsgNotABuiltIn       = "not a built-in function"
)

// Output is what a built-in produced besides its state changes.
type Output struct {
	// Recipient is the account that received the tokens. For NFT and multi
	// transfers it is decoded from the arguments, not the call target.
	Recipient types.Address

	// EGLD is native value moved by a multi transfer.
	EGLD *big.Int

	// Transfers are the token payments delivered to Recipient.
	Transfers []vm.TokenTransfer

	// ForwardFunc and ForwardArgs are the residual call to run at Recipient.
	ForwardFunc string
	ForwardArgs [][]byte

	Values [][]byte
	Logs   []vm.Log
}

// HasForward reports whether a residual call was requested.
func (o *Output) HasForward() bool {
	return o.ForwardFunc != ""
}

// Config configures a Dispatcher.
type Config struct {
	Schedule *gasschedule.Schedule
	Logger   *zap.Logger
}

// DefaultConfig returns a configuration with the embedded gas schedule and no logging.
func DefaultConfig() Config {
	return Config{
		Schedule: gasschedule.Default(),
		Logger:   zap.NewNop(),
	}
}

// Dispatcher executes built-in functions.
type Dispatcher struct {
	schedule *gasschedule.Schedule
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Schedule == nil {
		cfg.Schedule = gasschedule.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Dispatcher{
		schedule: cfg.Schedule,
		logger:   cfg.Logger.With(zap.String("component", "builtin")),
	}
}

// IsBuiltIn reports whether name is a built-in function.
func IsBuiltIn(name string) bool {
	switch name {
	case types.BuiltInESDTTransfer,
		types.BuiltInESDTNFTTransfer,
		types.BuiltInMultiESDTNFTTransfer,
		types.BuiltInESDTLocalMint,
		types.BuiltInESDTLocalBurn,
		types.BuiltInESDTNFTCreate,
		types.BuiltInESDTNFTAddQuantity,
		types.BuiltInESDTNFTBurn,
		types.BuiltInESDTNFTAddURI,
		types.BuiltInESDTNFTUpdateAttributes,
		types.BuiltInESDTSetRole,
		types.BuiltInESDTUnSetRole,
		types.BuiltInESDTUnsetRoleAlias,
		types.BuiltInChangeOwnerAddress,
		types.BuiltInSetUserName,
		types.BuiltInDeleteUserName,
		types.BuiltInMigrateUserName,
		types.BuiltInClaimDeveloperRewards:
		return true
	}
	return false
}

// IsTransfer reports whether name is one of the ESDT transfer built-ins.
func IsTransfer(name string) bool {
	switch name {
	case types.BuiltInESDTTransfer, types.BuiltInESDTNFTTransfer, types.BuiltInMultiESDTNFTTransfer:
		return true
	}
	return false
}

// Process runs the built-in named by in.FuncName against cache. On error no
// change is applied to cache; the error is a *vm.Trap carrying the status.
func (d *Dispatcher) Process(cache *txcache.Cache, in *vm.TxInput, gas *vm.GasMeter) (out *Output, err error) {
	if cost, ok := d.schedule.BuiltIn(in.FuncName); ok && gas != nil {
		if gas.Consume(cost) != nil {
			return nil, vm.NewTrap(vm.OutOfGas, vm.MsgOutOfGas)
		}
	}

	child := txcache.New(cache)
	defer func() {
		if r := recover(); r != nil {
			t, ok := r.(*vm.Trap)
			if !ok {
				panic(r)
			}
			out, err = nil, t
		}
		if err != nil {
			d.logger.Debug("built-in failed",
				zap.String("function", in.FuncName),
				zap.Stringer("from", in.From),
				zap.Error(err))
			return
		}
		child.Commit(cache)
	}()

	d.logger.Debug("built-in",
		zap.String("function", in.FuncName),
		zap.Stringer("from", in.From),
		zap.Stringer("to", in.To))

	switch in.FuncName {
	case types.BuiltInESDTTransfer:
		return d.processESDTTransfer(child, in)
	case types.BuiltInESDTNFTTransfer:
		return d.processESDTNFTTransfer(child, in)
	case types.BuiltInMultiESDTNFTTransfer:
		return d.processMultiESDTNFTTransfer(child, in)
	case types.BuiltInESDTLocalMint:
		return d.processLocalMint(child, in)
	case types.BuiltInESDTLocalBurn:
		return d.processLocalBurn(child, in)
	case types.BuiltInESDTNFTCreate:
		return d.processNFTCreate(child, in)
	case types.BuiltInESDTNFTAddQuantity:
		return d.processNFTAddQuantity(child, in)
	case types.BuiltInESDTNFTBurn:
		return d.processNFTBurn(child, in)
	case types.BuiltInESDTNFTAddURI:
		return d.processNFTAddURI(child, in)
	case types.BuiltInESDTNFTUpdateAttributes:
		return d.processNFTUpdateAttributes(child, in)
	case types.BuiltInESDTSetRole:
		return d.processSetRoles(child, in, true)
	case types.BuiltInESDTUnSetRole, types.BuiltInESDTUnsetRoleAlias:
		return d.processSetRoles(child, in, false)
	case types.BuiltInChangeOwnerAddress:
		return d.processChangeOwner(child, in)
	case types.BuiltInSetUserName:
		return d.processSetUserName(child, in)
	case types.BuiltInDeleteUserName:
		return d.processDeleteUserName(child, in)
	case types.BuiltInMigrateUserName:
		return d.processMigrateUserName(child, in)
	case types.BuiltInClaimDeveloperRewards:
		return d.processClaimDeveloperRewards(child, in)
	default:
		return nil, vm.NewTrap(vm.FunctionNotFound, MsgNotABuiltIn)
	}
}

// newOutput creates an output delivering to the call target.
func newOutput(in *vm.TxInput) *Output {
	return &Output{Recipient: in.To, EGLD: new(big.Int)}
}

// args is a cursor over built-in arguments. Decoding failures trap.
type args struct {
	list [][]byte
	pos  int
}

func newArgs(list [][]byte, min int) *args {
	if len(list) < min {
		vm.Throw(vm.ExecutionFailed, vm.MsgInvalidArguments)
	}
	return &args{list: list}
}

func (a *args) remaining() int {
	return len(a.list) - a.pos
}

func (a *args) raw() []byte {
	if a.pos >= len(a.list) {
		vm.Throw(vm.ExecutionFailed, vm.MsgInvalidArguments)
	}
	b := a.list[a.pos]
	a.pos++
	return b
}

func (a *args) rest() [][]byte {
	r := a.list[a.pos:]
	a.pos = len(a.list)
	return r
}

// tokenID reads an ESDT identifier. The native coin is not an ESDT.
func (a *args) tokenID() string {
	id := string(a.raw())
	if !types.IsValidTokenIdentifier(id) || types.IsNativeToken(id) {
		vm.Throw(vm.ExecutionFailed, MsgInvalidTokenID)
	}
	return id
}

// paymentTokenID reads a multi-transfer token, where EGLD-000000 names the native coin.
func (a *args) paymentTokenID() string {
	id := string(a.raw())
	if !types.IsValidTokenIdentifier(id) {
		vm.Throw(vm.ExecutionFailed, MsgInvalidTokenID)
	}
	return id
}

func (a *args) u64() uint64 {
	v, err := codec.TopDecodeUint64(a.raw())
	if err != nil {
		vm.Throw(vm.ExecutionFailed, vm.MsgInvalidArguments)
	}
	return v
}

func (a *args) bigUint() *big.Int {
	return codec.TopDecodeBigUint(a.raw())
}

func (a *args) address() types.Address {
	addr, err := types.AddressFromBytes(a.raw())
	if err != nil {
		vm.Throw(vm.ExecutionFailed, MsgInvalidRecipient)
	}
	return addr
}

// forward reads the optional residual call.
func (a *args) forward(out *Output) {
	if a.remaining() == 0 {
		return
	}
	out.ForwardFunc = string(a.raw())
	out.ForwardArgs = a.rest()
}

// check converts a cache error into a trap.
func check(err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, txcache.ErrInsufficientFunds):
		vm.Throw(vm.OutOfFunds, vm.MsgInsufficientFunds)
	case errors.Is(err, txcache.ErrAccountNotFound):
		vm.Throw(vm.ExecutionFailed, vm.MsgSenderNotFound)
	default:
		vm.Throw(vm.ExecutionFailed, err.Error())
	}
}

func transferLog(addr types.Address, endpoint string, topics ...[]byte) vm.Log {
	return vm.Log{Address: addr, Endpoint: endpoint, Topics: topics}
}
