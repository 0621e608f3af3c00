package builtin

import (
	"math/big"

	"github.com/fortiblox/X1-Scenario/pkg/txcache"
	"github.com/fortiblox/X1-Scenario/pkg/vm"
	"github.com/fortiblox/X1-Scenario/pkg/world"
)

// requireOwner traps unless caller owns the contract.
func requireOwner(cache *txcache.Cache, in *vm.TxInput) *world.Account {
	acc := cache.Account(in.To)
	if acc == nil || !acc.HasCode() {
		vm.Throw(vm.ContractNotFound, vm.MsgContractNotFound)
	}
	if acc.Owner != in.From {
		vm.Throw(vm.UserError, vm.MsgNotOwner)
	}
	return acc
}

// processChangeOwner: newOwner. Caller must own the target contract.
func (d *Dispatcher) processChangeOwner(cache *txcache.Cache, in *vm.TxInput) (*Output, error) {
	a := newArgs(in.Args, 1)
	newOwner := a.address()
	requireOwner(cache, in)

	check(cache.UpdateAccount(in.To, func(acc *world.Account) error {
		acc.Owner = newOwner
		return nil
	}))
	out := newOutput(in)
	out.Logs = append(out.Logs, transferLog(in.To, in.FuncName, newOwner.Bytes()))
	return out, nil
}

// processSetUserName: name. Sets the user name of the call target once.
func (d *Dispatcher) processSetUserName(cache *txcache.Cache, in *vm.TxInput) (*Output, error) {
	a := newArgs(in.Args, 1)
	name := a.raw()

	check(cache.UpdateAccount(in.To, func(acc *world.Account) error {
		if len(acc.Username) > 0 {
			vm.Throw(vm.UserError, vm.MsgUserNameAlreadySet)
		}
		acc.Username = append([]byte{}, name...)
		return nil
	}))
	return newOutput(in), nil
}

// processDeleteUserName clears the user name of the call target.
func (d *Dispatcher) processDeleteUserName(cache *txcache.Cache, in *vm.TxInput) (*Output, error) {
	check(cache.UpdateAccount(in.To, func(acc *world.Account) error {
		acc.Username = nil
		return nil
	}))
	return newOutput(in), nil
}

// processMigrateUserName: name. Replaces an existing user name.
func (d *Dispatcher) processMigrateUserName(cache *txcache.Cache, in *vm.TxInput) (*Output, error) {
	a := newArgs(in.Args, 1)
	name := a.raw()

	check(cache.UpdateAccount(in.To, func(acc *world.Account) error {
		if len(acc.Username) == 0 {
			vm.Throw(vm.UserError, MsgUserNameNotSet)
		}
		acc.Username = append([]byte{}, name...)
		return nil
	}))
	return newOutput(in), nil
}

// processClaimDeveloperRewards pays the accumulated developer reward of the
// target contract to its owner. The claimed amount is the result value.
func (d *Dispatcher) processClaimDeveloperRewards(cache *txcache.Cache, in *vm.TxInput) (*Output, error) {
	requireOwner(cache, in)

	reward := new(big.Int)
	check(cache.UpdateAccount(in.To, func(acc *world.Account) error {
		reward.Set(acc.DeveloperReward)
		acc.DeveloperReward = new(big.Int)
		return nil
	}))
	check(cache.IncreaseEGLD(in.From, reward))

	out := newOutput(in)
	out.Recipient = in.From
	out.EGLD = reward
	out.Values = [][]byte{reward.Bytes()}
	out.Logs = append(out.Logs, transferLog(in.To, in.FuncName, reward.Bytes(), in.From.Bytes()))
	return out, nil
}
