package builtin

import (
	"math/big"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/codec"
	"github.com/fortiblox/X1-Scenario/pkg/txcache"
	"github.com/fortiblox/X1-Scenario/pkg/vm"
	"github.com/fortiblox/X1-Scenario/pkg/world"
)

// requireRole traps unless the account holds role for token.
func requireRole(cache *txcache.Cache, addr types.Address, token string, role world.Roles) {
	acc := cache.Account(addr)
	if acc == nil {
		vm.Throw(vm.ExecutionFailed, vm.MsgSenderNotFound)
	}
	data := acc.TokenData(token)
	if data == nil || !data.Roles.Has(role) {
		vm.Throw(vm.ExecutionFailed, MsgMissingRole)
	}
}

// processLocalMint: token, amount. Mints to the caller.
func (d *Dispatcher) processLocalMint(cache *txcache.Cache, in *vm.TxInput) (*Output, error) {
	a := newArgs(in.Args, 2)
	token := a.tokenID()
	amount := a.bigUint()
	requireRole(cache, in.From, token, world.RoleLocalMint)

	check(cache.IncreaseESDT(in.From, token, 0, amount, nil))
	out := newOutput(in)
	out.Logs = append(out.Logs, transferLog(in.From, in.FuncName, []byte(token), nil, amount.Bytes()))
	return out, nil
}

// processLocalBurn: token, amount. Burns from the caller.
func (d *Dispatcher) processLocalBurn(cache *txcache.Cache, in *vm.TxInput) (*Output, error) {
	a := newArgs(in.Args, 2)
	token := a.tokenID()
	amount := a.bigUint()
	requireRole(cache, in.From, token, world.RoleLocalBurn)

	_, err := cache.SubtractESDT(in.From, token, 0, amount)
	check(err)
	out := newOutput(in)
	out.Logs = append(out.Logs, transferLog(in.From, in.FuncName, []byte(token), nil, amount.Bytes()))
	return out, nil
}

// processNFTCreate: token, quantity, name, royalties, hash, attributes, uris...
// The new nonce is returned as the single result value.
func (d *Dispatcher) processNFTCreate(cache *txcache.Cache, in *vm.TxInput) (*Output, error) {
	a := newArgs(in.Args, 6)
	token := a.tokenID()
	quantity := a.bigUint()
	name := a.raw()
	royalties := a.u64()
	hash := a.raw()
	attributes := a.raw()
	uris := a.rest()
	requireRole(cache, in.From, token, world.RoleNFTCreate)

	if royalties > types.MaxRoyalties {
		return nil, vm.NewTrap(vm.ExecutionFailed, vm.MsgNFTRoyaltiesTooHigh)
	}
	if quantity.Sign() == 0 {
		return nil, vm.NewTrap(vm.ExecutionFailed, vm.MsgInvalidArguments)
	}

	var nonce uint64
	check(cache.UpdateAccount(in.From, func(acc *world.Account) error {
		data := acc.TokenDataMut(token)
		data.LastNonce++
		nonce = data.LastNonce
		md := world.InstanceMetadata{
			Name:       name,
			Creator:    in.From,
			Royalties:  royalties,
			Hash:       hash,
			URIs:       uris,
			Attributes: attributes,
		}
		data.Add(nonce, quantity, &md)
		return nil
	}))

	out := newOutput(in)
	nonceBytes := codec.TopEncodeUint64(nonce)
	out.Values = [][]byte{nonceBytes}
	out.Logs = append(out.Logs, transferLog(in.From, in.FuncName, []byte(token), nonceBytes, quantity.Bytes()))
	return out, nil
}

// instanceOf returns the mutable NFT instance held by acc, or traps.
func instanceOf(acc *world.Account, token string, nonce uint64) *world.ESDTInstance {
	data := acc.TokenData(token)
	if data == nil || nonce == 0 {
		vm.Throw(vm.ExecutionFailed, MsgNFTNotFound)
	}
	inst := data.Instance(nonce)
	if inst == nil {
		vm.Throw(vm.ExecutionFailed, MsgNFTNotFound)
	}
	return inst
}

// processNFTAddQuantity: token, nonce, quantity.
func (d *Dispatcher) processNFTAddQuantity(cache *txcache.Cache, in *vm.TxInput) (*Output, error) {
	a := newArgs(in.Args, 3)
	token := a.tokenID()
	nonce := a.u64()
	quantity := a.bigUint()
	requireRole(cache, in.From, token, world.RoleNFTAddQuantity)

	check(cache.UpdateAccount(in.From, func(acc *world.Account) error {
		inst := instanceOf(acc, token, nonce)
		inst.Balance.Add(inst.Balance, quantity)
		return nil
	}))
	out := newOutput(in)
	out.Logs = append(out.Logs, transferLog(in.From, in.FuncName, []byte(token), codec.TopEncodeUint64(nonce), quantity.Bytes()))
	return out, nil
}

// processNFTBurn: token, nonce, quantity.
func (d *Dispatcher) processNFTBurn(cache *txcache.Cache, in *vm.TxInput) (*Output, error) {
	a := newArgs(in.Args, 3)
	token := a.tokenID()
	nonce := a.u64()
	quantity := a.bigUint()
	requireRole(cache, in.From, token, world.RoleNFTBurn)

	acc := cache.Account(in.From)
	if acc.TokenBalance(token, nonce).Sign() == 0 {
		return nil, vm.NewTrap(vm.ExecutionFailed, MsgNFTNotFound)
	}
	_, err := cache.SubtractESDT(in.From, token, nonce, quantity)
	check(err)
	out := newOutput(in)
	out.Logs = append(out.Logs, transferLog(in.From, in.FuncName, []byte(token), codec.TopEncodeUint64(nonce), quantity.Bytes()))
	return out, nil
}

// processNFTAddURI: token, nonce, uris...
func (d *Dispatcher) processNFTAddURI(cache *txcache.Cache, in *vm.TxInput) (*Output, error) {
	a := newArgs(in.Args, 3)
	token := a.tokenID()
	nonce := a.u64()
	uris := a.rest()
	requireRole(cache, in.From, token, world.RoleNFTAddURI)

	check(cache.UpdateAccount(in.From, func(acc *world.Account) error {
		inst := instanceOf(acc, token, nonce)
		for _, u := range uris {
			inst.Metadata.URIs = append(inst.Metadata.URIs, append([]byte{}, u...))
		}
		return nil
	}))
	out := newOutput(in)
	out.Logs = append(out.Logs, transferLog(in.From, in.FuncName, []byte(token), codec.TopEncodeUint64(nonce)))
	return out, nil
}

// processNFTUpdateAttributes: token, nonce, attributes.
func (d *Dispatcher) processNFTUpdateAttributes(cache *txcache.Cache, in *vm.TxInput) (*Output, error) {
	a := newArgs(in.Args, 3)
	token := a.tokenID()
	nonce := a.u64()
	attributes := a.raw()
	requireRole(cache, in.From, token, world.RoleNFTUpdateAttributes)

	check(cache.UpdateAccount(in.From, func(acc *world.Account) error {
		inst := instanceOf(acc, token, nonce)
		inst.Metadata.Attributes = append([]byte{}, attributes...)
		return nil
	}))
	out := newOutput(in)
	out.Logs = append(out.Logs, transferLog(in.From, in.FuncName, []byte(token), codec.TopEncodeUint64(nonce), attributes))
	return out, nil
}

// processSetRoles: token, roles... Only the system SC may call; roles land on the call target.
func (d *Dispatcher) processSetRoles(cache *txcache.Cache, in *vm.TxInput, set bool) (*Output, error) {
	if in.From != types.SystemSCAddress {
		return nil, vm.NewTrap(vm.ExecutionFailed, MsgNotSystemContract)
	}
	a := newArgs(in.Args, 2)
	token := a.tokenID()
	var names []string
	for _, r := range a.rest() {
		names = append(names, string(r))
	}
	roles, err := world.RolesFromNames(names)
	if err != nil {
		return nil, vm.NewTrap(vm.ExecutionFailed, err.Error())
	}

	if !cache.AccountExists(in.To) {
		check(cache.IncreaseEGLD(in.To, new(big.Int)))
	}
	check(cache.UpdateAccount(in.To, func(acc *world.Account) error {
		data := acc.TokenDataMut(token)
		if set {
			data.Roles |= roles
		} else {
			data.Roles &^= roles
		}
		acc.PruneToken(token)
		return nil
	}))

	out := newOutput(in)
	topics := [][]byte{[]byte(token), nil, nil}
	for _, n := range names {
		topics = append(topics, []byte(n))
	}
	out.Logs = append(out.Logs, transferLog(in.To, in.FuncName, topics...))
	return out, nil
}
