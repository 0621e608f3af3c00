// Package txcache implements the transaction-scoped overlay over the world.
//
// A Cache records the full new state of every account a transaction touches.
// Reads fall through to the source (the committed world, or a parent cache for
// nested calls). Commit hands the collected updates to the target exactly once;
// dropping a cache without committing discards everything it recorded.
package txcache

import (
	"math/big"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/world"
	"github.com/pkg/errors"
)

var (
	// ErrInsufficientFunds is returned when a balance is too low for a debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountNotFound is returned when mutating an account that doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountCollision is returned when inserting an account that already exists.
	ErrAccountCollision = errors.New("account already exists")

	// ErrNegativeAmount is returned when a transfer amount is negative.
	ErrNegativeAmount = errors.New("negative amount")
)

// Source provides read access to accounts below a cache.
type Source interface {
	Account(addr types.Address) *world.Account
	NewAddress(creator types.Address, nonce uint64) (types.Address, bool)
}

// Target receives committed updates.
type Target interface {
	Apply(u *world.Updates)
}

// Verify that the world and caches can be stacked.
var (
	_ Source = (*world.State)(nil)
	_ Target = (*world.State)(nil)
	_ Source = (*Cache)(nil)
	_ Target = (*Cache)(nil)
)

// Cache is a write overlay for one transaction or nested call.
type Cache struct {
	source    Source
	accounts  map[types.Address]*world.Account
	consumed  []world.NewAddressKey
	used      map[world.NewAddressKey]bool
	committed bool
}

// New creates an empty cache over source.
func New(source Source) *Cache {
	return &Cache{
		source:   source,
		accounts: make(map[types.Address]*world.Account),
		used:     make(map[world.NewAddressKey]bool),
	}
}

// Account returns the current view of an account, or nil. The result must not be mutated.
func (c *Cache) Account(addr types.Address) *world.Account {
	if acc, ok := c.accounts[addr]; ok {
		return acc
	}
	return c.source.Account(addr)
}

// AccountExists reports whether the account exists in this view.
func (c *Cache) AccountExists(addr types.Address) bool {
	return c.Account(addr) != nil
}

// NewAddress returns an unconsumed deploy prediction.
func (c *Cache) NewAddress(creator types.Address, nonce uint64) (types.Address, bool) {
	if c.used[world.NewAddressKey{Creator: creator, Nonce: nonce}] {
		return types.Address{}, false
	}
	return c.source.NewAddress(creator, nonce)
}

// ConsumeNewAddress takes a deploy prediction, so no later deploy reuses it.
func (c *Cache) ConsumeNewAddress(creator types.Address, nonce uint64) (types.Address, bool) {
	addr, ok := c.NewAddress(creator, nonce)
	if !ok {
		return addr, false
	}
	key := world.NewAddressKey{Creator: creator, Nonce: nonce}
	c.used[key] = true
	c.consumed = append(c.consumed, key)
	return addr, true
}

// mutable returns the writable copy of an existing account.
func (c *Cache) mutable(addr types.Address) (*world.Account, error) {
	if acc, ok := c.accounts[addr]; ok {
		return acc, nil
	}
	src := c.source.Account(addr)
	if src == nil {
		return nil, errors.Wrapf(ErrAccountNotFound, "address %s", addr)
	}
	acc := src.Clone()
	c.accounts[addr] = acc
	return acc, nil
}

// mutableOrCreate returns the writable copy of an account, creating it when absent.
func (c *Cache) mutableOrCreate(addr types.Address) *world.Account {
	acc, err := c.mutable(addr)
	if err != nil {
		acc = world.NewAccount(addr)
		c.accounts[addr] = acc
	}
	return acc
}

// UpdateAccount runs fn on the writable copy of an existing account.
func (c *Cache) UpdateAccount(addr types.Address, fn func(acc *world.Account) error) error {
	acc, err := c.mutable(addr)
	if err != nil {
		return err
	}
	return fn(acc)
}

// InsertAccount adds a new account. It fails if the address is already taken.
func (c *Cache) InsertAccount(acc *world.Account) error {
	if c.AccountExists(acc.Address) {
		return errors.Wrapf(ErrAccountCollision, "address %s", acc.Address)
	}
	if err := acc.Validate(); err != nil {
		return err
	}
	c.accounts[acc.Address] = acc
	return nil
}

// IncreaseNonce bumps the account nonce.
func (c *Cache) IncreaseNonce(addr types.Address) error {
	return c.UpdateAccount(addr, func(acc *world.Account) error {
		acc.Nonce++
		return nil
	})
}

// SubtractTxGas charges gasLimit*gasPrice to the sender.
func (c *Cache) SubtractTxGas(addr types.Address, gasLimit, gasPrice uint64) error {
	fee := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), new(big.Int).SetUint64(gasPrice))
	return c.SubtractEGLD(addr, fee)
}

// SubtractEGLD debits the native balance.
func (c *Cache) SubtractEGLD(addr types.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	return c.UpdateAccount(addr, func(acc *world.Account) error {
		if acc.Balance.Cmp(amount) < 0 {
			return ErrInsufficientFunds
		}
		acc.Balance.Sub(acc.Balance, amount)
		return nil
	})
}

// IncreaseEGLD credits the native balance, creating the account if needed.
func (c *Cache) IncreaseEGLD(addr types.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 && c.AccountExists(addr) {
		return nil
	}
	acc := c.mutableOrCreate(addr)
	acc.Balance.Add(acc.Balance, amount)
	return nil
}

// TransferEGLD moves native balance between accounts.
func (c *Cache) TransferEGLD(from, to types.Address, amount *big.Int) error {
	if err := c.SubtractEGLD(from, amount); err != nil {
		return err
	}
	return c.IncreaseEGLD(to, amount)
}

// SubtractESDT debits a token instance and returns its metadata.
func (c *Cache) SubtractESDT(addr types.Address, tokenID string, nonce uint64, amount *big.Int) (world.InstanceMetadata, error) {
	var md world.InstanceMetadata
	if amount.Sign() < 0 {
		return md, ErrNegativeAmount
	}
	err := c.UpdateAccount(addr, func(acc *world.Account) error {
		data := acc.TokenData(tokenID)
		if data == nil {
			if amount.Sign() == 0 {
				return nil
			}
			return ErrInsufficientFunds
		}
		m, ok := data.Sub(nonce, amount)
		if !ok {
			return ErrInsufficientFunds
		}
		md = m
		acc.PruneToken(tokenID)
		return nil
	})
	return md, err
}

// IncreaseESDT credits a token instance, creating the account if needed.
// Metadata is only used when the instance does not exist yet.
func (c *Cache) IncreaseESDT(addr types.Address, tokenID string, nonce uint64, amount *big.Int, metadata *world.InstanceMetadata) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	acc := c.mutableOrCreate(addr)
	acc.TokenDataMut(tokenID).Add(nonce, amount, metadata)
	return nil
}

// TransferESDT moves a token instance, carrying its metadata.
func (c *Cache) TransferESDT(from, to types.Address, tokenID string, nonce uint64, amount *big.Int) error {
	md, err := c.SubtractESDT(from, tokenID, nonce, amount)
	if err != nil {
		return err
	}
	return c.IncreaseESDT(to, tokenID, nonce, amount, &md)
}

// Updates returns the collected writes.
func (c *Cache) Updates() *world.Updates {
	u := world.NewUpdates()
	for addr, acc := range c.accounts {
		u.Accounts[addr] = acc
	}
	u.ConsumedNewAddresses = append(u.ConsumedNewAddresses, c.consumed...)
	return u
}

// Apply merges updates from a nested cache into this one.
func (c *Cache) Apply(u *world.Updates) {
	for _, addr := range u.SortedAddresses() {
		c.accounts[addr] = u.Accounts[addr]
	}
	for _, key := range u.ConsumedNewAddresses {
		if !c.used[key] {
			c.used[key] = true
			c.consumed = append(c.consumed, key)
		}
	}
}

// Commit hands the collected writes to target. Only the first call has an effect;
// the cache gives up ownership of the committed accounts.
func (c *Cache) Commit(target Target) {
	if c.committed {
		return
	}
	c.committed = true
	target.Apply(c.Updates())
	c.accounts = make(map[types.Address]*world.Account)
	c.consumed = nil
}

// Committed reports whether Commit has run.
func (c *Cache) Committed() bool {
	return c.committed
}
