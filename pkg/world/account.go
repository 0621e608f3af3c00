// Package world holds the in-memory ledger the VM executes against.
//
// The world state is a map of accounts keyed by address, plus the
// predictions scenario files register for contract addresses that deploys
// will produce, plus the current and previous block information.
//
// Reads during a transaction go through a txcache.Cache layered on top of the
// world; only a successful top-level step commits its updates back here.
package world

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/pkg/errors"
)

var (
	// ErrAccountNotFound is returned when an account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrCodeOnUserAccount is returned when code is set on a non-contract address.
	ErrCodeOnUserAccount = errors.New("code can only be set on smart contract addresses")

	// ErrNegativeBalance is returned when a balance would drop below zero.
	ErrNegativeBalance = errors.New("negative balance")

	// ErrUnknownRole is returned when a role name is not recognized.
	ErrUnknownRole = errors.New("unknown ESDT role")

	// ErrMissingCode is returned when an account set on a contract address has no code.
	ErrMissingCode = errors.New("smart contract address without code")

	// ErrInvalidTokenID is returned for a token identifier that is not TICKER-xxxxxx.
	ErrInvalidTokenID = errors.New("invalid token identifier")
)

// Account is a single ledger entry.
type Account struct {
	// Address is the account identity.
	Address types.Address

	// Nonce counts top-level transactions sent by the account.
	Nonce uint64

	// Balance is the native coin balance.
	Balance *big.Int

	// ESDT maps token identifiers to the account's holdings and roles.
	ESDT map[string]*ESDTData

	// Storage is the contract key/value store. Empty values are never kept.
	Storage map[string][]byte

	// Username is the registered account name, if any.
	Username []byte

	// Code is the contract code identity. Present only on deployed contracts.
	Code []byte

	// CodeMetadata holds the upgradeable/readable/payable flags.
	CodeMetadata types.CodeMetadata

	// Owner is the contract owner. The zero address means no owner.
	Owner types.Address

	// DeveloperReward accumulates rewards claimable by the owner.
	DeveloperReward *big.Int
}

// NewAccount creates an empty account.
func NewAccount(addr types.Address) *Account {
	return &Account{
		Address:         addr,
		Balance:         new(big.Int),
		ESDT:            make(map[string]*ESDTData),
		Storage:         make(map[string][]byte),
		DeveloperReward: new(big.Int),
	}
}

// Clone creates a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := &Account{
		Address:         a.Address,
		Nonce:           a.Nonce,
		Balance:         cloneInt(a.Balance),
		ESDT:            make(map[string]*ESDTData, len(a.ESDT)),
		Storage:         make(map[string][]byte, len(a.Storage)),
		Username:        cloneBytes(a.Username),
		Code:            cloneBytes(a.Code),
		CodeMetadata:    a.CodeMetadata,
		Owner:           a.Owner,
		DeveloperReward: cloneInt(a.DeveloperReward),
	}
	for id, data := range a.ESDT {
		c.ESDT[id] = data.Clone()
	}
	for k, v := range a.Storage {
		c.Storage[k] = cloneBytes(v)
	}
	return c
}

// IsSmartContract reports whether the account lives at a contract address.
func (a *Account) IsSmartContract() bool {
	return a.Address.IsSmartContract()
}

// HasCode reports whether contract code is deployed on the account.
func (a *Account) HasCode() bool {
	return len(a.Code) > 0
}

// Validate checks the account invariants that hold at every point of
// execution. A contract address may exist without code here: value sent to
// an address before anything is deployed there creates such an account.
func (a *Account) Validate() error {
	if a.HasCode() && !a.IsSmartContract() {
		return errors.Wrapf(ErrCodeOnUserAccount, "address %s", a.Address)
	}
	if a.Balance != nil && a.Balance.Sign() < 0 {
		return errors.Wrapf(ErrNegativeBalance, "address %s", a.Address)
	}
	for id := range a.ESDT {
		if !types.IsValidTokenIdentifier(id) {
			return errors.Wrapf(ErrInvalidTokenID, "%q on %s", id, a.Address)
		}
	}
	return nil
}

// StorageValue returns the value stored under key. Missing keys read as empty.
func (a *Account) StorageValue(key []byte) []byte {
	return a.Storage[string(key)]
}

// SetStorage stores value under key. An empty value deletes the key.
// It returns the previous value.
func (a *Account) SetStorage(key, value []byte) []byte {
	prev := a.Storage[string(key)]
	if len(value) == 0 {
		delete(a.Storage, string(key))
	} else {
		a.Storage[string(key)] = cloneBytes(value)
	}
	return prev
}

// StorageKeys returns the storage keys in byte order.
func (a *Account) StorageKeys() []string {
	keys := make([]string, 0, len(a.Storage))
	for k := range a.Storage {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TokenData returns the holdings of a token, or nil.
func (a *Account) TokenData(tokenID string) *ESDTData {
	return a.ESDT[tokenID]
}

// TokenDataMut returns the holdings of a token, creating them if absent.
func (a *Account) TokenDataMut(tokenID string) *ESDTData {
	data, ok := a.ESDT[tokenID]
	if !ok {
		data = NewESDTData()
		a.ESDT[tokenID] = data
	}
	return data
}

// TokenBalance returns the balance of a token instance. Missing instances read as zero.
func (a *Account) TokenBalance(tokenID string, nonce uint64) *big.Int {
	data := a.ESDT[tokenID]
	if data == nil {
		return new(big.Int)
	}
	return data.Balance(nonce)
}

// TokenIDs returns the held token identifiers in order.
func (a *Account) TokenIDs() []string {
	ids := make([]string, 0, len(a.ESDT))
	for id := range a.ESDT {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PruneToken drops token data that no longer carries anything.
func (a *Account) PruneToken(tokenID string) {
	if data := a.ESDT[tokenID]; data != nil && data.IsEmpty() {
		delete(a.ESDT, tokenID)
	}
}

// Equal reports whether two accounts hold identical state.
func (a *Account) Equal(b *Account) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Address != b.Address || a.Nonce != b.Nonce || a.CodeMetadata != b.CodeMetadata || a.Owner != b.Owner {
		return false
	}
	if intValue(a.Balance).Cmp(intValue(b.Balance)) != 0 || intValue(a.DeveloperReward).Cmp(intValue(b.DeveloperReward)) != 0 {
		return false
	}
	if !bytes.Equal(a.Code, b.Code) || !bytes.Equal(a.Username, b.Username) {
		return false
	}
	if len(a.Storage) != len(b.Storage) || len(a.ESDT) != len(b.ESDT) {
		return false
	}
	for k, v := range a.Storage {
		if !bytes.Equal(v, b.Storage[k]) {
			return false
		}
	}
	for id, data := range a.ESDT {
		if !data.Equal(b.ESDT[id]) {
			return false
		}
	}
	return true
}

func cloneInt(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

func intValue(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
