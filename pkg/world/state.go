package world

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"

	"github.com/fortiblox/X1-Scenario/internal/types"
)

// RandomSeedSize is the size of the block random seed.
const RandomSeedSize = 48

// BlockInfo describes a block as seen by contracts.
type BlockInfo struct {
	Timestamp  uint64
	Nonce      uint64
	Round      uint64
	Epoch      uint64
	RandomSeed [RandomSeedSize]byte
}

// NewAddressKey identifies a deploy by creator and the creator's nonce at deploy time.
type NewAddressKey struct {
	Creator types.Address
	Nonce   uint64
}

// Updates is the set of account writes produced by a transaction.
type Updates struct {
	// Accounts holds the full new state of every touched account.
	Accounts map[types.Address]*Account

	// ConsumedNewAddresses lists predictions used by deploys.
	ConsumedNewAddresses []NewAddressKey
}

// NewUpdates creates an empty update set.
func NewUpdates() *Updates {
	return &Updates{Accounts: make(map[types.Address]*Account)}
}

// IsEmpty reports whether the update set carries nothing.
func (u *Updates) IsEmpty() bool {
	return len(u.Accounts) == 0 && len(u.ConsumedNewAddresses) == 0
}

// SortedAddresses returns the updated addresses in byte order.
func (u *Updates) SortedAddresses() []types.Address {
	addrs := make([]types.Address, 0, len(u.Accounts))
	for a := range u.Accounts {
		addrs = append(addrs, a)
	}
	sortAddresses(addrs)
	return addrs
}

// State is the committed world.
type State struct {
	accounts     map[types.Address]*Account
	newAddresses map[NewAddressKey]types.Address

	// PreviousBlock and CurrentBlock are exposed to contracts.
	PreviousBlock BlockInfo
	CurrentBlock  BlockInfo

	// BlockHashes are the hashes set by setState steps, oldest first.
	BlockHashes [][]byte
}

// NewState creates an empty world.
func NewState() *State {
	return &State{
		accounts:     make(map[types.Address]*Account),
		newAddresses: make(map[NewAddressKey]types.Address),
	}
}

// Account returns the committed account, or nil. Callers must not mutate it;
// mutations go through a txcache.Cache.
func (s *State) Account(addr types.Address) *Account {
	return s.accounts[addr]
}

// NewAddress returns a registered deploy prediction.
func (s *State) NewAddress(creator types.Address, nonce uint64) (types.Address, bool) {
	addr, ok := s.newAddresses[NewAddressKey{Creator: creator, Nonce: nonce}]
	return addr, ok
}

// SetAccount inserts or replaces an account after validating it. Unlike
// accounts created during execution, a contract address set here must carry code.
func (s *State) SetAccount(acc *Account) error {
	if err := acc.Validate(); err != nil {
		return err
	}
	if acc.IsSmartContract() && !acc.HasCode() {
		return errors.Wrapf(ErrMissingCode, "address %s", acc.Address)
	}
	s.accounts[acc.Address] = acc
	return nil
}

// RemoveAccount deletes an account.
func (s *State) RemoveAccount(addr types.Address) {
	delete(s.accounts, addr)
}

// PutNewAddress registers the address a deploy by creator at nonce will receive.
func (s *State) PutNewAddress(creator types.Address, nonce uint64, addr types.Address) {
	s.newAddresses[NewAddressKey{Creator: creator, Nonce: nonce}] = addr
}

// NewAddresses returns all registered predictions.
func (s *State) NewAddresses() map[NewAddressKey]types.Address {
	out := make(map[NewAddressKey]types.Address, len(s.newAddresses))
	for k, v := range s.newAddresses {
		out[k] = v
	}
	return out
}

// Addresses returns all account addresses in byte order.
func (s *State) Addresses() []types.Address {
	addrs := make([]types.Address, 0, len(s.accounts))
	for a := range s.accounts {
		addrs = append(addrs, a)
	}
	sortAddresses(addrs)
	return addrs
}

// Len returns the number of accounts.
func (s *State) Len() int {
	return len(s.accounts)
}

// Apply commits updates in address order.
func (s *State) Apply(u *Updates) {
	for _, addr := range u.SortedAddresses() {
		s.accounts[addr] = u.Accounts[addr]
	}
	for _, key := range u.ConsumedNewAddresses {
		delete(s.newAddresses, key)
	}
}

// Clone creates a deep copy of the world.
func (s *State) Clone() *State {
	c := NewState()
	for addr, acc := range s.accounts {
		c.accounts[addr] = acc.Clone()
	}
	for k, v := range s.newAddresses {
		c.newAddresses[k] = v
	}
	c.PreviousBlock = s.PreviousBlock
	c.CurrentBlock = s.CurrentBlock
	for _, h := range s.BlockHashes {
		c.BlockHashes = append(c.BlockHashes, cloneBytes(h))
	}
	return c
}

// DeriveContractAddress computes the address of a contract deployed by creator
// at the given nonce when no prediction is registered:
// keccak256(creator || nonce_le), first 8 bytes zeroed, bytes 8..10 set to
// the VM type, last 2 bytes copied from the creator.
func DeriveContractAddress(creator types.Address, nonce uint64) types.Address {
	var nonceLE [8]byte
	binary.LittleEndian.PutUint64(nonceLE[:], nonce)

	h := sha3.NewLegacyKeccak256()
	h.Write(creator[:])
	h.Write(nonceLE[:])
	sum := h.Sum(nil)

	var addr types.Address
	copy(addr[:], sum)
	for i := 0; i < types.SCAddressZeroPrefix; i++ {
		addr[i] = 0
	}
	addr[8] = types.VMTypeWasm[0]
	addr[9] = types.VMTypeWasm[1]
	addr[30] = creator[30]
	addr[31] = creator[31]
	return addr
}

func sortAddresses(addrs []types.Address) {
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
}
