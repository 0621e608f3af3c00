package world

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/pkg/errors"
)

// Roles is the bitset of local token roles an account holds.
type Roles uint16

// Role bits.
const (
	RoleLocalMint Roles = 1 << iota
	RoleLocalBurn
	RoleNFTCreate
	RoleNFTAddQuantity
	RoleNFTBurn
	RoleNFTAddURI
	RoleNFTUpdateAttributes
	RoleTransfer
)

var roleNames = []struct {
	role Roles
	name string
}{
	{RoleLocalMint, types.RoleLocalMint},
	{RoleLocalBurn, types.RoleLocalBurn},
	{RoleNFTCreate, types.RoleNFTCreate},
	{RoleNFTAddQuantity, types.RoleNFTAddQuantity},
	{RoleNFTBurn, types.RoleNFTBurn},
	{RoleNFTAddURI, types.RoleNFTAddURI},
	{RoleNFTUpdateAttributes, types.RoleNFTUpdateAttributes},
	{RoleTransfer, types.RoleTransfer},
}

// RoleFromName maps a role name to its bit.
func RoleFromName(name string) (Roles, error) {
	for _, r := range roleNames {
		if r.name == name {
			return r.role, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownRole, "%q", name)
}

// RolesFromNames maps a list of role names to a bitset.
func RolesFromNames(names []string) (Roles, error) {
	var roles Roles
	for _, n := range names {
		r, err := RoleFromName(n)
		if err != nil {
			return 0, err
		}
		roles |= r
	}
	return roles, nil
}

// Has reports whether all bits of r are held.
func (rs Roles) Has(r Roles) bool {
	return rs&r == r
}

// Names returns the held role names in canonical order.
func (rs Roles) Names() []string {
	var names []string
	for _, r := range roleNames {
		if rs.Has(r.role) {
			names = append(names, r.name)
		}
	}
	return names
}

// InstanceMetadata describes a non-fungible or semi-fungible token instance.
type InstanceMetadata struct {
	Name       []byte
	Creator    types.Address
	Royalties  uint64
	Hash       []byte
	URIs       [][]byte
	Attributes []byte
}

// Clone creates a deep copy of the metadata.
func (m InstanceMetadata) Clone() InstanceMetadata {
	c := m
	c.Name = cloneBytes(m.Name)
	c.Hash = cloneBytes(m.Hash)
	c.Attributes = cloneBytes(m.Attributes)
	c.URIs = make([][]byte, len(m.URIs))
	for i, u := range m.URIs {
		c.URIs[i] = cloneBytes(u)
	}
	return c
}

// Equal reports whether two metadata values match.
func (m InstanceMetadata) Equal(o InstanceMetadata) bool {
	if m.Creator != o.Creator || m.Royalties != o.Royalties {
		return false
	}
	if !bytes.Equal(m.Name, o.Name) || !bytes.Equal(m.Hash, o.Hash) || !bytes.Equal(m.Attributes, o.Attributes) {
		return false
	}
	if len(m.URIs) != len(o.URIs) {
		return false
	}
	for i := range m.URIs {
		if !bytes.Equal(m.URIs[i], o.URIs[i]) {
			return false
		}
	}
	return true
}

// ESDTInstance is a held amount of one token nonce. Nonce 0 is the fungible instance.
type ESDTInstance struct {
	Nonce    uint64
	Balance  *big.Int
	Metadata InstanceMetadata
}

// Clone creates a deep copy of the instance.
func (i *ESDTInstance) Clone() *ESDTInstance {
	return &ESDTInstance{
		Nonce:    i.Nonce,
		Balance:  cloneInt(i.Balance),
		Metadata: i.Metadata.Clone(),
	}
}

// ESDTData is everything an account holds for one token identifier.
type ESDTData struct {
	Instances map[uint64]*ESDTInstance
	LastNonce uint64
	Roles     Roles
	Frozen    bool
}

// NewESDTData creates empty token data.
func NewESDTData() *ESDTData {
	return &ESDTData{Instances: make(map[uint64]*ESDTInstance)}
}

// Clone creates a deep copy.
func (d *ESDTData) Clone() *ESDTData {
	if d == nil {
		return nil
	}
	c := &ESDTData{
		Instances: make(map[uint64]*ESDTInstance, len(d.Instances)),
		LastNonce: d.LastNonce,
		Roles:     d.Roles,
		Frozen:    d.Frozen,
	}
	for n, inst := range d.Instances {
		c.Instances[n] = inst.Clone()
	}
	return c
}

// Balance returns the balance of an instance; missing instances read as zero.
func (d *ESDTData) Balance(nonce uint64) *big.Int {
	if inst := d.Instances[nonce]; inst != nil {
		return new(big.Int).Set(inst.Balance)
	}
	return new(big.Int)
}

// Instance returns the instance with the given nonce, or nil.
func (d *ESDTData) Instance(nonce uint64) *ESDTInstance {
	return d.Instances[nonce]
}

// Nonces returns the held instance nonces in order.
func (d *ESDTData) Nonces() []uint64 {
	nonces := make([]uint64, 0, len(d.Instances))
	for n := range d.Instances {
		nonces = append(nonces, n)
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i] < nonces[j] })
	return nonces
}

// Add increases an instance balance, creating it with metadata when absent.
func (d *ESDTData) Add(nonce uint64, amount *big.Int, metadata *InstanceMetadata) {
	inst := d.Instances[nonce]
	if inst == nil {
		inst = &ESDTInstance{Nonce: nonce, Balance: new(big.Int)}
		if metadata != nil {
			inst.Metadata = metadata.Clone()
		}
		d.Instances[nonce] = inst
	}
	inst.Balance.Add(inst.Balance, amount)
}

// Sub decreases an instance balance and drops the instance when it reaches zero.
// It returns the metadata of the instance, for callers that move the tokens elsewhere.
func (d *ESDTData) Sub(nonce uint64, amount *big.Int) (InstanceMetadata, bool) {
	inst := d.Instances[nonce]
	if inst == nil {
		if amount.Sign() == 0 {
			return InstanceMetadata{}, true
		}
		return InstanceMetadata{}, false
	}
	if inst.Balance.Cmp(amount) < 0 {
		return InstanceMetadata{}, false
	}
	inst.Balance.Sub(inst.Balance, amount)
	md := inst.Metadata.Clone()
	if inst.Balance.Sign() == 0 {
		delete(d.Instances, nonce)
	}
	return md, true
}

// IsEmpty reports whether the data holds no balance, roles or nonce history.
func (d *ESDTData) IsEmpty() bool {
	return len(d.Instances) == 0 && d.Roles == 0 && d.LastNonce == 0 && !d.Frozen
}

// Equal reports whether two token data values match.
func (d *ESDTData) Equal(o *ESDTData) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.LastNonce != o.LastNonce || d.Roles != o.Roles || d.Frozen != o.Frozen || len(d.Instances) != len(o.Instances) {
		return false
	}
	for n, inst := range d.Instances {
		other := o.Instances[n]
		if other == nil || inst.Balance.Cmp(other.Balance) != 0 || !inst.Metadata.Equal(other.Metadata) {
			return false
		}
	}
	return true
}
