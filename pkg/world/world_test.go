package world

import (
	"math/big"
	"testing"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userAddr(name string) types.Address {
	var a types.Address
	copy(a[:], name)
	for i := len(name); i < len(a); i++ {
		a[i] = '_'
	}
	return a
}

func scAddr(name string) types.Address {
	var a types.Address
	copy(a[8:], name)
	for i := 8 + len(name); i < len(a); i++ {
		a[i] = '_'
	}
	return a
}

func sampleAccount() *Account {
	acc := NewAccount(userAddr("alice"))
	acc.Nonce = 3
	acc.Balance.SetInt64(1000)
	acc.SetStorage([]byte("k"), []byte("v"))
	data := acc.TokenDataMut("NFT-123456")
	data.Add(1, big.NewInt(2), &InstanceMetadata{Name: []byte("one"), URIs: [][]byte{[]byte("uri")}, Royalties: 100})
	data.LastNonce = 1
	data.Roles = RoleNFTCreate | RoleNFTBurn
	return acc
}

func TestAccountClone(t *testing.T) {
	acc := sampleAccount()
	c := acc.Clone()
	require.True(t, acc.Equal(c))

	c.Balance.SetInt64(1)
	c.Storage["k"][0] = 'x'
	c.ESDT["NFT-123456"].Instances[1].Metadata.URIs[0][0] = 'X'

	assert.Equal(t, int64(1000), acc.Balance.Int64())
	assert.Equal(t, []byte("v"), acc.StorageValue([]byte("k")))
	assert.Equal(t, []byte("uri"), acc.ESDT["NFT-123456"].Instances[1].Metadata.URIs[0])
	assert.False(t, acc.Equal(c))
}

func TestAccountStorage(t *testing.T) {
	acc := NewAccount(scAddr("adder"))
	prev := acc.SetStorage([]byte("sum"), []byte{5})
	assert.Nil(t, prev)
	prev = acc.SetStorage([]byte("sum"), nil)
	assert.Equal(t, []byte{5}, prev)
	assert.Empty(t, acc.Storage)
	assert.Empty(t, acc.StorageValue([]byte("sum")))
}

func TestAccountValidate(t *testing.T) {
	acc := NewAccount(userAddr("bob"))
	acc.Code = []byte("code")
	assert.ErrorIs(t, acc.Validate(), ErrCodeOnUserAccount)

	sc := NewAccount(scAddr("c"))
	sc.Code = []byte("code")
	assert.NoError(t, sc.Validate())
}

func TestSetAccountRequiresContractCode(t *testing.T) {
	s := NewState()
	sc := NewAccount(scAddr("c"))
	assert.NoError(t, sc.Validate())
	assert.ErrorIs(t, s.SetAccount(sc), ErrMissingCode)
	assert.Nil(t, s.Account(scAddr("c")))

	sc.Code = []byte("code")
	require.NoError(t, s.SetAccount(sc))
	assert.NotNil(t, s.Account(scAddr("c")))
}

func TestValidateTokenIdentifiers(t *testing.T) {
	acc := NewAccount(userAddr("bob"))
	acc.TokenDataMut("TOK-123456").Add(0, big.NewInt(1), nil)
	require.NoError(t, acc.Validate())

	acc.TokenDataMut("bad id!").Add(0, big.NewInt(1), nil)
	assert.ErrorIs(t, acc.Validate(), ErrInvalidTokenID)
	assert.ErrorIs(t, NewState().SetAccount(acc), ErrInvalidTokenID)
}

func TestESDTDataSub(t *testing.T) {
	data := NewESDTData()
	data.Add(0, big.NewInt(10), nil)

	_, ok := data.Sub(0, big.NewInt(11))
	assert.False(t, ok)

	_, ok = data.Sub(0, big.NewInt(10))
	assert.True(t, ok)
	assert.Empty(t, data.Instances)
	assert.Equal(t, int64(0), data.Balance(0).Int64())

	_, ok = data.Sub(5, big.NewInt(0))
	assert.True(t, ok)
}

func TestRoles(t *testing.T) {
	roles, err := RolesFromNames([]string{types.RoleLocalMint, types.RoleNFTBurn})
	require.NoError(t, err)
	assert.True(t, roles.Has(RoleLocalMint))
	assert.False(t, roles.Has(RoleLocalBurn))
	assert.Equal(t, []string{types.RoleLocalMint, types.RoleNFTBurn}, roles.Names())

	_, err = RolesFromNames([]string{"ESDTRoleNope"})
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestStateApplyAndClone(t *testing.T) {
	s := NewState()
	require.NoError(t, s.SetAccount(sampleAccount()))
	s.PutNewAddress(userAddr("alice"), 3, scAddr("new"))

	clone := s.Clone()

	u := NewUpdates()
	acc := s.Account(userAddr("alice")).Clone()
	acc.Nonce = 4
	u.Accounts[acc.Address] = acc
	u.ConsumedNewAddresses = append(u.ConsumedNewAddresses, NewAddressKey{Creator: userAddr("alice"), Nonce: 3})
	s.Apply(u)

	assert.Equal(t, uint64(4), s.Account(userAddr("alice")).Nonce)
	_, ok := s.NewAddress(userAddr("alice"), 3)
	assert.False(t, ok)

	assert.Equal(t, uint64(3), clone.Account(userAddr("alice")).Nonce)
	addr, ok := clone.NewAddress(userAddr("alice"), 3)
	assert.True(t, ok)
	assert.Equal(t, scAddr("new"), addr)
}

func TestDeriveContractAddress(t *testing.T) {
	creator := userAddr("owner")
	a := DeriveContractAddress(creator, 0)
	b := DeriveContractAddress(creator, 1)

	assert.True(t, a.IsSmartContract())
	assert.NotEqual(t, a, b)
	assert.Equal(t, types.VMTypeWasm[0], a[8])
	assert.Equal(t, types.VMTypeWasm[1], a[9])
	assert.Equal(t, creator[30:], a[30:])
	assert.Equal(t, a, DeriveContractAddress(creator, 0))
}

func TestStateHashDeterministic(t *testing.T) {
	s1 := NewState()
	s2 := NewState()
	require.NoError(t, s1.SetAccount(sampleAccount()))
	require.NoError(t, s2.SetAccount(sampleAccount()))
	require.NoError(t, s1.SetAccount(NewAccount(userAddr("bob"))))
	require.NoError(t, s2.SetAccount(NewAccount(userAddr("bob"))))

	assert.Equal(t, ComputeStateHash(s1), ComputeStateHash(s2))

	s2.Account(userAddr("bob")).Balance.SetInt64(1)
	assert.NotEqual(t, ComputeStateHash(s1), ComputeStateHash(s2))
}

func TestStores(t *testing.T) {
	badgerStore, err := NewBadgerStore(BadgerStoreConfig{InMemory: true})
	require.NoError(t, err)

	stores := []struct {
		name  string
		store Store
	}{
		{"memory", NewMemoryStore()},
		{"badger", badgerStore},
	}
	for _, tt := range stores {
		t.Run(tt.name, func(t *testing.T) {
			defer tt.store.Close()

			empty, err := tt.store.LoadState()
			require.NoError(t, err)
			assert.Zero(t, empty.Len())

			s := NewState()
			require.NoError(t, s.SetAccount(sampleAccount()))
			require.NoError(t, s.SetAccount(NewAccount(userAddr("empty"))))
			s.PutNewAddress(userAddr("alice"), 7, scAddr("next"))
			s.CurrentBlock.Nonce = 42
			s.CurrentBlock.RandomSeed[0] = 9
			s.BlockHashes = [][]byte{{1, 2}}

			require.NoError(t, tt.store.SaveState(s))
			loaded, err := tt.store.LoadState()
			require.NoError(t, err)

			assert.Equal(t, ComputeStateHash(s), ComputeStateHash(loaded))
			assert.True(t, s.Account(userAddr("alice")).Equal(loaded.Account(userAddr("alice"))))
			addr, ok := loaded.NewAddress(userAddr("alice"), 7)
			assert.True(t, ok)
			assert.Equal(t, scAddr("next"), addr)
			assert.Equal(t, uint64(42), loaded.CurrentBlock.Nonce)
			assert.Equal(t, [][]byte{{1, 2}}, loaded.BlockHashes)

			// saving again replaces the previous content
			require.NoError(t, tt.store.SaveState(NewState()))
			loaded, err = tt.store.LoadState()
			require.NoError(t, err)
			assert.Zero(t, loaded.Len())
		})
	}
}
