package scenario

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/world"
)

func mustAddress(t *testing.T, expr string) types.Address {
	t.Helper()
	b, err := (&Interpreter{}).Interpret(expr)
	require.NoError(t, err)
	addr, err := types.AddressFromBytes(b)
	require.NoError(t, err)
	return addr
}

func sampleState(t *testing.T) *world.State {
	t.Helper()
	s := parseSample(t)
	state := world.NewState()
	require.NoError(t, ApplySetState(state, s.Steps[0].(*SetStateStep)))
	return state
}

func TestApplySetState(t *testing.T) {
	state := sampleState(t)
	alice := mustAddress(t, "address:alice")

	acc := state.Account(alice)
	require.NotNil(t, acc)
	assert.Equal(t, uint64(1), acc.Nonce)
	assert.Equal(t, int64(1000), acc.Balance.Int64())
	assert.Equal(t, []byte("value"), acc.StorageValue([]byte("key")))
	assert.Equal(t, []byte("alice.x"), acc.Username)
	assert.Equal(t, int64(50), acc.TokenBalance("TOK-123456", 0).Int64())

	nft := acc.TokenData("NFT-123456")
	require.NotNil(t, nft)
	assert.Equal(t, uint64(3), nft.LastNonce)
	assert.True(t, nft.Frozen)
	assert.Equal(t, []string{"ESDTRoleNFTCreate"}, nft.Roles.Names())
	inst := nft.Instance(1)
	require.NotNil(t, inst)
	assert.Equal(t, uint64(100), inst.Metadata.Royalties)

	assert.Equal(t, uint64(100), state.CurrentBlock.Timestamp)
	assert.Equal(t, uint64(7), state.CurrentBlock.Nonce)
	assert.Len(t, state.NewAddresses(), 1)
}

func TestApplySetStateKeepsUnsetBlockFields(t *testing.T) {
	state := sampleState(t)
	step := &SetStateStep{CurrentBlockInfo: &BlockInfo{Round: Value{Original: "9", Bytes: []byte{9}}}}
	require.NoError(t, ApplySetState(state, step))
	assert.Equal(t, uint64(100), state.CurrentBlock.Timestamp)
	assert.Equal(t, uint64(9), state.CurrentBlock.Round)
}

func TestApplySetStateReplacesAccounts(t *testing.T) {
	state := sampleState(t)
	step := &SetStateStep{Accounts: map[string]*AccountState{
		"address:alice": {Address: Value{Bytes: mustAddress(t, "address:alice").Bytes()}, Balance: Value{Bytes: []byte{5}}},
	}}
	require.NoError(t, ApplySetState(state, step))

	acc := state.Account(mustAddress(t, "address:alice"))
	require.NotNil(t, acc)
	assert.Equal(t, int64(5), acc.Balance.Int64())
	assert.Empty(t, acc.StorageKeys())
	assert.Empty(t, acc.TokenIDs())
}

func TestMarshalStateRoundTrip(t *testing.T) {
	state := sampleState(t)
	contract := world.NewAccount(mustAddress(t, "sc:adder"))
	contract.Code = []byte("MISSING:output/adder.wasm")
	contract.CodeMetadata = types.MetadataUpgradeable | types.MetadataPayable
	contract.Owner = mustAddress(t, "address:alice")
	contract.DeveloperReward = big.NewInt(12)
	contract.SetStorage([]byte{0xff, 0x00}, []byte{0x80})
	require.NoError(t, state.SetAccount(contract))
	state.BlockHashes = [][]byte{{1, 2, 3}}

	data, err := MarshalState("dump", state)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"address:alice"`)
	assert.Contains(t, string(data), `"sc:adder"`)

	loaded, err := LoadState(data)
	require.NoError(t, err)
	assert.Equal(t, world.ComputeStateHash(state), world.ComputeStateHash(loaded))
	assert.Equal(t, state.BlockHashes, loaded.BlockHashes)
	assert.Equal(t, state.NewAddresses(), loaded.NewAddresses())
}

func TestLoadStateRejectsOtherSteps(t *testing.T) {
	_, err := LoadState([]byte(`{"steps": [{"step": "dumpState"}]}`))
	assert.ErrorIs(t, err, ErrNotSetState)
}

func TestApplySetStateValidatesAccounts(t *testing.T) {
	tests := []struct {
		name    string
		account string
		want    error
	}{
		{"malformed token", `"address:a": {"esdt": {"str:bad id!": "5"}}`, world.ErrInvalidTokenID},
		{"native coin as token", `"address:a": {"esdt": {"str:EGLD": "5"}}`, world.ErrInvalidTokenID},
		{"contract without code", `"sc:empty": {"balance": "5"}`, world.ErrMissingCode},
		{"code on user address", `"address:a": {"code": "str:code"}`, world.ErrCodeOnUserAccount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadState([]byte(`{"steps": [{"step": "setState", "accounts": {` + tt.account + `}}]}`))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	state, err := LoadState([]byte(`{"steps": [{"step": "setState", "accounts": {
        "sc:vault": {"code": "str:code", "esdt": {"str:TOK-123456": "5"}}
    }}]}`))
	require.NoError(t, err)
	assert.Equal(t, int64(5), state.Account(mustAddress(t, "sc:vault")).TokenBalance("TOK-123456", 0).Int64())
}
