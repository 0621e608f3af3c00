package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressIsSmartContract(t *testing.T) {
	tests := []struct {
		name string
		addr Address
		want bool
	}{
		{"zero", Address{}, true},
		{"system sc", SystemSCAddress, true},
		{"user", Address{1}, false},
		{"byte 7 set", Address{0, 0, 0, 0, 0, 0, 0, 1}, false},
		{"byte 8 set", Address{0, 0, 0, 0, 0, 0, 0, 0, 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.addr.IsSmartContract())
		})
	}
}

func TestAddressBech32(t *testing.T) {
	var a Address
	for i := range a {
		a[i] = byte(i)
	}
	s := a.Bech32()
	require.NotEmpty(t, s)
	assert.Equal(t, "erd1", s[:4])

	back, err := AddressFromBech32(s)
	require.NoError(t, err)
	assert.Equal(t, a, back)

	_, err = AddressFromBech32("erd1invalid")
	assert.Error(t, err)
}

func TestAddressString(t *testing.T) {
	var user Address
	copy(user[:], "owner___________________________")
	assert.Equal(t, "address:owner", user.String())

	var sc Address
	copy(sc[8:], "adder___________________")
	assert.Equal(t, "sc:adder", sc.String())

	assert.Equal(t, "0x"+SystemSCAddress.Hex(), SystemSCAddress.String())
}

func TestTokenIdentifier(t *testing.T) {
	valid := []string{"CROWD-123456", "ABC-abcdef", "ABCDEFGHIJ-000000", "A1B-0a0b0c"}
	invalid := []string{"EGLD", "AB-123456", "crowd-123456", "CROWD-12345", "CROWD-ABCDEF", "ABCDEFGHIJK-123456"}
	for _, id := range valid {
		assert.True(t, IsValidTokenIdentifier(id), id)
	}
	for _, id := range invalid {
		assert.False(t, IsValidTokenIdentifier(id), id)
	}
	assert.True(t, IsNativeToken("EGLD"))
	assert.True(t, IsNativeToken("EGLD-000000"))
	assert.False(t, IsNativeToken("WEGLD-abcdef"))
}

func TestCodeMetadata(t *testing.T) {
	m := CodeMetadataFromBytes([]byte{0x05, 0x06})
	assert.True(t, m.Upgradeable())
	assert.True(t, m.Readable())
	assert.True(t, m.Payable())
	assert.True(t, m.PayableBySC())
	assert.Equal(t, []byte{0x05, 0x06}, m.Bytes())

	assert.Equal(t, MetadataPayable, CodeMetadataFromBytes([]byte{0x02}))
	assert.False(t, CodeMetadata(0).Payable())
}

func TestIsProtectedKey(t *testing.T) {
	assert.True(t, IsProtectedKey([]byte("ELRONDesdtCROWD-123456")))
	assert.False(t, IsProtectedKey([]byte("deposit")))
}
