package scenario

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Scenario/pkg/vm"
	"github.com/fortiblox/X1-Scenario/pkg/world"
)

func exact(b ...byte) CheckValue {
	return CheckValue{Value: Value{Bytes: b}}
}

func TestCheckTx(t *testing.T) {
	res := &vm.TxResult{
		Status:       vm.UserError,
		Message:      "wrong amount",
		Values:       [][]byte{{1}, {2}},
		GasRemaining: 50,
		GasRefund:    uint256.NewInt(3),
		Logs:         []vm.Log{{Endpoint: "transfer", Topics: [][]byte{{7}}, Data: []byte("d")}},
	}

	t.Run("match", func(t *testing.T) {
		e := &TxExpect{
			Out:     []CheckValue{Star, exact(2)},
			Status:  exact(4),
			Message: MessageCheck{CheckValue: exact([]byte("amount")...), Substring: true},
			Logs:    CheckLogs{List: []CheckLog{{Address: Star, Endpoint: exact([]byte("transfer")...), Topics: []CheckValue{exact(7)}, Data: Star}}},
			Gas:     exact(50),
			Refund:  exact(3),
		}
		assert.Empty(t, checkTx(e, res, true))
	})

	t.Run("mismatch", func(t *testing.T) {
		e := &TxExpect{
			Out:     []CheckValue{exact(1)},
			Status:  exact(),
			Message: MessageCheck{CheckValue: exact([]byte("other")...)},
			Logs:    CheckLogs{Star: true},
			Gas:     exact(1),
			Refund:  Star,
		}
		f := checkTx(e, res, true)
		require.Len(t, f, 4)
		assert.Contains(t, f[0], "status")
		assert.Contains(t, f[1], "message")
		assert.Contains(t, f[2], "out")
		assert.Contains(t, f[3], "gas")
	})

	t.Run("gas ignored without checkGas", func(t *testing.T) {
		e := &TxExpect{OutStar: true, Status: Star, Message: MessageCheck{CheckValue: Star}, Logs: CheckLogs{Star: true}, Gas: exact(1), Refund: Star}
		assert.Empty(t, checkTx(e, res, false))
	})
}

func TestCheckLogs(t *testing.T) {
	logs := []vm.Log{{Endpoint: "a"}, {Endpoint: "b"}}
	first := CheckLog{Address: Star, Endpoint: exact('a'), TopicsStar: true, Data: Star}

	assert.NotEmpty(t, checkLogs(CheckLogs{List: []CheckLog{first}}, logs))
	assert.Empty(t, checkLogs(CheckLogs{List: []CheckLog{first}, AllowMore: true}, logs))
	assert.Empty(t, checkLogs(CheckLogs{Star: true}, nil))
	assert.NotEmpty(t, checkLogs(CheckLogs{}, logs))
}

func checkStateState(t *testing.T) *world.State {
	t.Helper()
	state := world.NewState()
	acc := world.NewAccount(mustAddress(t, "address:alice"))
	acc.Nonce = 2
	acc.Balance = big.NewInt(100)
	acc.SetStorage([]byte("k"), []byte("v"))
	acc.TokenDataMut("TOK-123456").Add(0, big.NewInt(5), nil)
	acc.TokenDataMut("NFT-123456").Add(1, big.NewInt(1), &world.InstanceMetadata{Royalties: 10})
	acc.TokenDataMut("NFT-123456").LastNonce = 1
	require.NoError(t, state.SetAccount(acc))
	require.NoError(t, state.SetAccount(world.NewAccount(mustAddress(t, "address:bob"))))
	return state
}

func aliceCheck(t *testing.T) *CheckAccount {
	return &CheckAccount{
		Address:          Value{Bytes: mustAddress(t, "address:alice").Bytes()},
		Nonce:            exact(2),
		Balance:          exact(100),
		Username:         Star,
		Code:             Star,
		CodeMetadata:     Star,
		Owner:            Star,
		DeveloperRewards: Star,
		Storage:          CheckMap{Entries: map[string]CheckValue{"k": exact('v')}},
		ESDT:             CheckTokens{Star: true},
	}
}

func TestCheckState(t *testing.T) {
	state := checkStateState(t)

	step := &CheckStateStep{Accounts: map[string]*CheckAccount{"address:alice": aliceCheck(t)}}
	f := checkState(state, step)
	require.Len(t, f, 1)
	assert.Contains(t, f[0], "unexpected account address:bob")

	step.AllowMore = true
	assert.Empty(t, checkState(state, step))

	step.Accounts["address:carol"] = &CheckAccount{Address: Value{Bytes: mustAddress(t, "address:carol").Bytes()}}
	f = checkState(state, step)
	require.Len(t, f, 1)
	assert.Contains(t, f[0], "account not found")
}

func TestCheckAccountFields(t *testing.T) {
	acc := checkStateState(t).Account(mustAddress(t, "address:alice"))

	ca := aliceCheck(t)
	ca.Nonce = exact(3)
	ca.Storage = CheckMap{Entries: map[string]CheckValue{}}
	f := checkAccount(ca, acc)
	require.Len(t, f, 2)
	assert.Contains(t, f[0], "nonce")
	assert.Contains(t, f[1], "storage[str:k]: unexpected value")

	ca = aliceCheck(t)
	ca.Storage = CheckMap{AllowMore: true, Entries: map[string]CheckValue{"missing": exact()}}
	assert.Empty(t, checkAccount(ca, acc))
}

func TestCheckTokens(t *testing.T) {
	acc := checkStateState(t).Account(mustAddress(t, "address:alice"))
	fungible := &CheckToken{
		Instances: []CheckInstance{{Balance: exact(5), Creator: Star, Royalties: Star, Hash: Star, URIsStar: true, Attributes: Star}},
		LastNonce: Star,
		RolesStar: true,
		Frozen:    Star,
	}

	ct := CheckTokens{Tokens: map[string]*CheckToken{"TOK-123456": fungible}}
	f := checkTokens(ct, acc)
	require.Len(t, f, 1)
	assert.Contains(t, f[0], "[NFT-123456]: unexpected token")

	ct.AllowMore = true
	assert.Empty(t, checkTokens(ct, acc))

	nft := &CheckToken{
		Instances: []CheckInstance{{
			Nonce:      Value{Bytes: []byte{1}},
			Balance:    exact(1),
			Creator:    exact(),
			Royalties:  exact(10),
			Hash:       exact(),
			Attributes: exact(),
		}},
		ExactInstances: true,
		LastNonce:      exact(1),
		Frozen:         exact(),
	}
	ct = CheckTokens{Tokens: map[string]*CheckToken{"TOK-123456": fungible, "NFT-123456": nft}}
	assert.Empty(t, checkTokens(ct, acc))

	nft.Instances[0].Royalties = exact(11)
	nft.Roles = []string{"ESDTRoleNFTCreate"}
	f = checkTokens(ct, acc)
	require.Len(t, f, 2)
	assert.Contains(t, f[0], "[NFT-123456][nonce 1].royalties")
	assert.Contains(t, f[1], "[NFT-123456].roles")

	missing := &CheckToken{Instances: []CheckInstance{{Balance: exact(1), Creator: Star, Royalties: Star, Hash: Star, URIsStar: true, Attributes: Star}}, LastNonce: Star, RolesStar: true, Frozen: Star}
	f = checkTokens(CheckTokens{AllowMore: true, Tokens: map[string]*CheckToken{"OTHER-123456": missing}}, acc)
	require.Len(t, f, 1)
	assert.Contains(t, f[0], "[OTHER-123456][nonce 0].balance")
}
