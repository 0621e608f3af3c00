package vm

import (
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGasMeter(t *testing.T) {
	gm := NewGasMeter(100)
	require.NoError(t, gm.Consume(60))
	assert.Equal(t, uint64(40), gm.Remaining())
	assert.Equal(t, uint64(60), gm.Consumed())

	assert.ErrorIs(t, gm.Consume(41), ErrOutOfGas)
	assert.Zero(t, gm.Remaining())

	gm.AddRefund(5)
	gm.AddRefund(7)
	assert.Equal(t, uint64(12), gm.Refund().Uint64())
}

func TestGasMeterDisabled(t *testing.T) {
	gm := NewGasMeterDisabled()
	require.NoError(t, gm.Consume(1<<40))
	assert.True(t, gm.Disabled())
	assert.NotPanics(t, func() { gm.MustConsume(1 << 50) })
}

func TestMustConsumeTraps(t *testing.T) {
	gm := NewGasMeter(1)
	defer func() {
		r := recover()
		trap, ok := r.(*Trap)
		require.True(t, ok)
		assert.Equal(t, OutOfGas, trap.Status)
		assert.Equal(t, MsgOutOfGas, trap.Message)
	}()
	gm.MustConsume(2)
}

func TestAsTrap(t *testing.T) {
	trap := NewTrap(UserError, "boom")
	assert.Same(t, trap, AsTrap(errors.Wrap(trap, "context")))

	other := AsTrap(errors.New("plain"))
	assert.Equal(t, ExecutionFailed, other.Status)
	assert.Equal(t, "plain", other.Message)

	assert.Nil(t, AsTrap(nil))
}

func TestResultMerge(t *testing.T) {
	parent := NewResult()
	parent.Values = [][]byte{{1}}
	parent.Logs = []Log{{Endpoint: "a"}}

	ok := NewResult()
	ok.Values = [][]byte{{2}}
	ok.Logs = []Log{{Endpoint: "b"}}
	parent.Merge(ok)

	assert.Equal(t, [][]byte{{1}, {2}}, parent.Values)
	assert.Len(t, parent.Logs, 2)

	failed := FailedResult(UserError, "nope")
	failed.Values = [][]byte{{3}}
	failed.Logs = []Log{{Endpoint: "c"}}
	parent.Merge(failed)

	assert.Equal(t, UserError, parent.Status)
	assert.Equal(t, "nope", parent.Message)
	assert.Equal(t, [][]byte{{1}, {2}}, parent.Values)
	assert.Len(t, parent.Logs, 2)
}

func TestBackTransfers(t *testing.T) {
	bt := NewBackTransfers()
	bt.AddEGLD(big.NewInt(5))
	bt.AddESDT(TokenTransfer{TokenID: "TOK-123456", Value: big.NewInt(1)})
	bt.AddESDT(TokenTransfer{TokenID: "TOK-123456", Value: big.NewInt(2)})
	bt.AddESDT(TokenTransfer{TokenID: "NFT-123456", Nonce: 1, Value: big.NewInt(1)})

	c := bt.Clone()
	assert.Equal(t, int64(5), c.EGLD.Int64())
	require.Len(t, c.ESDT, 2)
	assert.Equal(t, int64(3), c.ESDT[0].Value.Int64())

	c.AddEGLD(big.NewInt(1))
	assert.Equal(t, int64(5), bt.EGLD.Int64())
}

func TestReturnCodeString(t *testing.T) {
	assert.Equal(t, "user error", UserError.String())
	assert.Equal(t, "status 99", ReturnCode(99).String())
}
