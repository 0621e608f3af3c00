package scenario

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fortiblox/X1-Scenario/internal/testcontracts"
	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/vm"
	"github.com/fortiblox/X1-Scenario/pkg/vm/executor"
	"github.com/fortiblox/X1-Scenario/pkg/world"
)

const testdata = "testdata"

func newRunner(t *testing.T, opts ...func(*Config)) *Runner {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseDir = testdata
	cfg.AllowMissingFiles = true
	cfg.Logger = zaptest.NewLogger(t)
	for _, opt := range opts {
		opt(&cfg)
	}
	r := NewRunner(cfg)
	require.NoError(t, testcontracts.Register(r))
	return r
}

func runInline(t *testing.T, r *Runner, data string) error {
	t.Helper()
	s, err := Parse([]byte(data), &Interpreter{Dir: testdata, AllowMissingFiles: true})
	require.NoError(t, err)
	return r.Run(context.Background(), s, testdata)
}

func TestScenarioFiles(t *testing.T) {
	files := []string{
		"crowdfunding-claim.scen.json",
		"crowdfunding-refund.scen.json",
		"crowdfunding-late-fund.scen.json",
		"multi-esdt-atomic.scen.json",
		"async-refund.scen.json",
		"handle-isolation.scen.json",
	}
	for _, name := range files {
		t.Run(name, func(t *testing.T) {
			r := newRunner(t)
			require.NoError(t, r.RunFile(context.Background(), filepath.Join(testdata, name)))
			assert.Greater(t, r.StepsExecuted(), 1)
		})
	}
}

func TestCrowdfundingDeployedAddress(t *testing.T) {
	r := newRunner(t)
	require.NoError(t, r.RunFile(context.Background(), filepath.Join(testdata, "crowdfunding-claim.scen.json")))

	res, ok := r.Result("claim")
	require.True(t, ok)
	assert.Equal(t, vm.Ok, res.Status)

	contract := r.State().Account(mustAddress(t, "sc:crowdfunding"))
	require.NotNil(t, contract)
	assert.Equal(t, DefaultDeployMetadata, contract.CodeMetadata)
	assert.Equal(t, mustAddress(t, "address:owner"), contract.Owner)
}

func TestHandleIsolationResults(t *testing.T) {
	r := newRunner(t)
	require.NoError(t, r.RunFile(context.Background(), filepath.Join(testdata, "handle-isolation.scen.json")))

	sync, ok := r.Result("sync-shared-arena")
	require.True(t, ok)
	assert.Equal(t, vm.Ok, sync.Status)
	require.Len(t, sync.Values, 2)
	assert.Len(t, sync.Values[0], 4)

	async, ok := r.Result("async-separate-arena")
	require.True(t, ok)
	assert.Equal(t, vm.ExecutionFailed, async.Status)
	assert.Equal(t, vm.MsgHandleStale, async.Message)
}

const adderScenario = `{
    "name": "adder",
    "steps": [
        {
            "step": "setState",
            "accounts": {
                "address:owner": {"nonce": "0", "balance": "100"}
            },
            "newAddresses": [
                {"creatorAddress": "address:owner", "creatorNonce": "0", "newAddress": "sc:adder"}
            ]
        },
        {
            "step": "scDeploy",
            "id": "deploy",
            "tx": {
                "from": "address:owner",
                "contractCode": "file:output/adder.wasm",
                "codeMetadata": "0x0100",
                "arguments": ["5"],
                "gasLimit": "1,000,000",
                "gasPrice": "0"
            },
            "expect": {"out": [], "status": "0"}
        },
        {
            "step": "scCall",
            "id": "add",
            "tx": {
                "from": "address:owner",
                "to": "sc:adder",
                "function": "add",
                "arguments": ["7"],
                "gasLimit": "1,000,000",
                "gasPrice": "0"
            },
            "expect": {"out": [], "status": "0"}
        },
        {
            "step": "scQuery",
            "id": "sum",
            "tx": {"to": "sc:adder", "function": "getSum", "arguments": []},
            "expect": {"out": ["12"], "status": "0"}
        },
        {
            "step": "dumpState"
        },
        {
            "step": "checkState",
            "accounts": {
                "address:owner": {"nonce": "2", "balance": "100"},
                "sc:adder": {
                    "nonce": "0",
                    "balance": "0",
                    "code": "file:output/adder.wasm",
                    "codeMetadata": "0x0100",
                    "owner": "address:owner",
                    "storage": {"str:sum": "12"}
                }
            }
        }
    ]
}`

type recordingTracer struct {
	records []StepRecord
}

func (rt *recordingTracer) TraceStep(rec StepRecord) error {
	rt.records = append(rt.records, rec)
	return nil
}

func TestRunnerTraceAndDump(t *testing.T) {
	tracer := &recordingTracer{}
	var dumped []*world.State
	r := newRunner(t, func(cfg *Config) {
		cfg.Tracer = tracer
		cfg.OnDump = func(name string, state *world.State) error {
			assert.Equal(t, "adder", name)
			dumped = append(dumped, state.Clone())
			return nil
		}
	})
	require.NoError(t, runInline(t, r, adderScenario))

	require.Len(t, tracer.records, 6)
	deploy := tracer.records[1]
	assert.Equal(t, KindScDeploy, deploy.Kind)
	assert.Equal(t, mustAddress(t, "sc:adder"), deploy.NewAddress)
	require.NotNil(t, deploy.Result)
	assert.Equal(t, vm.Ok, deploy.Result.Status)
	assert.Nil(t, tracer.records[0].Result)
	assert.Equal(t, [][]byte{{12}}, tracer.records[3].Result.Values)

	require.Len(t, dumped, 1)
	assert.Equal(t, world.ComputeStateHash(r.State()), world.ComputeStateHash(dumped[0]))
}

func TestRunnerCheckFailure(t *testing.T) {
	tracer := &recordingTracer{}
	r := newRunner(t, func(cfg *Config) { cfg.Tracer = tracer })
	err := runInline(t, r, `{
        "name": "bad",
        "steps": [
            {"step": "setState", "accounts": {"address:a": {"balance": "10"}}},
            {"step": "checkState", "id": "check", "accounts": {"address:a": {"balance": "11"}}},
            {"step": "checkState", "accounts": {}}
        ]
    }`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCheckFailed)

	var checkErr *CheckError
	require.True(t, errors.As(err, &checkErr))
	assert.Equal(t, 1, checkErr.Step)
	assert.Equal(t, "check", checkErr.ID)
	assert.Equal(t, KindCheckState, checkErr.Kind)
	require.Len(t, checkErr.Failures, 1)
	assert.Contains(t, checkErr.Failures[0], "balance: want 11, have 10")

	require.Len(t, tracer.records, 2)
	assert.NotEmpty(t, tracer.records[1].Failure)
}

func TestRunnerTxExpectationFailure(t *testing.T) {
	r := newRunner(t)
	err := runInline(t, r, `{
        "steps": [
            {"step": "setState", "accounts": {"address:a": {"balance": "10"}, "address:b": {}}},
            {"step": "scCall", "id": "pay", "tx": {"from": "address:a", "to": "address:b", "egldValue": "20"},
             "expect": {"status": "0"}}
        ]
    }`)
	var checkErr *CheckError
	require.True(t, errors.As(err, &checkErr))
	assert.Equal(t, "pay", checkErr.ID)
	assert.Contains(t, checkErr.Failures[0], "status: want 0, have 7")
}

func TestRunnerTransfer(t *testing.T) {
	r := newRunner(t)
	require.NoError(t, runInline(t, r, `{
        "steps": [
            {"step": "setState", "accounts": {"address:a": {"balance": "10"}}},
            {"step": "transfer", "id": "t1", "tx": {"from": "address:a", "to": "address:b", "egldValue": "4"}},
            {"step": "checkState", "accounts": {"address:a": {"nonce": "1", "balance": "6"}, "address:b": {"balance": "4"}}}
        ]
    }`))

	err := runInline(t, r, `{
        "steps": [
            {"step": "transfer", "tx": {"from": "address:a", "to": "address:b", "egldValue": "100"}}
        ]
    }`)
	assert.ErrorIs(t, err, ErrTransferFailed)
}

func TestRunnerStartingState(t *testing.T) {
	seed := world.NewState()
	acc := world.NewAccount(mustAddress(t, "address:a"))
	acc.Balance.SetInt64(10)
	require.NoError(t, seed.SetAccount(acc))

	r := newRunner(t, func(cfg *Config) { cfg.State = seed })
	require.NoError(t, runInline(t, r, `{
        "steps": [
            {"step": "transfer", "tx": {"from": "address:a", "to": "address:b", "egldValue": "3"}},
            {"step": "checkState", "accounts": {"address:a": {"balance": "7"}, "address:b": {"balance": "3"}}}
        ]
    }`))
	assert.Same(t, seed, r.State())
}

func TestRunnerValidatorReward(t *testing.T) {
	r := newRunner(t)
	require.NoError(t, runInline(t, r, `{
        "steps": [
            {"step": "setState", "accounts": {"address:validator": {"balance": "1"}}},
            {"step": "validatorReward", "tx": {"to": "address:validator", "egldValue": "5"}},
            {"step": "validatorReward", "tx": {"to": "address:validator", "egldValue": "6"}},
            {"step": "checkState", "accounts": {"address:validator": {
                "balance": "12",
                "storage": {"str:ELRONDreward": "11"}
            }}}
        ]
    }`))
	acc := r.State().Account(mustAddress(t, "address:validator"))
	require.NotNil(t, acc)
	assert.Equal(t, []byte{11}, acc.StorageValue([]byte(types.RewardStorageKey)))
}

func TestRunnerExternalStepsDepth(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loop.scen.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"steps": [{"step": "externalSteps", "path": "loop.scen.json"}]}`), 0o644))

	r := newRunner(t)
	err := r.RunFile(context.Background(), path)
	assert.ErrorIs(t, err, ErrExternalStepsDepth)
}

func TestRunnerUnknownGasSchedule(t *testing.T) {
	r := newRunner(t)
	err := runInline(t, r, `{"gasSchedule": "v99", "steps": []}`)
	require.Error(t, err)
}

func TestRunnerStopsOnCancel(t *testing.T) {
	r := newRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := Parse([]byte(adderScenario), &Interpreter{Dir: testdata, AllowMissingFiles: true})
	require.NoError(t, err)
	assert.ErrorIs(t, r.Run(ctx, s, testdata), context.Canceled)
	assert.Zero(t, r.StepsExecuted())
}

func TestRunnerQueryCannotWrite(t *testing.T) {
	r := newRunner(t)
	require.NoError(t, runInline(t, r, adderScenario))
	before := world.ComputeStateHash(r.State())

	require.NoError(t, runInline(t, r, `{
        "name": "query-write",
        "steps": [
            {"step": "scQuery", "id": "query-add", "tx": {"to": "sc:adder", "function": "add", "arguments": ["1"]}}
        ]
    }`))

	res, ok := r.Result("query-add")
	require.True(t, ok)
	assert.Equal(t, vm.ExecutionFailed, res.Status)
	assert.Equal(t, executor.MsgReadonlyWrite, res.Message)
	assert.Equal(t, before, world.ComputeStateHash(r.State()))
	adder := r.State().Account(mustAddress(t, "sc:adder"))
	require.NotNil(t, adder)
	assert.Equal(t, []byte{12}, adder.StorageValue([]byte("sum")))
}

func TestRunnerRejectsMixedPayment(t *testing.T) {
	tests := []struct {
		name string
		step string
	}{
		{
			name: "scCall",
			step: `{"step": "scCall", "tx": {"from": "address:a", "to": "address:b", "egldValue": "1",
                "esdtValue": [{"tokenIdentifier": "str:TOK-123456", "value": "1"}], "function": "deposit"}}`,
		},
		{
			name: "transfer",
			step: `{"step": "transfer", "tx": {"from": "address:a", "to": "address:b", "egldValue": "1",
                "esdtValue": [{"tokenIdentifier": "str:TOK-123456", "value": "1"}]}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRunner(t)
			err := runInline(t, r, `{
        "steps": [
            {"step": "setState", "accounts": {
                "address:a": {"balance": "10", "esdt": {"str:TOK-123456": "10"}},
                "address:b": {}
            }},
            `+tt.step+`
        ]
    }`)
			assert.ErrorIs(t, err, ErrMixedPayment)

			acc := r.State().Account(mustAddress(t, "address:a"))
			require.NotNil(t, acc)
			assert.Equal(t, uint64(0), acc.Nonce)
			assert.Equal(t, int64(10), acc.Balance.Int64())
			assert.Equal(t, int64(10), acc.TokenBalance("TOK-123456", 0).Int64())
		})
	}
}
