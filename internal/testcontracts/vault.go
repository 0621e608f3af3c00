package testcontracts

import (
	"encoding/binary"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/vm/executor"
)

// MsgRejected is the error of the vault reject_funds endpoint.
const MsgRejected = "reject_funds"

var callCountKey = []byte("call_counts")

// Vault is the callee of the forwarder tests. It accepts, rejects or
// returns payments and hands out managed handles.
func Vault() *executor.ContractContainer {
	return executor.NewContract("vault",
		executor.Endpoint{Name: "init", Fn: func(api *executor.API) {}},
		executor.Endpoint{Name: "accept_funds", Payable: true, Fn: func(api *executor.API) {
			topics := [][]byte{api.CallValue().Bytes()}
			for _, p := range api.ESDTTransfers() {
				topics = append(topics, []byte(p.TokenID), p.Value.Bytes())
			}
			api.EmitEvent("accept_funds", topics, nil)
			countCall(api)
		}},
		executor.Endpoint{Name: "reject_funds", Payable: true, Fn: func(api *executor.API) {
			api.SignalError(MsgRejected)
		}},
		executor.Endpoint{Name: "retrieve_funds", Fn: func(api *executor.API) {
			api.CheckNumArgs(3)
			token, nonce, amount := api.ArgString(0), api.ArgUint64(1), api.ArgBigUint(2)
			if types.IsNativeToken(token) {
				api.DirectEGLD(api.Caller(), amount)
				return
			}
			api.DirectESDT(api.Caller(), token, nonce, amount)
		}},
		executor.Endpoint{Name: "echo_arguments", Fn: func(api *executor.API) {
			for i := 0; i < api.NumArgs(); i++ {
				api.Finish(api.Arg(i))
			}
		}},
		// allocate stores its argument in a managed big integer and returns
		// the raw handle, followed by the value read back through it.
		executor.Endpoint{Name: "allocate", Fn: func(api *executor.API) {
			h := api.Managed().NewBigIntFrom(api.ArgBigUint(0))
			api.Finish(encodeHandle(h))
			api.FinishBigUint(api.Managed().BigInt(h))
		}},
	)
}

func countCall(api *executor.API) {
	n := api.StorageLoadUint64(callCountKey)
	api.StorageStoreUint64(callCountKey, n+1)
}

func encodeHandle(h int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(h))
	return b
}

func decodeHandle(api *executor.API, b []byte) int32 {
	api.Require(len(b) == 4, "bad handle")
	return int32(binary.BigEndian.Uint32(b))
}
