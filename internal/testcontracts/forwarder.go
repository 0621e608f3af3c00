package testcontracts

import (
	"strconv"

	"github.com/fortiblox/X1-Scenario/pkg/vm/executor"
)

// Storage keys written by the forwarder callbacks.
var (
	CallbackStatusKey  = []byte("callback_status")
	CallbackMessageKey = []byte("callback_message")
	CallbackEGLDKey    = []byte("callback_egld")
	CallbackESDTKey    = []byte("callback_esdt")
	CallbackDataKey    = []byte("callback_data")
	HandleValueKey     = []byte("handle_value")
)

// Forwarder relays calls to other contracts, synchronously, as a legacy
// async call or as a promise, and records what the callbacks observe.
func Forwarder() *executor.ContractContainer {
	return executor.NewContract("forwarder",
		executor.Endpoint{Name: "init", Fn: func(api *executor.API) {}},
		executor.Endpoint{Name: "forward_sync_call", Payable: true, Fn: func(api *executor.API) {
			api.SyncCall(forwarded(api))
		}},
		executor.Endpoint{Name: "forward_async_call", Payable: true, Fn: func(api *executor.API) {
			api.AsyncCall(forwarded(api), []byte("forward_async_call"))
		}},
		executor.Endpoint{Name: "forward_promise", Payable: true, Fn: func(api *executor.API) {
			api.RegisterPromise(executor.PromiseCall{
				Call:            forwarded(api),
				SuccessCallback: "promise_ok",
				ErrorCallback:   "promise_err",
				Closure:         []byte("forward_promise"),
			})
		}},
		executor.Endpoint{Name: "callBack", Fn: recordCallback},
		executor.Endpoint{Name: "promise_ok", Fn: recordCallback},
		executor.Endpoint{Name: "promise_err", Fn: recordCallback},

		// sync_allocate asks the callee for a handle and reads it back. Sync
		// calls share the caller's arena, so the handle is live here.
		executor.Endpoint{Name: "sync_allocate", Fn: func(api *executor.API) {
			values := api.SyncCall(executor.Call{To: api.ArgAddress(0), Function: "allocate", Args: [][]byte{api.Arg(1)}})
			v := api.Managed().BigInt(decodeHandle(api, values[0]))
			api.StorageStoreBigUint(HandleValueKey, v)
		}},
		// async_allocate reads the callee handle in a callback, which runs
		// in a fresh arena.
		executor.Endpoint{Name: "async_allocate", Fn: func(api *executor.API) {
			api.RegisterPromise(executor.PromiseCall{
				Call:            executor.Call{To: api.ArgAddress(0), Function: "allocate", Args: [][]byte{api.Arg(1)}},
				SuccessCallback: "read_handle",
			})
		}},
		executor.Endpoint{Name: "read_handle", Fn: func(api *executor.API) {
			v := api.Managed().BigInt(decodeHandle(api, api.Arg(1)))
			api.StorageStoreBigUint(HandleValueKey, v)
		}},
	)
}

// forwarded builds the call described by the arguments (to, function,
// args...) carrying the payments of the current call.
func forwarded(api *executor.API) executor.Call {
	if api.NumArgs() < 2 {
		api.SignalError("wrong number of arguments")
	}
	args := make([][]byte, 0, api.NumArgs()-2)
	for i := 2; i < api.NumArgs(); i++ {
		args = append(args, api.Arg(i))
	}
	return executor.Call{
		To:       api.ArgAddress(0),
		EGLD:     api.CallValue(),
		Payments: api.ESDTTransfers(),
		Function: api.ArgString(1),
		Args:     args,
	}
}

// recordCallback stores the status byte, the error message or first result,
// and the payments the callback received.
func recordCallback(api *executor.API) {
	status := api.Arg(0)
	api.StorageStore(CallbackStatusKey, status)
	if api.NumArgs() > 1 {
		if len(status) == 1 && status[0] != 0 {
			api.StorageStore(CallbackMessageKey, api.Arg(1))
		} else {
			api.StorageStore(CallbackDataKey, api.Arg(1))
		}
	}
	api.StorageStoreBigUint(CallbackEGLDKey, api.CallValue())
	for i, p := range api.ESDTTransfers() {
		key := append(append([]byte{}, CallbackESDTKey...), strconv.Itoa(i)...)
		api.StorageStore(key, []byte(p.TokenID))
		api.StorageStoreBigUint(append(key, []byte("_value")...), p.Value)
	}
}
