package testcontracts

import (
	"github.com/fortiblox/X1-Scenario/pkg/vm/executor"
)

var sumKey = []byte("sum")

// Adder keeps a running sum.
func Adder() *executor.ContractContainer {
	return executor.NewContract("adder",
		executor.Endpoint{Name: "init", Fn: func(api *executor.API) {
			api.CheckNumArgs(1)
			api.StorageStoreBigUint(sumKey, api.ArgBigUint(0))
		}},
		executor.Endpoint{Name: "upgrade", Fn: func(api *executor.API) {
			if api.NumArgs() > 0 {
				api.StorageStoreBigUint(sumKey, api.ArgBigUint(0))
			}
		}},
		executor.Endpoint{Name: "add", Fn: func(api *executor.API) {
			api.CheckNumArgs(1)
			sum := api.StorageLoadBigUint(sumKey)
			api.StorageStoreBigUint(sumKey, sum.Add(sum, api.ArgBigUint(0)))
		}},
		executor.Endpoint{Name: "getSum", Fn: func(api *executor.API) {
			api.FinishBigUint(api.StorageLoadBigUint(sumKey))
		}},
	)
}
