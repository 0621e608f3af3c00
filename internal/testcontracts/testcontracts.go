// Package testcontracts holds compiled-in contracts that scenario files
// exercise in place of real WASM binaries.
package testcontracts

import (
	"github.com/pkg/errors"

	"github.com/fortiblox/X1-Scenario/pkg/vm/executor"
)

// Code expressions the contracts are registered under. Scenario files refer
// to the same paths, relative to their own directory.
const (
	AdderCode        = "file:output/adder.wasm"
	CrowdfundingCode = "file:output/crowdfunding.wasm"
	ForwarderCode    = "file:output/forwarder.wasm"
	VaultCode        = "file:output/vault.wasm"
)

// Registrar binds a code expression to a contract.
type Registrar interface {
	RegisterContract(codeExpr string, c *executor.ContractContainer) error
}

// All returns every contract keyed by its code expression.
func All() map[string]*executor.ContractContainer {
	return map[string]*executor.ContractContainer{
		AdderCode:        Adder(),
		CrowdfundingCode: Crowdfunding(),
		ForwarderCode:    Forwarder(),
		VaultCode:        Vault(),
	}
}

// Register binds all contracts.
func Register(r Registrar) error {
	for expr, c := range All() {
		if err := r.RegisterContract(expr, c); err != nil {
			return errors.Wrapf(err, "register %s", c.Name())
		}
	}
	return nil
}
