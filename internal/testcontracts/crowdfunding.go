package testcontracts

import (
	"math/big"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/vm/executor"
)

// Funding states returned by the status endpoint.
const (
	FundingPeriod uint64 = iota
	Successful
	Failed
)

// Crowdfunding error messages.
const (
	MsgFundAfterDeadline = "cannot fund after deadline"
	MsgClaimTooEarly     = "cannot claim before deadline"
	MsgOnlyOwnerClaims   = "only owner can claim successful funding"
	MsgWrongToken        = "wrong token"
	MsgTargetZero        = "Target must be more than 0"
	MsgDeadlinePassed    = "Deadline can't be in the past"
)

var (
	targetKey     = []byte("target")
	deadlineKey   = []byte("deadline")
	tokenKey      = []byte("tokenIdentifier")
	depositorsKey = []byte("depositors")
)

func depositKey(addr types.Address) []byte {
	return append([]byte("deposit"), addr.Bytes()...)
}

// Crowdfunding collects payments in one token until a deadline. Once the
// deadline passed the owner claims the funds if the target was reached,
// otherwise every donor claims its deposit back.
func Crowdfunding() *executor.ContractContainer {
	return executor.NewContract("crowdfunding",
		executor.Endpoint{Name: "init", Fn: cfInit},
		executor.Endpoint{Name: "fund", Payable: true, Fn: cfFund},
		executor.Endpoint{Name: "status", Fn: func(api *executor.API) {
			api.FinishUint64(cfStatus(api))
		}},
		executor.Endpoint{Name: "getCurrentFunds", Fn: func(api *executor.API) {
			api.FinishBigUint(cfFunds(api))
		}},
		executor.Endpoint{Name: "claim", Fn: cfClaim},
		executor.Endpoint{Name: "getTarget", Fn: func(api *executor.API) {
			api.FinishBigUint(api.StorageLoadBigUint(targetKey))
		}},
		executor.Endpoint{Name: "getDeadline", Fn: func(api *executor.API) {
			api.FinishUint64(api.StorageLoadUint64(deadlineKey))
		}},
		executor.Endpoint{Name: "getDeposit", Fn: func(api *executor.API) {
			api.FinishBigUint(api.StorageLoadBigUint(depositKey(api.ArgAddress(0))))
		}},
		executor.Endpoint{Name: "getCrowdfundingTokenIdentifier", Fn: func(api *executor.API) {
			api.Finish(api.StorageLoad(tokenKey))
		}},
	)
}

func cfInit(api *executor.API) {
	api.CheckNumArgs(3)
	target := api.ArgBigUint(0)
	api.Require(target.Sign() > 0, MsgTargetZero)
	deadline := api.ArgUint64(1)
	api.Require(deadline > api.BlockTimestamp(), MsgDeadlinePassed)

	api.StorageStoreBigUint(targetKey, target)
	api.StorageStoreUint64(deadlineKey, deadline)
	api.StorageStore(tokenKey, api.Arg(2))
}

// payment returns the amount paid in the crowdfunding token.
func payment(api *executor.API) *big.Int {
	token := string(api.StorageLoad(tokenKey))
	if types.IsNativeToken(token) {
		api.Require(len(api.ESDTTransfers()) == 0, MsgWrongToken)
		return api.CallValue()
	}
	api.Require(api.CallValue().Sign() == 0, MsgWrongToken)
	p := api.SingleESDT()
	api.Require(p.TokenID == token && p.Nonce == 0, MsgWrongToken)
	return p.Value
}

func cfFund(api *executor.API) {
	amount := payment(api)
	api.Require(api.BlockTimestamp() < api.StorageLoadUint64(deadlineKey), MsgFundAfterDeadline)

	caller := api.Caller()
	key := depositKey(caller)
	deposit := api.StorageLoadBigUint(key)
	if deposit.Sign() == 0 {
		api.StorageStore(depositorsKey, append(api.StorageLoad(depositorsKey), caller.Bytes()...))
	}
	api.StorageStoreBigUint(key, deposit.Add(deposit, amount))
}

func cfFunds(api *executor.API) *big.Int {
	token := string(api.StorageLoad(tokenKey))
	if types.IsNativeToken(token) {
		return api.SelfBalance()
	}
	return api.ESDTBalance(api.Self(), token, 0)
}

func cfStatus(api *executor.API) uint64 {
	switch {
	case api.BlockTimestamp() < api.StorageLoadUint64(deadlineKey):
		return FundingPeriod
	case cfFunds(api).Cmp(api.StorageLoadBigUint(targetKey)) >= 0:
		return Successful
	default:
		return Failed
	}
}

func cfSend(api *executor.API, to types.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	token := string(api.StorageLoad(tokenKey))
	if types.IsNativeToken(token) {
		api.DirectEGLD(to, amount)
		return
	}
	api.DirectESDT(to, token, 0, amount)
}

func cfClaim(api *executor.API) {
	caller := api.Caller()
	switch cfStatus(api) {
	case FundingPeriod:
		api.SignalError(MsgClaimTooEarly)
	case Successful:
		api.Require(caller == api.Owner(), MsgOnlyOwnerClaims)
		depositors := api.StorageLoad(depositorsKey)
		for i := 0; i+types.AddressSize <= len(depositors); i += types.AddressSize {
			addr, _ := types.AddressFromBytes(depositors[i : i+types.AddressSize])
			api.StorageClear(depositKey(addr))
		}
		api.StorageClear(depositorsKey)
		cfSend(api, caller, cfFunds(api))
	case Failed:
		key := depositKey(caller)
		deposit := api.StorageLoadBigUint(key)
		if deposit.Sign() > 0 {
			api.StorageClear(key)
			cfSend(api, caller, deposit)
		}
	}
}
