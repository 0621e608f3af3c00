package scenario

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/vm"
	"github.com/fortiblox/X1-Scenario/pkg/world"
)

// failures collects the mismatches of one step.
type failures []string

func (f *failures) addf(format string, args ...interface{}) {
	*f = append(*f, fmt.Sprintf(format, args...))
}

func (f *failures) merge(prefix string, other failures) {
	for _, msg := range other {
		*f = append(*f, prefix+msg)
	}
}

// checkTx compares a transaction result against its expectations.
func checkTx(e *TxExpect, res *vm.TxResult, checkGas bool) failures {
	var f failures
	if !e.Status.CheckInt(new(big.Int).SetUint64(uint64(res.Status))) {
		f.addf("status: want %s, have %d (%q)", e.Status, uint64(res.Status), res.Message)
	}
	if !e.Message.Check(res.Message) {
		f.addf("message: want %s, have %q", e.Message, res.Message)
	}
	if !e.OutStar {
		if len(e.Out) != len(res.Values) {
			f.addf("out: want %d values, have %d (%s)", len(e.Out), len(res.Values), valuesText(res.Values))
		} else {
			for i, want := range e.Out {
				if !want.Check(res.Values[i]) {
					f.addf("out[%d]: want %s, have %s", i, want, hexExpr(res.Values[i]))
				}
			}
		}
	}
	f.merge("", checkLogs(e.Logs, res.Logs))
	if checkGas && !e.Gas.CheckInt(new(big.Int).SetUint64(res.GasRemaining)) {
		f.addf("gas: want %s, have %d", e.Gas, res.GasRemaining)
	}
	if !e.Refund.Star {
		refund := new(big.Int)
		if res.GasRefund != nil {
			refund = res.GasRefund.ToBig()
		}
		if !e.Refund.CheckInt(refund) {
			f.addf("refund: want %s, have %s", e.Refund, refund)
		}
	}
	return f
}

func valuesText(values [][]byte) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = hexExpr(v)
		if parts[i] == "" {
			parts[i] = `""`
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func checkLogs(c CheckLogs, logs []vm.Log) failures {
	var f failures
	if c.Star {
		return f
	}
	if len(logs) < len(c.List) || (!c.AllowMore && len(logs) != len(c.List)) {
		f.addf("logs: want %d, have %d", len(c.List), len(logs))
		return f
	}
	for i, want := range c.List {
		have := logs[i]
		if !want.Address.Check(have.Address.Bytes()) {
			f.addf("logs[%d].address: want %s, have %s", i, want.Address, have.Address)
		}
		if !want.Endpoint.Check([]byte(have.Endpoint)) {
			f.addf("logs[%d].endpoint: want %s, have %q", i, want.Endpoint, have.Endpoint)
		}
		if !want.TopicsStar {
			if len(want.Topics) != len(have.Topics) {
				f.addf("logs[%d].topics: want %d, have %d", i, len(want.Topics), len(have.Topics))
			} else {
				for j, t := range want.Topics {
					if !t.Check(have.Topics[j]) {
						f.addf("logs[%d].topics[%d]: want %s, have %s", i, j, t, hexExpr(have.Topics[j]))
					}
				}
			}
		}
		if !want.Data.Check(have.Data) {
			f.addf("logs[%d].data: want %s, have %s", i, want.Data, hexExpr(have.Data))
		}
	}
	return f
}

// checkState compares the world against a checkState step.
func checkState(state *world.State, step *CheckStateStep) failures {
	var f failures
	expected := make(map[types.Address]bool, len(step.Accounts))
	for _, key := range sortedKeys(step.Accounts) {
		ca := step.Accounts[key]
		addr, err := toAddress(ca.Address)
		if err != nil {
			f.addf("%s: %v", key, err)
			continue
		}
		expected[addr] = true
		acc := state.Account(addr)
		if acc == nil {
			f.addf("%s: account not found", key)
			continue
		}
		f.merge(key+": ", checkAccount(ca, acc))
	}
	if !step.AllowMore {
		for _, addr := range state.Addresses() {
			if !expected[addr] {
				f.addf("unexpected account %s", addressText(addr))
			}
		}
	}
	return f
}

func checkAccount(ca *CheckAccount, acc *world.Account) failures {
	var f failures
	if !ca.Nonce.CheckInt(new(big.Int).SetUint64(acc.Nonce)) {
		f.addf("nonce: want %s, have %d", ca.Nonce, acc.Nonce)
	}
	if !ca.Balance.CheckInt(acc.Balance) {
		f.addf("balance: want %s, have %s", ca.Balance, acc.Balance)
	}
	if !ca.Username.Check(acc.Username) {
		f.addf("username: want %s, have %q", ca.Username, acc.Username)
	}
	if !ca.Code.Check(acc.Code) {
		f.addf("code: want %s, have %s", ca.Code, bytesText(acc.Code))
	}
	if !ca.CodeMetadata.CheckInt(new(big.Int).SetUint64(uint64(acc.CodeMetadata))) {
		f.addf("codeMetadata: want %s, have %s", ca.CodeMetadata, hexExpr(acc.CodeMetadata.Bytes()))
	}
	var owner []byte
	if !acc.Owner.IsZero() {
		owner = acc.Owner.Bytes()
	}
	if !ca.Owner.Check(owner) {
		f.addf("owner: want %s, have %s", ca.Owner, addressText(acc.Owner))
	}
	if !ca.DeveloperRewards.CheckInt(acc.DeveloperReward) {
		f.addf("developerRewards: want %s, have %s", ca.DeveloperRewards, acc.DeveloperReward)
	}
	f.merge("storage", checkStorage(ca.Storage, acc))
	f.merge("esdt", checkTokens(ca.ESDT, acc))
	return f
}

func checkStorage(cm CheckMap, acc *world.Account) failures {
	var f failures
	if cm.Star {
		return f
	}
	for _, key := range sortedKeys(cm.Entries) {
		want := cm.Entries[key]
		have := acc.StorageValue([]byte(key))
		if !want.Check(have) {
			f.addf("[%s]: want %s, have %s", bytesText([]byte(key)), want, hexExpr(have))
		}
	}
	if !cm.AllowMore {
		for _, key := range acc.StorageKeys() {
			if _, ok := cm.Entries[key]; !ok {
				f.addf("[%s]: unexpected value %s", bytesText([]byte(key)), hexExpr(acc.Storage[key]))
			}
		}
	}
	return f
}

func checkTokens(ct CheckTokens, acc *world.Account) failures {
	var f failures
	if ct.Star {
		return f
	}
	for _, id := range sortedKeys(ct.Tokens) {
		data := acc.TokenData(id)
		if data == nil {
			data = world.NewESDTData()
		}
		f.merge("["+id+"]", checkToken(ct.Tokens[id], data))
	}
	if !ct.AllowMore {
		for _, id := range acc.TokenIDs() {
			if _, ok := ct.Tokens[id]; !ok && !acc.ESDT[id].IsEmpty() {
				f.addf("[%s]: unexpected token", id)
			}
		}
	}
	return f
}

func checkToken(want *CheckToken, data *world.ESDTData) failures {
	var f failures
	if !want.InstancesStar {
		listed := make(map[uint64]bool, len(want.Instances))
		for _, ci := range want.Instances {
			nonce := ci.Nonce.Uint64()
			listed[nonce] = true
			f.merge(fmt.Sprintf("[nonce %d]", nonce), checkInstance(ci, data.Instance(nonce)))
		}
		if want.ExactInstances {
			for _, n := range data.Nonces() {
				if !listed[n] {
					f.addf("[nonce %d]: unexpected balance %s", n, data.Balance(n))
				}
			}
		}
	}
	if !want.LastNonce.CheckInt(new(big.Int).SetUint64(data.LastNonce)) {
		f.addf(".lastNonce: want %s, have %d", want.LastNonce, data.LastNonce)
	}
	if !want.RolesStar {
		wantRoles := append([]string(nil), want.Roles...)
		haveRoles := data.Roles.Names()
		sort.Strings(wantRoles)
		sort.Strings(haveRoles)
		if strings.Join(wantRoles, ",") != strings.Join(haveRoles, ",") {
			f.addf(".roles: want %v, have %v", want.Roles, data.Roles.Names())
		}
	}
	frozen := new(big.Int)
	if data.Frozen {
		frozen.SetInt64(1)
	}
	if !want.Frozen.CheckInt(frozen) {
		f.addf(".frozen: want %s, have %v", want.Frozen, data.Frozen)
	}
	return f
}

func checkInstance(ci CheckInstance, inst *world.ESDTInstance) failures {
	var f failures
	balance := new(big.Int)
	var md world.InstanceMetadata
	if inst != nil {
		balance = inst.Balance
		md = inst.Metadata
	}
	if !ci.Balance.CheckInt(balance) {
		f.addf(".balance: want %s, have %s", ci.Balance, balance)
	}
	var creator []byte
	if !md.Creator.IsZero() {
		creator = md.Creator.Bytes()
	}
	if !ci.Creator.Check(creator) {
		f.addf(".creator: want %s, have %s", ci.Creator, hexExpr(creator))
	}
	if !ci.Royalties.CheckInt(new(big.Int).SetUint64(md.Royalties)) {
		f.addf(".royalties: want %s, have %d", ci.Royalties, md.Royalties)
	}
	if !ci.Hash.Check(md.Hash) {
		f.addf(".hash: want %s, have %s", ci.Hash, hexExpr(md.Hash))
	}
	if !ci.Attributes.Check(md.Attributes) {
		f.addf(".attributes: want %s, have %s", ci.Attributes, hexExpr(md.Attributes))
	}
	if !ci.URIsStar {
		if len(ci.URIs) != len(md.URIs) {
			f.addf(".uri: want %d, have %d", len(ci.URIs), len(md.URIs))
		} else {
			for i, u := range ci.URIs {
				if !u.Check(md.URIs[i]) {
					f.addf(".uri[%d]: want %s, have %s", i, u, hexExpr(md.URIs[i]))
				}
			}
		}
	}
	return f
}
