package scenario

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/world"
)

// ErrNotSetState is returned when a state dump holds other steps than setState.
var ErrNotSetState = errors.New("state dump may only contain setState steps")

func toAddress(v Value) (types.Address, error) {
	addr, err := types.AddressFromBytes(v.Bytes)
	if err != nil {
		return types.Address{}, errors.Wrapf(err, "address %q", v.Original)
	}
	return addr, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ApplySetState writes the accounts, predictions and block info of step into state.
// Accounts are replaced as a whole.
func ApplySetState(state *world.State, step *SetStateStep) error {
	for _, key := range sortedKeys(step.Accounts) {
		acc, err := buildAccount(step.Accounts[key])
		if err != nil {
			return errors.Wrapf(err, "account %s", key)
		}
		if err := state.SetAccount(acc); err != nil {
			return errors.Wrapf(err, "account %s", key)
		}
	}
	for _, na := range step.NewAddresses {
		creator, err := toAddress(na.Creator)
		if err != nil {
			return errors.Wrap(err, "newAddresses")
		}
		addr, err := toAddress(na.Address)
		if err != nil {
			return errors.Wrap(err, "newAddresses")
		}
		state.PutNewAddress(creator, na.CreatorNonce.Uint64(), addr)
	}
	if len(step.BlockHashes) > 0 {
		state.BlockHashes = make([][]byte, len(step.BlockHashes))
		for i, h := range step.BlockHashes {
			state.BlockHashes[i] = append([]byte(nil), h.Bytes...)
		}
	}
	applyBlockInfo(&state.PreviousBlock, step.PreviousBlockInfo)
	applyBlockInfo(&state.CurrentBlock, step.CurrentBlockInfo)
	return nil
}

func applyBlockInfo(dst *world.BlockInfo, src *BlockInfo) {
	if src == nil {
		return
	}
	if src.Timestamp.IsSet() {
		dst.Timestamp = src.Timestamp.Uint64()
	}
	if src.Nonce.IsSet() {
		dst.Nonce = src.Nonce.Uint64()
	}
	if src.Round.IsSet() {
		dst.Round = src.Round.Uint64()
	}
	if src.Epoch.IsSet() {
		dst.Epoch = src.Epoch.Uint64()
	}
	if src.RandomSeed.IsSet() {
		dst.RandomSeed = [world.RandomSeedSize]byte{}
		copy(dst.RandomSeed[:], src.RandomSeed.Bytes)
	}
}

func buildAccount(as *AccountState) (*world.Account, error) {
	addr, err := toAddress(as.Address)
	if err != nil {
		return nil, err
	}
	acc := world.NewAccount(addr)
	acc.Nonce = as.Nonce.Uint64()
	acc.Balance = as.Balance.BigInt()
	acc.DeveloperReward = as.DeveloperRewards.BigInt()
	acc.CodeMetadata = types.CodeMetadataFromBytes(as.CodeMetadata.Bytes)
	if len(as.Username.Bytes) > 0 {
		acc.Username = append([]byte(nil), as.Username.Bytes...)
	}
	if len(as.Code.Bytes) > 0 {
		acc.Code = append([]byte(nil), as.Code.Bytes...)
	}
	if as.Owner.IsSet() && len(as.Owner.Bytes) > 0 {
		if acc.Owner, err = toAddress(as.Owner); err != nil {
			return nil, errors.Wrap(err, "owner")
		}
	}
	for k, v := range as.Storage {
		acc.SetStorage([]byte(k), v.Bytes)
	}
	for _, id := range sortedKeys(as.ESDT) {
		if err := buildToken(acc, id, as.ESDT[id]); err != nil {
			return nil, errors.Wrapf(err, "token %s", id)
		}
	}
	return acc, nil
}

func buildToken(acc *world.Account, id string, ts *TokenState) error {
	data := acc.TokenDataMut(id)
	roles, err := world.RolesFromNames(ts.Roles)
	if err != nil {
		return err
	}
	data.Roles = roles
	data.Frozen = ts.Frozen
	for _, inst := range ts.Instances {
		nonce := inst.Nonce.Uint64()
		balance := inst.Balance.BigInt()
		if balance.Sign() == 0 {
			continue
		}
		var md *world.InstanceMetadata
		if nonce > 0 {
			md = &world.InstanceMetadata{
				Royalties:  inst.Royalties.Uint64(),
				Hash:       append([]byte(nil), inst.Hash.Bytes...),
				Attributes: append([]byte(nil), inst.Attributes.Bytes...),
			}
			if len(inst.Creator.Bytes) > 0 {
				if md.Creator, err = toAddress(inst.Creator); err != nil {
					return errors.Wrap(err, "creator")
				}
			}
			for _, u := range inst.URIs {
				md.URIs = append(md.URIs, append([]byte(nil), u.Bytes...))
			}
		}
		data.Add(nonce, balance, md)
		if nonce > data.LastNonce {
			data.LastNonce = nonce
		}
	}
	if ts.LastNonce.IsSet() {
		data.LastNonce = ts.LastNonce.Uint64()
	}
	acc.PruneToken(id)
	return nil
}

type dumpInstance struct {
	Nonce      string   `json:"nonce"`
	Balance    string   `json:"balance"`
	Creator    string   `json:"creator,omitempty"`
	Royalties  string   `json:"royalties,omitempty"`
	Hash       string   `json:"hash,omitempty"`
	URI        []string `json:"uri,omitempty"`
	Attributes string   `json:"attributes,omitempty"`
}

type dumpToken struct {
	Instances []dumpInstance `json:"instances,omitempty"`
	LastNonce string         `json:"lastNonce,omitempty"`
	Roles     []string       `json:"roles,omitempty"`
	Frozen    string         `json:"frozen,omitempty"`
}

type dumpAccount struct {
	Nonce            string               `json:"nonce"`
	Balance          string               `json:"balance"`
	ESDT             map[string]dumpToken `json:"esdt,omitempty"`
	Username         string               `json:"username,omitempty"`
	Storage          map[string]string    `json:"storage"`
	Code             string               `json:"code,omitempty"`
	CodeMetadata     string               `json:"codeMetadata,omitempty"`
	Owner            string               `json:"owner,omitempty"`
	DeveloperRewards string               `json:"developerRewards,omitempty"`
}

type dumpBlockInfo struct {
	Timestamp  string `json:"blockTimestamp"`
	Nonce      string `json:"blockNonce"`
	Round      string `json:"blockRound"`
	Epoch      string `json:"blockEpoch"`
	RandomSeed string `json:"blockRandomSeed"`
}

type dumpNewAddress struct {
	Creator      string `json:"creatorAddress"`
	CreatorNonce string `json:"creatorNonce"`
	NewAddress   string `json:"newAddress"`
}

type dumpStep struct {
	Step              string                 `json:"step"`
	Accounts          map[string]dumpAccount `json:"accounts"`
	NewAddresses      []dumpNewAddress       `json:"newAddresses,omitempty"`
	BlockHashes       []string               `json:"blockHashes,omitempty"`
	PreviousBlockInfo *dumpBlockInfo         `json:"previousBlockInfo,omitempty"`
	CurrentBlockInfo  *dumpBlockInfo         `json:"currentBlockInfo,omitempty"`
}

type dumpScenario struct {
	Name  string     `json:"name"`
	Steps []dumpStep `json:"steps"`
}

// hexExpr renders bytes as a hex expression; empty bytes render as "".
func hexExpr(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return "0x" + hex.EncodeToString(b)
}

// roundTrips reports whether expr interprets back to b.
func roundTrips(expr string, b []byte) bool {
	out, err := (&Interpreter{}).Interpret(expr)
	return err == nil && bytes.Equal(out, b)
}

// addressText renders an address in its readable form when that form
// reads back to the same bytes.
func addressText(a types.Address) string {
	if s := a.String(); roundTrips(s, a[:]) {
		return s
	}
	return "0x" + a.Hex()
}

// bytesText renders printable bytes as a str: expression, others as hex.
func bytesText(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return hexExpr(b)
		}
	}
	if s := "str:" + string(b); roundTrips(s, b) {
		return s
	}
	return hexExpr(b)
}

func intText(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}

func blockInfoText(bi world.BlockInfo) *dumpBlockInfo {
	if bi == (world.BlockInfo{}) {
		return nil
	}
	return &dumpBlockInfo{
		Timestamp:  strconv.FormatUint(bi.Timestamp, 10),
		Nonce:      strconv.FormatUint(bi.Nonce, 10),
		Round:      strconv.FormatUint(bi.Round, 10),
		Epoch:      strconv.FormatUint(bi.Epoch, 10),
		RandomSeed: hexExpr(bi.RandomSeed[:]),
	}
}

func dumpAccountOf(acc *world.Account) dumpAccount {
	da := dumpAccount{
		Nonce:    strconv.FormatUint(acc.Nonce, 10),
		Balance:  intText(acc.Balance),
		Username: bytesText(acc.Username),
		Storage:  make(map[string]string, len(acc.Storage)),
		Code:     bytesText(acc.Code),
	}
	for _, k := range acc.StorageKeys() {
		da.Storage[bytesText([]byte(k))] = hexExpr(acc.Storage[k])
	}
	if acc.CodeMetadata != 0 {
		da.CodeMetadata = hexExpr(acc.CodeMetadata.Bytes())
	}
	if !acc.Owner.IsZero() {
		da.Owner = addressText(acc.Owner)
	}
	if acc.DeveloperReward != nil && acc.DeveloperReward.Sign() != 0 {
		da.DeveloperRewards = acc.DeveloperReward.String()
	}
	for _, id := range acc.TokenIDs() {
		if da.ESDT == nil {
			da.ESDT = make(map[string]dumpToken)
		}
		da.ESDT["str:"+id] = dumpTokenOf(acc.ESDT[id])
	}
	return da
}

func dumpTokenOf(data *world.ESDTData) dumpToken {
	dt := dumpToken{Roles: data.Roles.Names()}
	if data.LastNonce > 0 {
		dt.LastNonce = strconv.FormatUint(data.LastNonce, 10)
	}
	if data.Frozen {
		dt.Frozen = "true"
	}
	for _, n := range data.Nonces() {
		inst := data.Instances[n]
		di := dumpInstance{
			Nonce:   strconv.FormatUint(n, 10),
			Balance: intText(inst.Balance),
		}
		if n > 0 {
			md := inst.Metadata
			if !md.Creator.IsZero() {
				di.Creator = addressText(md.Creator)
			}
			if md.Royalties > 0 {
				di.Royalties = strconv.FormatUint(md.Royalties, 10)
			}
			di.Hash = hexExpr(md.Hash)
			di.Attributes = hexExpr(md.Attributes)
			for _, u := range md.URIs {
				di.URI = append(di.URI, hexExpr(u))
			}
		}
		dt.Instances = append(dt.Instances, di)
	}
	return dt
}

// MarshalState renders state as a scenario made of a single setState step.
// Running that scenario on an empty world rebuilds state.
func MarshalState(name string, state *world.State) ([]byte, error) {
	step := dumpStep{
		Step:              string(KindSetState),
		Accounts:          make(map[string]dumpAccount, state.Len()),
		PreviousBlockInfo: blockInfoText(state.PreviousBlock),
		CurrentBlockInfo:  blockInfoText(state.CurrentBlock),
	}
	for _, addr := range state.Addresses() {
		step.Accounts[addressText(addr)] = dumpAccountOf(state.Account(addr))
	}

	predictions := state.NewAddresses()
	keys := make([]world.NewAddressKey, 0, len(predictions))
	for k := range predictions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := bytes.Compare(keys[i].Creator[:], keys[j].Creator[:]); c != 0 {
			return c < 0
		}
		return keys[i].Nonce < keys[j].Nonce
	})
	for _, k := range keys {
		step.NewAddresses = append(step.NewAddresses, dumpNewAddress{
			Creator:      addressText(k.Creator),
			CreatorNonce: strconv.FormatUint(k.Nonce, 10),
			NewAddress:   addressText(predictions[k]),
		})
	}
	for _, h := range state.BlockHashes {
		step.BlockHashes = append(step.BlockHashes, hexExpr(h))
	}

	return json.MarshalIndent(dumpScenario{Name: name, Steps: []dumpStep{step}}, "", "    ")
}

// LoadState rebuilds a world from a scenario holding only setState steps,
// such as the output of MarshalState.
func LoadState(data []byte) (*world.State, error) {
	s, err := Parse(data, &Interpreter{})
	if err != nil {
		return nil, err
	}
	state := world.NewState()
	for i, step := range s.Steps {
		set, ok := step.(*SetStateStep)
		if !ok {
			return nil, errors.Wrapf(ErrNotSetState, "step %d is %s", i, step.Kind())
		}
		if err := ApplySetState(state, set); err != nil {
			return nil, errors.Wrapf(err, "step %d", i)
		}
	}
	return state, nil
}
