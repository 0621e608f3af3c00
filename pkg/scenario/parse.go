package scenario

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownStep is returned for an unrecognized step kind.
	ErrUnknownStep = errors.New("unknown step")

	// ErrMalformed is returned when the scenario JSON does not have the expected shape.
	ErrMalformed = errors.New("malformed scenario")
)

// Sentinels used in scenario files.
const (
	starSentinel      = "*"
	allowMoreSentinel = "+"
	substrPrefix      = "substr:"
)

// ParseFile reads a scenario file. Relative file expressions resolve against
// the directory of the file.
func ParseFile(path string, allowMissingFiles bool) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read scenario %s", path)
	}
	ip := &Interpreter{Dir: filepath.Dir(path), AllowMissingFiles: allowMissingFiles}
	s, err := Parse(data, ip)
	if err != nil {
		return nil, errors.Wrapf(err, "parse scenario %s", path)
	}
	return s, nil
}

// Parse decodes a scenario, interpreting every value with ip.
func Parse(data []byte, ip *Interpreter) (*Scenario, error) {
	var raw struct {
		Name        string            `json:"name"`
		Comment     string            `json:"comment"`
		CheckGas    bool              `json:"checkGas"`
		GasSchedule string            `json:"gasSchedule"`
		Steps       []json.RawMessage `json:"steps"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	p := &parser{ip: ip}
	s := &Scenario{
		Name:        raw.Name,
		Comment:     raw.Comment,
		CheckGas:    raw.CheckGas,
		GasSchedule: raw.GasSchedule,
		Steps:       make([]Step, 0, len(raw.Steps)),
	}
	for i, rs := range raw.Steps {
		step, err := p.step(rs)
		if err != nil {
			return nil, errors.Wrapf(err, "step %d", i)
		}
		s.Steps = append(s.Steps, step)
	}
	return s, nil
}

type parser struct {
	ip *Interpreter
}

type rawHeader struct {
	Step    string          `json:"step"`
	ID      string          `json:"id"`
	TxID    string          `json:"txId"`
	Comment string          `json:"comment"`
	TxHash  json.RawMessage `json:"txHash"`
}

func (h rawHeader) header() StepHeader {
	id := h.ID
	if id == "" {
		id = h.TxID
	}
	return StepHeader{ID: id, Comment: h.Comment}
}

func (p *parser) step(data json.RawMessage) (Step, error) {
	var h rawHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	switch StepKind(h.Step) {
	case KindSetState:
		return p.setState(h, data)
	case KindScCall:
		return p.scCall(h, data)
	case KindScDeploy:
		return p.scDeploy(h, data)
	case KindScQuery:
		return p.scQuery(h, data)
	case KindTransfer, KindValidatorReward:
		return p.transfer(h, data)
	case KindCheckState:
		return p.checkState(h, data)
	case KindDumpState:
		return &DumpStateStep{StepHeader: h.header()}, nil
	case KindExternalSteps:
		var raw struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrap(ErrMalformed, err.Error())
		}
		return &ExternalStepsStep{StepHeader: h.header(), Path: raw.Path}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownStep, "%q", h.Step)
	}
}

func isAbsent(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// asString returns the string held by raw, if it is one.
func asString(raw json.RawMessage) (string, bool) {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || t[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(t, &s); err != nil {
		return "", false
	}
	return s, true
}

// orderedValues returns the members of a JSON object in file order.
func orderedValues(raw json.RawMessage) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var out []json.RawMessage
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// value interprets a JSON value. Strings, numbers and booleans are
// expressions; lists and objects concatenate their members in order.
func (p *parser) value(raw json.RawMessage) (Value, error) {
	t := bytes.TrimSpace(raw)
	if isAbsent(t) {
		return Value{}, nil
	}
	var parts []json.RawMessage
	switch t[0] {
	case '"':
		s, _ := asString(t)
		b, err := p.ip.Interpret(s)
		if err != nil {
			return Value{}, err
		}
		return Value{Original: s, Bytes: b}, nil
	case '[':
		if err := json.Unmarshal(t, &parts); err != nil {
			return Value{}, errors.Wrap(ErrMalformed, err.Error())
		}
	case '{':
		var err error
		if parts, err = orderedValues(t); err != nil {
			return Value{}, errors.Wrap(ErrMalformed, err.Error())
		}
	default:
		s := string(t)
		b, err := p.ip.Interpret(s)
		if err != nil {
			return Value{}, err
		}
		return Value{Original: s, Bytes: b}, nil
	}
	out := Value{Original: string(t), Bytes: []byte{}}
	for _, part := range parts {
		v, err := p.value(part)
		if err != nil {
			return Value{}, err
		}
		out.Bytes = append(out.Bytes, v.Bytes...)
	}
	return out, nil
}

func (p *parser) values(raws []json.RawMessage) ([]Value, error) {
	out := make([]Value, 0, len(raws))
	for _, r := range raws {
		v, err := p.value(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// check interprets an expectation. An absent field matches anything.
func (p *parser) check(raw json.RawMessage) (CheckValue, error) {
	if isAbsent(raw) {
		return Star, nil
	}
	if s, ok := asString(raw); ok && s == starSentinel {
		return Star, nil
	}
	v, err := p.value(raw)
	if err != nil {
		return CheckValue{}, err
	}
	return CheckValue{Value: v}, nil
}

func (p *parser) checks(raws []json.RawMessage) ([]CheckValue, error) {
	out := make([]CheckValue, 0, len(raws))
	for _, r := range raws {
		c, err := p.check(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// checkList decodes "*" or a list of expectations.
func (p *parser) checkList(raw json.RawMessage) ([]CheckValue, bool, error) {
	if isAbsent(raw) {
		return nil, true, nil
	}
	if s, ok := asString(raw); ok && s == starSentinel {
		return nil, true, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false, errors.Wrap(ErrMalformed, err.Error())
	}
	out, err := p.checks(list)
	return out, false, err
}

// expr interprets a bare expression, such as an address map key.
func (p *parser) expr(s string) (Value, error) {
	b, err := p.ip.Interpret(s)
	if err != nil {
		return Value{}, err
	}
	return Value{Original: s, Bytes: b}, nil
}

// key interprets a map key such as a token identifier or a storage key.
func (p *parser) key(s string) (string, error) {
	b, err := p.ip.Interpret(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type rawAccount struct {
	Nonce            json.RawMessage `json:"nonce"`
	Balance          json.RawMessage `json:"balance"`
	ESDT             json.RawMessage `json:"esdt"`
	Username         json.RawMessage `json:"username"`
	Storage          json.RawMessage `json:"storage"`
	Code             json.RawMessage `json:"code"`
	CodeMetadata     json.RawMessage `json:"codeMetadata"`
	Owner            json.RawMessage `json:"owner"`
	DeveloperRewards json.RawMessage `json:"developerRewards"`
}

type rawInstance struct {
	Nonce      json.RawMessage `json:"nonce"`
	Balance    json.RawMessage `json:"balance"`
	Creator    json.RawMessage `json:"creator"`
	Royalties  json.RawMessage `json:"royalties"`
	Hash       json.RawMessage `json:"hash"`
	URI        json.RawMessage `json:"uri"`
	Attributes json.RawMessage `json:"attributes"`
}

type rawToken struct {
	Instances json.RawMessage `json:"instances"`
	LastNonce json.RawMessage `json:"lastNonce"`
	Roles     json.RawMessage `json:"roles"`
	Frozen    json.RawMessage `json:"frozen"`
}

type rawBlockInfo struct {
	Timestamp  json.RawMessage `json:"blockTimestamp"`
	Nonce      json.RawMessage `json:"blockNonce"`
	Round      json.RawMessage `json:"blockRound"`
	Epoch      json.RawMessage `json:"blockEpoch"`
	RandomSeed json.RawMessage `json:"blockRandomSeed"`
}

func (p *parser) setState(h rawHeader, data json.RawMessage) (*SetStateStep, error) {
	var raw struct {
		Accounts     map[string]rawAccount `json:"accounts"`
		NewAddresses []struct {
			Creator json.RawMessage `json:"creatorAddress"`
			Nonce   json.RawMessage `json:"creatorNonce"`
			Address json.RawMessage `json:"newAddress"`
		} `json:"newAddresses"`
		BlockHashes       []json.RawMessage `json:"blockHashes"`
		PreviousBlockInfo *rawBlockInfo     `json:"previousBlockInfo"`
		CurrentBlockInfo  *rawBlockInfo     `json:"currentBlockInfo"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	step := &SetStateStep{StepHeader: h.header(), Accounts: make(map[string]*AccountState, len(raw.Accounts))}
	for addr, ra := range raw.Accounts {
		acc, err := p.account(ra)
		if err != nil {
			return nil, errors.Wrapf(err, "account %s", addr)
		}
		if acc.Address, err = p.expr(addr); err != nil {
			return nil, errors.Wrapf(err, "account %s", addr)
		}
		step.Accounts[addr] = acc
	}
	for _, na := range raw.NewAddresses {
		var (
			entry NewAddress
			err   error
		)
		if entry.Creator, err = p.value(na.Creator); err != nil {
			return nil, err
		}
		if entry.CreatorNonce, err = p.value(na.Nonce); err != nil {
			return nil, err
		}
		if entry.Address, err = p.value(na.Address); err != nil {
			return nil, err
		}
		step.NewAddresses = append(step.NewAddresses, entry)
	}
	var err error
	if step.BlockHashes, err = p.values(raw.BlockHashes); err != nil {
		return nil, err
	}
	if step.PreviousBlockInfo, err = p.blockInfo(raw.PreviousBlockInfo); err != nil {
		return nil, errors.Wrap(err, "previousBlockInfo")
	}
	if step.CurrentBlockInfo, err = p.blockInfo(raw.CurrentBlockInfo); err != nil {
		return nil, errors.Wrap(err, "currentBlockInfo")
	}
	return step, nil
}

func (p *parser) blockInfo(raw *rawBlockInfo) (*BlockInfo, error) {
	if raw == nil {
		return nil, nil
	}
	var (
		bi  BlockInfo
		err error
	)
	for _, f := range []struct {
		dst *Value
		src json.RawMessage
	}{
		{&bi.Timestamp, raw.Timestamp},
		{&bi.Nonce, raw.Nonce},
		{&bi.Round, raw.Round},
		{&bi.Epoch, raw.Epoch},
		{&bi.RandomSeed, raw.RandomSeed},
	} {
		if *f.dst, err = p.value(f.src); err != nil {
			return nil, err
		}
	}
	return &bi, nil
}

func (p *parser) account(ra rawAccount) (*AccountState, error) {
	acc := &AccountState{
		ESDT:    make(map[string]*TokenState),
		Storage: make(map[string]Value),
	}
	var err error
	for _, f := range []struct {
		dst *Value
		src json.RawMessage
	}{
		{&acc.Nonce, ra.Nonce},
		{&acc.Balance, ra.Balance},
		{&acc.Username, ra.Username},
		{&acc.Code, ra.Code},
		{&acc.CodeMetadata, ra.CodeMetadata},
		{&acc.Owner, ra.Owner},
		{&acc.DeveloperRewards, ra.DeveloperRewards},
	} {
		if *f.dst, err = p.value(f.src); err != nil {
			return nil, err
		}
	}

	if !isAbsent(ra.Storage) {
		var storage map[string]json.RawMessage
		if err := json.Unmarshal(ra.Storage, &storage); err != nil {
			return nil, errors.Wrap(ErrMalformed, "storage: "+err.Error())
		}
		for k, rv := range storage {
			key, err := p.key(k)
			if err != nil {
				return nil, errors.Wrapf(err, "storage key %s", k)
			}
			if acc.Storage[key], err = p.value(rv); err != nil {
				return nil, errors.Wrapf(err, "storage %s", k)
			}
		}
	}

	if !isAbsent(ra.ESDT) {
		var tokens map[string]json.RawMessage
		if err := json.Unmarshal(ra.ESDT, &tokens); err != nil {
			return nil, errors.Wrap(ErrMalformed, "esdt: "+err.Error())
		}
		for k, rt := range tokens {
			id, err := p.key(k)
			if err != nil {
				return nil, errors.Wrapf(err, "token %s", k)
			}
			if acc.ESDT[id], err = p.token(rt); err != nil {
				return nil, errors.Wrapf(err, "token %s", k)
			}
		}
	}
	return acc, nil
}

func (p *parser) token(raw json.RawMessage) (*TokenState, error) {
	if t := bytes.TrimSpace(raw); len(t) == 0 || t[0] != '{' {
		balance, err := p.value(raw)
		if err != nil {
			return nil, err
		}
		return &TokenState{Instances: []Instance{{Balance: balance}}}, nil
	}
	var rt rawToken
	if err := json.Unmarshal(raw, &rt); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	ts := &TokenState{}
	var err error
	if ts.LastNonce, err = p.value(rt.LastNonce); err != nil {
		return nil, err
	}
	if !isAbsent(rt.Roles) {
		if err := json.Unmarshal(rt.Roles, &ts.Roles); err != nil {
			return nil, errors.Wrap(ErrMalformed, "roles: "+err.Error())
		}
	}
	if !isAbsent(rt.Frozen) {
		frozen, err := p.value(rt.Frozen)
		if err != nil {
			return nil, err
		}
		ts.Frozen = frozen.BigInt().Sign() != 0
	}
	var instances []rawInstance
	if !isAbsent(rt.Instances) {
		if err := json.Unmarshal(rt.Instances, &instances); err != nil {
			return nil, errors.Wrap(ErrMalformed, "instances: "+err.Error())
		}
	}
	for _, ri := range instances {
		var inst Instance
		for _, f := range []struct {
			dst *Value
			src json.RawMessage
		}{
			{&inst.Nonce, ri.Nonce},
			{&inst.Balance, ri.Balance},
			{&inst.Creator, ri.Creator},
			{&inst.Royalties, ri.Royalties},
			{&inst.Hash, ri.Hash},
			{&inst.Attributes, ri.Attributes},
		} {
			if *f.dst, err = p.value(f.src); err != nil {
				return nil, err
			}
		}
		if !isAbsent(ri.URI) {
			var uris []json.RawMessage
			if err := json.Unmarshal(ri.URI, &uris); err != nil {
				return nil, errors.Wrap(ErrMalformed, "uri: "+err.Error())
			}
			if inst.URIs, err = p.values(uris); err != nil {
				return nil, err
			}
		}
		ts.Instances = append(ts.Instances, inst)
	}
	return ts, nil
}

type rawPayment struct {
	TokenID json.RawMessage `json:"tokenIdentifier"`
	Nonce   json.RawMessage `json:"nonce"`
	Value   json.RawMessage `json:"value"`
}

type rawTx struct {
	From         json.RawMessage   `json:"from"`
	To           json.RawMessage   `json:"to"`
	Value        json.RawMessage   `json:"value"`
	EGLDValue    json.RawMessage   `json:"egldValue"`
	ESDTValue    []rawPayment      `json:"esdtValue"`
	Function     string            `json:"function"`
	Arguments    []json.RawMessage `json:"arguments"`
	GasLimit     json.RawMessage   `json:"gasLimit"`
	GasPrice     json.RawMessage   `json:"gasPrice"`
	ContractCode json.RawMessage   `json:"contractCode"`
	CodeMetadata json.RawMessage   `json:"codeMetadata"`
}

func (rt rawTx) egld() json.RawMessage {
	if !isAbsent(rt.EGLDValue) {
		return rt.EGLDValue
	}
	return rt.Value
}

func (p *parser) payments(raws []rawPayment) ([]Payment, error) {
	var out []Payment
	for _, rp := range raws {
		var (
			pay Payment
			err error
		)
		if pay.TokenID, err = p.value(rp.TokenID); err != nil {
			return nil, err
		}
		if pay.Nonce, err = p.value(rp.Nonce); err != nil {
			return nil, err
		}
		if pay.Value, err = p.value(rp.Value); err != nil {
			return nil, err
		}
		out = append(out, pay)
	}
	return out, nil
}

// txStep decodes the tx, expect and txHash fields of a transaction step.
func (p *parser) txStep(h rawHeader, data json.RawMessage) (rawTx, *TxExpect, Value, error) {
	var raw struct {
		Tx     rawTx           `json:"tx"`
		Expect json.RawMessage `json:"expect"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return rawTx{}, nil, Value{}, errors.Wrap(ErrMalformed, err.Error())
	}
	hash, err := p.value(h.TxHash)
	if err != nil {
		return rawTx{}, nil, Value{}, errors.Wrap(err, "txHash")
	}
	if isAbsent(raw.Expect) {
		return raw.Tx, nil, hash, nil
	}
	expect, err := p.expect(raw.Expect)
	if err != nil {
		return rawTx{}, nil, Value{}, errors.Wrap(err, "expect")
	}
	return raw.Tx, expect, hash, nil
}

func (p *parser) scCall(h rawHeader, data json.RawMessage) (*ScCallStep, error) {
	rt, expect, hash, err := p.txStep(h, data)
	if err != nil {
		return nil, err
	}
	step := &ScCallStep{StepHeader: h.header(), TxHash: hash, Expect: expect}
	tx := &step.Tx
	tx.Function = rt.Function
	for _, f := range []struct {
		dst *Value
		src json.RawMessage
	}{
		{&tx.From, rt.From},
		{&tx.To, rt.To},
		{&tx.EGLDValue, rt.egld()},
		{&tx.GasLimit, rt.GasLimit},
		{&tx.GasPrice, rt.GasPrice},
	} {
		if *f.dst, err = p.value(f.src); err != nil {
			return nil, errors.Wrap(err, "tx")
		}
	}
	if tx.ESDTValue, err = p.payments(rt.ESDTValue); err != nil {
		return nil, errors.Wrap(err, "esdtValue")
	}
	if tx.Arguments, err = p.values(rt.Arguments); err != nil {
		return nil, errors.Wrap(err, "arguments")
	}
	return step, nil
}

func (p *parser) scDeploy(h rawHeader, data json.RawMessage) (*ScDeployStep, error) {
	rt, expect, hash, err := p.txStep(h, data)
	if err != nil {
		return nil, err
	}
	step := &ScDeployStep{StepHeader: h.header(), TxHash: hash, Expect: expect}
	tx := &step.Tx
	for _, f := range []struct {
		dst *Value
		src json.RawMessage
	}{
		{&tx.From, rt.From},
		{&tx.EGLDValue, rt.egld()},
		{&tx.ContractCode, rt.ContractCode},
		{&tx.CodeMetadata, rt.CodeMetadata},
		{&tx.GasLimit, rt.GasLimit},
		{&tx.GasPrice, rt.GasPrice},
	} {
		if *f.dst, err = p.value(f.src); err != nil {
			return nil, errors.Wrap(err, "tx")
		}
	}
	if tx.Arguments, err = p.values(rt.Arguments); err != nil {
		return nil, errors.Wrap(err, "arguments")
	}
	return step, nil
}

func (p *parser) scQuery(h rawHeader, data json.RawMessage) (*ScQueryStep, error) {
	rt, expect, _, err := p.txStep(h, data)
	if err != nil {
		return nil, err
	}
	step := &ScQueryStep{StepHeader: h.header(), Expect: expect}
	step.Tx.Function = rt.Function
	if step.Tx.To, err = p.value(rt.To); err != nil {
		return nil, errors.Wrap(err, "tx")
	}
	if step.Tx.Arguments, err = p.values(rt.Arguments); err != nil {
		return nil, errors.Wrap(err, "arguments")
	}
	return step, nil
}

func (p *parser) transfer(h rawHeader, data json.RawMessage) (Step, error) {
	rt, _, hash, err := p.txStep(h, data)
	if err != nil {
		return nil, err
	}
	var tx TxTransfer
	for _, f := range []struct {
		dst *Value
		src json.RawMessage
	}{
		{&tx.From, rt.From},
		{&tx.To, rt.To},
		{&tx.EGLDValue, rt.egld()},
		{&tx.GasLimit, rt.GasLimit},
		{&tx.GasPrice, rt.GasPrice},
	} {
		if *f.dst, err = p.value(f.src); err != nil {
			return nil, errors.Wrap(err, "tx")
		}
	}
	if tx.ESDTValue, err = p.payments(rt.ESDTValue); err != nil {
		return nil, errors.Wrap(err, "esdtValue")
	}
	if StepKind(h.Step) == KindValidatorReward {
		return &ValidatorRewardStep{StepHeader: h.header(), Tx: tx}, nil
	}
	return &TransferStep{StepHeader: h.header(), TxHash: hash, Tx: tx}, nil
}

func (p *parser) expect(data json.RawMessage) (*TxExpect, error) {
	var raw struct {
		Out     json.RawMessage `json:"out"`
		Status  json.RawMessage `json:"status"`
		Message json.RawMessage `json:"message"`
		Logs    json.RawMessage `json:"logs"`
		Gas     json.RawMessage `json:"gas"`
		Refund  json.RawMessage `json:"refund"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	e := &TxExpect{}
	var err error
	if e.Out, e.OutStar, err = p.checkList(raw.Out); err != nil {
		return nil, errors.Wrap(err, "out")
	}
	if e.Status, err = p.check(raw.Status); err != nil {
		return nil, errors.Wrap(err, "status")
	}
	if e.Message, err = p.message(raw.Message); err != nil {
		return nil, errors.Wrap(err, "message")
	}
	if e.Logs, err = p.logs(raw.Logs); err != nil {
		return nil, errors.Wrap(err, "logs")
	}
	if e.Gas, err = p.check(raw.Gas); err != nil {
		return nil, errors.Wrap(err, "gas")
	}
	if e.Refund, err = p.check(raw.Refund); err != nil {
		return nil, errors.Wrap(err, "refund")
	}
	return e, nil
}

func (p *parser) message(raw json.RawMessage) (MessageCheck, error) {
	if s, ok := asString(raw); ok {
		if rest, found := strings.CutPrefix(s, substrPrefix); found {
			return MessageCheck{
				CheckValue: CheckValue{Value: Value{Original: s, Bytes: []byte(rest)}},
				Substring:  true,
			}, nil
		}
	}
	c, err := p.check(raw)
	return MessageCheck{CheckValue: c}, err
}

func (p *parser) logs(raw json.RawMessage) (CheckLogs, error) {
	if isAbsent(raw) {
		return CheckLogs{Star: true}, nil
	}
	if s, ok := asString(raw); ok && s == starSentinel {
		return CheckLogs{Star: true}, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return CheckLogs{}, errors.Wrap(ErrMalformed, err.Error())
	}
	var out CheckLogs
	for i, item := range list {
		if s, ok := asString(item); ok && s == allowMoreSentinel {
			if i != len(list)-1 {
				return CheckLogs{}, errors.Wrap(ErrMalformed, `"+" must be the last log`)
			}
			out.AllowMore = true
			break
		}
		var rl struct {
			Address  json.RawMessage `json:"address"`
			Endpoint json.RawMessage `json:"endpoint"`
			Topics   json.RawMessage `json:"topics"`
			Data     json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(item, &rl); err != nil {
			return CheckLogs{}, errors.Wrapf(ErrMalformed, "log %d: %v", i, err)
		}
		var (
			cl  CheckLog
			err error
		)
		if cl.Address, err = p.check(rl.Address); err != nil {
			return CheckLogs{}, err
		}
		if cl.Endpoint, err = p.check(rl.Endpoint); err != nil {
			return CheckLogs{}, err
		}
		if cl.Topics, cl.TopicsStar, err = p.checkList(rl.Topics); err != nil {
			return CheckLogs{}, err
		}
		if cl.Data, err = p.check(rl.Data); err != nil {
			return CheckLogs{}, err
		}
		out.List = append(out.List, cl)
	}
	return out, nil
}

func (p *parser) checkState(h rawHeader, data json.RawMessage) (*CheckStateStep, error) {
	var raw struct {
		Accounts map[string]json.RawMessage `json:"accounts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	step := &CheckStateStep{StepHeader: h.header(), Accounts: make(map[string]*CheckAccount, len(raw.Accounts))}
	for addr, ra := range raw.Accounts {
		if addr == allowMoreSentinel {
			step.AllowMore = true
			continue
		}
		acc, err := p.checkAccount(ra)
		if err != nil {
			return nil, errors.Wrapf(err, "account %s", addr)
		}
		if acc.Address, err = p.expr(addr); err != nil {
			return nil, errors.Wrapf(err, "account %s", addr)
		}
		step.Accounts[addr] = acc
	}
	return step, nil
}

func (p *parser) checkAccount(data json.RawMessage) (*CheckAccount, error) {
	var ra rawAccount
	if err := json.Unmarshal(data, &ra); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	acc := &CheckAccount{}
	var err error
	for _, f := range []struct {
		dst *CheckValue
		src json.RawMessage
	}{
		{&acc.Nonce, ra.Nonce},
		{&acc.Balance, ra.Balance},
		{&acc.Username, ra.Username},
		{&acc.Code, ra.Code},
		{&acc.CodeMetadata, ra.CodeMetadata},
		{&acc.Owner, ra.Owner},
		{&acc.DeveloperRewards, ra.DeveloperRewards},
	} {
		if *f.dst, err = p.check(f.src); err != nil {
			return nil, err
		}
	}
	if acc.Storage, err = p.checkMap(ra.Storage); err != nil {
		return nil, errors.Wrap(err, "storage")
	}
	if acc.ESDT, err = p.checkTokens(ra.ESDT); err != nil {
		return nil, errors.Wrap(err, "esdt")
	}
	return acc, nil
}

// openMap decodes "*" or an object whose "+" member allows extra entries.
func openMap(raw json.RawMessage) (entries map[string]json.RawMessage, star, allowMore bool, err error) {
	if isAbsent(raw) {
		return nil, true, false, nil
	}
	if s, ok := asString(raw); ok && s == starSentinel {
		return nil, true, false, nil
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false, false, errors.Wrap(ErrMalformed, err.Error())
	}
	if _, ok := entries[allowMoreSentinel]; ok {
		delete(entries, allowMoreSentinel)
		allowMore = true
	}
	return entries, false, allowMore, nil
}

func (p *parser) checkMap(raw json.RawMessage) (CheckMap, error) {
	entries, star, allowMore, err := openMap(raw)
	if err != nil || star {
		return CheckMap{Star: star}, err
	}
	cm := CheckMap{AllowMore: allowMore, Entries: make(map[string]CheckValue, len(entries))}
	for k, rv := range entries {
		key, err := p.key(k)
		if err != nil {
			return CheckMap{}, errors.Wrapf(err, "key %s", k)
		}
		if cm.Entries[key], err = p.check(rv); err != nil {
			return CheckMap{}, errors.Wrapf(err, "key %s", k)
		}
	}
	return cm, nil
}

func (p *parser) checkTokens(raw json.RawMessage) (CheckTokens, error) {
	entries, star, allowMore, err := openMap(raw)
	if err != nil || star {
		return CheckTokens{Star: star}, err
	}
	ct := CheckTokens{AllowMore: allowMore, Tokens: make(map[string]*CheckToken, len(entries))}
	for k, rv := range entries {
		id, err := p.key(k)
		if err != nil {
			return CheckTokens{}, errors.Wrapf(err, "token %s", k)
		}
		if ct.Tokens[id], err = p.checkToken(rv); err != nil {
			return CheckTokens{}, errors.Wrapf(err, "token %s", k)
		}
	}
	return ct, nil
}

func (p *parser) checkToken(raw json.RawMessage) (*CheckToken, error) {
	if t := bytes.TrimSpace(raw); len(t) == 0 || t[0] != '{' {
		balance, err := p.check(raw)
		if err != nil {
			return nil, err
		}
		return &CheckToken{
			Instances: []CheckInstance{{Balance: balance, Creator: Star, Royalties: Star, Hash: Star, URIsStar: true, Attributes: Star}},
			LastNonce: Star,
			RolesStar: true,
			Frozen:    Star,
		}, nil
	}
	var rt rawToken
	if err := json.Unmarshal(raw, &rt); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	ct := &CheckToken{RolesStar: isAbsent(rt.Roles), ExactInstances: true}
	var err error
	if ct.LastNonce, err = p.check(rt.LastNonce); err != nil {
		return nil, err
	}
	if ct.Frozen, err = p.check(rt.Frozen); err != nil {
		return nil, err
	}
	if !ct.RolesStar {
		if s, ok := asString(rt.Roles); ok && s == starSentinel {
			ct.RolesStar = true
		} else if err := json.Unmarshal(rt.Roles, &ct.Roles); err != nil {
			return nil, errors.Wrap(ErrMalformed, "roles: "+err.Error())
		}
	}
	if isAbsent(rt.Instances) {
		ct.InstancesStar = true
		return ct, nil
	}
	if s, ok := asString(rt.Instances); ok && s == starSentinel {
		ct.InstancesStar = true
		return ct, nil
	}
	var instances []rawInstance
	if err := json.Unmarshal(rt.Instances, &instances); err != nil {
		return nil, errors.Wrap(ErrMalformed, "instances: "+err.Error())
	}
	for _, ri := range instances {
		var ci CheckInstance
		if ci.Nonce, err = p.value(ri.Nonce); err != nil {
			return nil, err
		}
		for _, f := range []struct {
			dst *CheckValue
			src json.RawMessage
		}{
			{&ci.Balance, ri.Balance},
			{&ci.Creator, ri.Creator},
			{&ci.Royalties, ri.Royalties},
			{&ci.Hash, ri.Hash},
			{&ci.Attributes, ri.Attributes},
		} {
			if *f.dst, err = p.check(f.src); err != nil {
				return nil, err
			}
		}
		if ci.URIs, ci.URIsStar, err = p.checkList(ri.URI); err != nil {
			return nil, err
		}
		ct.Instances = append(ct.Instances, ci)
	}
	return ct, nil
}
