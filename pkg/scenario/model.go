package scenario

import (
	"bytes"
	"math/big"
	"strings"
)

// Value is an interpreted expression together with its source text.
type Value struct {
	Original string
	Bytes    []byte
}

// String returns the source text.
func (v Value) String() string {
	return v.Original
}

// IsSet reports whether the value was present in the file.
func (v Value) IsSet() bool {
	return v.Original != "" || len(v.Bytes) > 0
}

// BigInt interprets the bytes as an unsigned big-endian integer.
func (v Value) BigInt() *big.Int {
	return new(big.Int).SetBytes(v.Bytes)
}

// Uint64 interprets the bytes as an unsigned big-endian integer.
func (v Value) Uint64() uint64 {
	return v.BigInt().Uint64()
}

// CheckValue is an expected value. A star matches anything.
type CheckValue struct {
	Star  bool
	Value Value
}

// Star matches any value.
var Star = CheckValue{Star: true, Value: Value{Original: "*"}}

// String returns the source text.
func (c CheckValue) String() string {
	if c.Star {
		return "*"
	}
	return c.Value.Original
}

// Check compares raw bytes.
func (c CheckValue) Check(actual []byte) bool {
	return c.Star || bytes.Equal(c.Value.Bytes, actual)
}

// CheckInt compares numerically, so that 0x0001 matches 1.
func (c CheckValue) CheckInt(actual *big.Int) bool {
	if c.Star {
		return true
	}
	if actual == nil {
		actual = new(big.Int)
	}
	return c.Value.BigInt().Cmp(actual) == 0
}

// MessageCheck is an expected error message. Substring checks match when the
// actual message contains the expected text.
type MessageCheck struct {
	CheckValue
	Substring bool
}

// Check compares a message.
func (m MessageCheck) Check(actual string) bool {
	if m.Star {
		return true
	}
	if m.Substring {
		return strings.Contains(actual, string(m.Value.Bytes))
	}
	return string(m.Value.Bytes) == actual
}

// StepKind names a step type in the scenario file.
type StepKind string

// Step kinds.
const (
	KindSetState        StepKind = "setState"
	KindScCall          StepKind = "scCall"
	KindScQuery         StepKind = "scQuery"
	KindScDeploy        StepKind = "scDeploy"
	KindTransfer        StepKind = "transfer"
	KindValidatorReward StepKind = "validatorReward"
	KindCheckState      StepKind = "checkState"
	KindDumpState       StepKind = "dumpState"
	KindExternalSteps   StepKind = "externalSteps"
)

// Scenario is a parsed scenario file.
type Scenario struct {
	Name        string
	Comment     string
	CheckGas    bool
	GasSchedule string
	Steps       []Step
}

// Step is one scenario step.
type Step interface {
	Kind() StepKind
	Header() StepHeader
}

// StepHeader holds the fields shared by every step.
type StepHeader struct {
	ID      string
	Comment string
}

// Header returns the shared fields.
func (h StepHeader) Header() StepHeader {
	return h
}

// Instance is one token instance in a setState step.
type Instance struct {
	Nonce      Value
	Balance    Value
	Creator    Value
	Royalties  Value
	Hash       Value
	URIs       []Value
	Attributes Value
}

// TokenState is everything an account holds for one token.
type TokenState struct {
	Instances []Instance
	LastNonce Value
	Roles     []string
	Frozen    bool
}

// AccountState is an account written by a setState step.
type AccountState struct {
	Address          Value
	Nonce            Value
	Balance          Value
	ESDT             map[string]*TokenState
	Username         Value
	Storage          map[string]Value
	Code             Value
	CodeMetadata     Value
	Owner            Value
	DeveloperRewards Value
}

// NewAddress registers the address a deploy will receive.
type NewAddress struct {
	Creator      Value
	CreatorNonce Value
	Address      Value
}

// BlockInfo overrides block fields. Unset fields keep their value.
type BlockInfo struct {
	Timestamp  Value
	Nonce      Value
	Round      Value
	Epoch      Value
	RandomSeed Value
}

// SetStateStep writes accounts and block info.
type SetStateStep struct {
	StepHeader

	// Accounts is keyed by the address expression.
	Accounts          map[string]*AccountState
	NewAddresses      []NewAddress
	BlockHashes       []Value
	PreviousBlockInfo *BlockInfo
	CurrentBlockInfo  *BlockInfo
}

// Kind implements Step.
func (*SetStateStep) Kind() StepKind { return KindSetState }

// Payment is one token attached to a transaction.
type Payment struct {
	TokenID Value
	Nonce   Value
	Value   Value
}

// TxCall is the transaction of scCall steps.
type TxCall struct {
	From      Value
	To        Value
	EGLDValue Value
	ESDTValue []Payment
	Function  string
	Arguments []Value
	GasLimit  Value
	GasPrice  Value
}

// TxDeploy is the transaction of scDeploy steps.
type TxDeploy struct {
	From         Value
	EGLDValue    Value
	ContractCode Value
	CodeMetadata Value
	Arguments    []Value
	GasLimit     Value
	GasPrice     Value
}

// TxQuery is the transaction of scQuery steps.
type TxQuery struct {
	To        Value
	Function  string
	Arguments []Value
}

// TxTransfer is the transaction of transfer and validatorReward steps.
type TxTransfer struct {
	From      Value
	To        Value
	EGLDValue Value
	ESDTValue []Payment
	GasLimit  Value
	GasPrice  Value
}

// CheckLog is an expected log entry.
type CheckLog struct {
	Address  CheckValue
	Endpoint CheckValue
	Topics   []CheckValue

	// TopicsStar skips the topic check.
	TopicsStar bool
	Data       CheckValue
}

// CheckLogs is the expected log list.
type CheckLogs struct {
	Star bool

	// AllowMore permits logs after the listed ones.
	AllowMore bool
	List      []CheckLog
}

// TxExpect describes the expected outcome of a transaction.
type TxExpect struct {
	Out     []CheckValue
	OutStar bool
	Status  CheckValue
	Message MessageCheck
	Logs    CheckLogs
	Gas     CheckValue
	Refund  CheckValue
}

// ScCallStep calls a contract.
type ScCallStep struct {
	StepHeader
	TxHash Value
	Tx     TxCall
	Expect *TxExpect
}

// Kind implements Step.
func (*ScCallStep) Kind() StepKind { return KindScCall }

// ScDeployStep deploys a contract.
type ScDeployStep struct {
	StepHeader
	TxHash Value
	Tx     TxDeploy
	Expect *TxExpect
}

// Kind implements Step.
func (*ScDeployStep) Kind() StepKind { return KindScDeploy }

// ScQueryStep runs a read-only call.
type ScQueryStep struct {
	StepHeader
	Tx     TxQuery
	Expect *TxExpect
}

// Kind implements Step.
func (*ScQueryStep) Kind() StepKind { return KindScQuery }

// TransferStep moves value without calling a function.
type TransferStep struct {
	StepHeader
	TxHash Value
	Tx     TxTransfer
}

// Kind implements Step.
func (*TransferStep) Kind() StepKind { return KindTransfer }

// ValidatorRewardStep credits a validator reward.
type ValidatorRewardStep struct {
	StepHeader
	Tx TxTransfer
}

// Kind implements Step.
func (*ValidatorRewardStep) Kind() StepKind { return KindValidatorReward }

// CheckMap is an expected key/value map. Without AllowMore the actual map
// must not hold other keys.
type CheckMap struct {
	Star      bool
	AllowMore bool
	Entries   map[string]CheckValue
}

// CheckInstance is an expected token instance.
type CheckInstance struct {
	Nonce      Value
	Balance    CheckValue
	Creator    CheckValue
	Royalties  CheckValue
	Hash       CheckValue
	URIs       []CheckValue
	URIsStar   bool
	Attributes CheckValue
}

// CheckToken is the expectation for one token. A plain value checks the
// fungible balance only.
type CheckToken struct {
	Instances []CheckInstance

	// InstancesStar skips the instance check.
	InstancesStar bool

	// ExactInstances fails on held instances that are not listed.
	ExactInstances bool
	LastNonce      CheckValue
	Roles          []string
	RolesStar      bool
	Frozen         CheckValue
}

// CheckTokens is the expected token map.
type CheckTokens struct {
	Star      bool
	AllowMore bool
	Tokens    map[string]*CheckToken
}

// CheckAccount is the expectation for one account.
type CheckAccount struct {
	Address          Value
	Nonce            CheckValue
	Balance          CheckValue
	ESDT             CheckTokens
	Username         CheckValue
	Storage          CheckMap
	Code             CheckValue
	CodeMetadata     CheckValue
	Owner            CheckValue
	DeveloperRewards CheckValue
}

// CheckStateStep compares the world against expectations.
type CheckStateStep struct {
	StepHeader

	// Accounts is keyed by the address expression.
	Accounts map[string]*CheckAccount

	// AllowMore permits accounts that are not listed.
	AllowMore bool
}

// Kind implements Step.
func (*CheckStateStep) Kind() StepKind { return KindCheckState }

// DumpStateStep writes the world out.
type DumpStateStep struct {
	StepHeader
}

// Kind implements Step.
func (*DumpStateStep) Kind() StepKind { return KindDumpState }

// ExternalStepsStep runs the steps of another scenario file.
type ExternalStepsStep struct {
	StepHeader
	Path string
}

// Kind implements Step.
func (*ExternalStepsStep) Kind() StepKind { return KindExternalSteps }
