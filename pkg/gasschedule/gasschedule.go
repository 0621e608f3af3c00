// Package gasschedule loads the gas cost tables used by the VM.
package gasschedule

import (
	"bytes"
	_ "embed"
	"os"
	"reflect"

	"github.com/naoina/toml"
	"github.com/pkg/errors"
)

//go:embed default.toml
var defaultTOML []byte

var (
	// ErrUnknownSchedule is returned for an unrecognized schedule name.
	ErrUnknownSchedule = errors.New("unknown gas schedule")
)

// Keys match struct field names exactly.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return errors.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// BuiltInCost is the flat cost of each built-in function.
type BuiltInCost struct {
	ESDTTransfer            uint64
	ESDTNFTTransfer         uint64
	MultiESDTNFTTransfer    uint64
	ESDTLocalMint           uint64
	ESDTLocalBurn           uint64
	ESDTNFTCreate           uint64
	ESDTNFTAddQuantity      uint64
	ESDTNFTBurn             uint64
	ESDTNFTAddURI           uint64
	ESDTNFTUpdateAttributes uint64
	ESDTSetRole             uint64
	ESDTUnSetRole           uint64
	ChangeOwnerAddress      uint64
	ClaimDeveloperRewards   uint64
	SetUserName             uint64
	DeleteUserName          uint64
	MigrateUserName         uint64
}

// BaseOperationCost holds per-byte costs.
type BaseOperationCost struct {
	StorePerByte    uint64
	ReleasePerByte  uint64
	DataCopyPerByte uint64
	PersistPerByte  uint64
	CompilePerByte  uint64
}

// APICost holds the cost of contract API calls.
type APICost struct {
	Base                 uint64
	StorageLoad          uint64
	StorageStore         uint64
	TransferValue        uint64
	ExecuteOnDestContext uint64
	AsyncCall            uint64
	CreateContract       uint64
	Log                  uint64
	LogPerByte           uint64
	Keccak256            uint64
	ManagedOp            uint64
}

// Schedule is a complete gas cost table.
type Schedule struct {
	BuiltInCost       BuiltInCost
	BaseOperationCost BaseOperationCost
	APICost           APICost
}

// Parse decodes a TOML schedule.
func Parse(data []byte) (*Schedule, error) {
	s := new(Schedule)
	if err := tomlSettings.NewDecoder(bytes.NewReader(data)).Decode(s); err != nil {
		return nil, errors.Wrap(err, "decode gas schedule")
	}
	return s, nil
}

// Load reads a TOML schedule from disk.
func Load(path string) (*Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read gas schedule %s", path)
	}
	return Parse(data)
}

// Default returns the embedded schedule.
func Default() *Schedule {
	s, err := Parse(defaultTOML)
	if err != nil {
		panic(err)
	}
	return s
}

// Zero returns a schedule where everything is free.
func Zero() *Schedule {
	return &Schedule{}
}

// Named resolves the gasSchedule field of a scenario. Empty, "default" and
// the versioned names map to the embedded table; "zero" and "dummy" to Zero.
func Named(name string) (*Schedule, error) {
	switch name {
	case "", "default", "v3", "v4":
		return Default(), nil
	case "zero", "dummy":
		return Zero(), nil
	default:
		return nil, errors.Wrapf(ErrUnknownSchedule, "%q", name)
	}
}

// BuiltIn returns the cost of a built-in function by name, and whether the name is known.
func (s *Schedule) BuiltIn(name string) (uint64, bool) {
	c := s.BuiltInCost
	switch name {
	case "ESDTTransfer":
		return c.ESDTTransfer, true
	case "ESDTNFTTransfer":
		return c.ESDTNFTTransfer, true
	case "MultiESDTNFTTransfer":
		return c.MultiESDTNFTTransfer, true
	case "ESDTLocalMint":
		return c.ESDTLocalMint, true
	case "ESDTLocalBurn":
		return c.ESDTLocalBurn, true
	case "ESDTNFTCreate":
		return c.ESDTNFTCreate, true
	case "ESDTNFTAddQuantity":
		return c.ESDTNFTAddQuantity, true
	case "ESDTNFTBurn":
		return c.ESDTNFTBurn, true
	case "ESDTNFTAddURI":
		return c.ESDTNFTAddURI, true
	case "ESDTNFTUpdateAttributes":
		return c.ESDTNFTUpdateAttributes, true
	case "ESDTSetRole":
		return c.ESDTSetRole, true
	case "ESDTUnSetRole", "ESDTUnsetRole":
		return c.ESDTUnSetRole, true
	case "ChangeOwnerAddress":
		return c.ChangeOwnerAddress, true
	case "ClaimDeveloperRewards":
		return c.ClaimDeveloperRewards, true
	case "SetUserName":
		return c.SetUserName, true
	case "DeleteUserName":
		return c.DeleteUserName, true
	case "MigrateUserName":
		return c.MigrateUserName, true
	default:
		return 0, false
	}
}

// StorageRefund returns the refund for releasing n bytes of storage.
func (s *Schedule) StorageRefund(n int) uint64 {
	return s.BaseOperationCost.ReleasePerByte * uint64(n)
}

// StorageStoreCost returns the cost of a storage write of n new bytes.
func (s *Schedule) StorageStoreCost(n int) uint64 {
	return s.APICost.StorageStore + s.BaseOperationCost.StorePerByte*uint64(n)
}

// LogCost returns the cost of emitting a log with n data bytes.
func (s *Schedule) LogCost(n int) uint64 {
	return s.APICost.Log + s.APICost.LogPerByte*uint64(n)
}
