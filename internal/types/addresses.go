package types

import (
	"strings"
)

// Well-known addresses.
var (
	// SystemSCAddress is the ESDT system contract. Only it may grant or revoke token roles.
	SystemSCAddress = MustAddressFromHex("000000000000000000010000000000000000000000000000000000000002ffff")
)

// VMTypeWasm is written into bytes 8..10 of derived contract addresses.
var VMTypeWasm = [2]byte{0x05, 0x00}

// Native token identifiers. Both spellings denote the native coin inside multi-transfers.
const (
	NativeTokenID      = "EGLD"
	NativeTokenIDMulti = "EGLD-000000"
)

// Built-in function names.
const (
	BuiltInESDTTransfer            = "ESDTTransfer"
	BuiltInESDTNFTTransfer         = "ESDTNFTTransfer"
	BuiltInMultiESDTNFTTransfer    = "MultiESDTNFTTransfer"
	BuiltInESDTLocalMint           = "ESDTLocalMint"
	BuiltInESDTLocalBurn           = "ESDTLocalBurn"
	BuiltInESDTNFTCreate           = "ESDTNFTCreate"
	BuiltInESDTNFTAddQuantity      = "ESDTNFTAddQuantity"
	BuiltInESDTNFTBurn             = "ESDTNFTBurn"
	BuiltInESDTNFTAddURI           = "ESDTNFTAddURI"
	BuiltInESDTNFTUpdateAttributes = "ESDTNFTUpdateAttributes"
	BuiltInESDTSetRole             = "ESDTSetRole"
	BuiltInESDTUnSetRole           = "ESDTUnSetRole"
	BuiltInESDTUnsetRoleAlias      = "ESDTUnsetRole"
	BuiltInChangeOwnerAddress      = "ChangeOwnerAddress"
	BuiltInSetUserName             = "SetUserName"
	BuiltInDeleteUserName          = "DeleteUserName"
	BuiltInMigrateUserName         = "MigrateUserName"
	BuiltInClaimDeveloperRewards   = "ClaimDeveloperRewards"
)

// Reserved contract function names.
const (
	InitFuncName     = "init"
	UpgradeFuncName  = "upgrade"
	CallbackFuncName = "callBack"
)

// Reserved storage prefixes.
const (
	ProtectedKeyPrefix = "ELROND"
	RewardStorageKey   = "ELRONDreward"
)

// Role names as they appear in scenario files and ESDTSetRole arguments.
const (
	RoleLocalMint           = "ESDTRoleLocalMint"
	RoleLocalBurn           = "ESDTRoleLocalBurn"
	RoleNFTCreate           = "ESDTRoleNFTCreate"
	RoleNFTAddQuantity      = "ESDTRoleNFTAddQuantity"
	RoleNFTBurn             = "ESDTRoleNFTBurn"
	RoleNFTAddURI           = "ESDTRoleNFTAddURI"
	RoleNFTUpdateAttributes = "ESDTRoleNFTUpdateAttributes"
	RoleTransfer            = "ESDTTransferRole"
)

// MaxRoyalties is the upper bound of NFT royalties (100.00%).
const MaxRoyalties = 10_000

// IsNativeToken reports whether id names the native coin.
func IsNativeToken(id string) bool {
	return id == NativeTokenID || id == NativeTokenIDMulti
}

// IsValidTokenIdentifier checks the TICKER-xxxxxx shape: a 3..10 character
// uppercase alphanumeric ticker, a dash and 6 lowercase hex characters.
func IsValidTokenIdentifier(id string) bool {
	dash := strings.LastIndexByte(id, '-')
	if dash < 3 || dash > 10 || len(id)-dash-1 != 6 {
		return false
	}
	for _, c := range id[:dash] {
		if !(c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	for _, c := range id[dash+1:] {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// IsProtectedKey reports whether a storage key lies under the reserved prefix.
func IsProtectedKey(key []byte) bool {
	return strings.HasPrefix(string(key), ProtectedKeyPrefix)
}
