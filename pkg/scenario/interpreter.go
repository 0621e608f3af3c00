package scenario

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/codec"
)

// MissingFilePrefix starts the value of a file that could not be read when
// missing files are allowed.
const MissingFilePrefix = "MISSING:"

var (
	// ErrInvalidValue is returned when a value expression cannot be interpreted.
	ErrInvalidValue = errors.New("invalid value expression")

	// ErrMissingFile is returned when a file: or mxsc: expression names a missing file.
	ErrMissingFile = errors.New("file not found")
)

// Interpreter turns value expressions into bytes.
//
// Expressions are concatenated with '|'. Recognized forms:
//
//	""                       empty
//	true, false              0x01, empty
//	str:X, ''X, ``X          the bytes of X
//	address:X[#SS]           X padded with '_' to 32 bytes, optional last byte
//	sc:X[#SS]                8 zero bytes, then X padded with '_'
//	bech32:X                 a bech32 address
//	file:PATH                file contents, relative to Dir
//	mxsc:PATH                the code of a contract artifact
//	keccak256:X              the hash of X
//	nested:X                 X with a 4-byte length prefix
//	u8: .. u64:, i8: .. i64: fixed-width integers
//	biguint:N, bigint:N      length-prefixed integers
//	0xHEX, 0bBIN             raw bytes, binary number
//	N, +N, -N                minimal unsigned or signed integers; '_' and ',' separate digits
type Interpreter struct {
	// Dir resolves relative file paths.
	Dir string

	// AllowMissingFiles makes unreadable files evaluate to MissingFilePrefix
	// followed by their path instead of failing.
	AllowMissingFiles bool
}

// Interpret evaluates an expression.
func (ip *Interpreter) Interpret(s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	if parts := strings.Split(s, "|"); len(parts) > 1 {
		var out []byte
		for _, p := range parts {
			b, err := ip.Interpret(p)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
		return out, nil
	}

	switch s {
	case "true":
		return []byte{1}, nil
	case "false":
		return []byte{}, nil
	}
	for _, prefix := range []string{"str:", "''", "``"} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			return []byte(rest), nil
		}
	}

	switch {
	case strings.HasPrefix(s, "address:"):
		return addressExpr(s[len("address:"):], 0)
	case strings.HasPrefix(s, "sc:"):
		return addressExpr(s[len("sc:"):], types.SCAddressZeroPrefix)
	case strings.HasPrefix(s, "bech32:"):
		addr, err := types.AddressFromBech32(s[len("bech32:"):])
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidValue, "%q: %v", s, err)
		}
		return addr.Bytes(), nil
	case strings.HasPrefix(s, "file:"):
		return ip.readFile(s[len("file:"):])
	case strings.HasPrefix(s, "mxsc:"):
		return ip.readArtifact(s[len("mxsc:"):])
	case strings.HasPrefix(s, "keccak256:"):
		b, err := ip.Interpret(s[len("keccak256:"):])
		if err != nil {
			return nil, err
		}
		h := sha3.NewLegacyKeccak256()
		h.Write(b)
		return h.Sum(nil), nil
	case strings.HasPrefix(s, "nested:"):
		b, err := ip.Interpret(s[len("nested:"):])
		if err != nil {
			return nil, err
		}
		return codec.NestedEncodeBytes(b), nil
	case strings.HasPrefix(s, "biguint:"):
		x, err := parseUnsigned(s[len("biguint:"):])
		if err != nil {
			return nil, err
		}
		return codec.NestedEncodeBytes(x.Bytes()), nil
	case strings.HasPrefix(s, "bigint:"):
		x, err := parseSigned(s[len("bigint:"):])
		if err != nil {
			return nil, err
		}
		return codec.NestedEncodeBigInt(x), nil
	}

	if b, ok, err := fixedWidth(s); ok {
		return b, err
	}
	return parseNumber(s)
}

// addressExpr pads name with '_' after zeros leading zero bytes. A "#SS"
// suffix sets the last byte to the hex shard id SS.
func addressExpr(name string, zeros int) ([]byte, error) {
	var shard string
	if i := strings.LastIndexByte(name, '#'); i >= 0 {
		name, shard = name[:i], name[i+1:]
	}
	out := make([]byte, types.AddressSize)
	for i := zeros; i < len(out); i++ {
		out[i] = '_'
	}
	copy(out[zeros:], name)
	if shard != "" {
		b, err := hex.DecodeString(shard)
		if err != nil || len(b) != 1 {
			return nil, errors.Wrapf(ErrInvalidValue, "shard id %q", shard)
		}
		out[len(out)-1] = b[0]
	}
	return out, nil
}

func (ip *Interpreter) path(p string) string {
	if filepath.IsAbs(p) || ip.Dir == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(ip.Dir, p)
}

func (ip *Interpreter) readFile(p string) ([]byte, error) {
	full := ip.path(p)
	data, err := os.ReadFile(full)
	if err != nil {
		if ip.AllowMissingFiles && os.IsNotExist(err) {
			return []byte(MissingFilePrefix + full), nil
		}
		return nil, errors.Wrapf(ErrMissingFile, "%s: %v", full, err)
	}
	return data, nil
}

// readArtifact loads the hex code field of a contract build artifact.
func (ip *Interpreter) readArtifact(p string) ([]byte, error) {
	data, err := ip.readFile(p)
	if err != nil || strings.HasPrefix(string(data), MissingFilePrefix) {
		return data, err
	}
	var artifact struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, errors.Wrapf(ErrInvalidValue, "contract artifact %s: %v", p, err)
	}
	code, err := hex.DecodeString(strings.TrimPrefix(artifact.Code, "0x"))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidValue, "contract artifact %s: %v", p, err)
	}
	return code, nil
}

var fixedWidths = []struct {
	prefix string
	size   int
	signed bool
}{
	{"u8:", 1, false}, {"u16:", 2, false}, {"u32:", 4, false}, {"u64:", 8, false},
	{"i8:", 1, true}, {"i16:", 2, true}, {"i32:", 4, true}, {"i64:", 8, true},
}

func fixedWidth(s string) ([]byte, bool, error) {
	for _, fw := range fixedWidths {
		rest, ok := strings.CutPrefix(s, fw.prefix)
		if !ok {
			continue
		}
		var (
			x   *big.Int
			err error
		)
		if fw.signed {
			x, err = parseSigned(rest)
		} else {
			x, err = parseUnsigned(rest)
		}
		if err != nil {
			return nil, true, err
		}
		bits := uint(fw.size * 8)
		if fw.signed {
			limit := new(big.Int).Lsh(big.NewInt(1), bits-1)
			if x.Cmp(limit) >= 0 || x.Cmp(new(big.Int).Neg(limit)) < 0 {
				return nil, true, errors.Wrapf(ErrInvalidValue, "%q overflows %d bytes", s, fw.size)
			}
			if x.Sign() < 0 {
				x.Add(x, new(big.Int).Lsh(big.NewInt(1), bits))
			}
		} else if x.BitLen() > int(bits) {
			return nil, true, errors.Wrapf(ErrInvalidValue, "%q overflows %d bytes", s, fw.size)
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], x.Uint64())
		return append([]byte(nil), buf[8-fw.size:]...), true, nil
	}
	return nil, false, nil
}

func parseNumber(s string) ([]byte, error) {
	if s[0] == '+' || s[0] == '-' {
		x, err := parseSigned(s)
		if err != nil {
			return nil, err
		}
		return codec.TopEncodeBigInt(x), nil
	}
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		b, err := hex.DecodeString(rest)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidValue, "%q: %v", s, err)
		}
		return b, nil
	}
	x, err := parseUnsigned(s)
	if err != nil {
		return nil, err
	}
	return x.Bytes(), nil
}

func parseUnsigned(s string) (*big.Int, error) {
	digits := strings.NewReplacer("_", "", ",", "").Replace(s)
	base := 10
	switch {
	case strings.HasPrefix(digits, "0x"):
		digits, base = digits[2:], 16
	case strings.HasPrefix(digits, "0b"):
		digits, base = digits[2:], 2
	}
	x, ok := new(big.Int).SetString(digits, base)
	if !ok || digits == "" || x.Sign() < 0 {
		return nil, errors.Wrapf(ErrInvalidValue, "%q", s)
	}
	return x, nil
}

func parseSigned(s string) (*big.Int, error) {
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg, s = true, s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	x, err := parseUnsigned(s)
	if err != nil {
		return nil, err
	}
	if neg {
		x.Neg(x)
	}
	return x, nil
}
