package types

// CodeMetadata is the 2-byte flag set attached to deployed code.
type CodeMetadata uint16

// Code metadata flags. The first byte carries upgradeable/readable, the second payable flags.
const (
	MetadataUpgradeable CodeMetadata = 0x0100
	MetadataReadable    CodeMetadata = 0x0400
	MetadataPayable     CodeMetadata = 0x0002
	MetadataPayableBySC CodeMetadata = 0x0004
)

// CodeMetadataFromBytes decodes the big-endian 2-byte form. Shorter inputs are left-padded.
func CodeMetadataFromBytes(b []byte) CodeMetadata {
	var v uint16
	for _, x := range b {
		v = v<<8 | uint16(x)
	}
	return CodeMetadata(v)
}

// Bytes returns the big-endian 2-byte form.
func (m CodeMetadata) Bytes() []byte {
	return []byte{byte(m >> 8), byte(m)}
}

// Has reports whether all bits of flag are set.
func (m CodeMetadata) Has(flag CodeMetadata) bool {
	return m&flag == flag
}

func (m CodeMetadata) Upgradeable() bool { return m.Has(MetadataUpgradeable) }
func (m CodeMetadata) Readable() bool    { return m.Has(MetadataReadable) }
func (m CodeMetadata) Payable() bool     { return m.Has(MetadataPayable) }
func (m CodeMetadata) PayableBySC() bool { return m.Has(MetadataPayableBySC) }
