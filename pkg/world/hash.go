package world

import (
	"encoding/binary"
	"io"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/zeebo/blake3"
)

// ComputeAccountHash hashes the canonical form of an account: every field in
// a fixed order, variable-length values length-prefixed, maps in key order.
func ComputeAccountHash(acc *Account) types.Hash {
	h := blake3.New()
	writeAccount(h, acc)
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ComputeStateHash hashes all accounts in address order, followed by the
// current block info. Two worlds with equal state hash to the same value.
func ComputeStateHash(s *State) types.Hash {
	h := blake3.New()
	for _, addr := range s.Addresses() {
		accHash := ComputeAccountHash(s.accounts[addr])
		h.Write(accHash[:])
	}
	writeUint(h, s.CurrentBlock.Timestamp)
	writeUint(h, s.CurrentBlock.Nonce)
	writeUint(h, s.CurrentBlock.Round)
	writeUint(h, s.CurrentBlock.Epoch)
	h.Write(s.CurrentBlock.RandomSeed[:])

	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

func writeAccount(w io.Writer, acc *Account) {
	w.Write(acc.Address[:])
	writeUint(w, acc.Nonce)
	writeBytes(w, intValue(acc.Balance).Bytes())
	writeBytes(w, acc.Username)
	writeBytes(w, acc.Code)
	writeBytes(w, acc.CodeMetadata.Bytes())
	w.Write(acc.Owner[:])
	writeBytes(w, intValue(acc.DeveloperReward).Bytes())

	keys := acc.StorageKeys()
	writeUint(w, uint64(len(keys)))
	for _, k := range keys {
		writeBytes(w, []byte(k))
		writeBytes(w, acc.Storage[k])
	}

	ids := acc.TokenIDs()
	writeUint(w, uint64(len(ids)))
	for _, id := range ids {
		data := acc.ESDT[id]
		writeBytes(w, []byte(id))
		writeUint(w, data.LastNonce)
		writeUint(w, uint64(data.Roles))
		if data.Frozen {
			w.Write([]byte{1})
		} else {
			w.Write([]byte{0})
		}
		nonces := data.Nonces()
		writeUint(w, uint64(len(nonces)))
		for _, n := range nonces {
			inst := data.Instances[n]
			writeUint(w, n)
			writeBytes(w, inst.Balance.Bytes())
			md := inst.Metadata
			writeBytes(w, md.Name)
			w.Write(md.Creator[:])
			writeUint(w, md.Royalties)
			writeBytes(w, md.Hash)
			writeBytes(w, md.Attributes)
			writeUint(w, uint64(len(md.URIs)))
			for _, u := range md.URIs {
				writeBytes(w, u)
			}
		}
	}
}

func writeUint(w io.Writer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func writeBytes(w io.Writer, b []byte) {
	writeUint(w, uint64(len(b)))
	w.Write(b)
}
