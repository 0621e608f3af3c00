package world

import (
	"bytes"
	"encoding/gob"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("store closed")

	// ErrCorrupted is returned when stored data cannot be decoded.
	ErrCorrupted = errors.New("stored state corrupted")
)

// Store persists a world between runs.
type Store interface {
	// SaveState replaces the stored world with s.
	SaveState(s *State) error

	// LoadState returns the stored world. An empty store yields an empty world.
	LoadState() (*State, error)

	// Close releases the store.
	Close() error
}

// Verify that both stores implement Store.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*BadgerStore)(nil)
)

// MemoryStore keeps a cloned world in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	state *State
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: NewState()}
}

// SaveState implements Store.
func (m *MemoryStore) SaveState(s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s.Clone()
	return nil
}

// LoadState implements Store.
func (m *MemoryStore) LoadState() (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone(), nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}

// Key prefixes for BadgerDB storage.
var (
	// prefixAccount keys accounts: prefixAccount + address (32 bytes).
	prefixAccount = []byte{0x01}

	// prefixMeta keys metadata entries by name.
	prefixMeta = []byte{0x02}

	// prefixNewAddress keys predictions: prefixNewAddress + creator + nonce.
	prefixNewAddress = []byte{0x03}

	metaBlocks = append(append([]byte{}, prefixMeta...), []byte("blocks")...)
)

// BadgerStoreConfig contains configuration for the Badger store.
type BadgerStoreConfig struct {
	// Path is the directory path for the database.
	Path string

	// InMemory runs the database in memory (for testing).
	InMemory bool

	// SyncWrites ensures writes are synced to disk.
	SyncWrites bool

	// Logger is an optional badger logger. Nil disables logging.
	Logger badger.Logger
}

// DefaultBadgerStoreConfig returns default configuration.
func DefaultBadgerStoreConfig(path string) BadgerStoreConfig {
	return BadgerStoreConfig{
		Path:       path,
		SyncWrites: true,
	}
}

// BadgerStore is a BadgerDB-backed world store.
// Each account is one key; predictions and block info live under their own prefixes.
type BadgerStore struct {
	db     *badger.DB
	mu     sync.Mutex
	closed atomic.Bool
}

// NewBadgerStore opens or creates a Badger store.
func NewBadgerStore(cfg BadgerStoreConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(cfg.Logger)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}
	return &BadgerStore{db: db}, nil
}

type storedBlocks struct {
	Previous BlockInfo
	Current  BlockInfo
	Hashes   [][]byte
}

func accountKey(addr types.Address) []byte {
	key := make([]byte, 1+types.AddressSize)
	key[0] = prefixAccount[0]
	copy(key[1:], addr[:])
	return key
}

func newAddressKey(k NewAddressKey) []byte {
	key := make([]byte, 1+types.AddressSize+8)
	key[0] = prefixNewAddress[0]
	copy(key[1:], k.Creator[:])
	copy(key[1+types.AddressSize:], writeNonce(k.Nonce))
	return key
}

func writeNonce(n uint64) []byte {
	var b bytes.Buffer
	writeUint(&b, n)
	return b.Bytes()
}

func gobEncode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// SaveState implements Store. The previous content is dropped first.
func (b *BadgerStore) SaveState(s *State) error {
	if b.closed.Load() {
		return ErrClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.db.DropAll(); err != nil {
		return errors.Wrap(err, "drop previous state")
	}

	wb := b.db.NewWriteBatch()
	if err := writeState(wb, s); err != nil {
		wb.Cancel()
		return err
	}
	return wb.Flush()
}

func writeState(wb *badger.WriteBatch, s *State) error {
	for _, addr := range s.Addresses() {
		data, err := gobEncode(s.accounts[addr])
		if err != nil {
			return errors.Wrapf(err, "encode account %s", addr)
		}
		if err := wb.Set(accountKey(addr), data); err != nil {
			return err
		}
	}
	for k, addr := range s.newAddresses {
		if err := wb.Set(newAddressKey(k), append([]byte{}, addr[:]...)); err != nil {
			return err
		}
	}
	blocks, err := gobEncode(storedBlocks{Previous: s.PreviousBlock, Current: s.CurrentBlock, Hashes: s.BlockHashes})
	if err != nil {
		return errors.Wrap(err, "encode block info")
	}
	return wb.Set(metaBlocks, blocks)
}

// LoadState implements Store.
func (b *BadgerStore) LoadState() (*State, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	s := NewState()

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			switch {
			case key[0] == prefixAccount[0] && len(key) == 1+types.AddressSize:
				acc := &Account{}
				if err := gobDecode(val, acc); err != nil {
					return errors.Wrap(ErrCorrupted, err.Error())
				}
				acc.normalize()
				s.accounts[acc.Address] = acc
			case key[0] == prefixNewAddress[0] && len(key) == 1+types.AddressSize+8:
				var k NewAddressKey
				copy(k.Creator[:], key[1:])
				for _, x := range key[1+types.AddressSize:] {
					k.Nonce = k.Nonce<<8 | uint64(x)
				}
				var addr types.Address
				copy(addr[:], val)
				s.newAddresses[k] = addr
			case bytes.Equal(key, metaBlocks):
				var blocks storedBlocks
				if err := gobDecode(val, &blocks); err != nil {
					return errors.Wrap(ErrCorrupted, err.Error())
				}
				s.PreviousBlock = blocks.Previous
				s.CurrentBlock = blocks.Current
				s.BlockHashes = blocks.Hashes
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close implements Store.
func (b *BadgerStore) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	return b.db.Close()
}

// normalize restores the non-nil invariants gob does not preserve.
func (a *Account) normalize() {
	if a.Balance == nil {
		a.Balance = new(big.Int)
	}
	if a.DeveloperReward == nil {
		a.DeveloperReward = new(big.Int)
	}
	if a.ESDT == nil {
		a.ESDT = make(map[string]*ESDTData)
	}
	if a.Storage == nil {
		a.Storage = make(map[string][]byte)
	}
	for _, data := range a.ESDT {
		if data.Instances == nil {
			data.Instances = make(map[uint64]*ESDTInstance)
		}
		for _, inst := range data.Instances {
			if inst.Balance == nil {
				inst.Balance = new(big.Int)
			}
		}
	}
}
