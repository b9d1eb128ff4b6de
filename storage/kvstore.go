package storage

import (
	"crypto"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"

	"go.dedis.ch/mupol/types"
	"golang.org/x/xerrors"
)

// KVStore keeps the revealed outputs of a party, keyed by run ID. Outputs are
// immutable once stored.
type KVStore interface {
	Get(runID string) (types.RevealedOutput, bool)
	Put(runID string, value types.RevealedOutput) error
	Del(runID string) error
	For(func(runID string, value types.RevealedOutput) error) error
	Keys() []string
	Copy() KVStore
	Hash() []byte
}

// BasicKV is an in-memory, thread-safe KVStore.
type BasicKV struct {
	sync.RWMutex
	store map[string]types.RevealedOutput
}

func NewBasicKV() *BasicKV {
	return &BasicKV{
		store: make(map[string]types.RevealedOutput),
	}
}

func (kv *BasicKV) Get(runID string) (types.RevealedOutput, bool) {
	kv.RLock()
	defer kv.RUnlock()

	value, ok := kv.store[runID]
	if !ok {
		return types.RevealedOutput{}, false
	}
	return value.Copy(), true
}

// Put stores the output of a run. A run's output can only be stored once.
func (kv *BasicKV) Put(runID string, value types.RevealedOutput) error {
	kv.Lock()
	defer kv.Unlock()

	_, found := kv.store[runID]
	if found {
		return xerrors.Errorf("output of run %s already stored", runID)
	}
	kv.store[runID] = value.Copy()
	return nil
}

func (kv *BasicKV) Del(runID string) error {
	kv.Lock()
	defer kv.Unlock()

	delete(kv.store, runID)
	return nil
}

// For calls action on every stored output, in run ID order.
func (kv *BasicKV) For(action func(runID string, value types.RevealedOutput) error) error {
	for _, k := range kv.Keys() {
		v, ok := kv.Get(k)
		if !ok {
			continue
		}
		err := action(k, v)
		if err != nil {
			return err
		}
	}
	return nil
}

// Keys returns the sorted run IDs.
func (kv *BasicKV) Keys() []string {
	kv.RLock()
	defer kv.RUnlock()

	keys := make([]string, 0, len(kv.store))
	for k := range kv.store {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (kv *BasicKV) Copy() KVStore {
	kv.RLock()
	defer kv.RUnlock()

	cp := NewBasicKV()
	for k, v := range kv.store {
		cp.store[k] = v.Copy()
	}
	return cp
}

func (kv *BasicKV) Hash() []byte {
	h := crypto.SHA256.New()
	for _, key := range kv.Keys() {
		v, ok := kv.Get(key)
		if !ok {
			continue
		}
		h.Write([]byte(key))
		h.Write([]byte(Hash(v)))
	}

	return h.Sum(nil)
}

// Hash returns the hex encoded sha256 of the JSON representation of value.
func Hash(value interface{}) string {
	h := sha256.New()
	bytes, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	h.Write(bytes)

	return hex.EncodeToString(h.Sum(nil))
}
