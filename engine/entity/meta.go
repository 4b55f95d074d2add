package entity

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/xiaonanln/typeconv"
)

// MetaTier selects one of the three attribute containers of an object
type MetaTier uint8

const (
	// TierMeta is local to the server
	TierMeta MetaTier = iota + 1
	// TierSynced is replicated to every client that knows the object
	TierSynced
	// TierStreamSynced is replicated to clients currently streaming the object
	TierStreamSynced
)

func (t MetaTier) String() string {
	switch t {
	case TierMeta:
		return "meta"
	case TierSynced:
		return "syncedMeta"
	case TierStreamSynced:
		return "streamSyncedMeta"
	}
	return fmt.Sprintf("MetaTier(%d)", uint8(t))
}

// MetaMap holds the values of one tier
type MetaMap map[string]interface{}

// Has returns if the key exists
func (m MetaMap) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Get returns the raw value of key
func (m MetaMap) Get(key string) interface{} {
	return m[key]
}

// GetInt returns the value of key converted to int64
func (m MetaMap) GetInt(key string) int64 {
	val, ok := m[key]
	if !ok || val == nil {
		return 0
	}
	return typeconv.Int(val)
}

var float64Type = reflect.TypeOf(float64(0))

// GetFloat returns the value of key converted to float64
func (m MetaMap) GetFloat(key string) float64 {
	val, ok := m[key]
	if !ok || val == nil {
		return 0
	}
	return typeconv.Convert(val, float64Type).Float()
}

// GetString returns the value of key if it is a string
func (m MetaMap) GetString(key string) string {
	s, _ := m[key].(string)
	return s
}

// Keys returns all keys in sorted order
func (m MetaMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Copy returns a shallow copy, used for snapshots
func (m MetaMap) Copy() map[string]interface{} {
	cp := make(map[string]interface{}, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// MetaChange describes one write to one tier of one object
type MetaChange struct {
	Object   *Object
	Tier     MetaTier
	Key      string
	OldValue interface{}
	NewValue interface{}
	Deleted  bool
}

func (o *Object) tier(t MetaTier) MetaMap {
	switch t {
	case TierMeta:
		return o.meta
	case TierSynced:
		return o.syncedMeta
	case TierStreamSynced:
		return o.streamSyncedMeta
	}
	return nil
}

// Meta returns a tier container for reading
func (o *Object) Meta(t MetaTier) MetaMap {
	return o.tier(t)
}

func (o *Object) writeMeta(t MetaTier, key string, val interface{}, deleted bool) bool {
	if !o.IsValid() {
		return false
	}
	m := o.tier(t)
	if m == nil {
		return false
	}
	old, existed := m[key]
	if deleted {
		if !existed {
			return false
		}
		delete(m, key)
	} else {
		m[key] = val
	}
	if t != TierMeta {
		o.bump()
	}
	o.registry.fireMetaChanged(&MetaChange{
		Object:   o,
		Tier:     t,
		Key:      key,
		OldValue: old,
		NewValue: val,
		Deleted:  deleted,
	})
	return true
}

// SetMeta sets a server-local attribute
func (o *Object) SetMeta(key string, val interface{}) bool {
	return o.writeMeta(TierMeta, key, val, false)
}

// DeleteMeta removes a server-local attribute
func (o *Object) DeleteMeta(key string) bool {
	return o.writeMeta(TierMeta, key, nil, true)
}

// GetMeta reads a server-local attribute
func (o *Object) GetMeta(key string) interface{} {
	return o.meta[key]
}

// SetSyncedMeta sets an attribute replicated to every client that knows the object
func (o *Object) SetSyncedMeta(key string, val interface{}) bool {
	return o.writeMeta(TierSynced, key, val, false)
}

// DeleteSyncedMeta removes a synced attribute
func (o *Object) DeleteSyncedMeta(key string) bool {
	return o.writeMeta(TierSynced, key, nil, true)
}

// GetSyncedMeta reads a synced attribute
func (o *Object) GetSyncedMeta(key string) interface{} {
	return o.syncedMeta[key]
}

// SetStreamSyncedMeta sets an attribute replicated to clients currently streaming the object
func (o *Object) SetStreamSyncedMeta(key string, val interface{}) bool {
	if !o.Kind().IsStreamable() {
		return false
	}
	return o.writeMeta(TierStreamSynced, key, val, false)
}

// SetMultipleStreamSyncedMeta sets several stream-synced attributes in key order
func (o *Object) SetMultipleStreamSyncedMeta(values map[string]interface{}) bool {
	if !o.IsValid() || !o.Kind().IsStreamable() {
		return false
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		o.writeMeta(TierStreamSynced, k, values[k], false)
	}
	return true
}

// DeleteStreamSyncedMeta removes a stream-synced attribute
func (o *Object) DeleteStreamSyncedMeta(key string) bool {
	return o.writeMeta(TierStreamSynced, key, nil, true)
}

// GetStreamSyncedMeta reads a stream-synced attribute
func (o *Object) GetStreamSyncedMeta(key string) interface{} {
	return o.streamSyncedMeta[key]
}
