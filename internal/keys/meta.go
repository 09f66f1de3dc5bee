package keys

import (
	"encoding/json"
	"fmt"
	"strconv"

	"sigbridge/internal/domain"
)

const (
	nsPreKeys       = "prekeys"
	nsSignedPreKeys = "signed_prekeys"
	nsKeyMeta       = "key_meta"

	metaKey = "state"
)

// meta is the persisted bookkeeping for id allocation and rotation.
type meta struct {
	NextPreKeyID          uint32           `json:"next_pre_key_id"`
	NextSignedPreKeyID    uint32           `json:"next_signed_pre_key_id"`
	CurrentSignedPreKeyID uint32           `json:"current_signed_pre_key_id"`
	Retired               map[uint32]int64 `json:"retired,omitempty"`  // id -> retired at (unix ms)
	Consumed              map[uint32]int64 `json:"consumed,omitempty"` // id -> consumed at (unix ms)
}

func newMeta() meta {
	return meta{
		NextPreKeyID:       1,
		NextSignedPreKeyID: 1,
		Retired:            map[uint32]int64{},
		Consumed:           map[uint32]int64{},
	}
}

func (m meta) clone() meta {
	c := m
	c.Retired = make(map[uint32]int64, len(m.Retired))
	for k, v := range m.Retired {
		c.Retired[k] = v
	}
	c.Consumed = make(map[uint32]int64, len(m.Consumed))
	for k, v := range m.Consumed {
		c.Consumed[k] = v
	}
	return c
}

func loadMeta(rs domain.RecordStore) (meta, error) {
	raw, ok, err := rs.Get(nsKeyMeta, metaKey)
	if err != nil {
		return meta{}, storeErr("load key meta", err)
	}
	m := newMeta()
	if !ok {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return meta{}, fmt.Errorf("keys: decode meta: %w", err)
	}
	if m.Retired == nil {
		m.Retired = map[uint32]int64{}
	}
	if m.Consumed == nil {
		m.Consumed = map[uint32]int64{}
	}
	return m, nil
}

func saveMeta(rs domain.RecordStore, m meta) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := rs.Put(nsKeyMeta, metaKey, raw); err != nil {
		return storeErr("save key meta", err)
	}
	return nil
}

func idKey(id uint32) string { return strconv.FormatUint(uint64(id), 10) }

func parseIDKey(s string) (uint32, bool) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err == nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("keys: %s: %w: %w", op, domain.ErrStoreFailure, err)
}
