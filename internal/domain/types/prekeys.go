package types

// PreKeyRecord is a serialized one-time prekey as produced by the engine.
type PreKeyRecord struct {
	ID     uint32 `json:"id"`
	Record []byte `json:"record"`
}

// SignedPreKeyRecord is a serialized signed prekey plus bookkeeping.
type SignedPreKeyRecord struct {
	ID         uint32 `json:"id"`
	Record     []byte `json:"record"`
	CreatedUTC int64  `json:"created_utc"`
}

// OneTimePreKeyPublic is the public half of a one-time prekey.
type OneTimePreKeyPublic struct {
	ID        uint32 `json:"id"`
	PublicKey []byte `json:"public_key"`
}

// PreKeyBundle is what a peer needs to start a session with us. It carries
// at most one one-time prekey.
type PreKeyBundle struct {
	RegistrationID        uint32               `json:"registration_id"`
	DeviceID              uint32               `json:"device_id"`
	IdentityKey           []byte               `json:"identity_key"`
	SignedPreKeyID        uint32               `json:"signed_pre_key_id"`
	SignedPreKey          []byte               `json:"signed_pre_key"`
	SignedPreKeySignature []byte               `json:"signed_pre_key_signature"`
	OneTimePreKey         *OneTimePreKeyPublic `json:"one_time_pre_key,omitempty"`
}

// PublishedKeys is uploaded to a prekey directory. The directory hands out
// one OneTimePreKeys entry per bundle fetch.
type PublishedKeys struct {
	RegistrationID        uint32                `json:"registration_id"`
	DeviceID              uint32                `json:"device_id"`
	IdentityKey           []byte                `json:"identity_key"`
	SignedPreKeyID        uint32                `json:"signed_pre_key_id"`
	SignedPreKey          []byte                `json:"signed_pre_key"`
	SignedPreKeySignature []byte                `json:"signed_pre_key_signature"`
	OneTimePreKeys        []OneTimePreKeyPublic `json:"one_time_pre_keys,omitempty"`
}

// Bundle returns the bundle for a fetch that was handed otk (may be nil).
func (p PublishedKeys) Bundle(otk *OneTimePreKeyPublic) PreKeyBundle {
	return PreKeyBundle{
		RegistrationID:        p.RegistrationID,
		DeviceID:              p.DeviceID,
		IdentityKey:           p.IdentityKey,
		SignedPreKeyID:        p.SignedPreKeyID,
		SignedPreKey:          p.SignedPreKey,
		SignedPreKeySignature: p.SignedPreKeySignature,
		OneTimePreKey:         otk,
	}
}
