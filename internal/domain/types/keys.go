package types

// IdentityKeyPair is the serialized long-term identity. Both halves are
// opaque engine encodings.
type IdentityKeyPair struct {
	Public  []byte `json:"public"`
	Private []byte `json:"private"`
}

// IsZero reports whether no key material is present.
func (k IdentityKeyPair) IsZero() bool { return len(k.Public) == 0 && len(k.Private) == 0 }

// LocalIdentity is everything the vault keeps about this installation.
type LocalIdentity struct {
	KeyPair        IdentityKeyPair `json:"key_pair"`
	RegistrationID uint32          `json:"registration_id"`
	CreatedUTC     int64           `json:"created_utc"`
}
