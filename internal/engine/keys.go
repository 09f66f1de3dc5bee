package engine

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"sigbridge/internal/crypto"
)

const (
	keyTypeDJB = 0x05

	// IdentityPublicSize is type byte, X25519 public and Ed25519 public.
	IdentityPublicSize = 1 + 32 + 32
	// IdentityPrivateSize is X25519 private followed by the Ed25519 private key.
	IdentityPrivateSize = 32 + 64

	// MaxPreKeyID is the largest one-time prekey id; ids wrap back to 1 past it.
	MaxPreKeyID = 0xFFFFFE
)

// Address names one device of a remote party.
type Address struct {
	Name     string
	DeviceID uint32
}

func (a Address) String() string { return fmt.Sprintf("%s.%d", a.Name, a.DeviceID) }

type identityKeyPair struct {
	dhPub    crypto.X25519Public
	dhPriv   crypto.X25519Private
	signPub  crypto.Ed25519Public
	signPriv crypto.Ed25519Private
	public   []byte
}

// GenerateIdentityKeyPair returns a serialized identity key pair.
func GenerateIdentityKeyPair() (public, private []byte, err error) {
	dhPriv, dhPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, nil, err
	}
	signPriv, signPub, err := crypto.GenerateEd25519()
	if err != nil {
		return nil, nil, err
	}
	public = make([]byte, 0, IdentityPublicSize)
	public = append(public, keyTypeDJB)
	public = append(public, dhPub[:]...)
	public = append(public, signPub[:]...)

	private = make([]byte, 0, IdentityPrivateSize)
	private = append(private, dhPriv[:]...)
	private = append(private, signPriv[:]...)
	crypto.Wipe(dhPriv[:])
	crypto.Wipe(signPriv[:])
	return public, private, nil
}

// GenerateRegistrationID returns a random non-zero 14-bit registration id.
func GenerateRegistrationID() (uint32, error) {
	var b [4]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		if id := binary.BigEndian.Uint32(b[:]) & 0x3FFF; id != 0 {
			return id, nil
		}
	}
}

// ValidateIdentityKey checks the shape of a serialized identity public key.
func ValidateIdentityKey(public []byte) error {
	_, _, err := splitIdentityPublic(public)
	return err
}

func splitIdentityPublic(public []byte) (crypto.X25519Public, crypto.Ed25519Public, error) {
	var dh crypto.X25519Public
	var sign crypto.Ed25519Public
	if len(public) != IdentityPublicSize || public[0] != keyTypeDJB {
		return dh, sign, fmt.Errorf("%w: identity public key", ErrInvalidKey)
	}
	copy(dh[:], public[1:33])
	copy(sign[:], public[33:])
	return dh, sign, nil
}

func parseIdentityKeyPair(public, private []byte) (identityKeyPair, error) {
	dh, sign, err := splitIdentityPublic(public)
	if err != nil {
		return identityKeyPair{}, err
	}
	if len(private) != IdentityPrivateSize {
		return identityKeyPair{}, fmt.Errorf("%w: identity private key", ErrInvalidKey)
	}
	kp := identityKeyPair{dhPub: dh, signPub: sign, public: append([]byte(nil), public...)}
	copy(kp.dhPriv[:], private[:32])
	copy(kp.signPriv[:], private[32:])
	return kp, nil
}

type preKeyRecord struct {
	ID      uint32 `json:"id"`
	Public  []byte `json:"pub"`
	Private []byte `json:"priv"`
}

// GeneratePreKey returns a serialized one-time prekey record.
func GeneratePreKey(id uint32) ([]byte, error) {
	if id == 0 || id > MaxPreKeyID {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPreKeyID, id)
	}
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, err
	}
	return json.Marshal(preKeyRecord{ID: id, Public: pub.Slice(), Private: priv.Slice()})
}

// PreKeyPublic returns the id and public key held in a prekey record.
func PreKeyPublic(record []byte) (uint32, []byte, error) {
	r, err := parsePreKey(record)
	if err != nil {
		return 0, nil, err
	}
	return r.ID, r.Public, nil
}

func parsePreKey(record []byte) (preKeyRecord, error) {
	var r preKeyRecord
	if err := json.Unmarshal(record, &r); err != nil {
		return r, fmt.Errorf("%w: prekey record: %v", ErrInvalidKey, err)
	}
	if len(r.Public) != 32 || len(r.Private) != 32 {
		return r, fmt.Errorf("%w: prekey record key size", ErrInvalidKey)
	}
	return r, nil
}

type signedPreKeyRecord struct {
	ID        uint32 `json:"id"`
	Public    []byte `json:"pub"`
	Private   []byte `json:"priv"`
	Signature []byte `json:"sig"`
	Timestamp int64  `json:"ts"`
}

// SignedPreKeyInfo is the public part of a signed prekey record.
type SignedPreKeyInfo struct {
	ID        uint32
	PublicKey []byte
	Signature []byte
	CreatedAt time.Time
}

// GenerateSignedPreKey creates a signed prekey record, signing the public key
// with the identity's Ed25519 key.
func GenerateSignedPreKey(id uint32, identityPublic, identityPrivate []byte, now time.Time) ([]byte, error) {
	kp, err := parseIdentityKeyPair(identityPublic, identityPrivate)
	if err != nil {
		return nil, err
	}
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, err
	}
	sig := crypto.SignEd25519(kp.signPriv, pub.Slice())
	crypto.Wipe(kp.signPriv[:])
	return json.Marshal(signedPreKeyRecord{
		ID:        id,
		Public:    pub.Slice(),
		Private:   priv.Slice(),
		Signature: sig,
		Timestamp: now.UTC().UnixMilli(),
	})
}

// ReadSignedPreKey returns the public part of a signed prekey record.
func ReadSignedPreKey(record []byte) (SignedPreKeyInfo, error) {
	r, err := parseSignedPreKey(record)
	if err != nil {
		return SignedPreKeyInfo{}, err
	}
	return SignedPreKeyInfo{
		ID:        r.ID,
		PublicKey: r.Public,
		Signature: r.Signature,
		CreatedAt: time.UnixMilli(r.Timestamp).UTC(),
	}, nil
}

// VerifySignedPreKey checks sig over spkPublic against the identity's signing key.
func VerifySignedPreKey(identityPublic, spkPublic, sig []byte) error {
	_, sign, err := splitIdentityPublic(identityPublic)
	if err != nil {
		return err
	}
	if !crypto.VerifyEd25519(sign, spkPublic, sig) {
		return ErrInvalidSignature
	}
	return nil
}

func parseSignedPreKey(record []byte) (signedPreKeyRecord, error) {
	var r signedPreKeyRecord
	if err := json.Unmarshal(record, &r); err != nil {
		return r, fmt.Errorf("%w: signed prekey record: %v", ErrInvalidKey, err)
	}
	if len(r.Public) != 32 || len(r.Private) != 32 {
		return r, fmt.Errorf("%w: signed prekey record key size", ErrInvalidKey)
	}
	return r, nil
}

// IdentityFingerprint returns a short display fingerprint for an identity key.
func IdentityFingerprint(public []byte) string {
	return crypto.Fingerprint(public)
}
