package engine

import (
	"errors"
	"fmt"

	"sigbridge/internal/crypto"
	"sigbridge/internal/engine/ratchet"
	"sigbridge/internal/engine/x3dh"
)

// PreKeyBundle is a peer's published key material. PreKeyPublic is nil when
// the bundle carries no one-time prekey.
type PreKeyBundle struct {
	RegistrationID        uint32
	DeviceID              uint32
	PreKeyID              uint32
	PreKeyPublic          []byte
	SignedPreKeyID        uint32
	SignedPreKeyPublic    []byte
	SignedPreKeySignature []byte
	IdentityKey           []byte
}

// ProcessPreKeyBundle runs the initiator side of the handshake and stores a
// new session for addr. Any existing session is replaced.
func ProcessPreKeyBundle(addr Address, b PreKeyBundle, s Stores) error {
	if err := s.validate(false); err != nil {
		return err
	}
	peerDH, _, err := splitIdentityPublic(b.IdentityKey)
	if err != nil {
		return err
	}
	spk, err := crypto.X25519PublicFromBytes(b.SignedPreKeyPublic)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if err := VerifySignedPreKey(b.IdentityKey, b.SignedPreKeyPublic, b.SignedPreKeySignature); err != nil {
		return err
	}
	var opk *crypto.X25519Public
	if b.PreKeyPublic != nil {
		k, err := crypto.X25519PublicFromBytes(b.PreKeyPublic)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		opk = &k
	}

	if err := s.checkTrusted(addr, b.IdentityKey, DirectionSending); err != nil {
		return err
	}
	ours, err := s.identityKeyPair()
	if err != nil {
		return err
	}
	defer crypto.Wipe(ours.signPriv[:])
	regID, err := s.registrationID()
	if err != nil {
		return err
	}

	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return err
	}
	root, err := x3dh.InitiatorRootKey(ours.dhPriv, ephPriv, peerDH, spk, opk)
	crypto.Wipe(ephPriv[:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	st, err := ratchet.InitAsInitiator(root, spk)
	crypto.Wipe(root)
	if err != nil {
		return err
	}

	pending := &pendingPreKey{SignedPreKeyID: b.SignedPreKeyID, BaseKey: ephPub.Slice()}
	if opk != nil {
		id := b.PreKeyID
		pending.PreKeyID = &id
	}
	rec := &sessionRecord{
		Version:              recordVersion,
		Initiator:            true,
		LocalIdentity:        ours.public,
		RemoteIdentity:       append([]byte(nil), b.IdentityKey...),
		LocalRegistrationID:  regID,
		RemoteRegistrationID: b.RegistrationID,
		BaseKey:              ephPub.Slice(),
		Pending:              pending,
		Ratchet:              st,
	}
	raw, err := rec.serialize()
	if err != nil {
		return err
	}
	if err := s.storeSession(addr, raw); err != nil {
		return err
	}
	return s.saveIdentity(addr, b.IdentityKey)
}

// Encrypt advances the sending chain of addr's session. Until the peer has
// replied, the result is a prekey message.
func Encrypt(addr Address, plaintext []byte, s Stores) (Ciphertext, error) {
	if err := s.validate(false); err != nil {
		return Ciphertext{}, err
	}
	rec, err := loadRecord(addr, s)
	if err != nil {
		return Ciphertext{}, err
	}
	if err := s.checkTrusted(addr, rec.RemoteIdentity, DirectionSending); err != nil {
		return Ciphertext{}, err
	}
	if !rec.Ratchet.CanSend() {
		return Ciphertext{}, fmt.Errorf("%w: sending chain not ready", ErrNoSession)
	}

	h, ct, err := ratchet.Encrypt(&rec.Ratchet, rec.associatedData(), plaintext)
	if err != nil {
		return Ciphertext{}, err
	}
	wm := WhisperMessage{Version: messageVersion, Header: h, Ciphertext: ct}

	out := Ciphertext{Type: TypeWhisper}
	if p := rec.Pending; p != nil {
		out.Type = TypePreKey
		out.Body, err = PreKeyMessage{
			Version:        messageVersion,
			RegistrationID: rec.LocalRegistrationID,
			PreKeyID:       p.PreKeyID,
			SignedPreKeyID: p.SignedPreKeyID,
			BaseKey:        p.BaseKey,
			IdentityKey:    rec.LocalIdentity,
			Message:        wm,
		}.Serialize()
	} else {
		out.Body, err = wm.Serialize()
	}
	if err != nil {
		return Ciphertext{}, err
	}

	raw, err := rec.serialize()
	if err != nil {
		return Ciphertext{}, err
	}
	if err := s.storeSession(addr, raw); err != nil {
		return Ciphertext{}, err
	}
	return out, nil
}

// DecryptMessage opens an ordinary ratchet message from addr.
func DecryptMessage(addr Address, body []byte, s Stores) ([]byte, error) {
	if err := s.validate(false); err != nil {
		return nil, err
	}
	wm, err := ParseWhisperMessage(body)
	if err != nil {
		return nil, err
	}
	rec, err := loadRecord(addr, s)
	if err != nil {
		return nil, err
	}
	if err := s.checkTrusted(addr, rec.RemoteIdentity, DirectionReceiving); err != nil {
		return nil, err
	}
	pt, err := openWhisper(rec, wm)
	if err != nil {
		return nil, err
	}
	rec.Pending = nil

	raw, err := rec.serialize()
	if err != nil {
		return nil, err
	}
	if err := s.storeSession(addr, raw); err != nil {
		return nil, err
	}
	return pt, nil
}

// DecryptPreKeyMessage runs the responder side of the handshake if needed and
// opens the embedded message. The one-time prekey, if any, is removed only
// after the new session has been stored.
func DecryptPreKeyMessage(addr Address, body []byte, s Stores) ([]byte, error) {
	if err := s.validate(true); err != nil {
		return nil, err
	}
	pm, err := ParsePreKeyMessage(body)
	if err != nil {
		return nil, err
	}
	if err := s.checkTrusted(addr, pm.IdentityKey, DirectionReceiving); err != nil {
		return nil, err
	}

	existing, err := s.loadSession(addr)
	if err != nil {
		return nil, err
	}
	var rec *sessionRecord
	fresh := true
	if existing != nil {
		if r, err := parseRecord(existing); err == nil && r.hasBaseKey(pm.BaseKey) {
			rec, fresh = r, false
		}
	}
	if fresh {
		rec, err = respond(pm, s)
		if err != nil {
			return nil, err
		}
	}

	pt, err := openWhisper(rec, pm.Message)
	if err != nil {
		return nil, err
	}

	raw, err := rec.serialize()
	if err != nil {
		return nil, err
	}
	if err := s.storeSession(addr, raw); err != nil {
		return nil, err
	}
	if err := s.saveIdentity(addr, pm.IdentityKey); err != nil {
		return nil, err
	}
	if fresh && pm.PreKeyID != nil {
		if err := s.removePreKey(*pm.PreKeyID); err != nil {
			return nil, err
		}
	}
	return pt, nil
}

func respond(pm PreKeyMessage, s Stores) (*sessionRecord, error) {
	spkRaw, err := s.loadSignedPreKey(pm.SignedPreKeyID)
	if err != nil {
		return nil, err
	}
	if spkRaw == nil {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSignedPreKeyID, pm.SignedPreKeyID)
	}
	spk, err := parseSignedPreKey(spkRaw)
	if err != nil {
		return nil, err
	}
	var spkPriv crypto.X25519Private
	var spkPub crypto.X25519Public
	copy(spkPriv[:], spk.Private)
	copy(spkPub[:], spk.Public)

	var opkPriv *crypto.X25519Private
	if pm.PreKeyID != nil {
		opkRaw, err := s.loadPreKey(*pm.PreKeyID)
		if err != nil {
			return nil, err
		}
		if opkRaw == nil {
			return nil, fmt.Errorf("%w: %d", ErrInvalidPreKeyID, *pm.PreKeyID)
		}
		opk, err := parsePreKey(opkRaw)
		if err != nil {
			return nil, err
		}
		var k crypto.X25519Private
		copy(k[:], opk.Private)
		opkPriv = &k
	}

	ours, err := s.identityKeyPair()
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(ours.signPriv[:])
	regID, err := s.registrationID()
	if err != nil {
		return nil, err
	}

	peerDH, _, err := splitIdentityPublic(pm.IdentityKey)
	if err != nil {
		return nil, err
	}
	base, err := crypto.X25519PublicFromBytes(pm.BaseKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	root, err := x3dh.ResponderRootKey(ours.dhPriv, spkPriv, opkPriv, peerDH, base)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	st := ratchet.InitAsResponder(root, spkPriv, spkPub)
	crypto.Wipe(root)

	return &sessionRecord{
		Version:              recordVersion,
		Initiator:            false,
		LocalIdentity:        ours.public,
		RemoteIdentity:       append([]byte(nil), pm.IdentityKey...),
		LocalRegistrationID:  regID,
		RemoteRegistrationID: pm.RegistrationID,
		BaseKey:              append([]byte(nil), pm.BaseKey...),
		Ratchet:              st,
	}, nil
}

func loadRecord(addr Address, s Stores) (*sessionRecord, error) {
	raw, err := s.loadSession(addr)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, addr)
	}
	return parseRecord(raw)
}

func openWhisper(rec *sessionRecord, wm WhisperMessage) ([]byte, error) {
	pt, err := ratchet.Decrypt(&rec.Ratchet, rec.associatedData(), wm.Header, wm.Ciphertext)
	switch {
	case err == nil:
		return pt, nil
	case errors.Is(err, ratchet.ErrSkippedKeyNotFound):
		return nil, ErrDuplicateMessage
	case errors.Is(err, ratchet.ErrTooManySkipped):
		return nil, ErrTooManySkipped
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
}
