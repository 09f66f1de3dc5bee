package engine

// Status is the result code returned by a store callback. Zero is success.
type Status int32

const (
	StatusOK              Status = 0
	StatusError           Status = 1
	StatusInvalidArgument Status = 2
	StatusUnknownCallback Status = 3
	StatusStoreFailure    Status = 4
	StatusPanic           Status = 5
)

// Direction tells IsTrustedIdentity whether a key is being used to send or receive.
type Direction uint32

const (
	DirectionSending   Direction = 0
	DirectionReceiving Direction = 1
)

// SessionStore persists one opaque session record per address.
// LoadSession leaves *recordp nil when no record exists.
type SessionStore struct {
	Ctx          uintptr
	LoadSession  func(ctx uintptr, recordp *[]byte, addr Address) Status
	StoreSession func(ctx uintptr, addr Address, record []byte) Status
}

// IdentityKeyStore holds the local identity and the remote identities seen so far.
type IdentityKeyStore struct {
	Ctx                    uintptr
	GetIdentityKeyPair     func(ctx uintptr, publicp, privatep *[]byte) Status
	GetLocalRegistrationID func(ctx uintptr, idp *uint32) Status
	SaveIdentity           func(ctx uintptr, addr Address, key []byte, replacedp *bool) Status
	GetIdentity            func(ctx uintptr, keyp *[]byte, addr Address) Status
	IsTrustedIdentity      func(ctx uintptr, addr Address, key []byte, dir Direction, trustedp *bool) Status
}

// PreKeyStore holds one-time prekey records. LoadPreKey leaves *recordp nil
// when the id is unknown.
type PreKeyStore struct {
	Ctx          uintptr
	LoadPreKey   func(ctx uintptr, recordp *[]byte, id uint32) Status
	StorePreKey  func(ctx uintptr, id uint32, record []byte) Status
	RemovePreKey func(ctx uintptr, id uint32) Status
}

// SignedPreKeyStore holds signed prekey records.
type SignedPreKeyStore struct {
	Ctx               uintptr
	LoadSignedPreKey  func(ctx uintptr, recordp *[]byte, id uint32) Status
	StoreSignedPreKey func(ctx uintptr, id uint32, record []byte) Status
}

// Stores groups the vtables an operation may touch.
type Stores struct {
	Session      *SessionStore
	Identity     *IdentityKeyStore
	PreKey       *PreKeyStore
	SignedPreKey *SignedPreKeyStore
}

func (s Stores) validate(needPreKeys bool) error {
	if s.Session == nil || s.Identity == nil {
		return ErrInvalidStore
	}
	if s.Session.LoadSession == nil || s.Session.StoreSession == nil {
		return ErrInvalidStore
	}
	id := s.Identity
	if id.GetIdentityKeyPair == nil || id.GetLocalRegistrationID == nil ||
		id.SaveIdentity == nil || id.IsTrustedIdentity == nil {
		return ErrInvalidStore
	}
	if needPreKeys {
		if s.PreKey == nil || s.PreKey.LoadPreKey == nil || s.PreKey.RemovePreKey == nil {
			return ErrInvalidStore
		}
		if s.SignedPreKey == nil || s.SignedPreKey.LoadSignedPreKey == nil {
			return ErrInvalidStore
		}
	}
	return nil
}

func (s Stores) loadSession(addr Address) ([]byte, error) {
	var rec []byte
	if st := s.Session.LoadSession(s.Session.Ctx, &rec, addr); st != StatusOK {
		return nil, &CallbackError{Op: "load_session", Status: st}
	}
	return rec, nil
}

func (s Stores) storeSession(addr Address, rec []byte) error {
	if st := s.Session.StoreSession(s.Session.Ctx, addr, rec); st != StatusOK {
		return &CallbackError{Op: "store_session", Status: st}
	}
	return nil
}

func (s Stores) identityKeyPair() (identityKeyPair, error) {
	var pub, priv []byte
	if st := s.Identity.GetIdentityKeyPair(s.Identity.Ctx, &pub, &priv); st != StatusOK {
		return identityKeyPair{}, &CallbackError{Op: "get_identity_key_pair", Status: st}
	}
	return parseIdentityKeyPair(pub, priv)
}

func (s Stores) registrationID() (uint32, error) {
	var id uint32
	if st := s.Identity.GetLocalRegistrationID(s.Identity.Ctx, &id); st != StatusOK {
		return 0, &CallbackError{Op: "get_local_registration_id", Status: st}
	}
	return id, nil
}

func (s Stores) saveIdentity(addr Address, key []byte) error {
	var replaced bool
	if st := s.Identity.SaveIdentity(s.Identity.Ctx, addr, key, &replaced); st != StatusOK {
		return &CallbackError{Op: "save_identity", Status: st}
	}
	return nil
}

func (s Stores) checkTrusted(addr Address, key []byte, dir Direction) error {
	var trusted bool
	if st := s.Identity.IsTrustedIdentity(s.Identity.Ctx, addr, key, dir, &trusted); st != StatusOK {
		return &CallbackError{Op: "is_trusted_identity", Status: st}
	}
	if !trusted {
		return ErrUntrustedIdentity
	}
	return nil
}

func (s Stores) loadPreKey(id uint32) ([]byte, error) {
	var rec []byte
	if st := s.PreKey.LoadPreKey(s.PreKey.Ctx, &rec, id); st != StatusOK {
		return nil, &CallbackError{Op: "load_pre_key", Status: st}
	}
	return rec, nil
}

func (s Stores) removePreKey(id uint32) error {
	if st := s.PreKey.RemovePreKey(s.PreKey.Ctx, id); st != StatusOK {
		return &CallbackError{Op: "remove_pre_key", Status: st}
	}
	return nil
}

func (s Stores) loadSignedPreKey(id uint32) ([]byte, error) {
	var rec []byte
	if st := s.SignedPreKey.LoadSignedPreKey(s.SignedPreKey.Ctx, &rec, id); st != StatusOK {
		return nil, &CallbackError{Op: "load_signed_pre_key", Status: st}
	}
	return rec, nil
}
