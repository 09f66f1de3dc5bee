package bridge

import (
	"sigbridge/internal/domain"
	"sigbridge/internal/engine"
)

// Stores returns engine vtables whose every field is a package-level shim
// and whose Ctx is cc's pin handle.
func Stores(cc *CallContext) engine.Stores {
	h := cc.Handle()
	return engine.Stores{
		Session: &engine.SessionStore{
			Ctx:          h,
			LoadSession:  shimLoadSession,
			StoreSession: shimStoreSession,
		},
		Identity: &engine.IdentityKeyStore{
			Ctx:                    h,
			GetIdentityKeyPair:     shimGetIdentityKeyPair,
			GetLocalRegistrationID: shimGetLocalRegistrationID,
			SaveIdentity:           shimSaveIdentity,
			GetIdentity:            shimGetIdentity,
			IsTrustedIdentity:      shimIsTrustedIdentity,
		},
		PreKey: &engine.PreKeyStore{
			Ctx:          h,
			LoadPreKey:   shimLoadPreKey,
			StorePreKey:  shimStorePreKey,
			RemovePreKey: shimRemovePreKey,
		},
		SignedPreKey: &engine.SignedPreKeyStore{
			Ctx:               h,
			LoadSignedPreKey:  shimLoadSignedPreKey,
			StoreSignedPreKey: shimStoreSignedPreKey,
		},
	}
}

// call packs p for kind under the context behind ctx and runs its thunk.
func call(ctx uintptr, kind Kind, p *Params) engine.Status {
	cc, ok := lookupCall(ctx)
	if !ok {
		return engine.StatusInvalidArgument
	}
	p.Kind = kind
	p.CallbackID = cc.IDs.ID(kind)
	p.Call = cc
	return Dispatch(p)
}

func toAddress(a engine.Address) domain.Address {
	return domain.Address{Name: a.Name, DeviceID: a.DeviceID}
}

func shimLoadSession(ctx uintptr, recordp *[]byte, addr engine.Address) engine.Status {
	p := &Params{Address: toAddress(addr)}
	st := call(ctx, KindLoadSession, p)
	if st == engine.StatusOK {
		*recordp = p.OutRecord
	}
	return st
}

func shimStoreSession(ctx uintptr, addr engine.Address, record []byte) engine.Status {
	return call(ctx, KindStoreSession, &Params{Address: toAddress(addr), Record: record})
}

func shimGetIdentityKeyPair(ctx uintptr, publicp, privatep *[]byte) engine.Status {
	p := &Params{}
	st := call(ctx, KindGetIdentityKeyPair, p)
	if st == engine.StatusOK {
		*publicp, *privatep = p.OutPublic, p.OutPrivate
	}
	return st
}

func shimGetLocalRegistrationID(ctx uintptr, idp *uint32) engine.Status {
	p := &Params{}
	st := call(ctx, KindGetLocalRegistrationID, p)
	if st == engine.StatusOK {
		*idp = p.OutRegistrationID
	}
	return st
}

func shimSaveIdentity(ctx uintptr, addr engine.Address, key []byte, replacedp *bool) engine.Status {
	p := &Params{Address: toAddress(addr), Key: key}
	st := call(ctx, KindSaveIdentity, p)
	if st == engine.StatusOK {
		*replacedp = p.OutBool
	}
	return st
}

func shimGetIdentity(ctx uintptr, keyp *[]byte, addr engine.Address) engine.Status {
	p := &Params{Address: toAddress(addr)}
	st := call(ctx, KindGetIdentity, p)
	if st == engine.StatusOK {
		*keyp = p.OutRecord
	}
	return st
}

func shimIsTrustedIdentity(ctx uintptr, addr engine.Address, key []byte, dir engine.Direction, trustedp *bool) engine.Status {
	p := &Params{Address: toAddress(addr), Key: key, Direction: domain.Direction(dir)}
	st := call(ctx, KindIsTrustedIdentity, p)
	if st == engine.StatusOK {
		*trustedp = p.OutBool
	}
	return st
}

func shimLoadPreKey(ctx uintptr, recordp *[]byte, id uint32) engine.Status {
	p := &Params{ID: id}
	st := call(ctx, KindLoadPreKey, p)
	if st == engine.StatusOK {
		*recordp = p.OutRecord
	}
	return st
}

func shimStorePreKey(ctx uintptr, id uint32, record []byte) engine.Status {
	return call(ctx, KindStorePreKey, &Params{ID: id, Record: record})
}

func shimRemovePreKey(ctx uintptr, id uint32) engine.Status {
	return call(ctx, KindRemovePreKey, &Params{ID: id})
}

func shimLoadSignedPreKey(ctx uintptr, recordp *[]byte, id uint32) engine.Status {
	p := &Params{ID: id}
	st := call(ctx, KindLoadSignedPreKey, p)
	if st == engine.StatusOK {
		*recordp = p.OutRecord
	}
	return st
}

func shimStoreSignedPreKey(ctx uintptr, id uint32, record []byte) engine.Status {
	return call(ctx, KindStoreSignedPreKey, &Params{ID: id, Record: record})
}
