package bridge

// Kind identifies one store operation.
type Kind uint8

const (
	KindLoadSession Kind = iota + 1
	KindStoreSession
	KindGetIdentityKeyPair
	KindGetLocalRegistrationID
	KindSaveIdentity
	KindGetIdentity
	KindIsTrustedIdentity
	KindLoadPreKey
	KindStorePreKey
	KindRemovePreKey
	KindLoadSignedPreKey
	KindStoreSignedPreKey

	kindCount = iota + 1
)

// Family groups the kinds that share one dispatch thunk.
type Family uint8

const (
	FamilyInvalid Family = iota
	FamilySession
	FamilyIdentity
	FamilyPreKey
	FamilySignedPreKey
)

// Family returns the dispatch family k belongs to.
func (k Kind) Family() Family {
	switch k {
	case KindLoadSession, KindStoreSession:
		return FamilySession
	case KindGetIdentityKeyPair, KindGetLocalRegistrationID, KindSaveIdentity,
		KindGetIdentity, KindIsTrustedIdentity:
		return FamilyIdentity
	case KindLoadPreKey, KindStorePreKey, KindRemovePreKey:
		return FamilyPreKey
	case KindLoadSignedPreKey, KindStoreSignedPreKey:
		return FamilySignedPreKey
	default:
		return FamilyInvalid
	}
}

// Kinds lists the kinds in family f, or every kind when f is FamilyInvalid.
func Kinds(f Family) []Kind {
	var out []Kind
	for k := Kind(1); k < kindCount; k++ {
		if f == FamilyInvalid || k.Family() == f {
			out = append(out, k)
		}
	}
	return out
}

var kindNames = [...]string{
	KindLoadSession:            "load_session",
	KindStoreSession:           "store_session",
	KindGetIdentityKeyPair:     "get_identity_key_pair",
	KindGetLocalRegistrationID: "get_local_registration_id",
	KindSaveIdentity:           "save_identity",
	KindGetIdentity:            "get_identity",
	KindIsTrustedIdentity:      "is_trusted_identity",
	KindLoadPreKey:             "load_pre_key",
	KindStorePreKey:            "store_pre_key",
	KindRemovePreKey:           "remove_pre_key",
	KindLoadSignedPreKey:       "load_signed_pre_key",
	KindStoreSignedPreKey:      "store_signed_pre_key",
}

func (k Kind) String() string {
	if k == 0 || int(k) >= len(kindNames) {
		return "invalid"
	}
	return kindNames[k]
}

// IDSet holds the callback ID chosen for every kind by one adapter set.
type IDSet [kindCount]uint64

// NewIDSet derives one ID per kind from base. Distinct non-zero bases never
// collide.
func NewIDSet(base uint64) IDSet {
	var s IDSet
	for k := Kind(1); k < kindCount; k++ {
		s[k] = base<<4 | uint64(k)
	}
	return s
}

// ID returns the callback ID for k.
func (s IDSet) ID(k Kind) uint64 {
	if int(k) >= len(s) {
		return 0
	}
	return s[k]
}
