package x3dh

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"

	"sigbridge/internal/crypto"
)

const rootKeySize = 32

var (
	// ErrBadSPK is returned when the signed prekey signature fails verification.
	ErrBadSPK = errors.New("x3dh: signed prekey signature invalid")

	kdfInfo = []byte("sigbridge-x3dh")
)

// InitiatorRootKey derives the root key for the initiator.
func InitiatorRootKey(
	ourIDPriv crypto.X25519Private,
	ourEphPriv crypto.X25519Private,
	peerIDPub crypto.X25519Public,
	peerSPK crypto.X25519Public,
	peerOPK *crypto.X25519Public,
) ([]byte, error) {
	pairs := []dhPair{
		{ourIDPriv, peerSPK},    // DH(IKA, SPKB)
		{ourEphPriv, peerIDPub}, // DH(EKA, IKB)
		{ourEphPriv, peerSPK},   // DH(EKA, SPKB)
	}
	if peerOPK != nil {
		pairs = append(pairs, dhPair{ourEphPriv, *peerOPK}) // DH(EKA, OPKB)
	}
	return derive(pairs)
}

// ResponderRootKey recomputes the initiator's root key from our side of the
// same DH set.
func ResponderRootKey(
	ourIDPriv crypto.X25519Private,
	ourSPKPriv crypto.X25519Private,
	ourOPKPriv *crypto.X25519Private,
	peerIDPub crypto.X25519Public,
	peerEphPub crypto.X25519Public,
) ([]byte, error) {
	pairs := []dhPair{
		{ourSPKPriv, peerIDPub},  // DH(SPKB, IKA)
		{ourIDPriv, peerEphPub},  // DH(IKB, EKA)
		{ourSPKPriv, peerEphPub}, // DH(SPKB, EKA)
	}
	if ourOPKPriv != nil {
		pairs = append(pairs, dhPair{*ourOPKPriv, peerEphPub}) // DH(OPKB, EKA)
	}
	return derive(pairs)
}

// VerifySPK checks the signed prekey signature.
func VerifySPK(signingPub crypto.Ed25519Public, spk crypto.X25519Public, sig []byte) error {
	if !crypto.VerifyEd25519(signingPub, spk.Slice(), sig) {
		return ErrBadSPK
	}
	return nil
}

type dhPair struct {
	priv crypto.X25519Private
	pub  crypto.X25519Public
}

func derive(pairs []dhPair) ([]byte, error) {
	// 32 0xFF bytes domain-separate X25519 from other curve uses.
	transcript := make([]byte, 0, 32*(len(pairs)+1))
	transcript = append(transcript, bytes.Repeat([]byte{0xFF}, 32)...)
	for _, p := range pairs {
		dh, err := crypto.DH(p.priv, p.pub)
		if err != nil {
			crypto.Wipe(transcript)
			return nil, err
		}
		transcript = append(transcript, dh[:]...)
		crypto.Wipe(dh[:])
	}
	defer crypto.Wipe(transcript)

	root := make([]byte, rootKeySize)
	r := hkdf.New(sha256.New, transcript, make([]byte, sha256.Size), kdfInfo)
	if _, err := io.ReadFull(r, root); err != nil {
		return nil, err
	}
	return root, nil
}
