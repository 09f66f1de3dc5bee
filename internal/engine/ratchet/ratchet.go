package ratchet

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"sigbridge/internal/crypto"
)

const (
	aeadKeySize = 32
	nonceSize   = chacha20poly1305.NonceSize

	// MaxSkip bounds how far ahead of the receiving chain a single message may be.
	MaxSkip = 1000
	// maxStoredSkipped bounds the skipped-key cache across all chains.
	maxStoredSkipped = 2000
)

var (
	ErrSkippedKeyNotFound = errors.New("ratchet: message key not found (duplicate or expired)")
	ErrTooManySkipped     = errors.New("ratchet: too many skipped messages")
	ErrDecrypt            = errors.New("ratchet: message authentication failed")
	errChainUninitialised = errors.New("ratchet: chain key is uninitialised")
)

// State is the serializable Double Ratchet state for one conversation.
type State struct {
	RootKey   []byte            `json:"rk"`
	DHPriv    []byte            `json:"dhs_priv"`
	DHPub     []byte            `json:"dhs_pub"`
	PeerDHPub []byte            `json:"dhr,omitempty"`
	SendCK    []byte            `json:"cks,omitempty"`
	RecvCK    []byte            `json:"ckr,omitempty"`
	Ns        uint32            `json:"ns"`
	Nr        uint32            `json:"nr"`
	PN        uint32            `json:"pn"`
	Skipped   map[string][]byte `json:"skipped,omitempty"`
}

// Header travels in clear alongside each ciphertext.
type Header struct {
	DHPub []byte `json:"dh"`
	PN    uint32 `json:"pn"`
	N     uint32 `json:"n"`
}

// InitAsInitiator seeds the sending chain from the X3DH root and the peer's
// signed prekey, which acts as the peer's first ratchet key.
func InitAsInitiator(root []byte, peerSPK crypto.X25519Public) (State, error) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return State{}, err
	}
	dh, err := crypto.DH(priv, peerSPK)
	if err != nil {
		return State{}, err
	}
	rk, cks := kdfRK(root, dh[:])
	crypto.Wipe(dh[:])

	return State{
		RootKey:   rk,
		DHPriv:    priv.Slice(),
		DHPub:     pub.Slice(),
		PeerDHPub: peerSPK.Slice(),
		SendCK:    cks,
		Skipped:   make(map[string][]byte),
	}, nil
}

// InitAsResponder uses the signed prekey pair as the first ratchet key. The
// receiving chain is created by the first incoming message.
func InitAsResponder(root []byte, spkPriv crypto.X25519Private, spkPub crypto.X25519Public) State {
	return State{
		RootKey: append([]byte(nil), root...),
		DHPriv:  spkPriv.Slice(),
		DHPub:   spkPub.Slice(),
		Skipped: make(map[string][]byte),
	}
}

// CanSend reports whether a sending chain exists.
func (st *State) CanSend() bool { return len(st.SendCK) != 0 }

// Clone returns a deep copy of st.
func (st *State) Clone() State {
	c := *st
	c.RootKey = clone(st.RootKey)
	c.DHPriv = clone(st.DHPriv)
	c.DHPub = clone(st.DHPub)
	c.PeerDHPub = clone(st.PeerDHPub)
	c.SendCK = clone(st.SendCK)
	c.RecvCK = clone(st.RecvCK)
	c.Skipped = make(map[string][]byte, len(st.Skipped))
	for k, v := range st.Skipped {
		c.Skipped[k] = clone(v)
	}
	return c
}

// Encrypt advances the sending chain and seals plaintext.
func Encrypt(st *State, ad, plaintext []byte) (Header, []byte, error) {
	mk, err := stepSend(st)
	if err != nil {
		return Header{}, nil, err
	}
	defer crypto.Wipe(mk)

	h := Header{DHPub: clone(st.DHPub), PN: st.PN, N: st.Ns}
	ct, err := seal(mk, h, ad, plaintext)
	if err != nil {
		return Header{}, nil, err
	}
	st.Ns++
	return h, ct, nil
}

// Decrypt opens a message. st is modified only when authentication succeeds.
func Decrypt(st *State, ad []byte, h Header, ciphertext []byte) ([]byte, error) {
	if len(h.DHPub) != 32 {
		return nil, fmt.Errorf("ratchet: header key length %d", len(h.DHPub))
	}
	work := st.Clone()

	id := skippedKeyID(h.DHPub, h.N)
	if mk, ok := work.Skipped[id]; ok {
		pt, err := open(mk, h, ad, ciphertext)
		if err != nil {
			return nil, err
		}
		delete(work.Skipped, id)
		crypto.Wipe(mk)
		*st = work
		return pt, nil
	}

	if !equal32(work.PeerDHPub, h.DHPub) || len(work.RecvCK) == 0 {
		if len(work.RecvCK) != 0 {
			if err := skipUntil(&work, h.PN); err != nil {
				return nil, err
			}
		}
		if err := dhRatchet(&work, h.DHPub); err != nil {
			return nil, err
		}
	} else if h.N < work.Nr {
		return nil, ErrSkippedKeyNotFound
	}

	if err := skipUntil(&work, h.N); err != nil {
		return nil, err
	}
	mk, err := stepRecv(&work)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(mk)

	pt, err := open(mk, h, ad, ciphertext)
	if err != nil {
		return nil, err
	}
	work.Nr++
	*st = work
	return pt, nil
}

func dhRatchet(st *State, peer []byte) error {
	peerPub, err := crypto.X25519PublicFromBytes(peer)
	if err != nil {
		return err
	}
	var ourPriv crypto.X25519Private
	copy(ourPriv[:], st.DHPriv)

	dh, err := crypto.DH(ourPriv, peerPub)
	if err != nil {
		return err
	}
	rk, ckr := kdfRK(st.RootKey, dh[:])
	crypto.Wipe(dh[:])

	newPriv, newPub, err := crypto.GenerateX25519()
	if err != nil {
		return err
	}
	dh2, err := crypto.DH(newPriv, peerPub)
	if err != nil {
		return err
	}
	rk2, cks := kdfRK(rk, dh2[:])
	crypto.Wipe(dh2[:])

	st.PN = st.Ns
	st.Ns, st.Nr = 0, 0
	st.PeerDHPub = clone(peer)
	st.RecvCK = ckr
	st.RootKey = rk2
	st.DHPriv, st.DHPub = newPriv.Slice(), newPub.Slice()
	st.SendCK = cks
	return nil
}

// skipUntil stores message keys of the receiving chain up to n.
func skipUntil(st *State, n uint32) error {
	if n <= st.Nr {
		return nil
	}
	if n-st.Nr > MaxSkip {
		return ErrTooManySkipped
	}
	if len(st.RecvCK) == 0 {
		return errChainUninitialised
	}
	for st.Nr < n {
		mk, err := stepRecv(st)
		if err != nil {
			return err
		}
		if len(st.Skipped) >= maxStoredSkipped {
			for k := range st.Skipped {
				delete(st.Skipped, k)
				break
			}
		}
		st.Skipped[skippedKeyID(st.PeerDHPub, st.Nr)] = mk
		st.Nr++
	}
	return nil
}

func seal(mk []byte, h Header, ad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk[:aeadKeySize])
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce(h.N), plaintext, associated(ad, h)), nil
}

func open(mk []byte, h Header, ad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk[:aeadKeySize])
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce(h.N), ciphertext, associated(ad, h))
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

func nonce(n uint32) []byte {
	out := make([]byte, nonceSize)
	binary.BigEndian.PutUint32(out[nonceSize-4:], n)
	return out
}

func associated(ad []byte, h Header) []byte {
	out := make([]byte, 0, len(ad)+len(h.DHPub)+8)
	out = append(out, ad...)
	out = append(out, h.DHPub...)
	out = binary.BigEndian.AppendUint32(out, h.PN)
	out = binary.BigEndian.AppendUint32(out, h.N)
	return out
}

// HKDF-based KDFs with labels.
func kdfRK(rk, dh []byte) (newRK, ck []byte) {
	r := hkdf.New(sha256.New, dh, rk, []byte("DR|rk"))
	newRK = make([]byte, 32)
	ck = make([]byte, 32)
	_, _ = io.ReadFull(r, newRK)
	_, _ = io.ReadFull(r, ck)
	return
}

func kdfCK(ck []byte) (nextCK, mk []byte) {
	r := hkdf.New(sha256.New, ck, nil, []byte("DR|ck"))
	nextCK = make([]byte, 32)
	mk = make([]byte, 32)
	_, _ = io.ReadFull(r, nextCK)
	_, _ = io.ReadFull(r, mk)
	return
}

func stepSend(st *State) ([]byte, error) {
	if len(st.SendCK) == 0 {
		return nil, errChainUninitialised
	}
	next, mk := kdfCK(st.SendCK)
	st.SendCK = next
	return mk, nil
}

func stepRecv(st *State) ([]byte, error) {
	if len(st.RecvCK) == 0 {
		return nil, errChainUninitialised
	}
	next, mk := kdfCK(st.RecvCK)
	st.RecvCK = next
	return mk, nil
}

// skippedKeyID is hex so the map survives a JSON round trip.
func skippedKeyID(pub []byte, n uint32) string {
	return fmt.Sprintf("%s:%d", hex.EncodeToString(pub), n)
}

func equal32(a, b []byte) bool {
	if len(a) != 32 || len(b) != 32 {
		return false
	}
	var v byte
	for i := 0; i < 32; i++ {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
