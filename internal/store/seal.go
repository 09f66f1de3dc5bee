package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const sealVersion = 2

var (
	// ErrWrongPassphrase is returned when the passphrase is incorrect or the blob was modified.
	ErrWrongPassphrase = errors.New("store: wrong passphrase or corrupted vault")

	sealLabel = []byte("sigbridge-vault")
)

// ScryptParams are the key-derivation costs used when sealing.
type ScryptParams struct {
	N, R, P int
}

// DefaultScryptParams is the interactive-login cost recommended for scrypt.
var DefaultScryptParams = ScryptParams{N: 1 << 15, R: 8, P: 1}

// sealedBlob is the on-disk vault format. The KDF costs travel with the blob
// so they can be raised without breaking old vaults.
type sealedBlob struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	Nonce  []byte `json:"nonce"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

func (b *sealedBlob) ad() []byte {
	return append(append([]byte(nil), sealLabel...), b.Salt...)
}

// encrypt derives a key from passphrase and seals raw into a JSON blob.
func encrypt(passphrase string, raw []byte, params ScryptParams) ([]byte, error) {
	b := sealedBlob{
		V:     sealVersion,
		Salt:  make([]byte, 16),
		Nonce: make([]byte, chacha20poly1305.NonceSizeX),
		N:     params.N,
		R:     params.R,
		P:     params.P,
	}
	if _, err := rand.Read(b.Salt); err != nil {
		return nil, err
	}
	if _, err := rand.Read(b.Nonce); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), b.Salt, b.N, b.R, b.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	b.Cipher = aead.Seal(nil, b.Nonce, raw, b.ad())
	return json.Marshal(b)
}

// decrypt opens a JSON blob using a key derived from passphrase.
func decrypt(passphrase string, raw []byte) ([]byte, error) {
	var b sealedBlob
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrongPassphrase, err)
	}
	if b.V != sealVersion {
		return nil, fmt.Errorf("store: unsupported vault version %d", b.V)
	}
	if len(b.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrWrongPassphrase
	}
	key, err := scrypt.Key([]byte(passphrase), b.Salt, b.N, b.R, b.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, b.Nonce, b.Cipher, b.ad())
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}
