// Package seal wraps any codec.ICodec with authenticated encryption.
//
// The persisted form is base64(salt || nonce || ciphertext) where the key is
// derived from a passphrase with Argon2id (a fresh random salt per write)
// and the payload is sealed with XChaCha20-Poly1305. Tampered ciphertext or
// a wrong passphrase fails decryption, which surfaces as a deserialization
// failure to the store engine.
//
// Both operations are fully synchronous: a sealed codec never hands out a
// value before the cryptographic work has completed.
package seal

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/statekit/statekit/lib/codec"
)

const (
	saltBytes = 16

	// Argon2id parameters (64 MiB, single pass).
	argonTime    = 1
	argonMemory  = 1 << 16
	argonThreads = 4
)

// NewSealedCodec wraps inner so that its output is encrypted with a key
// derived from passphrase before persisting, and decrypted after loading.
func NewSealedCodec(inner codec.ICodec, passphrase string) codec.ICodec {
	return &sealedCodecImpl{
		inner:      inner,
		passphrase: []byte(passphrase),
	}
}

type sealedCodecImpl struct {
	inner      codec.ICodec
	passphrase []byte
}

// deriveKey stretches the passphrase into an XChaCha20-Poly1305 key.
func (s *sealedCodecImpl) deriveKey(salt []byte) []byte {
	return argon2.IDKey(s.passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (s *sealedCodecImpl) Serialize(value any) (string, error) {
	plaintext, err := s.inner.Serialize(value)
	if err != nil {
		return "", err
	}

	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%w: %v", codec.ErrSerialize, err)
	}

	aead, err := chacha20poly1305.NewX(s.deriveKey(salt))
	if err != nil {
		return "", fmt.Errorf("%w: %v", codec.ErrSerialize, err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: %v", codec.ErrSerialize, err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)

	out := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *sealedCodecImpl) Deserialize(data string) (any, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", codec.ErrDeserialize, err)
	}

	if len(raw) < saltBytes+chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: sealed payload too short", codec.ErrDeserialize)
	}
	salt := raw[:saltBytes]
	nonce := raw[saltBytes : saltBytes+chacha20poly1305.NonceSizeX]
	sealed := raw[saltBytes+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(s.deriveKey(salt))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", codec.ErrDeserialize, err)
	}

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decryption failed", codec.ErrDeserialize)
	}

	return s.inner.Deserialize(string(plaintext))
}
