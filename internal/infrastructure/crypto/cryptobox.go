package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	ivSize  = 16
	keySize = 32
)

// keySalt is fixed so every instance sharing a passphrase derives the same key
var keySalt = []byte("billing-cryptobox-salt-v1")

// Envelope is a sealed payload. All fields are hex.
type Envelope struct {
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
	AuthTag    string `json:"authTag"`
}

// Map renders the envelope for a JSONB column
func (e Envelope) Map() map[string]interface{} {
	return map[string]interface{}{
		"iv":         e.IV,
		"ciphertext": e.Ciphertext,
		"authTag":    e.AuthTag,
	}
}

// EnvelopeFromMap is the inverse of Map; missing fields are left empty
func EnvelopeFromMap(m map[string]interface{}) Envelope {
	get := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	return Envelope{IV: get("iv"), Ciphertext: get("ciphertext"), AuthTag: get("authTag")}
}

// Box is AES-256-GCM authenticated encryption with a passphrase derived key
type Box struct {
	aead cipher.AEAD
}

func NewBox(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, errors.New("encryption passphrase is required")
	}
	key, err := scrypt.Key([]byte(passphrase), keySalt, 1<<14, 8, 1, keySize)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random IV
func (b *Box) Encrypt(plaintext []byte) (*Envelope, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}

	sealed := b.aead.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - b.aead.Overhead()

	return &Envelope{
		IV:         hex.EncodeToString(iv),
		Ciphertext: hex.EncodeToString(sealed[:tagStart]),
		AuthTag:    hex.EncodeToString(sealed[tagStart:]),
	}, nil
}

// Decrypt returns false when the envelope is malformed or fails authentication
func (b *Box) Decrypt(env Envelope) ([]byte, bool) {
	iv, err := hex.DecodeString(env.IV)
	if err != nil || len(iv) != ivSize {
		return nil, false
	}
	ciphertext, err := hex.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, false
	}
	tag, err := hex.DecodeString(env.AuthTag)
	if err != nil || len(tag) != b.aead.Overhead() {
		return nil, false
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := b.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, false
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, true
}
