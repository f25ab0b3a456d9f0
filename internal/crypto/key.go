package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher names accepted by NewCipher.
const (
	AESGCM           = "aes-gcm"
	ChaCha20Poly1305 = "chacha20-poly1305"
	None             = "none"
)

// KeySize is the key length for both AEAD ciphers.
const KeySize = 32

// ErrDecrypt is returned by Decrypt for payloads that fail authentication or
// are too short to carry a nonce.
var ErrDecrypt = errors.New("decrypt failed")

// Cipher encrypts and decrypts whole transport payloads.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
	Name() string
}

// NewCipher returns the named cipher keyed with key. An empty name selects AES-GCM.
func NewCipher(name string, key []byte) (Cipher, error) {
	switch name {
	case "", AESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("aes-gcm: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("aes-gcm: %w", err)
		}
		return &aead{name: AESGCM, aead: gcm}, nil
	case ChaCha20Poly1305:
		c, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("chacha20-poly1305: %w", err)
		}
		return &aead{name: ChaCha20Poly1305, aead: c}, nil
	case None:
		return plain{}, nil
	default:
		return nil, fmt.Errorf("unknown cipher %q", name)
	}
}

// aead prefixes every ciphertext with a random nonce.
type aead struct {
	name string
	aead cipher.AEAD
}

func (a *aead) Name() string { return a.name }

func (a *aead) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, a.aead.NonceSize(), a.aead.NonceSize()+len(plaintext)+a.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return a.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (a *aead) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := a.aead.NonceSize()
	if len(ciphertext) < nonceSize+a.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	nonce, body := ciphertext[:nonceSize], ciphertext[nonceSize:]
	out, err := a.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return out, nil
}

type plain struct{}

func (plain) Name() string                     { return None }
func (plain) Encrypt(b []byte) ([]byte, error) { return b, nil }
func (plain) Decrypt(b []byte) ([]byte, error) { return b, nil }

// GenerateKey creates a new random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// EncodeKeyToBase64 encodes a byte slice key into a URL-safe base64 string.
func EncodeKeyToBase64(key []byte) string {
	return base64.URLEncoding.EncodeToString(key)
}

// DecodeBase64Key decodes a URL-safe base64 string into a byte slice key.
func DecodeBase64Key(encodedKey string) ([]byte, error) {
	return base64.URLEncoding.DecodeString(encodedKey)
}
