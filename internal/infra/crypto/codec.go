// Package crypto provides the symmetric codec used to obfuscate stored
// bank credentials (client id/secret). Key material comes from a single
// deployment-level passphrase; key-rotation is out of scope.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"

	"go.uber.org/zap"
	"golang.org/x/crypto/scrypt"

	"github.com/rfmelo/pix-broker/internal/domain"
)

// scrypt parameters follow the package's recommended interactive defaults.
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	keyLen       = 32
	scryptSaltID = "pix-broker-credential-codec-v1"
)

// Codec encrypts and decrypts credential strings with AES-256-GCM.
// When no passphrase is configured it degrades to passthrough: values go
// in and out unchanged, and every call logs a warning.
type Codec struct {
	aead   cipher.AEAD
	logger *zap.Logger
}

// NewCodec derives an AES key from the passphrase via scrypt and builds
// the codec. An empty passphrase yields a passthrough codec.
func NewCodec(passphrase string, logger *zap.Logger) (*Codec, error) {
	c := &Codec{logger: logger}
	if passphrase == "" {
		logger.Warn("credential codec: no CRYPTO_SECRET configured, credentials will be stored in plaintext")
		return c, nil
	}

	key, err := scrypt.Key([]byte(passphrase), []byte(scryptSaltID), scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	c.aead = aead
	return c, nil
}

// IsConfigured reports whether a key is present.
func (c *Codec) IsConfigured() bool {
	return c.aead != nil
}

// Encrypt seals the plaintext and returns it base64-encoded
// (nonce || ciphertext). Without a key the input is returned unchanged.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if c.aead == nil {
		c.logger.Warn("credential codec: encrypting without a key, returning value unchanged")
		return plaintext, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. A malformed ciphertext or wrong key yields
// ErrDecryptionFailed; the original ciphertext is never altered.
// Without a key the input is returned unchanged.
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	if c.aead == nil {
		return ciphertext, nil
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", &domain.ErrDecryptionFailed{Field: "credential"}
	}
	if len(raw) < c.aead.NonceSize() {
		return "", &domain.ErrDecryptionFailed{Field: "credential"}
	}

	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", &domain.ErrDecryptionFailed{Field: "credential"}
	}
	return string(plain), nil
}
