// Package msgcrypt encrypts direct message text at rest.
//
// Each call derives a fresh AES-256 key from the static secret and a random
// salt with scrypt, then seals the text with AES-GCM under a random IV. The
// encoded form is hex(salt || iv || ciphertext), so identical plaintexts
// never produce identical ciphertexts.
package msgcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// Layout of the decoded buffer.
const (
	SaltSize = 16
	IVSize   = 12
	KeySize  = 32
)

// Default scrypt cost parameters (N=2^15, r=8, p=1).
const (
	DefaultCostN = 1 << 15
	DefaultCostR = 8
	DefaultCostP = 1
)

var (
	// ErrMalformedCiphertext is returned when the encoded text cannot be split
	// into salt, iv and ciphertext.
	ErrMalformedCiphertext = errors.New("malformed ciphertext")

	// ErrDecrypt is returned when authentication fails (wrong secret or tampered data).
	ErrDecrypt = errors.New("message decryption failed")
)

// Params are the scrypt cost parameters.
type Params struct {
	N, R, P int
}

// Codec is safe for concurrent use.
type Codec struct {
	secret []byte
	params Params
	rand   io.Reader
}

// Option configures a Codec.
type Option func(*Codec)

// WithParams overrides the scrypt cost. Lower costs are only appropriate in tests.
func WithParams(p Params) Option {
	return func(c *Codec) { c.params = p }
}

// NewCodec creates a Codec for the given static secret.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("msgcrypt: empty secret")
	}
	c := &Codec{
		secret: []byte(secret),
		params: Params{N: DefaultCostN, R: DefaultCostR, P: DefaultCostP},
		rand:   rand.Reader,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encrypt returns the hex-encoded salt || iv || ciphertext of plain.
func (c *Codec) Encrypt(plain string) (string, error) {
	buf := make([]byte, SaltSize+IVSize, SaltSize+IVSize+len(plain)+16)
	if _, err := io.ReadFull(c.rand, buf); err != nil {
		return "", fmt.Errorf("generate salt and iv: %w", err)
	}
	salt, iv := buf[:SaltSize], buf[SaltSize:]

	aead, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	out := aead.Seal(buf, iv, []byte(plain), nil)
	return hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt.
func (c *Codec) Decrypt(encoded string) (string, error) {
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedCiphertext, err)
	}
	if len(raw) < SaltSize+IVSize+16 {
		return "", fmt.Errorf("%w: %d bytes", ErrMalformedCiphertext, len(raw))
	}

	salt := raw[:SaltSize]
	iv := raw[SaltSize : SaltSize+IVSize]
	sealed := raw[SaltSize+IVSize:]

	aead, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	plain, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	return string(plain), nil
}

func (c *Codec) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(c.secret, salt, c.params.N, c.params.R, c.params.P, KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return aead, nil
}
