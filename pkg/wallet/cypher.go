package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/scrypt"
)

const (
	saltSize = 32
	keySize  = 32
	// 2^15 keeps sealing of per-ticket secrets fast enough for an interactive
	// flow while still stretching the passphrase.
	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

// SecretBox encrypts and decrypts secrets with AES-256-GCM, using a key
// stretched from a passphrase with scrypt.
type SecretBox struct {
	passphrase []byte
}

// NewSecretBox returns a box sealing with the given passphrase.
func NewSecretBox(passphrase string) (*SecretBox, error) {
	if len(passphrase) <= 0 {
		return nil, ErrNullPassphrase
	}
	return &SecretBox{[]byte(passphrase)}, nil
}

// Seal encrypts the plaintext and returns it base64 encoded with nonce and
// salt attached.
func (b *SecretBox) Seal(plaintext string) (string, error) {
	if len(plaintext) <= 0 {
		return "", ErrNullPlainText
	}

	key, salt, err := deriveKey(b.passphrase, nil)
	if err != nil {
		return "", err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	ciphertext = append(ciphertext, salt...)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open decrypts a ciphertext produced by Seal.
func (b *SecretBox) Open(ciphertext string) (string, error) {
	if len(ciphertext) <= 0 {
		return "", ErrNullCypherText
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidCypherText
	}
	if len(data) <= saltSize {
		return "", ErrInvalidCypherText
	}
	salt, data := data[len(data)-saltSize:], data[:len(data)-saltSize]

	key, _, err := deriveKey(b.passphrase, salt)
	if err != nil {
		return "", err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", ErrInvalidCypherText
	}
	nonce, text := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, text, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(blockCipher)
}

func deriveKey(passphrase, salt []byte) ([]byte, []byte, error) {
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, err
		}
	}
	key, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, nil, err
	}
	return key, salt, nil
}
