package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
)

const (
	keySize   = 32 // AES-256
	nonceSize = 12
)

// KeyMaterialSize is the length of the key-plus-nonce blob stored on an
// archive row.
const KeyMaterialSize = keySize + nonceSize

// NewKeyMaterial returns a fresh random key and nonce, concatenated. One
// material value encrypts exactly one blob version; edits generate a new one.
func NewKeyMaterial() ([]byte, error) {
	material := make([]byte, KeyMaterialSize)
	if _, err := rand.Read(material); err != nil {
		return nil, err
	}
	return material, nil
}

// Encrypt seals plaintext with AES-GCM under the given key material.
func Encrypt(plaintext, material []byte) ([]byte, error) {
	aesgcm, nonce, err := newGCM(material)
	if err != nil {
		return nil, err
	}
	return aesgcm.Seal(nil, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt with the same material.
func Decrypt(ciphertext, material []byte) ([]byte, error) {
	aesgcm, nonce, err := newGCM(material)
	if err != nil {
		return nil, err
	}
	return aesgcm.Open(nil, nonce, ciphertext, nil)
}

func newGCM(material []byte) (cipher.AEAD, []byte, error) {
	if len(material) != KeyMaterialSize {
		return nil, nil, errors.New("secure: bad key material length")
	}
	block, err := aes.NewCipher(material[:keySize])
	if err != nil {
		return nil, nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}
	return aesgcm, material[keySize:], nil
}
