package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	keyFileVersion   = 1
)

// keyFile is the on-disk format of a sealed signing key. Binary fields are
// base64 standard encoding.
type keyFile struct {
	Version    int    `json:"version"`
	Address    string `json:"address"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeySource says where LoadSigner finds the client's signing key.
type KeySource struct {
	// RawPrivateKey is a hex key, with or without 0x. It wins over KeyFile.
	RawPrivateKey string
	// KeyFile is a file written by SealKey, opened with Password.
	KeyFile  string
	Password string
}

// SealKey encrypts a hex private key under password with PBKDF2-HMAC-SHA256
// and AES-256-GCM. The signer address is stored in clear so a key file can
// be identified without the password.
func SealKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("auth/keystore: password must not be empty")
	}
	signer, err := NewSigner(privateKeyHex)
	if err != nil {
		return nil, err
	}
	keyBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("auth/keystore: invalid private key hex: %w", err)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("auth/keystore: generating salt: %w", err)
	}
	gcm, err := keyCipher(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("auth/keystore: generating nonce: %w", err)
	}

	return json.MarshalIndent(keyFile{
		Version:    keyFileVersion,
		Address:    signer.Address(),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, keyBytes, nil)),
	}, "", "  ")
}

// OpenKey decrypts a key file produced by SealKey and returns the hex key
// without 0x.
func OpenKey(sealed []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("auth/keystore: password must not be empty")
	}

	var kf keyFile
	if err := json.Unmarshal(sealed, &kf); err != nil {
		return "", fmt.Errorf("auth/keystore: parsing key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return "", fmt.Errorf("auth/keystore: unsupported version %d", kf.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(kf.Salt)
	if err != nil {
		return "", fmt.Errorf("auth/keystore: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(kf.Nonce)
	if err != nil {
		return "", fmt.Errorf("auth/keystore: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(kf.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("auth/keystore: decoding ciphertext: %w", err)
	}

	gcm, err := keyCipher(password, salt)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("auth/keystore: decryption failed (wrong password?): %w", err)
	}
	return hex.EncodeToString(plaintext), nil
}

// LoadSigner resolves src into a Signer.
func LoadSigner(src KeySource) (*Signer, error) {
	if src.RawPrivateKey != "" {
		return NewSigner(src.RawPrivateKey)
	}
	if src.KeyFile == "" {
		return nil, errors.New("auth/keystore: no key configured (set a raw key or a key file)")
	}
	data, err := os.ReadFile(src.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("auth/keystore: reading key file: %w", err)
	}
	key, err := OpenKey(data, src.Password)
	if err != nil {
		return nil, err
	}
	return NewSigner(key)
}

func keyCipher(password string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("auth/keystore: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("auth/keystore: creating GCM: %w", err)
	}
	return gcm, nil
}
