// Package secretbox encrypts values at rest with a master key from the
// environment. The session store runs token material through it so access
// tokens never sit in redis as plaintext.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const (
	masterKeyEnvVar   = "SIGNIN_MASTER_KEY"
	nonceSizeGCM      = 12 // 96-bit nonce, the GCM recommendation
	requiredKeyLength = 32 // AES-256
	sep               = "|" // base64(nonce)|base64(ciphertext)
)

var (
	masterKey     []byte
	masterKeyOnce sync.Once
	loadErr       error
	mu            sync.RWMutex
)

// ensureLoaded reads SIGNIN_MASTER_KEY (base64, 32 bytes decoded) once.
func ensureLoaded() error {
	masterKeyOnce.Do(func() {
		kb64 := strings.TrimSpace(os.Getenv(masterKeyEnvVar))
		if kb64 == "" {
			loadErr = fmt.Errorf("%s not set; generate one with: openssl rand -base64 32", masterKeyEnvVar)
			return
		}
		k, err := base64.StdEncoding.DecodeString(kb64)
		if err != nil {
			loadErr = fmt.Errorf("decode %s: %w", masterKeyEnvVar, err)
			return
		}
		if len(k) != requiredKeyLength {
			loadErr = fmt.Errorf("%s must decode to %d bytes, got %d", masterKeyEnvVar, requiredKeyLength, len(k))
			return
		}
		mu.Lock()
		masterKey = make([]byte, len(k))
		copy(masterKey, k)
		mu.Unlock()
	})
	return loadErr
}

// Ready reports whether the master key is loaded. The session store falls
// back to plaintext storage in dev when no key is configured.
func Ready() bool {
	_ = ensureLoaded()
	mu.RLock()
	defer mu.RUnlock()
	return len(masterKey) == requiredKeyLength
}

// Encrypt seals plainText and returns base64(nonce)|base64(ciphertext).
func Encrypt(plainText string) (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}

	mu.RLock()
	key := make([]byte, len(masterKey))
	copy(key, masterKey)
	mu.RUnlock()

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}

	ct := aesgcm.Seal(nil, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt reverses Encrypt. Tampering fails the GCM auth check.
func Decrypt(boxed string) (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}

	parts := strings.SplitN(boxed, sep, 2)
	if len(parts) != 2 {
		return "", errors.New("secretbox: malformed value")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSizeGCM {
		return "", errors.New("secretbox: bad nonce")
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", errors.New("secretbox: bad ciphertext")
	}

	mu.RLock()
	key := make([]byte, len(masterKey))
	copy(key, masterKey)
	mu.RUnlock()

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	pt, err := aesgcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", errors.New("secretbox: decrypt failed")
	}
	return string(pt), nil
}

// UnsafeResetForTests clears the cached key so tests can swap the env var.
// Never call from production code.
func UnsafeResetForTests() {
	mu.Lock()
	defer mu.Unlock()
	masterKey = nil
	loadErr = nil
	masterKeyOnce = sync.Once{}
}
