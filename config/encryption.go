package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

type EncryptionMethod string

const (
	EncryptionNone   EncryptionMethod = "none"
	EncryptionSSHKey EncryptionMethod = "ssh_key"
)

var ErrPassphraseRequired = errors.New("SSH key is encrypted - passphrase required")

// EncryptionManager seals data with AES-256-GCM under a key derived from an
// SSH key signature. The same SSH key always yields the same AES key.
type EncryptionManager struct {
	method     EncryptionMethod
	sshKeyPath string
	passphrase string
	aesKey     []byte
}

func NewEncryptionManager(method EncryptionMethod, sshKeyPath string) *EncryptionManager {
	return &EncryptionManager{
		method:     method,
		sshKeyPath: sshKeyPath,
	}
}

func (e *EncryptionManager) SetPassphrase(passphrase string) {
	e.passphrase = passphrase
}

// Initialize loads the SSH key and derives the AES key.
func (e *EncryptionManager) Initialize() error {
	switch e.method {
	case EncryptionNone:
		return nil

	case EncryptionSSHKey:
		signer, err := loadSigner(e.sshKeyPath, e.passphrase)
		if err != nil {
			return err
		}
		return e.InitializeWithSigner(signer)

	default:
		return fmt.Errorf("unknown encryption method: %s", e.method)
	}
}

// InitializeWithSigner derives the AES key from an already loaded signer,
// for example one held by an SSH agent.
func (e *EncryptionManager) InitializeWithSigner(signer ssh.Signer) error {
	aesKey, err := DeriveAESKeyFromSSH(signer)
	if err != nil {
		return fmt.Errorf("failed to derive encryption key: %w", err)
	}
	e.aesKey = aesKey
	return nil
}

func (e *EncryptionManager) Encrypt(plaintext []byte) ([]byte, error) {
	switch e.method {
	case EncryptionNone:
		return plaintext, nil
	case EncryptionSSHKey:
		if e.aesKey == nil {
			return nil, fmt.Errorf("encryption manager not initialized")
		}
		return encryptAESGCM(plaintext, e.aesKey)
	default:
		return nil, fmt.Errorf("unknown encryption method: %s", e.method)
	}
}

func (e *EncryptionManager) Decrypt(ciphertext []byte) ([]byte, error) {
	switch e.method {
	case EncryptionNone:
		return ciphertext, nil
	case EncryptionSSHKey:
		if e.aesKey == nil {
			return nil, fmt.Errorf("encryption manager not initialized")
		}
		return decryptAESGCM(ciphertext, e.aesKey)
	default:
		return nil, fmt.Errorf("unknown encryption method: %s", e.method)
	}
}

func loadSigner(keyPath, passphrase string) (ssh.Signer, error) {
	if keyPath == "" {
		return nil, fmt.Errorf("ssh_key_path is not set")
	}
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(keyData)
	if err == nil {
		return signer, nil
	}

	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) && !strings.Contains(err.Error(), "passphrase") {
		return nil, fmt.Errorf("invalid SSH key: %w", err)
	}
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}

	log.Debug().Str("key", keyPath).Msg("loading encrypted SSH key")
	signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key (wrong passphrase?): %w", err)
	}
	return signer, nil
}

// Format: [nonce (12 bytes)][ciphertext + tag]
func encryptAESGCM(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptAESGCM(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	return plaintext, nil
}

// DeriveAESKeyFromSSH derives a 32-byte AES-256 key from the signature of a
// fixed message. Only deterministic signature schemes (ed25519, RSA PKCS#1
// v1.5) give a stable key.
func DeriveAESKeyFromSSH(signer ssh.Signer) ([]byte, error) {
	signature, err := signer.Sign(rand.Reader, []byte("oscar-credential-key-v1"))
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	hash := sha256.Sum256(signature.Blob)
	return hash[:], nil
}
