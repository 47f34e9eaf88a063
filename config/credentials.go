package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// SecurityMethod defines the credential storage method
type SecurityMethod string

const (
	SecurityPlainText SecurityMethod = "plaintext"
	SecuritySSHKey    SecurityMethod = "ssh_key"
)

// CredentialStore holds API keys for the LLM providers and the voice agent,
// stored in plain text or encrypted with a key derived from an SSH key.
type CredentialStore struct {
	method      SecurityMethod
	credentials map[string]string // provider ID -> API key
	sshKeyPath  string
	passphrase  string
	encManager  *EncryptionManager
}

func NewCredentialStore(method SecurityMethod, sshKeyPath string) *CredentialStore {
	return &CredentialStore{
		method:      method,
		credentials: make(map[string]string),
		sshKeyPath:  sshKeyPath,
	}
}

// SetPassphrase sets the passphrase for an encrypted SSH key
func (c *CredentialStore) SetPassphrase(passphrase string) {
	c.passphrase = passphrase
}

func (c *CredentialStore) Load(dataDir string) error {
	var (
		creds map[string]string
		err   error
	)
	switch c.method {
	case SecurityPlainText:
		creds, err = loadPlainText(dataDir)
	case SecuritySSHKey:
		creds, err = c.loadSSHEncrypted(dataDir)
	default:
		return fmt.Errorf("unknown security method: %s", c.method)
	}
	if err != nil {
		return err
	}
	if creds == nil {
		creds = make(map[string]string)
	}
	c.credentials = creds
	return nil
}

func (c *CredentialStore) Save(dataDir string) error {
	switch c.method {
	case SecurityPlainText:
		return savePlainText(dataDir, c.credentials)
	case SecuritySSHKey:
		return c.saveSSHEncrypted(dataDir)
	default:
		return fmt.Errorf("unknown security method: %s", c.method)
	}
}

func (c *CredentialStore) Get(providerID string) string {
	return c.credentials[providerID]
}

func (c *CredentialStore) Set(providerID, apiKey string) {
	c.credentials[providerID] = apiKey
}

func (c *CredentialStore) Delete(providerID string) {
	delete(c.credentials, providerID)
}

// IDs returns the providers that have a stored key, sorted.
func (c *CredentialStore) IDs() []string {
	ids := make([]string, 0, len(c.credentials))
	for id := range c.credentials {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *CredentialStore) GetMethod() SecurityMethod {
	return c.method
}

// path is the file this store's method writes
func (c *CredentialStore) path(dataDir string) string {
	if c.method == SecuritySSHKey {
		return encryptedCredentialsPath(dataDir)
	}
	return credentialsPath(dataDir)
}

// SwitchCredentialStorage re-saves every stored key under method, records
// the method in config.toml and removes the file the old method wrote.
func SwitchCredentialStorage(dataDir string, current *CredentialStore, method SecurityMethod, sshKeyPath string) (*CredentialStore, error) {
	switch method {
	case SecurityPlainText, SecuritySSHKey:
	default:
		return nil, fmt.Errorf("unknown security method: %s", method)
	}

	u, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, err
	}

	next := NewCredentialStore(method, ExpandPath(sshKeyPath))
	next.SetPassphrase(current.passphrase)
	for id, key := range current.credentials {
		next.Set(id, key)
	}
	if err := next.Save(dataDir); err != nil {
		return nil, err
	}

	u.Security.CredentialStorage = string(method)
	u.Security.SSHKeyPath = sshKeyPath
	if err := SaveUserConfig(u, dataDir); err != nil {
		return nil, err
	}

	if old := current.path(dataDir); old != next.path(dataDir) {
		if err := os.Remove(old); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove old credentials: %w", err)
		}
	}
	return next, nil
}

func credentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.toml")
}

func encryptedCredentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.enc")
}

type credentialsFile struct {
	Credentials map[string]string `toml:"credentials"`
}

func loadPlainText(dataDir string) (map[string]string, error) {
	path := credentialsPath(dataDir)
	if !FileExists(path) {
		return make(map[string]string), nil
	}

	var cf credentialsFile
	if _, err := toml.DecodeFile(path, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	return cf.Credentials, nil
}

func savePlainText(dataDir string, creds map[string]string) error {
	f, err := os.OpenFile(credentialsPath(dataDir), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create credentials file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(credentialsFile{Credentials: creds}); err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	return nil
}

func (c *CredentialStore) encryption() (*EncryptionManager, error) {
	if c.encManager != nil {
		return c.encManager, nil
	}
	m := NewEncryptionManager(EncryptionSSHKey, c.sshKeyPath)
	m.SetPassphrase(c.passphrase)
	if err := m.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	c.encManager = m
	return m, nil
}

func (c *CredentialStore) loadSSHEncrypted(dataDir string) (map[string]string, error) {
	path := encryptedCredentialsPath(dataDir)
	if !FileExists(path) {
		return make(map[string]string), nil
	}

	m, err := c.encryption()
	if err != nil {
		return nil, err
	}

	encryptedData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encrypted credentials: %w", err)
	}

	decryptedData, err := m.Decrypt(encryptedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	var creds map[string]string
	if err := json.Unmarshal(decryptedData, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse decrypted credentials: %w", err)
	}

	return creds, nil
}

func (c *CredentialStore) saveSSHEncrypted(dataDir string) error {
	m, err := c.encryption()
	if err != nil {
		return err
	}

	jsonData, err := json.Marshal(c.credentials)
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}

	encryptedData, err := m.Encrypt(jsonData)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	if err := os.WriteFile(encryptedCredentialsPath(dataDir), encryptedData, 0600); err != nil {
		return fmt.Errorf("failed to write encrypted credentials: %w", err)
	}

	return nil
}
