// Package sealing encrypts artifact payloads before they reach the blob store.
package sealing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// ErrNoIdentity is returned when a cipher is built without a private key
var ErrNoIdentity = errors.New("no age identity configured")

// Cipher seals and opens artifact payloads.
type Cipher interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// AgeCipher encrypts to the service's own X25519 recipient, plus any escrow
// recipients, and decrypts with the service identity.
type AgeCipher struct {
	identity   *age.X25519Identity
	recipients []age.Recipient
}

// NewAgeCipher creates a cipher from an AGE-SECRET-KEY-1... identity and
// optional extra age1... recipients that can also open sealed payloads.
func NewAgeCipher(identity string, extraRecipients ...string) (*AgeCipher, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, ErrNoIdentity
	}

	id, err := age.ParseX25519Identity(identity)
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}

	recipients := []age.Recipient{id.Recipient()}
	for _, key := range extraRecipients {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	return &AgeCipher{identity: id, recipients: recipients}, nil
}

// Recipient returns the public key payloads are sealed to.
func (c *AgeCipher) Recipient() string {
	return c.identity.Recipient().String()
}

// Seal encrypts plaintext to every configured recipient.
func (c *AgeCipher) Seal(plaintext []byte) ([]byte, error) {
	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, c.recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

// Open decrypts ciphertext with the service identity.
func (c *AgeCipher) Open(ciphertext []byte) ([]byte, error) {
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), c.identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}

	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	return plaintext, nil
}

// GenerateIdentity returns a fresh identity and its public recipient.
func GenerateIdentity() (identity, recipient string, err error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", fmt.Errorf("generating age identity: %w", err)
	}
	return id.String(), id.Recipient().String(), nil
}
