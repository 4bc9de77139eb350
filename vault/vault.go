// Copyright (c) 2026 Aggravator Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vault decrypts Ansible vault envelopes (format 1.1 and 1.2,
// cipher AES256). The vault password is read lazily from a password
// file, so constructing a Vault never fails and operations that touch
// no secrets work even when the password file is unreadable.
package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const envelopeHeader = "$ANSIBLE_VAULT"

// Key derivation parameters fixed by the vault 1.x format.
const (
	kdfIterations = 10000
	aesKeyLen     = 32
	hmacKeyLen    = 32
	ivLen         = 16
)

// InvalidEnvelopeError occurs when data presented for decryption is not
// a well formed vault envelope.
type InvalidEnvelopeError struct {
	Reason string
}

// Error implements the error interface.
func (e InvalidEnvelopeError) Error() string {
	return fmt.Sprintf("invalid vault envelope: %s", e.Reason)
}

// DecryptionError occurs when a well formed envelope cannot be
// decrypted, most commonly because the password is wrong or the
// password file cannot be read.
type DecryptionError struct {
	Cause error
}

// Error implements the error interface.
func (e DecryptionError) Error() string {
	return fmt.Sprintf("vault decryption failed: %s", e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e DecryptionError) Unwrap() error {
	return e.Cause
}

// IsEncrypted reports whether data looks like a vault envelope.
func IsEncrypted(data []byte) bool {
	return strings.HasPrefix(strings.TrimSpace(string(data)), envelopeHeader)
}

// Vault decrypts envelopes with a password sourced from a file. The
// file is read once, on first use.
//
// Pointing the password file at the platform null device (or leaving it
// empty) disables decryption entirely: Enabled reports false and the
// caller decides how to degrade.
type Vault struct {
	passwordFile string

	readOnce sync.Once
	password []byte
	readErr  error
}

// New returns a Vault reading its password from passwordFile.
func New(passwordFile string) *Vault {
	if passwordFile == os.DevNull {
		passwordFile = ""
	}
	return &Vault{passwordFile: passwordFile}
}

// Enabled reports whether this Vault is able to attempt decryption.
func (v *Vault) Enabled() bool {
	return v.passwordFile != ""
}

// Decrypt parses the envelope in data and returns the plaintext.
func (v *Vault) Decrypt(data []byte) ([]byte, error) {
	if !v.Enabled() {
		return nil, DecryptionError{Cause: fmt.Errorf("decryption is disabled, no vault password file configured")}
	}

	password, err := v.readPassword()
	if err != nil {
		return nil, DecryptionError{Cause: err}
	}

	salt, expectedMAC, ciphertext, err := parseEnvelope(data)
	if err != nil {
		return nil, err
	}

	derived := pbkdf2.Key(password, salt, kdfIterations, aesKeyLen+hmacKeyLen+ivLen, sha256.New)
	aesKey := derived[:aesKeyLen]
	hmacKey := derived[aesKeyLen : aesKeyLen+hmacKeyLen]
	iv := derived[aesKeyLen+hmacKeyLen:]

	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(ciphertext)
	if !hmac.Equal(mac.Sum(nil), expectedMAC) {
		return nil, DecryptionError{Cause: fmt.Errorf("HMAC mismatch, wrong vault password or corrupted data")}
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, DecryptionError{Cause: err}
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCTR(block, iv).XORKeyStream(plaintext, ciphertext)

	plaintext, err = unpad(plaintext)
	if err != nil {
		return nil, DecryptionError{Cause: err}
	}
	return plaintext, nil
}

func (v *Vault) readPassword() ([]byte, error) {
	v.readOnce.Do(func() {
		b, err := os.ReadFile(v.passwordFile)
		if err != nil {
			v.readErr = err
			return
		}
		v.password = bytes.TrimSpace(b)
	})
	return v.password, v.readErr
}

// parseEnvelope splits a vault envelope into its salt, HMAC and
// ciphertext parts.
//
// The envelope is a header line ($ANSIBLE_VAULT;1.1;AES256, with a
// trailing vault id label in format 1.2) followed by hex encoded text
// wrapped over multiple lines. That text decodes to three hex fields,
// newline separated: salt, HMAC-SHA256 of the ciphertext, ciphertext.
func parseEnvelope(data []byte) (salt, mac, ciphertext []byte, err error) {
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 2 {
		return nil, nil, nil, InvalidEnvelopeError{Reason: "missing envelope body"}
	}

	header := strings.Split(strings.TrimSpace(lines[0]), ";")
	if len(header) < 3 || header[0] != envelopeHeader {
		return nil, nil, nil, InvalidEnvelopeError{Reason: "missing $ANSIBLE_VAULT header"}
	}
	version := header[1]
	if version != "1.1" && version != "1.2" {
		return nil, nil, nil, InvalidEnvelopeError{Reason: fmt.Sprintf("unsupported version %q", version)}
	}
	if cipherName := header[2]; cipherName != "AES256" {
		return nil, nil, nil, InvalidEnvelopeError{Reason: fmt.Sprintf("unsupported cipher %q", cipherName)}
	}

	var body strings.Builder
	for _, line := range lines[1:] {
		body.WriteString(strings.TrimSpace(line))
	}
	decoded, err := hex.DecodeString(body.String())
	if err != nil {
		return nil, nil, nil, InvalidEnvelopeError{Reason: "envelope body is not hex"}
	}

	parts := strings.SplitN(string(decoded), "\n", 3)
	if len(parts) != 3 {
		return nil, nil, nil, InvalidEnvelopeError{Reason: "envelope body must hold salt, HMAC and ciphertext"}
	}
	salt, err = hex.DecodeString(parts[0])
	if err != nil {
		return nil, nil, nil, InvalidEnvelopeError{Reason: "salt is not hex"}
	}
	mac, err = hex.DecodeString(parts[1])
	if err != nil {
		return nil, nil, nil, InvalidEnvelopeError{Reason: "HMAC is not hex"}
	}
	ciphertext, err = hex.DecodeString(parts[2])
	if err != nil {
		return nil, nil, nil, InvalidEnvelopeError{Reason: "ciphertext is not hex"}
	}
	return salt, mac, ciphertext, nil
}

// unpad strips PKCS#7 padding from an AES block aligned plaintext.
func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 || len(b)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("plaintext is not block aligned")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
