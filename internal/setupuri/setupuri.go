// Package setupuri implements the pairing URI from spec.md §6: a
// passphrase-protected bundle of server connection details, encoded as
// "obsidian://setup-sync-workers?data=<base64url>" carrying
// [version=1 byte][salt=16 bytes][iv=12 bytes][ciphertext], where
// ciphertext is AES-256-GCM over a small JSON payload, the key derived
// from the passphrase via PBKDF2-SHA256/100000.
package setupuri

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Scheme is the pairing URI's scheme and host, per §6.
	Scheme = "obsidian://setup-sync-workers"

	version    byte = 1
	saltSize        = 16
	ivSize          = 12
	keySize         = 32
	pbkdf2Iters     = 100000
)

// ErrMalformed is returned when a URI's data payload is too short to
// contain its fixed-size header, or has an unsupported version byte.
var ErrMalformed = errors.New("setupuri: malformed setup URI")

// Payload is the JSON structure encrypted into a setup URI.
type Payload struct {
	ServerURL string `json:"serverUrl"`
	APIKey    string `json:"apiKey"`
	VaultID   string `json:"vaultId"`
	Version   int    `json:"version"`
}

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iters, keySize, sha256.New)
}

// Encode builds a setup URI for payload, encrypted under passphrase.
func Encode(payload Payload, passphrase string) (string, error) {
	payload.Version = 1

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("setupuri: marshaling payload: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("setupuri: generating salt: %w", err)
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("setupuri: generating iv: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return "", fmt.Errorf("setupuri: constructing cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("setupuri: constructing GCM mode: %w", err)
	}

	ciphertext := gcm.Seal(nil, iv, plaintext, nil)

	data := make([]byte, 0, 1+saltSize+ivSize+len(ciphertext))
	data = append(data, version)
	data = append(data, salt...)
	data = append(data, iv...)
	data = append(data, ciphertext...)

	encoded := base64.RawURLEncoding.EncodeToString(data)

	return Scheme + "?data=" + encoded, nil
}

// Decode parses and decrypts a setup URI produced by Encode.
func Decode(uri, passphrase string) (Payload, error) {
	data, err := extractData(uri)
	if err != nil {
		return Payload{}, err
	}

	if len(data) < 1+saltSize+ivSize {
		return Payload{}, ErrMalformed
	}
	if data[0] != version {
		return Payload{}, fmt.Errorf("%w: unsupported version %d", ErrMalformed, data[0])
	}

	salt := data[1 : 1+saltSize]
	iv := data[1+saltSize : 1+saltSize+ivSize]
	ciphertext := data[1+saltSize+ivSize:]

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return Payload{}, fmt.Errorf("setupuri: constructing cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Payload{}, fmt.Errorf("setupuri: constructing GCM mode: %w", err)
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return Payload{}, fmt.Errorf("setupuri: decrypting payload (wrong passphrase?): %w", err)
	}

	var payload Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return Payload{}, fmt.Errorf("setupuri: unmarshaling payload: %w", err)
	}

	return payload, nil
}

// extractData pulls the base64url "data" query parameter out of uri,
// which may be a bare query string or a full "scheme://host?data=..."
// URI.
func extractData(uri string) ([]byte, error) {
	raw := uri
	if idx := strings.Index(uri, "?"); idx >= 0 {
		raw = uri[idx+1:]
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	encoded := values.Get("data")
	if encoded == "" {
		return nil, ErrMalformed
	}

	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	return data, nil
}
