package crypto

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// Encrypt seals a value with NaCl secretbox (XSalsa20-Poly1305) under the
// given key. Byte slices and raw JSON are sealed as-is; anything else is
// JSON-marshaled first. Output layout: nonce followed by the sealed box.
func Encrypt(data interface{}, key *[32]byte) ([]byte, error) {
	var plaintext []byte
	switch v := data.(type) {
	case json.RawMessage:
		plaintext = []byte(v)
	case []byte:
		plaintext = v
	default:
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		plaintext = encoded
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

// Decrypt opens a payload produced by Encrypt and unmarshals the plaintext
// JSON into target. A wrong key or tampered payload fails authentication.
func Decrypt(sealed []byte, key *[32]byte, target interface{}) error {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return fmt.Errorf("sealed payload too short")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return fmt.Errorf("decryption failed")
	}
	if err := json.Unmarshal(plaintext, target); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}
