package crypto

import (
	"crypto/hmac"
	"crypto/sha512"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// DeriveKey derives a 32-byte subkey from the account secret using an
// HMAC-SHA512 key tree keyed by a usage string and a path.
func DeriveKey(master []byte, usage string, path []string) ([]byte, error) {
	key, chain, err := deriveKeyTreeRoot(master, usage)
	if err != nil {
		return nil, err
	}
	for _, index := range path {
		key, chain, err = deriveKeyTreeChild(chain, index)
		if err != nil {
			return nil, err
		}
	}
	return key, nil
}

func deriveKeyTreeRoot(seed []byte, usage string) ([]byte, []byte, error) {
	h := hmac.New(sha512.New, []byte(usage+" Master Seed"))
	if _, err := h.Write(seed); err != nil {
		return nil, nil, err
	}
	sum := h.Sum(nil)
	return sum[:32], sum[32:], nil
}

func deriveKeyTreeChild(chainCode []byte, index string) ([]byte, []byte, error) {
	data := append([]byte{0x00}, []byte(index)...)
	h := hmac.New(sha512.New, chainCode)
	if _, err := h.Write(data); err != nil {
		return nil, nil, err
	}
	sum := h.Sum(nil)
	return sum[:32], sum[32:], nil
}

// DeriveContentKey derives the symmetric key protecting payloads on the wire.
func DeriveContentKey(master []byte) (*[32]byte, error) {
	seed, err := DeriveKey(master, "Lookout Encryption", []string{"content"})
	if err != nil {
		return nil, err
	}
	if len(seed) != 32 {
		return nil, fmt.Errorf("invalid content key length: %d", len(seed))
	}
	var key [32]byte
	copy(key[:], seed)
	return &key, nil
}

// DeriveContentKeyPair derives the X25519 keypair used to receive boxed
// payloads addressed to this account.
func DeriveContentKeyPair(master []byte) (*[32]byte, *[32]byte, error) {
	seed, err := DeriveKey(master, "Lookout Encryption", []string{"box"})
	if err != nil {
		return nil, nil, err
	}
	if len(seed) != 32 {
		return nil, nil, fmt.Errorf("invalid box seed length: %d", len(seed))
	}

	var priv [32]byte
	copy(priv[:], seed)

	pubBytes, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	var pub [32]byte
	copy(pub[:], pubBytes)

	return &pub, &priv, nil
}
