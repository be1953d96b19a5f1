// Package crypto implements the client identity, pairing, and payload
// encryption primitives. The account secret is the root of trust: the
// Ed25519 identity keypair and the content encryption keys are both derived
// from it, so restoring the secret restores the whole identity.
package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the JWT payload presented to the API server.
type TokenClaims struct {
	UserID string                 `json:"user"`
	Extras map[string]interface{} `json:"extras,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the client's Ed25519 identity derived from the account secret.
type Identity struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// NewIdentity derives the identity keypair from the account secret.
func NewIdentity(secret []byte) (*Identity, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("empty secret")
	}
	seed := sha256.Sum256(secret)
	privateKey := ed25519.NewKeyFromSeed(seed[:])
	publicKey := privateKey.Public().(ed25519.PublicKey)

	return &Identity{
		privateKey: privateKey,
		publicKey:  publicKey,
	}, nil
}

// PublicKeyB64 returns the base64 public key used as the account identifier.
func (id *Identity) PublicKeyB64() string {
	return base64.StdEncoding.EncodeToString(id.publicKey)
}

// CreateToken issues a signed JWT for API authentication.
func (id *Identity) CreateToken(extras map[string]interface{}) (string, error) {
	claims := TokenClaims{
		UserID: id.PublicKeyB64(),
		Extras: extras,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "lookout-client",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(id.privateKey)
}

// VerifyToken verifies and parses a JWT issued by this identity.
func (id *Identity) VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return id.publicKey, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// SignChallenge signs a server-issued challenge during the socket handshake.
func (id *Identity) SignChallenge(challenge []byte) string {
	sig := ed25519.Sign(id.privateKey, challenge)
	return base64.StdEncoding.EncodeToString(sig)
}

// VerifyChallenge verifies an Ed25519 challenge signature against a base64
// public key. Used when validating a paired device's response.
func VerifyChallenge(publicKeyB64 string, challenge []byte, signatureB64 string) (bool, error) {
	publicKey, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return false, fmt.Errorf("failed to decode public key: %w", err)
	}
	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false, fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid public key size")
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), challenge, signature), nil
}
