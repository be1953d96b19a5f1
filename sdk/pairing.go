package sdk

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/lookout-sh/lookout/internal/api"
	"github.com/lookout-sh/lookout/internal/config"
	"github.com/lookout-sh/lookout/internal/crypto"
	"github.com/lookout-sh/lookout/internal/storage"
	"github.com/lookout-sh/lookout/pkg/logger"
)

const (
	// pairPollInterval is how often the pairing device polls for a response.
	pairPollInterval = 2 * time.Second
	// pairTimeout bounds the whole pairing wait.
	pairTimeout = 5 * time.Minute
)

// PairURL builds the lookout://pair URL carrying an ephemeral public key as
// base64url.
func PairURL(publicKey *[32]byte) string {
	b64 := base64.StdEncoding.EncodeToString(publicKey[:])
	return "lookout://pair?" + toBase64URL(b64)
}

// ParsePairURL extracts the device public key (standard base64) from a
// lookout://pair URL scanned off another device's screen.
func ParsePairURL(pairURL string) (string, error) {
	parsed, err := url.Parse(pairURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme != "lookout" {
		return "", fmt.Errorf("unsupported scheme: %s", parsed.Scheme)
	}
	if parsed.Host != "pair" {
		return "", fmt.Errorf("unsupported host: %s", parsed.Host)
	}
	raw := parsed.RawQuery
	if raw == "" {
		return "", fmt.Errorf("missing public key")
	}
	pub, err := fromBase64URL(raw)
	if err != nil {
		return "", fmt.Errorf("decode public key: %w", err)
	}
	if len(pub) != 32 {
		return "", fmt.Errorf("invalid public key length %d", len(pub))
	}
	return base64.StdEncoding.EncodeToString(pub), nil
}

// QRCodeString renders pairing data as terminal ASCII art.
func QRCodeString(data string) (string, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("generate qr code: %w", err)
	}
	return qr.ToSmallString(false), nil
}

// Pair runs the pairing-device side of the flow: generate an ephemeral box
// keypair, surface the QR payload through display, then poll until an
// already-paired device boxes the account secret back. The secret is saved
// as the access key.
func Pair(ctx context.Context, cfg *config.Config, display func(pairURL string)) error {
	pub, priv, err := crypto.GenerateBoxKeyPair()
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}
	pubB64 := base64.StdEncoding.EncodeToString(pub[:])

	display(PairURL(pub))

	apiCli := api.NewClient(cfg.ServerURL, cfg.RequestTimeout)

	ctx, cancel := context.WithTimeout(ctx, pairTimeout)
	defer cancel()

	ticker := time.NewTicker(pairPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("pairing timed out: %w", ctx.Err())
		case <-ticker.C:
			encrypted, ok, err := apiCli.GetPairingResponse(ctx, pubB64)
			if err != nil {
				logger.Debugf("pair: poll failed: %v", err)
				continue
			}
			if !ok {
				continue
			}
			secret, err := crypto.DecryptPairingResponse(encrypted, priv)
			if err != nil {
				return fmt.Errorf("decrypt pairing response: %w", err)
			}
			if err := storage.SaveSecretKey(cfg.AccessKey, secret); err != nil {
				return fmt.Errorf("save access key: %w", err)
			}
			logger.Infof("pair: credentials saved to %s", cfg.AccessKey)
			return nil
		}
	}
}

// ApprovePairing runs the approving side: box this account's secret to the
// requesting device's ephemeral public key and post it back.
func (c *Client) ApprovePairing(ctx context.Context, devicePublicKeyB64 string) error {
	devicePub, err := base64.StdEncoding.DecodeString(devicePublicKeyB64)
	if err != nil {
		return fmt.Errorf("decode device public key: %w", err)
	}
	if len(devicePub) != 32 {
		return fmt.Errorf("invalid device public key length %d", len(devicePub))
	}
	secret, err := storage.LoadSecretKey(c.cfg.AccessKey)
	if err != nil {
		return fmt.Errorf("load access key: %w", err)
	}

	var recipient [32]byte
	copy(recipient[:], devicePub)

	// Version byte 0x00 precedes the raw secret inside the box.
	payload := append([]byte{0x00}, secret...)
	encrypted, err := crypto.EncryptBox(payload, &recipient)
	if err != nil {
		return fmt.Errorf("encrypt pairing response: %w", err)
	}
	return c.apiCli.SendPairingResponse(ctx, devicePublicKeyB64, encrypted)
}

// toBase64URL converts standard base64 to unpadded base64url.
func toBase64URL(s string) string {
	s = strings.ReplaceAll(s, "+", "-")
	s = strings.ReplaceAll(s, "/", "_")
	return strings.TrimRight(s, "=")
}

// fromBase64URL decodes unpadded base64url.
func fromBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
