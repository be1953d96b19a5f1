package sdk

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lookout-sh/lookout/internal/crypto"
	"github.com/lookout-sh/lookout/internal/storage"
)

func TestPairURLRoundTrip(t *testing.T) {
	pub, _, err := crypto.GenerateBoxKeyPair()
	require.NoError(t, err)

	pairURL := PairURL(pub)
	got, err := ParsePairURL(pairURL)
	require.NoError(t, err)
	require.Equal(t, base64.StdEncoding.EncodeToString(pub[:]), got)
}

func TestParsePairURL_Rejects(t *testing.T) {
	cases := []string{
		"https://pair?Zm9v",
		"lookout://terminal?Zm9v",
		"lookout://pair",
		"lookout://pair?" + toBase64URL(base64.StdEncoding.EncodeToString([]byte("short"))),
	}
	for _, raw := range cases {
		_, err := ParsePairURL(raw)
		require.Error(t, err, raw)
	}
}

func TestQRCodeString(t *testing.T) {
	art, err := QRCodeString("lookout://pair?Zm9v")
	require.NoError(t, err)
	require.NotEmpty(t, art)
}

func TestApprovePairing_BoxesSecretForDevice(t *testing.T) {
	var posted struct {
		PublicKey string `json:"publicKey"`
		Response  string `json:"response"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/auth/response", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)

	devicePub, devicePriv, err := crypto.GenerateBoxKeyPair()
	require.NoError(t, err)
	devicePubB64 := base64.StdEncoding.EncodeToString(devicePub[:])

	require.NoError(t, c.ApprovePairing(context.Background(), devicePubB64))
	require.Equal(t, devicePubB64, posted.PublicKey)

	encrypted, err := base64.StdEncoding.DecodeString(posted.Response)
	require.NoError(t, err)
	secret, err := crypto.DecryptPairingResponse(encrypted, devicePriv)
	require.NoError(t, err)

	// The boxed secret is the approving client's own account secret.
	own, err := storage.LoadSecretKey(c.cfg.AccessKey)
	require.NoError(t, err)
	require.Equal(t, own, secret)
}

func TestApprovePairing_RejectsBadKey(t *testing.T) {
	c := testClient(t, "http://example.invalid")

	_, err := base64.StdEncoding.DecodeString("!!!")
	require.Error(t, err)

	require.Error(t, c.ApprovePairing(context.Background(), "!!!"))
	require.Error(t, c.ApprovePairing(context.Background(), base64.StdEncoding.EncodeToString([]byte("short"))))
}
