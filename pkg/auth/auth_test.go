package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKid    = "test-key"
	testIssuer = "https://issuer.example"
	adminAddr  = "0x00000000000000000000000000000000000000Ad"
)

func TestEIP191_SignAndVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	body := []byte(`{"amount":"1"}`)

	sig, err := SignEIP191(body, key)
	require.NoError(t, err)

	addr, err := VerifyEIP191Signature(body, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), addr)

	// a different body recovers a different signer
	other, err := VerifyEIP191Signature([]byte(`{"amount":"2"}`), sig)
	require.NoError(t, err)
	assert.NotEqual(t, addr, other)
}

func TestVerifyEIP191Signature_Malformed(t *testing.T) {
	for name, sig := range map[string]string{
		"not hex":   "0xzz",
		"too short": "0x1234",
		"empty":     "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := VerifyEIP191Signature([]byte("x"), sig)
			assert.Error(t, err)
		})
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress(adminAddr)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(adminAddr), strings.ToLower(addr.Hex()))

	for _, s := range []string{"", "00000000000000000000000000000000000000ad", "0x1234", "native"} {
		_, err := ParseAddress(s)
		assert.Error(t, err, s)
	}
}

type jwksFixture struct {
	key    *rsa.PrivateKey
	server *httptest.Server
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := JWKS{Keys: []JWK{{
		Kid: testKid,
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(server.Close)
	return &jwksFixture{key: key, server: server}
}

func (f *jwksFixture) token(t *testing.T, subject, issuer string, expires time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	tok.Header["kid"] = testKid
	s, err := tok.SignedString(f.key)
	require.NoError(t, err)
	return s
}

func TestJWTValidator_Principal(t *testing.T) {
	f := newJWKSFixture(t)
	v := NewJWTValidator(f.server.URL, testIssuer)
	require.True(t, v.IsConfigured())
	ctx := context.Background()

	addr, err := v.Principal(ctx, f.token(t, adminAddr, testIssuer, time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.True(t, strings.EqualFold(adminAddr, addr.Hex()))

	_, err = v.Principal(ctx, f.token(t, adminAddr, testIssuer, time.Now().Add(-time.Minute)))
	assert.Error(t, err, "expired")

	_, err = v.Principal(ctx, f.token(t, adminAddr, "https://other.example", time.Now().Add(time.Hour)))
	assert.Error(t, err, "wrong issuer")

	_, err = v.Principal(ctx, f.token(t, "admin", testIssuer, time.Now().Add(time.Hour)))
	assert.Error(t, err, "subject is not an address")
}

func TestJWTValidator_NotConfigured(t *testing.T) {
	var nilValidator *JWTValidator
	assert.False(t, nilValidator.IsConfigured())
	assert.False(t, NewJWTValidator("", "").IsConfigured())
}

// echoPrincipal writes the authenticated principal and method.
var echoPrincipal = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	addr, ok := PrincipalFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	body, _ := io.ReadAll(r.Body)
	_, _ = w.Write([]byte(addr.Hex() + " " + MethodFromContext(r.Context()) + " " + string(body)))
})

// signed builds a request signed by key for its method and target.
func signed(t *testing.T, key *ecdsa.PrivateKey, method, target, body string, deadline int64) *http.Request {
	t.Helper()
	sig, err := SignRequest(key, method, target, deadline, []byte(body))
	require.NoError(t, err)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(SignatureHeader, sig)
	req.Header.Set(SignerHeader, crypto.PubkeyToAddress(key.PublicKey).Hex())
	req.Header.Set(DeadlineHeader, strconv.FormatInt(deadline, 10))
	return req
}

func TestRequestPayload_BindsTarget(t *testing.T) {
	body := []byte(`{"feed":"0x01"}`)
	assert.Equal(t, "PUT /admin/feeds/0xaa\n1700000000\n"+string(body), string(RequestPayload(http.MethodPut, "/admin/feeds/0xaa", 1700000000, body)))
	assert.NotEqual(t,
		RequestPayload(http.MethodPut, "/admin/feeds/0xaa", 1, body),
		RequestPayload(http.MethodPut, "/admin/feeds/0xbb", 1, body))
}

func TestMiddleware_RequireSignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	h := NewMiddleware(nil, Options{MaxBody: 64, TTL: time.Minute, Now: func() time.Time { return now }}).RequireSignature(echoPrincipal)
	body := `{"amount":"1"}`
	deadline := now.Add(30 * time.Second).Unix()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signed(t, key, http.MethodPost, "/deposits/native", body, deadline))
	require.Equal(t, http.StatusOK, rec.Code)
	// the handler still sees the full body
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex()+" "+MethodSignature+" "+body, rec.Body.String())

	tests := []struct {
		name string
		req  func() *http.Request
		want int
	}{
		{"missing signature", func() *http.Request {
			return httptest.NewRequest(http.MethodPost, "/deposits/native", strings.NewReader(body))
		}, http.StatusUnauthorized},
		{"replayed", func() *http.Request {
			return signed(t, key, http.MethodPost, "/deposits/native", body, deadline)
		}, http.StatusUnauthorized},
		{"other target", func() *http.Request {
			req := signed(t, key, http.MethodPost, "/deposits/native", body, deadline+1)
			req.URL.Path = "/withdrawals/native"
			return req
		}, http.StatusUnauthorized},
		{"other signer", func() *http.Request {
			req := signed(t, key, http.MethodPost, "/deposits/native", body, deadline+2)
			req.Header.Set(SignerHeader, "0x00000000000000000000000000000000000000b0")
			return req
		}, http.StatusUnauthorized},
		{"missing deadline", func() *http.Request {
			req := signed(t, key, http.MethodPost, "/deposits/native", body, deadline+3)
			req.Header.Del(DeadlineHeader)
			return req
		}, http.StatusUnauthorized},
		{"expired", func() *http.Request {
			return signed(t, key, http.MethodPost, "/deposits/native", body, now.Add(-time.Second).Unix())
		}, http.StatusUnauthorized},
		{"deadline too far", func() *http.Request {
			return signed(t, key, http.MethodPost, "/deposits/native", body, now.Add(time.Hour).Unix())
		}, http.StatusBadRequest},
		{"oversized body", func() *http.Request {
			return signed(t, key, http.MethodPost, "/deposits/native", strings.Repeat("x", 65), deadline)
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req())
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMiddleware_RequireSignatureOrBearer(t *testing.T) {
	f := newJWKSFixture(t)
	h := NewMiddleware(NewJWTValidator(f.server.URL, testIssuer), Options{}).RequireSignatureOrBearer(echoPrincipal)

	req := httptest.NewRequest(http.MethodPut, "/admin/paused", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+f.token(t, adminAddr, testIssuer, time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), " "+MethodBearer+" ")

	req = httptest.NewRequest(http.MethodPut, "/admin/paused", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// signatures remain accepted on admin routes
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, signed(t, key, http.MethodPut, "/admin/paused", `{}`, time.Now().Add(time.Minute).Unix()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), " "+MethodSignature+" ")
}

func TestReplayCache(t *testing.T) {
	c := newReplayCache(2)
	signer := common.HexToAddress(adminAddr)

	require.NoError(t, c.claim(signer, []byte("a"), 100, 50))
	assert.ErrorIs(t, c.claim(signer, []byte("a"), 100, 60), errReplayed)
	// the same payload from another signer is a different request
	require.NoError(t, c.claim(common.HexToAddress("0x01"), []byte("a"), 100, 60))

	// live entries are never evicted
	assert.ErrorIs(t, c.claim(signer, []byte("b"), 100, 60), errReplayWindowFull)

	// expired entries make room
	require.NoError(t, c.claim(signer, []byte("b"), 200, 101))
	assert.Equal(t, 1, c.seen.Len())
}
