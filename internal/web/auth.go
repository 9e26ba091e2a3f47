package web

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type signedPayload struct {
	Exp int64  `json:"exp"`
	Sub string `json:"sub"` // user id
	N   string `json:"n,omitempty"`
}

func secretKeyPath(dataDir string) string {
	return filepath.Join(dataDir, "web", "secret.key")
}

// SecretKey loads (or creates on first use) the token signing key stored
// under the data directory, so tokens can be minted without a running server.
func SecretKey(dataDir string) ([]byte, error) {
	return loadOrInitSecretKey(dataDir)
}

func loadOrInitSecretKey(dataDir string) ([]byte, error) {
	path := secretKeyPath(dataDir)
	if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
		return []byte(strings.TrimSpace(string(b))), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	enc := base64.RawURLEncoding.EncodeToString(raw)
	if err := os.WriteFile(path, []byte(enc+"\n"), 0o600); err != nil {
		return nil, err
	}
	return []byte(enc), nil
}

func signToken(secret []byte, payload signedPayload) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	p := base64.RawURLEncoding.EncodeToString(b)
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(p))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return p + "." + sig, nil
}

func verifyToken(secret []byte, token string) (signedPayload, error) {
	token = strings.TrimSpace(token)
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return signedPayload{}, errors.New("invalid token format")
	}
	p, sig := parts[0], parts[1]

	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(p))
	want := mac.Sum(nil)
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return signedPayload{}, errors.New("invalid token signature")
	}
	if !hmac.Equal(want, got) {
		return signedPayload{}, errors.New("invalid token signature")
	}

	raw, err := base64.RawURLEncoding.DecodeString(p)
	if err != nil {
		return signedPayload{}, errors.New("invalid token payload")
	}
	var sp signedPayload
	if err := json.Unmarshal(raw, &sp); err != nil {
		return signedPayload{}, errors.New("invalid token payload")
	}
	if sp.Exp == 0 {
		return signedPayload{}, errors.New("token missing exp")
	}
	if time.Now().Unix() > sp.Exp {
		return signedPayload{}, errors.New("token expired")
	}
	if strings.TrimSpace(sp.Sub) == "" {
		return signedPayload{}, errors.New("token missing sub")
	}
	return sp, nil
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:22], nil
}

// NewSessionToken mints a bearer token for the given user id.
func NewSessionToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("missing user")
	}
	n, err := newNonce()
	if err != nil {
		return "", err
	}
	return signToken(secret, signedPayload{
		Sub: userID,
		N:   n,
		Exp: time.Now().Add(ttl).Unix(),
	})
}

// userForRequest resolves the caller's identity. Auth mode "none" maps every
// request to the configured default user; otherwise a valid bearer token is
// required.
func (s *Server) userForRequest(r *http.Request) (string, error) {
	if s.cfg.AuthMode == "none" {
		return s.cfg.DefaultUserID, nil
	}
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", errors.New("missing bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	if token == h {
		return "", errors.New("authorization header is not a bearer token")
	}
	sp, err := verifyToken(s.secret, token)
	if err != nil {
		return "", err
	}
	return sp.Sub, nil
}
