package shield

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrNoKeys is returned by NewAPIKeys when no hash is given.
var ErrNoKeys = errors.New("shield: no API key hashes configured")

// APIKeys authenticates requests against a set of bcrypt hashes. The key is
// read from "Authorization: Bearer <key>" or "X-API-Key". Verified keys are
// remembered by SHA-256 digest so bcrypt runs once per distinct key.
type APIKeys struct {
	hashes   [][]byte
	exclude  []string
	verified sync.Map // [32]byte -> struct{}
}

// NewAPIKeys validates the given bcrypt hashes. Requests whose path starts
// with one of excludePrefixes are not checked.
func NewAPIKeys(hashes []string, excludePrefixes ...string) (*APIKeys, error) {
	k := &APIKeys{exclude: excludePrefixes}
	for _, h := range hashes {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, fmt.Errorf("shield: api key hash: %w", err)
		}
		k.hashes = append(k.hashes, []byte(h))
	}
	if len(k.hashes) == 0 {
		return nil, ErrNoKeys
	}
	return k, nil
}

// HashKey returns the bcrypt hash to configure for key.
func HashKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("shield: hash key: %w", err)
	}
	return string(h), nil
}

// Verify reports whether key matches one of the configured hashes.
func (k *APIKeys) Verify(key string) bool {
	if key == "" {
		return false
	}
	digest := sha256.Sum256([]byte(key))
	if _, ok := k.verified.Load(digest); ok {
		return true
	}
	for _, h := range k.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			k.verified.Store(digest, struct{}{})
			return true
		}
	}
	return false
}

// Middleware rejects unauthenticated requests with 401 JSON.
func (k *APIKeys) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range k.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		if !k.Verify(requestKey(r)) {
			GetLogger(r.Context()).Warn("apikey: rejected", "path", r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
