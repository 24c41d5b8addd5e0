package scopes

import (
	"crypto/subtle"
)

// KeyRing holds the public ingest keys. Global keys are valid for every
// scope. A ring with no keys at all accepts any request.
type KeyRing struct {
	global   []string
	perScope map[int64][]string
}

// NewKeyRing builds a ring from global keys and per-scope keys.
func NewKeyRing(global []string, perScope map[int64][]string) *KeyRing {
	kr := &KeyRing{perScope: map[int64][]string{}}
	for _, k := range global {
		if k != "" {
			kr.global = append(kr.global, k)
		}
	}
	for id, keys := range perScope {
		for _, k := range keys {
			if k != "" {
				kr.perScope[id] = append(kr.perScope[id], k)
			}
		}
	}
	return kr
}

// Open reports whether ingestion into scopeID needs no key.
func (kr *KeyRing) Open(scopeID int64) bool {
	return kr == nil || (len(kr.global) == 0 && len(kr.perScope[scopeID]) == 0)
}

// Verify checks key against the keys valid for scopeID in constant time.
func (kr *KeyRing) Verify(scopeID int64, key string) error {
	if kr.Open(scopeID) {
		return nil
	}
	if key == "" {
		return ErrUnauthorized
	}
	valid := false
	for _, list := range [][]string{kr.global, kr.perScope[scopeID]} {
		for _, k := range list {
			if subtle.ConstantTimeCompare([]byte(key), []byte(k)) == 1 {
				valid = true
			}
		}
	}
	if !valid {
		return ErrUnauthorized
	}
	return nil
}
