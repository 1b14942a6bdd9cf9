package store

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/dukerupert/tasksparkle/internal/seal"
)

// ErrUnreadable is returned by Get when a stored value cannot be opened
// with the current key: a wrong passphrase, or a value written before
// sealing was enabled.
var ErrUnreadable = errors.New("stored value cannot be decrypted")

// saltKey holds the hex salt used to derive the sealing key. It is stored
// in the inner KV unencrypted.
const saltKey = "sealed_salt"

// SealedKV encrypts values before handing them to an inner KV. Keys are
// stored in the clear so lookups still work.
type SealedKV struct {
	inner KV
	key   []byte
}

// NewSealedKV derives the sealing key from passphrase, creating and
// persisting a salt on first use.
func NewSealedKV(inner KV, passphrase string) (*SealedKV, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("sealed storage requires a passphrase")
	}

	saltHex, ok, err := inner.Get(saltKey)
	if err != nil {
		return nil, fmt.Errorf("load salt: %w", err)
	}

	var salt []byte
	if ok {
		salt, err = hex.DecodeString(saltHex)
		if err != nil {
			return nil, fmt.Errorf("decode salt: %w", err)
		}
	} else {
		salt, err = seal.GenerateSalt()
		if err != nil {
			return nil, err
		}
		if err := inner.Set(saltKey, hex.EncodeToString(salt)); err != nil {
			return nil, fmt.Errorf("store salt: %w", err)
		}
	}

	return &SealedKV{inner: inner, key: seal.DeriveKey(passphrase, salt)}, nil
}

func (s *SealedKV) Get(key string) (string, bool, error) {
	raw, ok, err := s.inner.Get(key)
	if err != nil || !ok {
		return "", ok, err
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", false, fmt.Errorf("decode %q: %w: %v", key, ErrUnreadable, err)
	}
	plaintext, err := seal.Open(s.key, data)
	if err != nil {
		return "", false, fmt.Errorf("open %q: %w: %v", key, ErrUnreadable, err)
	}
	return string(plaintext), true, nil
}

func (s *SealedKV) Set(key, value string) error {
	sealed, err := seal.Seal(s.key, []byte(value))
	if err != nil {
		return fmt.Errorf("seal %q: %w", key, err)
	}
	return s.inner.Set(key, base64.StdEncoding.EncodeToString(sealed))
}

func (s *SealedKV) Delete(key string) error {
	return s.inner.Delete(key)
}

// Keys delegates to the inner KV when it can enumerate keys.
func (s *SealedKV) Keys(prefix string) ([]string, error) {
	kl, ok := s.inner.(interface {
		Keys(prefix string) ([]string, error)
	})
	if !ok {
		return nil, fmt.Errorf("inner store cannot list keys")
	}
	return kl.Keys(prefix)
}
