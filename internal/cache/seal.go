package cache

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// sealed files start with this magic, followed by salt, nonce and box.
var sealMagic = []byte("CDSB1")

const (
	saltSize  = 16
	nonceSize = 24
)

// ErrWrongPassphrase is returned when a sealed store cannot be opened.
var ErrWrongPassphrase = errors.New("cache: storage cannot be decrypted with the configured passphrase")

type sealer struct {
	passphrase []byte
	salt       []byte
	key        *[32]byte
}

func newSealer(passphrase string) *sealer {
	return &sealer{passphrase: []byte(passphrase)}
}

func isSealed(data []byte) bool {
	return bytes.HasPrefix(data, sealMagic)
}

func (s *sealer) deriveKey(salt []byte) (*[32]byte, error) {
	if s.key != nil && bytes.Equal(s.salt, salt) {
		return s.key, nil
	}
	raw, err := scrypt.Key(s.passphrase, salt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("cache: derive key: %w", err)
	}
	var key [32]byte
	copy(key[:], raw)
	s.salt = append([]byte(nil), salt...)
	s.key = &key
	return s.key, nil
}

func (s *sealer) seal(plain []byte) ([]byte, error) {
	if s.salt == nil {
		salt := make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, err
		}
		if _, err := s.deriveKey(salt); err != nil {
			return nil, err
		}
	}
	key, err := s.deriveKey(s.salt)
	if err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(sealMagic)+saltSize+nonceSize+len(plain)+secretbox.Overhead)
	out = append(out, sealMagic...)
	out = append(out, s.salt...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plain, &nonce, key), nil
}

func (s *sealer) open(data []byte) ([]byte, error) {
	if !isSealed(data) || len(data) < len(sealMagic)+saltSize+nonceSize+secretbox.Overhead {
		return nil, ErrWrongPassphrase
	}
	data = data[len(sealMagic):]
	salt := data[:saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], data[saltSize:saltSize+nonceSize])
	key, err := s.deriveKey(salt)
	if err != nil {
		return nil, err
	}
	plain, ok := secretbox.Open(nil, data[saltSize+nonceSize:], &nonce, key)
	if !ok {
		return nil, ErrWrongPassphrase
	}
	return plain, nil
}
