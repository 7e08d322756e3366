/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package crypto provides TLS setup for broker connections and sealing of
// message payloads with AES-256-GCM.
//
// Sealed payloads are opaque bytes to the broker. The topic a payload is
// published on is bound in as additional authenticated data, so a sealed
// message replayed onto a different topic fails to open.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is the required key size for AES-256 (32 bytes).
	KeySize = 32

	// NonceSize is the size of the GCM nonce (12 bytes).
	NonceSize = 12

	// TagSize is the size of the GCM authentication tag (16 bytes).
	TagSize = 16
)

var (
	// ErrInvalidKeySize is returned when the key is not 32 bytes.
	ErrInvalidKeySize = errors.New("crypto: key must be 32 bytes (256 bits)")

	// ErrInvalidKeyFormat is returned when the hex key cannot be decoded.
	ErrInvalidKeyFormat = errors.New("crypto: key must be valid hex-encoded string")

	// ErrSealedTooShort is returned when a sealed payload is shorter than nonce + tag.
	ErrSealedTooShort = errors.New("crypto: sealed payload too short")

	// ErrOpenFailed is returned when authentication fails, including a topic mismatch.
	ErrOpenFailed = errors.New("crypto: cannot open payload - wrong key, wrong topic or tampered data")
)

// Sealer encrypts and authenticates message payloads. Safe for concurrent use.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer creates a Sealer from a 64 character hex key.
func NewSealer(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, ErrInvalidKeyFormat
	}
	return NewSealerFromBytes(key)
}

// NewSealerFromBytes creates a Sealer from raw key bytes.
func NewSealerFromBytes(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	return &Sealer{gcm: gcm}, nil
}

// Seal encrypts payload for topic.
// Returns: nonce (12 bytes) || ciphertext || tag (16 bytes)
func (s *Sealer) Seal(topic string, payload []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize, NonceSize+len(payload)+TagSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}
	return s.gcm.Seal(nonce, nonce, payload, []byte(topic)), nil
}

// Open reverses Seal. topic must be the topic the payload was sealed for.
func (s *Sealer) Open(topic string, sealed []byte) ([]byte, error) {
	if len(sealed) < NonceSize+TagSize {
		return nil, ErrSealedTooShort
	}

	plaintext, err := s.gcm.Open(nil, sealed[:NonceSize], sealed[NonceSize:], []byte(topic))
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}

// GenerateKey generates a random 256-bit key, hex encoded.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("crypto: failed to generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// ValidateKey checks if a hex-encoded key is valid.
func ValidateKey(hexKey string) error {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return ErrInvalidKeyFormat
	}
	if len(key) != KeySize {
		return ErrInvalidKeySize
	}
	return nil
}
