package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// Signer represents the capability to sign arbitrary payloads for generating signed URLs.
type Signer interface {
	// Email returns the service account email used as the GoogleAccessID when signing URLs.
	Email() string
	// SignBytes signs the provided payload with the underlying private key.
	SignBytes(ctx context.Context, payload []byte) ([]byte, error)
}

// ServiceAccountSigner implements Signer backed by a service account private key.
type ServiceAccountSigner struct {
	email string
	key   *rsa.PrivateKey
}

type serviceAccountKey struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// NewServiceAccountSigner builds a signer from configuration. key may be a PEM private key or a full
// service account JSON document; in the latter case email may be empty and is read from the key.
func NewServiceAccountSigner(email, key string) (*ServiceAccountSigner, error) {
	email = strings.TrimSpace(email)
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("storage: signer key is empty")
	}

	pemData := key
	if strings.HasPrefix(key, "{") {
		var parsed serviceAccountKey
		if err := json.Unmarshal([]byte(key), &parsed); err != nil {
			return nil, fmt.Errorf("storage: decode service account json: %w", err)
		}
		pemData = strings.TrimSpace(parsed.PrivateKey)
		if email == "" {
			email = strings.TrimSpace(parsed.ClientEmail)
		}
	}
	if email == "" {
		return nil, errors.New("storage: signer email is required")
	}

	rsaKey, err := parseRSAPrivateKey(pemData)
	if err != nil {
		return nil, err
	}
	return &ServiceAccountSigner{email: email, key: rsaKey}, nil
}

// Email returns the signer service account email.
func (s *ServiceAccountSigner) Email() string {
	if s == nil {
		return ""
	}
	return s.email
}

// SignBytes applies RSA SHA256 signing over the payload.
func (s *ServiceAccountSigner) SignBytes(ctx context.Context, payload []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("storage: signer not initialised")
	}
	if len(payload) == 0 {
		return nil, errors.New("storage: payload is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("storage: sign payload: %w", err)
	}
	return sig, nil
}

func parseRSAPrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("storage: failed to decode PEM private key")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("storage: private key is not RSA")
		}
		return rsaKey, nil
	}
	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("storage: parse RSA private key: %w", err)
	}
	return rsaKey, nil
}
