// Package token signs, validates and rotates the tokens the server
// hands out.
package token

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	jose "github.com/go-jose/go-jose/v4"
)

// ErrEncryptedKey is returned for password-protected PEM material.
// Operators decrypt signing keys out of band before deployment.
var ErrEncryptedKey = errors.New("encrypted signing keys are not supported")

// SigningKey is the RSA key pair used for RS256 signatures. It is
// loaded once at startup; rotation is a process restart.
type SigningKey struct {
	Private *rsa.PrivateKey
	KeyID   string
}

// LoadSigningKey reads an unencrypted PKCS#1 or PKCS#8 PEM private key.
// The key id is the RFC 7638 thumbprint of the public key, so it stays
// stable across restarts.
func LoadSigningKey(path string) (*SigningKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	return ParseSigningKey(raw)
}

// ParseSigningKey parses PEM-encoded RSA private key material.
func ParseSigningKey(raw []byte) (*SigningKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("signing key is not PEM encoded")
	}
	if block.Type == "ENCRYPTED PRIVATE KEY" || block.Headers["Proc-Type"] != "" {
		return nil, ErrEncryptedKey
	}

	var key *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		parsed, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pkcs1 key: %w", err)
		}
		key = parsed
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pkcs8 key: %w", err)
		}
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("signing key is not an RSA key")
		}
		key = rsaKey
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}

	return NewSigningKey(key)
}

// NewSigningKey wraps an already-loaded RSA key.
func NewSigningKey(key *rsa.PrivateKey) (*SigningKey, error) {
	kid, err := thumbprint(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &SigningKey{Private: key, KeyID: kid}, nil
}

// JWKS returns the public key set served at /.well-known/jwks.json.
// Private material never appears here.
func (k *SigningKey) JWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       &k.Private.PublicKey,
				KeyID:     k.KeyID,
				Use:       "sig",
				Algorithm: string(jose.RS256),
			},
		},
	}
}

func thumbprint(pub *rsa.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: pub}
	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}
