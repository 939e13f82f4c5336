package keys

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const minRSABits = 2048

func generateKey(alg Algorithm, rsaBits int) (crypto.Signer, error) {
	switch alg {
	case AlgEdDSA:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		return priv, nil
	case AlgRS256:
		if rsaBits < minRSABits {
			rsaBits = minRSABits
		}
		return rsa.GenerateKey(rand.Reader, rsaBits)
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

func encodePrivateKey(key crypto.Signer) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("marshal private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

func encodePublicKey(key crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

func decodePrivateKey(alg Algorithm, data string) (crypto.Signer, error) {
	switch alg {
	case AlgEdDSA:
		parsed, err := jwt.ParseEdPrivateKeyFromPEM([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyMaterialCorrupt, err)
		}
		edKey, ok := parsed.(ed25519.PrivateKey)
		if !ok {
			return nil, ErrKeyMaterialCorrupt
		}
		return edKey, nil
	case AlgRS256:
		rsaKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyMaterialCorrupt, err)
		}
		return rsaKey, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

func decodePublicKey(alg Algorithm, data string) (crypto.PublicKey, error) {
	switch alg {
	case AlgEdDSA:
		parsed, err := jwt.ParseEdPublicKeyFromPEM([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyMaterialCorrupt, err)
		}
		edKey, ok := parsed.(ed25519.PublicKey)
		if !ok {
			return nil, ErrKeyMaterialCorrupt
		}
		return edKey, nil
	case AlgRS256:
		rsaKey, err := jwt.ParseRSAPublicKeyFromPEM([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyMaterialCorrupt, err)
		}
		return rsaKey, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}
