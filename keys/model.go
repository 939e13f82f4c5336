package keys

import (
	"crypto"
	"time"
)

// Algorithm is the JWS algorithm tag a key signs with.
type Algorithm string

const (
	// AlgEdDSA signs with Ed25519 keys. Default.
	AlgEdDSA Algorithm = "EdDSA"
	// AlgRS256 signs with RSA PKCS#1 v1.5 + SHA-256.
	AlgRS256 Algorithm = "RS256"
)

// UseSignature is the only intended-use tag issued by this package.
const UseSignature = "sig"

// ActiveKey is the key currently designated for new signatures.
type ActiveKey struct {
	KID        string
	Algorithm  Algorithm
	PrivateKey crypto.Signer
	PublicKey  crypto.PublicKey
}

// PublicKey is one member of the verification key set.
type PublicKey struct {
	KID       string
	Algorithm Algorithm
	Use       string
	Key       crypto.PublicKey
	CreatedAt time.Time
}

// KeyInfo is the administrative, material-free view of a key.
type KeyInfo struct {
	KID           string     `json:"kid"`
	Algorithm     Algorithm  `json:"alg"`
	Use           string     `json:"use"`
	CreatedAt     time.Time  `json:"created_at"`
	Active        bool       `json:"active"`
	Revoked       bool       `json:"revoked"`
	HasPrivateKey bool       `json:"has_private_key"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
}
