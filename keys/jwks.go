package keys

import (
	"encoding/json"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// EncodeJWKS renders public keys as a JSON Web Key Set. Every entry carries
// kid, alg and use alongside the key-type parameters.
func EncodeJWKS(keys []PublicKey) ([]byte, error) {
	set := jwk.NewSet()
	for _, k := range keys {
		key, err := jwk.Import(k.Key)
		if err != nil {
			return nil, fmt.Errorf("jwks: import %s: %w", k.KID, err)
		}
		if err := key.Set(jwk.KeyIDKey, k.KID); err != nil {
			return nil, fmt.Errorf("jwks: kid: %w", err)
		}
		if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
			return nil, fmt.Errorf("jwks: use: %w", err)
		}
		alg, err := signatureAlgorithm(k.Algorithm)
		if err != nil {
			return nil, err
		}
		if err := key.Set(jwk.AlgorithmKey, alg); err != nil {
			return nil, fmt.Errorf("jwks: alg: %w", err)
		}
		if err := set.AddKey(key); err != nil {
			return nil, fmt.Errorf("jwks: add %s: %w", k.KID, err)
		}
	}
	return json.Marshal(set)
}

func signatureAlgorithm(alg Algorithm) (jwa.SignatureAlgorithm, error) {
	switch alg {
	case AlgEdDSA:
		return jwa.EdDSA(), nil
	case AlgRS256:
		return jwa.RS256(), nil
	default:
		return jwa.SignatureAlgorithm{}, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
}
