package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// KeyPair represents an RSA key pair for signing tokens
type KeyPair struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
}

// KeySet holds the two signing key pairs. Access and refresh tokens are signed
// with different keys so neither kind verifies on the other's path.
// A KeySet is built once at startup and never mutated.
type KeySet struct {
	Access  *KeyPair
	Refresh *KeyPair
}

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// Validate checks that both pairs are present, complete and distinct.
func (ks KeySet) Validate() error {
	if ks.Access == nil || ks.Refresh == nil {
		return errors.New("[KeySet.Validate] access and refresh key pairs are required")
	}
	for name, kp := range map[string]*KeyPair{"access": ks.Access, "refresh": ks.Refresh} {
		if kp.PrivateKey == nil || kp.PublicKey == nil {
			return errors.Errorf("[KeySet.Validate] %s key pair is incomplete", name)
		}
	}
	if ks.Access.PublicKey.Equal(ks.Refresh.PublicKey) {
		return errors.New("[KeySet.Validate] access and refresh tokens must use different keys")
	}
	return nil
}

// GenerateRSAKeyPair generates a new RSA key pair for RS256 signing
func GenerateRSAKeyPair(keyID string, bits int) (*KeyPair, error) {
	if bits < 2048 {
		bits = 2048
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate RSA key")
	}

	return &KeyPair{
		KeyID:      keyID,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// LoadKeyPairFromFiles reads a PEM private key and, when publicPath is not
// empty, its PEM public key. The public key must belong to the private key.
func LoadKeyPairFromFiles(keyID, privatePath, publicPath string) (*KeyPair, error) {
	privatePEM, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, errors.Wrapf(err, "[LoadKeyPairFromFiles] read private key %s", privatePath)
	}
	privateKey, err := ParseRSAPrivateKeyPEM(privatePEM)
	if err != nil {
		return nil, errors.Wrapf(err, "[LoadKeyPairFromFiles] %s", privatePath)
	}

	kp := &KeyPair{KeyID: keyID, PrivateKey: privateKey, PublicKey: &privateKey.PublicKey}
	if publicPath == "" {
		return kp, nil
	}

	publicPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, errors.Wrapf(err, "[LoadKeyPairFromFiles] read public key %s", publicPath)
	}
	publicKey, err := ParseRSAPublicKeyPEM(publicPEM)
	if err != nil {
		return nil, errors.Wrapf(err, "[LoadKeyPairFromFiles] %s", publicPath)
	}
	if !publicKey.Equal(&privateKey.PublicKey) {
		return nil, errors.Errorf("[LoadKeyPairFromFiles] %s does not match %s", publicPath, privatePath)
	}
	kp.PublicKey = publicKey
	return kp, nil
}

// ParseRSAPrivateKeyPEM accepts PKCS#1 and PKCS#8 encoded RSA private keys
func ParseRSAPrivateKeyPEM(pemData []byte) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemData)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse RSA private key")
	}
	return key, nil
}

// ParseRSAPublicKeyPEM accepts PKIX and PKCS#1 encoded RSA public keys
func ParseRSAPublicKeyPEM(pemData []byte) (*rsa.PublicKey, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(pemData)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse RSA public key")
	}
	return key, nil
}

// ExportPublicKeyPEM exports the public key as PEM
func (kp *KeyPair) ExportPublicKeyPEM() ([]byte, error) {
	pubKeyBytes, err := x509.MarshalPKIXPublicKey(kp.PublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal public key")
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubKeyBytes,
	}), nil
}

// ExportPrivateKeyPEM exports the private key as PKCS#1 PEM
func (kp *KeyPair) ExportPrivateKeyPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(kp.PrivateKey),
	})
}

// ToJWK converts the key pair's public key to JWK format
func (kp *KeyPair) ToJWK() JWK {
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: kp.KeyID,
		Alg: jwt.SigningMethodRS256.Alg(),
		N:   base64.RawURLEncoding.EncodeToString(kp.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(kp.PublicKey.E)).Bytes()),
	}
}
