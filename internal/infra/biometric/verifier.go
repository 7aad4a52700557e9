package biometric

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"github.com/arclightapps/identity-gateway/internal/core/port"
)

// ECDSAVerifier checks device signatures against the public key captured at
// enrollment. Devices sign the SHA-256 digest of the issued nonce with a P-256
// key and submit the ASN.1 DER signature base64-encoded.
type ECDSAVerifier struct{}

// NewECDSAVerifier constructs the verifier.
func NewECDSAVerifier() *ECDSAVerifier {
	return &ECDSAVerifier{}
}

// VerifySignature validates the signature over the nonce. Any parse or
// verification failure is returned as an error so callers treat it as an
// authentication failure rather than distinguishing causes.
func (v *ECDSAVerifier) VerifySignature(publicKeyPEM, nonce, signature string) error {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return fmt.Errorf("decode public key pem: no block found")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}

	key, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("unsupported public key type %T", parsed)
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	digest := sha256.Sum256([]byte(nonce))
	if !ecdsa.VerifyASN1(key, digest[:], sig) {
		return fmt.Errorf("signature does not match nonce")
	}

	return nil
}

var _ port.BiometricVerifier = (*ECDSAVerifier)(nil)
