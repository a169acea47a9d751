package validation

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"github.com/google/uuid"

	"github.com/cloudx-io/dutchauction/oracle"
)

// ValidateRevealResult verifies a COSE-signed reveal result against the
// oracle's published public key and checks that it answers the expected
// request. The result is base64-encoded COSE_Sign1 bytes as emitted by the
// oracle; the key is a PEM-encoded ECDSA P-384 public key.
func ValidateRevealResult(signedResultBase64 string, oraclePublicKeyPEM string, expectedRequestID string) (*RevealValidationResult, error) {
	signed, err := base64.StdEncoding.DecodeString(signedResultBase64)
	if err != nil {
		return nil, fmt.Errorf("decode result base64: %w", err)
	}

	key, err := ParseOraclePublicKey(oraclePublicKeyPEM)
	if err != nil {
		return nil, err
	}

	result := &RevealValidationResult{}

	reveal, err := oracle.VerifyResult(signed, key)
	if err != nil {
		result.SignatureValid = false
		result.ValidationDetails = append(result.ValidationDetails,
			fmt.Sprintf("Signature verification failed: %v", err))
		return result, nil
	}
	result.SignatureValid = true
	result.ValidationDetails = append(result.ValidationDetails, "Signature valid")
	result.Plaintexts = reveal.Plaintexts

	expected, err := uuid.Parse(expectedRequestID)
	if err != nil {
		return nil, fmt.Errorf("parse expected request id: %w", err)
	}
	if reveal.RequestID == expected {
		result.RequestIDMatch = true
		result.ValidationDetails = append(result.ValidationDetails, "Request id matches")
	} else {
		result.RequestIDMatch = false
		result.ValidationDetails = append(result.ValidationDetails,
			fmt.Sprintf("Request id mismatch: result answers %s", reveal.RequestID))
	}

	return result, nil
}

// ParseOraclePublicKey decodes a PEM-encoded ECDSA public key.
func ParseOraclePublicKey(pemStr string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("no PEM block in oracle key")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse oracle key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("oracle key is not ECDSA")
	}
	return key, nil
}
