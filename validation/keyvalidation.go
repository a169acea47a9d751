package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudx-io/dutchauction/enclaveapi"
)

// ValidateKeyAttestation validates an enclave input-key attestation: PCRs,
// certificate chain, COSE signature, and that the attested PEM matches the
// key the enclave published. Bidders run this before sealing amounts.
func ValidateKeyAttestation(attestationCOSEBase64 enclaveapi.AttestationCOSEBase64, expectedPublicKey string) (*KeyValidationResult, error) {
	baseResult, err := validateCommonAttestation(attestationCOSEBase64)
	if err != nil {
		return nil, err
	}

	keyAttestation, err := ParseKeyAttestation(attestationCOSEBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key attestation: %w", err)
	}

	result := &KeyValidationResult{
		BaseValidationResult: *baseResult,
	}

	if keyAttestation.UserData == nil || keyAttestation.UserData.PublicKey == "" {
		result.PublicKeyMatch = false
		result.ValidationDetails = append(result.ValidationDetails, "Public key missing from attestation")
		return result, nil
	}

	// Trim whitespace on both sides; PEM encoders differ on trailing newlines.
	provided := strings.TrimSpace(expectedPublicKey)
	attested := strings.TrimSpace(keyAttestation.UserData.PublicKey)

	if provided == attested {
		result.PublicKeyMatch = true
		result.ValidationDetails = append(result.ValidationDetails, "Public key matches attestation")
	} else {
		result.PublicKeyMatch = false
		result.ValidationDetails = append(result.ValidationDetails, "Public key mismatch: provided key does not match attested key")
	}

	return result, nil
}

// ParseKeyAttestation decodes a KeyAttestationDoc from base64 COSE bytes.
func ParseKeyAttestation(attestationCOSEB64 enclaveapi.AttestationCOSEBase64) (*enclaveapi.KeyAttestationDoc, error) {
	coseBytes, err := attestationCOSEB64.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode COSE bytes: %w", err)
	}

	attestationDoc, userDataBytes, err := coseBytes.ParseAttestationDoc()
	if err != nil {
		return nil, fmt.Errorf("parse attestation document: %w", err)
	}

	var keyUserData enclaveapi.KeyAttestationUserData
	if len(userDataBytes) > 0 {
		if err := json.Unmarshal(userDataBytes, &keyUserData); err != nil {
			return nil, fmt.Errorf("parse user data: %w", err)
		}
	}

	return &enclaveapi.KeyAttestationDoc{
		AttestationDoc: attestationDoc,
		UserData:       &keyUserData,
	}, nil
}
