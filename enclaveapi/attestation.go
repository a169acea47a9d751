package enclaveapi

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// AttestationCOSE is a raw COSE_Sign1 attestation document from the NSM.
type AttestationCOSE []byte

// AttestationCOSEBase64 is the base64 transport form of AttestationCOSE.
type AttestationCOSEBase64 string

// Decode converts the base64 transport form back into raw COSE bytes.
func (a AttestationCOSEBase64) Decode() (AttestationCOSE, error) {
	if a == "" {
		return nil, fmt.Errorf("empty attestation")
	}
	raw, err := base64.StdEncoding.DecodeString(string(a))
	if err != nil {
		return nil, fmt.Errorf("decode attestation base64: %w", err)
	}
	return AttestationCOSE(raw), nil
}

// Encode converts raw COSE bytes into the base64 transport form.
func (a AttestationCOSE) Encode() AttestationCOSEBase64 {
	return AttestationCOSEBase64(base64.StdEncoding.EncodeToString(a))
}

// PCRs holds the Platform Configuration Register measurements from an AWS
// Nitro attestation, hex-encoded.
type PCRs struct {
	// PCR0: hash of the enclave image file
	ImageFileHash string `json:"0"`
	// PCR1: hash of the kernel and initramfs
	KernelHash string `json:"1"`
	// PCR2: hash of the user application
	ApplicationHash string `json:"2"`
	// PCR3: hash of the parent instance's IAM role
	IAMRoleHash string `json:"3"`
	// PCR4: hash of the parent instance id
	InstanceIDHash string `json:"4"`
	// PCR8: hash of the image signing certificate
	SigningCertHash string `json:"8,omitempty"`
}

// AttestationDoc is the parsed, transport-friendly view of a Nitro
// attestation document.
type AttestationDoc struct {
	ModuleID        string    `json:"module_id"`
	Timestamp       time.Time `json:"timestamp"`
	DigestAlgorithm string    `json:"digest"`
	PCRs            PCRs      `json:"pcrs"`
	Certificate     string    `json:"certificate"` // base64 DER
	CABundle        []string  `json:"cabundle"`    // base64 DER chain
	PublicKey       string    `json:"public_key"`
	Nonce           string    `json:"nonce"`
}

// KeyAttestationUserData is the enclave-produced payload embedded in an
// input-key attestation: the key algorithm and the PEM key itself, so the
// attestation binds the published key to the measured enclave image.
type KeyAttestationUserData struct {
	KeyAlgorithm string `json:"key_algorithm"` // e.g. "RSA-2048"
	PublicKey    string `json:"public_key"`    // PEM
}

// KeyAttestationDoc pairs the attestation document with its key user data.
type KeyAttestationDoc struct {
	AttestationDoc
	UserData *KeyAttestationUserData `json:"user_data"`
}

// nitroAttestationDocument is the raw CBOR interior of a Nitro attestation.
type nitroAttestationDocument struct {
	ModuleID    string            `cbor:"module_id"`
	Digest      string            `cbor:"digest"`
	Timestamp   uint64            `cbor:"timestamp"`
	PCRs        map[uint64][]byte `cbor:"pcrs"`
	Certificate []byte            `cbor:"certificate"`
	CABundle    [][]byte          `cbor:"cabundle"`
	PublicKey   []byte            `cbor:"public_key"`
	UserData    []byte            `cbor:"user_data"`
	Nonce       []byte            `cbor:"nonce"`
}

// ExtractPayload returns the payload element of the COSE_Sign1 4-element
// array [protected, unprotected, payload, signature]. Nitro emits the array
// untagged.
func (a AttestationCOSE) ExtractPayload() ([]byte, error) {
	var coseArray []any
	if err := cbor.Unmarshal(a, &coseArray); err != nil {
		return nil, fmt.Errorf("parse COSE array: %w", err)
	}
	if len(coseArray) != 4 {
		return nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}
	payload, ok := coseArray[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid payload in COSE structure")
	}
	return payload, nil
}

// ParseAttestationDoc extracts and decodes the attestation document from the
// COSE envelope. Returns the structured document plus the raw user data
// bytes for type-specific decoding.
func (a AttestationCOSE) ParseAttestationDoc() (AttestationDoc, []byte, error) {
	payload, err := a.ExtractPayload()
	if err != nil {
		return AttestationDoc{}, nil, err
	}

	var raw nitroAttestationDocument
	if err := cbor.Unmarshal(payload, &raw); err != nil {
		return AttestationDoc{}, nil, fmt.Errorf("parse attestation document: %w", err)
	}

	doc := AttestationDoc{
		ModuleID:        raw.ModuleID,
		Timestamp:       time.UnixMilli(int64(raw.Timestamp)),
		DigestAlgorithm: raw.Digest,
		PCRs: PCRs{
			ImageFileHash:   formatPCR(raw.PCRs[0]),
			KernelHash:      formatPCR(raw.PCRs[1]),
			ApplicationHash: formatPCR(raw.PCRs[2]),
			IAMRoleHash:     formatPCR(raw.PCRs[3]),
			InstanceIDHash:  formatPCR(raw.PCRs[4]),
			SigningCertHash: formatPCR(raw.PCRs[8]),
		},
		Certificate: base64.StdEncoding.EncodeToString(raw.Certificate),
		CABundle:    encodeCertBundle(raw.CABundle),
		PublicKey:   base64.StdEncoding.EncodeToString(raw.PublicKey),
		Nonce:       base64.StdEncoding.EncodeToString(raw.Nonce),
	}
	return doc, raw.UserData, nil
}

func formatPCR(pcr []byte) string {
	if len(pcr) == 0 {
		return ""
	}
	return fmt.Sprintf("%x", pcr)
}

func encodeCertBundle(bundle [][]byte) []string {
	out := make([]string, len(bundle))
	for i, cert := range bundle {
		out[i] = base64.StdEncoding.EncodeToString(cert)
	}
	return out
}
