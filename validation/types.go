// Package validation implements the relying-party checks for enclave output:
// Nitro attestation validation for the published input key, and COSE
// signature verification for oracle reveal results.
package validation

// BaseValidationResult contains common validation results for all attestation types
type BaseValidationResult struct {
	PCRsValid         bool
	CertificateValid  bool
	SignatureValid    bool
	ValidationDetails []string
}

// KeyValidationResult contains validation results specific to input-key attestations
type KeyValidationResult struct {
	BaseValidationResult
	PublicKeyMatch bool
}

// IsValid returns true if all key validation checks passed
func (r *KeyValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid && r.PublicKeyMatch
}

// RevealValidationResult contains the outcome of verifying one oracle reveal
// result.
type RevealValidationResult struct {
	SignatureValid    bool
	RequestIDMatch    bool
	Plaintexts        []uint64
	ValidationDetails []string
}

// IsValid returns true if the reveal result is signed by the oracle and
// matches the expected request id.
func (r *RevealValidationResult) IsValid() bool {
	return r.SignatureValid && r.RequestIDMatch
}

// PCRSet represents a known-good set of PCR measurements
type PCRSet struct {
	PCR0       string `json:"pcr0"`
	PCR1       string `json:"pcr1"`
	PCR2       string `json:"pcr2"`
	CommitHash string `json:"commit_hash"` // repo commit used to build the enclave image
}

// PCRConfig represents the PCR configuration file structure
type PCRConfig struct {
	PCRSets []PCRSet `json:"pcr_sets"`
}
