package validation

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/dutchauction/enclaveapi"
)

const testKeyPEM = "-----BEGIN PUBLIC KEY-----\ntest-key-material\n-----END PUBLIC KEY-----"

// mockAttestation builds an unsigned COSE_Sign1 attestation document carrying
// the given PCR values and user data. Signature and certificate checks are
// expected to fail against it; PCR and payload checks exercise real parsing.
func mockAttestation(t *testing.T, pcr0, pcr1, pcr2 []byte, userData []byte) enclaveapi.AttestationCOSEBase64 {
	t.Helper()

	inner := map[string]any{
		"module_id": "test-enclave-12345",
		"digest":    "SHA384",
		"timestamp": uint64(1234567890000),
		"pcrs": map[uint64][]byte{
			0: pcr0,
			1: pcr1,
			2: pcr2,
			3: {0x3d},
			4: {0x4e},
		},
		"certificate": []byte("cert-der"),
		"cabundle":    [][]byte{[]byte("ca-der")},
		"public_key":  []byte("pub"),
		"user_data":   userData,
		"nonce":       []byte("nonce"),
	}
	innerBytes, err := cbor.Marshal(inner)
	assert.Nil(t, err)

	coseBytes, err := cbor.Marshal([]any{
		[]byte{0x01}, map[string]any{}, innerBytes, []byte{0x02},
	})
	assert.Nil(t, err)

	return enclaveapi.AttestationCOSE(coseBytes).Encode()
}

func knownPCRBytes(t *testing.T) (pcr0, pcr1, pcr2 []byte) {
	t.Helper()
	sets, err := LoadPCRsFromFile(DefaultPCRConfigPath())
	assert.Nil(t, err)
	assert.True(t, len(sets) > 0)

	pcr0, err = hex.DecodeString(sets[0].PCR0)
	assert.Nil(t, err)
	pcr1, err = hex.DecodeString(sets[0].PCR1)
	assert.Nil(t, err)
	pcr2, err = hex.DecodeString(sets[0].PCR2)
	assert.Nil(t, err)
	return pcr0, pcr1, pcr2
}

func keyUserData(t *testing.T, pem string) []byte {
	t.Helper()
	data, err := json.Marshal(enclaveapi.KeyAttestationUserData{
		KeyAlgorithm: "RSA-2048",
		PublicKey:    pem,
	})
	assert.Nil(t, err)
	return data
}

func TestLoadPCRsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcrs.json")
	config := PCRConfig{PCRSets: []PCRSet{
		{PCR0: "aa", PCR1: "bb", PCR2: "cc", CommitHash: "deadbeef"},
	}}
	data, err := json.Marshal(config)
	assert.Nil(t, err)
	assert.Nil(t, os.WriteFile(path, data, 0o600))

	sets, err := LoadPCRsFromFile(path)
	assert.Nil(t, err)
	assert.Equal(t, 1, len(sets))
	check.Equal(t, "aa", sets[0].PCR0)
	check.Equal(t, "deadbeef", sets[0].CommitHash)
}

func TestLoadPCRsFromFileRejectsEmptyAndMissing(t *testing.T) {
	empty := filepath.Join(t.TempDir(), "empty.json")
	assert.Nil(t, os.WriteFile(empty, []byte(`{"pcr_sets":[]}`), 0o600))
	_, err := LoadPCRsFromFile(empty)
	check.Error(t, err)

	_, err = LoadPCRsFromFile(filepath.Join(t.TempDir(), "nope.json"))
	check.Error(t, err)
}

func TestDefaultPCRConfigLoads(t *testing.T) {
	sets, err := LoadPCRsFromFile(DefaultPCRConfigPath())
	assert.Nil(t, err)
	check.True(t, len(sets) > 0)
}

func TestValidatePCRs(t *testing.T) {
	known := []PCRSet{
		{PCR0: "a0", PCR1: "a1", PCR2: "a2"},
		{PCR0: "b0", PCR1: "b1", PCR2: "b2"},
	}

	ok, idx := ValidatePCRs(enclaveapi.PCRs{ImageFileHash: "b0", KernelHash: "b1", ApplicationHash: "b2"}, known)
	check.True(t, ok)
	check.Equal(t, 1, idx)

	ok, idx = ValidatePCRs(enclaveapi.PCRs{ImageFileHash: "b0", KernelHash: "a1", ApplicationHash: "b2"}, known)
	check.False(t, ok)
	check.Equal(t, -1, idx)
}

func TestParseKeyAttestation(t *testing.T) {
	pcr0, pcr1, pcr2 := knownPCRBytes(t)
	att := mockAttestation(t, pcr0, pcr1, pcr2, keyUserData(t, testKeyPEM))

	doc, err := ParseKeyAttestation(att)
	assert.Nil(t, err)
	check.Equal(t, "test-enclave-12345", doc.ModuleID)
	assert.True(t, doc.UserData != nil)
	check.Equal(t, "RSA-2048", doc.UserData.KeyAlgorithm)
	check.Equal(t, testKeyPEM, doc.UserData.PublicKey)
}

func TestParseKeyAttestationRejectsGarbage(t *testing.T) {
	_, err := ParseKeyAttestation("not-base64!")
	check.Error(t, err)

	pcr0, pcr1, pcr2 := knownPCRBytes(t)
	_, err = ParseKeyAttestation(mockAttestation(t, pcr0, pcr1, pcr2, []byte("not json")))
	check.Error(t, err)
}

func TestValidateKeyAttestationMatchingKey(t *testing.T) {
	pcr0, pcr1, pcr2 := knownPCRBytes(t)
	att := mockAttestation(t, pcr0, pcr1, pcr2, keyUserData(t, testKeyPEM))

	result, err := ValidateKeyAttestation(att, testKeyPEM+"\n")
	assert.Nil(t, err)

	check.True(t, result.PCRsValid)
	check.True(t, result.PublicKeyMatch)
	// The document carries throwaway cert and signature bytes.
	check.False(t, result.CertificateValid)
	check.False(t, result.SignatureValid)
	check.False(t, result.IsValid())
}

func TestValidateKeyAttestationMismatchedKey(t *testing.T) {
	pcr0, pcr1, pcr2 := knownPCRBytes(t)
	att := mockAttestation(t, pcr0, pcr1, pcr2, keyUserData(t, testKeyPEM))

	result, err := ValidateKeyAttestation(att, "-----BEGIN PUBLIC KEY-----\nother\n-----END PUBLIC KEY-----")
	assert.Nil(t, err)
	check.False(t, result.PublicKeyMatch)
	check.False(t, result.IsValid())
}

func TestValidateKeyAttestationUnknownPCRs(t *testing.T) {
	att := mockAttestation(t, []byte{0xaa}, []byte{0xbb}, []byte{0xcc}, keyUserData(t, testKeyPEM))

	result, err := ValidateKeyAttestation(att, testKeyPEM)
	assert.Nil(t, err)
	check.False(t, result.PCRsValid)
	check.False(t, result.IsValid())
}

func TestValidateKeyAttestationMissingUserData(t *testing.T) {
	pcr0, pcr1, pcr2 := knownPCRBytes(t)
	att := mockAttestation(t, pcr0, pcr1, pcr2, nil)

	result, err := ValidateKeyAttestation(att, testKeyPEM)
	assert.Nil(t, err)
	check.False(t, result.PublicKeyMatch)
}
