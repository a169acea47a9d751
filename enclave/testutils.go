package main

import (
	"fmt"
	"testing"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
)

// MockEnclaveHandle implements the Attest method for testing
type MockEnclaveHandle struct {
	AttestFunc func(options enclave.AttestationOptions) ([]byte, error)
}

func (m *MockEnclaveHandle) Attest(options enclave.AttestationOptions) ([]byte, error) {
	if m.AttestFunc != nil {
		return m.AttestFunc(options)
	}
	return nil, fmt.Errorf("mock not configured")
}

// CreateMockEnclave creates a mock attester producing structurally valid
// Nitro attestation documents with fixed measurements.
func CreateMockEnclave(t *testing.T) *MockEnclaveHandle {
	t.Helper()
	return &MockEnclaveHandle{
		AttestFunc: func(options enclave.AttestationOptions) ([]byte, error) {
			nestedDoc := map[string]any{
				"module_id": "test-enclave-12345",
				"digest":    "SHA384",
				"timestamp": uint64(1234567890000),
				"pcrs": map[uint64][]byte{
					0: {0x3b, 0x4c, 0xef},
					1: {0x4b, 0x4d, 0x5b},
					2: {0x2b, 0xdd, 0x28},
					3: {0x12, 0xa3, 0x33},
					4: {0xf8, 0x8f, 0x75},
				},
				"certificate": []byte("test-certificate-data"),
				"cabundle":    [][]byte{[]byte("test-ca-cert")},
				"public_key":  []byte("test-public-key-data"),
				"user_data":   options.UserData,
				"nonce":       options.Nonce,
			}

			nestedBytes, _ := cbor.Marshal(nestedDoc)

			// AWS Nitro untagged COSE_Sign1: [protected, unprotected, payload, signature]
			result := []any{
				[]byte{0x01, 0x02, 0x03},
				map[string]any{},
				nestedBytes,
				[]byte{0x04, 0x05, 0x06},
			}

			return cbor.Marshal(result)
		},
	}
}
