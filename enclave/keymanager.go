package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/cloudx-io/dutchauction/encint"
	"github.com/cloudx-io/dutchauction/enclaveapi"
)

// KeyManager publishes the engine's input public key. Bidders seal their
// encrypted amounts against this key; the private half never leaves the
// engine.
type KeyManager struct {
	eng *encint.Engine
}

func NewKeyManager(eng *encint.Engine) *KeyManager {
	return &KeyManager{eng: eng}
}

func (km *KeyManager) PublicKey() *rsa.PublicKey {
	return km.eng.InputPublicKey()
}

// PublicKeyPEM returns the input public key in PEM format.
func (km *KeyManager) PublicKeyPEM() (string, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(km.PublicKey())
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	pemBlock := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: derBytes,
	}
	return string(pem.EncodeToMemory(pemBlock)), nil
}

// HandleKeyRequest answers a key_request with the input public key and an
// NSM attestation binding that key to the enclave image.
func HandleKeyRequest(attester EnclaveAttester, keyManager *KeyManager) (*enclaveapi.KeyResponse, error) {
	publicKeyPEM, err := keyManager.PublicKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("failed to export public key: %w", err)
	}

	attestationCOSE, err := GenerateKeyAttestation(attester, keyManager.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("failed to generate key attestation: %w", err)
	}

	return &enclaveapi.KeyResponse{
		Type:                  "key_response",
		PublicKey:             publicKeyPEM,
		AttestationCOSEBase64: attestationCOSE.Encode(),
	}, nil
}
