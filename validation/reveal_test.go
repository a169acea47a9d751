package validation

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/dutchauction/core"
	"github.com/cloudx-io/dutchauction/encint"
	"github.com/cloudx-io/dutchauction/oracle"
)

const (
	holder     = core.Address("handle-holder")
	oracleAddr = core.Address("reveal-oracle")
)

// signedReveal runs a real reveal through the oracle and returns the request
// id, the base64 signed result, and the oracle's public key in PEM form.
func signedReveal(t *testing.T, plaintext uint64) (uuid.UUID, string, string) {
	t.Helper()

	eng, err := encint.NewEngine()
	assert.Nil(t, err)
	orc, err := oracle.New(eng, oracleAddr)
	assert.Nil(t, err)

	s := eng.Scope(holder)
	v, err := s.Encrypt(plaintext)
	assert.Nil(t, err)
	assert.Nil(t, s.Allow(v, oracleAddr))

	var captured []byte
	id, err := orc.RequestDecryption([]encint.Value{v}, 100, func(signed []byte) error {
		captured = signed
		return nil
	})
	assert.Nil(t, err)

	delivered, err := orc.Fulfill(10)
	assert.Nil(t, err)
	assert.Equal(t, 1, delivered)
	assert.True(t, captured != nil)

	return id, base64.StdEncoding.EncodeToString(captured), marshalECDSAKey(t, orc.PublicKey())
}

func marshalECDSAKey(t *testing.T, key *ecdsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(key)
	assert.Nil(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestValidateRevealResult(t *testing.T) {
	id, signedB64, keyPEM := signedReveal(t, 450)

	result, err := ValidateRevealResult(signedB64, keyPEM, id.String())
	assert.Nil(t, err)
	check.True(t, result.SignatureValid)
	check.True(t, result.RequestIDMatch)
	check.Equal(t, []uint64{450}, result.Plaintexts)
	check.True(t, result.IsValid())
}

func TestValidateRevealResultWrongRequestID(t *testing.T) {
	_, signedB64, keyPEM := signedReveal(t, 450)

	result, err := ValidateRevealResult(signedB64, keyPEM, uuid.New().String())
	assert.Nil(t, err)
	check.True(t, result.SignatureValid)
	check.False(t, result.RequestIDMatch)
	check.False(t, result.IsValid())
}

func TestValidateRevealResultWrongKey(t *testing.T) {
	id, signedB64, _ := signedReveal(t, 450)

	otherKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.Nil(t, err)

	result, err := ValidateRevealResult(signedB64, marshalECDSAKey(t, &otherKey.PublicKey), id.String())
	assert.Nil(t, err)
	check.False(t, result.SignatureValid)
	check.False(t, result.IsValid())
}

func TestValidateRevealResultBadInput(t *testing.T) {
	id, signedB64, keyPEM := signedReveal(t, 450)

	_, err := ValidateRevealResult("not-base64!", keyPEM, id.String())
	check.Error(t, err)

	_, err = ValidateRevealResult(signedB64, "not a pem key", id.String())
	check.Error(t, err)

	_, err = ValidateRevealResult(signedB64, keyPEM, "not-a-uuid")
	check.Error(t, err)
}
