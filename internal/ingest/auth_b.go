package ingest

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strconv"
)

// venueBSigner computes the RSA-PSS authorization headers Exchange B
// requires on every connection attempt (spec §6). No dependency in the
// example corpus wraps PSS signing; this is the one primitive built
// directly on crypto/rsa, crypto/x509, and encoding/pem rather than a
// pack library (see SPEC_FULL.md §11).
type venueBSigner struct {
	apiKey string
	key    *rsa.PrivateKey
}

// newVenueBSigner parses the base64-encoded PEM private key supplied via
// configuration. Returns an error if the key is missing, malformed, or not
// an RSA key, since a session with no usable signer cannot authenticate.
func newVenueBSigner(apiKey, privateKeyBase64 string) (*venueBSigner, error) {
	der, err := base64.StdEncoding.DecodeString(privateKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("decode private key base64: %w", err)
	}
	block, _ := pem.Decode(der)
	if block == nil {
		return nil, fmt.Errorf("private key is not valid PEM")
	}

	key, err := parseRSAPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse RSA private key: %w", err)
	}

	return &venueBSigner{apiKey: apiKey, key: key}, nil
}

func parseRSAPrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("PKCS8 key is not RSA")
	}
	return key, nil
}

// sign returns the base64 signature for a new connection attempt: RSA-PSS
// over SHA-256 (MGF1-SHA256, salt length 32) of timestampMs || "GET" ||
// path. The caller supplies timestampMs and sends it in its own header.
func (s *venueBSigner) sign(timestampMs int64, path string) (sigBase64 string, err error) {
	msg := strconv.FormatInt(timestampMs, 10) + "GET" + path
	digest := sha256.Sum256([]byte(msg))

	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", fmt.Errorf("sign PSS: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
