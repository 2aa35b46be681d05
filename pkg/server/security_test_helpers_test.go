package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testCert struct {
	der []byte
	key *ecdsa.PrivateKey
}

// issueCert signs template with parent, or self-signs when parent is nil.
func issueCert(t *testing.T, template *x509.Certificate, parent *x509.Certificate, parentKey *ecdsa.PrivateKey) (testCert, *x509.Certificate) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key for %s: %v", template.Subject.CommonName, err)
	}
	now := time.Now()
	template.NotBefore = now.Add(-time.Hour)
	template.NotAfter = now.Add(24 * time.Hour)
	if parent == nil {
		parent, parentKey = template, key
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, &key.PublicKey, parentKey)
	if err != nil {
		t.Fatalf("create %s certificate: %v", template.Subject.CommonName, err)
	}
	return testCert{der: der, key: key}, template
}

// writeTestCertificates writes a CA plus a server and a client certificate
// signed by it, all PEM encoded in dir.
func writeTestCertificates(t *testing.T, dir string) (caPath, serverCertPath, serverKeyPath, clientCertPath, clientKeyPath string) {
	t.Helper()

	ca, caTemplate := issueCert(t, &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "storefront-test-ca"},
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
	}, nil, nil)
	srv, _ := issueCert(t, &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "localhost"},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}, caTemplate, ca.key)
	client, _ := issueCert(t, &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "storefront-probe"},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}, caTemplate, ca.key)

	caPath = writePEM(t, dir, "ca.crt", "CERTIFICATE", ca.der)
	serverCertPath = writePEM(t, dir, "server.crt", "CERTIFICATE", srv.der)
	serverKeyPath = writePEM(t, dir, "server.key", "EC PRIVATE KEY", marshalKey(t, srv.key))
	clientCertPath = writePEM(t, dir, "client.crt", "CERTIFICATE", client.der)
	clientKeyPath = writePEM(t, dir, "client.key", "EC PRIVATE KEY", marshalKey(t, client.key))
	return caPath, serverCertPath, serverKeyPath, clientCertPath, clientKeyPath
}

func marshalKey(t *testing.T, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return der
}

func writePEM(t *testing.T, dir, name, blockType string, der []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
