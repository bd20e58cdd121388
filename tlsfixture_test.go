package apns

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	cryptorand "crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// testIdentity builds a throwaway self-signed certificate/key pair
// and returns both an Identity (for the client side) and a matching
// TrustStore (also usable directly as the server's tls.Config, since
// the fixture is its own CA). Stands in for the cooperating gateway a
// real integration test would dial, without needing network access or
// Apple's actual certificates.
func testIdentity(t *testing.T) (Identity, TrustStore) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), cryptorand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "gopush-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		IsCA:         true,
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(cryptorand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsing certificate: %v", err)
	}

	identity := Identity{Certificate: tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        cert,
	}}
	pool := x509.NewCertPool()
	pool.AddCert(cert)
	return identity, TrustStore{Pool: pool}
}

// testListener starts a TLS listener on loopback presenting identity,
// trusting trust for client certificates, and returns its address.
// handle runs once per accepted connection in its own goroutine; the
// listener is closed automatically at test cleanup.
func testListener(t *testing.T, identity Identity, trust TrustStore, handle func(net.Conn)) string {
	t.Helper()

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{identity.Certificate},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    trust.Pool,
	}
	ln, err := tls.Listen("tcp", "127.0.0.1:0", tlsConfig)
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handle(conn)
		}
	}()
	return ln.Addr().String()
}

func testLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}
