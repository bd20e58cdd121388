package apns

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"os"
	"time"

	"golang.org/x/crypto/pkcs12"
)

// Identity is the opaque TLS client identity: a parsed certificate
// and private key, ready to present during the gateway's mutual-TLS
// handshake. The core never inspects key material itself — only
// crypto/tls during the handshake does.
type Identity struct {
	Certificate tls.Certificate
}

// TrustStore is the opaque trust-anchor collaborator. A nil Pool means
// "trust the host's root set".
type TrustStore struct {
	Pool *x509.CertPool
}

// SystemTrustStore returns a TrustStore backed by the host's root
// certificate pool.
func SystemTrustStore() TrustStore {
	return TrustStore{}
}

// TrustStoreFromPEM builds a TrustStore from one or more PEM-encoded
// CA certificates.
func TrustStoreFromPEM(pemBytes []byte) (TrustStore, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemBytes) {
		return TrustStore{}, newError("TrustStoreFromPEM", KindInvalidInput, nil)
	}
	return TrustStore{Pool: pool}, nil
}

// LoadIdentity parses a client identity from a PKCS#12 (.p12) bundle,
// the format Apple historically distributed push certificates in.
func LoadIdentity(filename, password string) (Identity, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Identity{}, newError("LoadIdentity", KindInvalidInput, err)
	}
	privateKey, x509Cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return Identity{}, newError("LoadIdentity", KindInvalidInput, err)
	}
	return Identity{Certificate: tls.Certificate{
		Certificate: [][]byte{x509Cert.Raw},
		PrivateKey:  privateKey,
		Leaf:        x509Cert,
	}}, nil
}

// LoadIdentityPEM parses a client identity from a PEM certificate and
// a PEM private key, either as separate files or concatenated in one.
func LoadIdentityPEM(certFile, keyFile string) (Identity, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return Identity{}, newError("LoadIdentityPEM", KindInvalidInput, err)
	}
	if cert.Leaf == nil {
		if leaf, err := x509.ParseCertificate(cert.Certificate[0]); err == nil {
			cert.Leaf = leaf
		}
	}
	return Identity{Certificate: cert}, nil
}

// CertificateInfo summarizes the attributes of a client identity
// certificate that matter for diagnosing a misconfigured push
// certificate: which bundle/topics it's scoped to, whether it's an
// Apple-issued push certificate, and when it expires.
type CertificateInfo struct {
	CommonName  string
	OrgName     string
	OrgUnit     string
	Country     string
	BundleID    string
	Topics      []string
	Development bool
	Production  bool
	IsAppleIssued bool
	Expires     time.Time
}

// Info parses and returns diagnostic information about an Identity's
// leaf certificate.
func Info(identity Identity) (*CertificateInfo, error) {
	cert := identity.Certificate.Leaf
	if cert == nil {
		var err error
		cert, err = x509.ParseCertificate(identity.Certificate.Certificate[0])
		if err != nil {
			return nil, newError("Info", KindInvalidInput, err)
		}
	}

	info := &CertificateInfo{
		CommonName:    cert.Subject.CommonName,
		Expires:       cert.NotAfter,
		IsAppleIssued: cert.Issuer.CommonName == appleDevIssuerCN,
	}
	for _, attr := range cert.Subject.Names {
		switch {
		case attr.Type.Equal(typeOrgName):
			if v, ok := attr.Value.(string); ok {
				info.OrgName = v
			}
		case attr.Type.Equal(typeOrgUnit):
			if v, ok := attr.Value.(string); ok {
				info.OrgUnit = v
			}
		case attr.Type.Equal(typeBundle):
			if v, ok := attr.Value.(string); ok {
				info.BundleID = v
			}
		case attr.Type.Equal(typeCountry):
			if v, ok := attr.Value.(string); ok {
				info.Country = v
			}
		}
	}
	for _, ext := range cert.Extensions {
		switch {
		case ext.Id.Equal(typeDevelopment):
			info.Development = true
		case ext.Id.Equal(typeProduction):
			info.Production = true
		case ext.Id.Equal(typeTopics):
			info.Topics = parseTopics(ext.Value)
		}
	}
	return info, nil
}

func parseTopics(value []byte) []string {
	var raw asn1.RawValue
	if _, err := asn1.Unmarshal(value, &raw); err != nil {
		return nil
	}
	var topics []string
	for rest := raw.Bytes; len(rest) > 0; {
		var topic string
		var err error
		if rest, err = asn1.Unmarshal(rest, &topic); err != nil {
			break
		}
		topics = append(topics, topic)
		var names []string
		if rest, err = asn1.Unmarshal(rest, &names); err != nil {
			break
		}
	}
	return topics
}

// SupportsTopic reports whether the certificate is scoped to the
// given topic (bundle ID or, for multi-topic certificates, one of its
// registered topics).
func (i CertificateInfo) SupportsTopic(topic string) bool {
	if len(i.Topics) == 0 {
		return topic == i.BundleID
	}
	for _, t := range i.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

func (i CertificateInfo) String() string { return i.CommonName }

const appleDevIssuerCN = "Apple Worldwide Developer Relations Certification Authority"

var (
	typeCountry     = asn1.ObjectIdentifier{2, 5, 4, 6}
	typeOrgName     = asn1.ObjectIdentifier{2, 5, 4, 10}
	typeOrgUnit     = asn1.ObjectIdentifier{2, 5, 4, 11}
	typeBundle      = asn1.ObjectIdentifier{0, 9, 2342, 19200300, 100, 1, 1}
	typeDevelopment = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 3, 1}
	typeProduction  = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 3, 2}
	typeTopics      = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 3, 6}
)

// CertificatePEM re-encodes an Identity's leaf certificate as PEM, so
// a certificate loaded from a PKCS#12 bundle can be re-exported in the
// format tools expecting LoadIdentityPEM's input want.
func CertificatePEM(identity Identity) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: identity.Certificate.Certificate[0]})
}
