// Package credentials supplies the client certificate presented to the
// gateway during the TLS handshake.
//
// A Provider may hold an already loaded certificate, parse PEM or PKCS#12
// bytes, or read a file that can be reloaded when it is rotated on disk.
package credentials

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/pkcs12"
)

var (
	// ErrInvalidReference is returned when credential material cannot be
	// read or parsed.
	ErrInvalidReference = errors.New("invalid credential reference")

	// ErrInvalidPassword is returned when a PKCS#12 password is wrong.
	ErrInvalidPassword = errors.New("invalid keystore password")
)

// Provider yields a connection-ready client certificate.
type Provider interface {
	Certificate() (tls.Certificate, error)
}

// Static is a Provider holding an already loaded certificate.
type Static struct {
	cert tls.Certificate
}

// FromCertificate wraps a loaded certificate.
func FromCertificate(cert tls.Certificate) *Static {
	return &Static{cert: cert}
}

func (s *Static) Certificate() (tls.Certificate, error) {
	return s.cert, nil
}

// FromPEM parses a PEM encoded certificate and private key.
func FromPEM(certPEM, keyPEM []byte) (*Static, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	return FromCertificate(withLeaf(cert)), nil
}

// FromPEMFiles loads a PEM certificate and key from disk.
func FromPEMFiles(certFile, keyFile string) (*Static, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	return FromCertificate(withLeaf(cert)), nil
}

// FromPKCS12 decodes a PKCS#12 keystore.
func FromPKCS12(data []byte, password string) (*Static, error) {
	cert, err := decodePKCS12(data, password)
	if err != nil {
		return nil, err
	}
	return FromCertificate(cert), nil
}

// FromPKCS12File reads and decodes a PKCS#12 keystore.
func FromPKCS12File(path, password string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	return FromPKCS12(data, password)
}

func decodePKCS12(data []byte, password string) (tls.Certificate, error) {
	key, leaf, err := pkcs12.Decode(data, password)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return tls.Certificate{}, ErrInvalidPassword
		}
		return tls.Certificate{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	return tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

func withLeaf(cert tls.Certificate) tls.Certificate {
	if cert.Leaf == nil && len(cert.Certificate) > 0 {
		if leaf, err := x509.ParseCertificate(cert.Certificate[0]); err == nil {
			cert.Leaf = leaf
		}
	}
	return cert
}

// File is a Provider backed by a keystore on disk. Files ending in .p12 or
// .pfx are decoded as PKCS#12; anything else must hold PEM certificate and
// key blocks. Reload re-reads the file.
type File struct {
	path     string
	password string

	mu       sync.RWMutex
	cert     tls.Certificate
	loadedAt time.Time
}

// NewFile loads the keystore at path.
func NewFile(path, password string) (*File, error) {
	f := &File{path: path, password: password}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the keystore path.
func (f *File) Path() string { return f.path }

// LoadedAt returns when the certificate was last loaded.
func (f *File) LoadedAt() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.loadedAt
}

func (f *File) Certificate() (tls.Certificate, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cert, nil
}

// Reload re-reads the keystore. On failure the previous certificate is kept.
func (f *File) Reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	var cert tls.Certificate
	switch strings.ToLower(filepath.Ext(f.path)) {
	case ".p12", ".pfx":
		cert, err = decodePKCS12(data, f.password)
	default:
		cert, err = tls.X509KeyPair(data, data)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidReference, err)
		}
		cert = withLeaf(cert)
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.cert = cert
	f.loadedAt = time.Now()
	f.mu.Unlock()
	return nil
}

// Expiry returns the NotAfter time of the provider's leaf certificate.
func Expiry(p Provider) (time.Time, error) {
	cert, err := p.Certificate()
	if err != nil {
		return time.Time{}, err
	}
	cert = withLeaf(cert)
	if cert.Leaf == nil {
		return time.Time{}, ErrInvalidReference
	}
	return cert.Leaf.NotAfter, nil
}
