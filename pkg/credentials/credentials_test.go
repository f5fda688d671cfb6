package credentials

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/pushwire/internal/testgateway"
)

func keyPair(t *testing.T, cn string) testgateway.KeyPair {
	t.Helper()
	kp, err := testgateway.NewKeyPair(cn)
	require.NoError(t, err)
	return kp
}

func TestFromPEM(t *testing.T) {
	kp := keyPair(t, "pem-client")
	p, err := FromPEM(kp.CertPEM, kp.KeyPEM)
	require.NoError(t, err)

	cert, err := p.Certificate()
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)
	assert.Equal(t, "pem-client", cert.Leaf.Subject.CommonName)

	_, err = FromPEM([]byte("nope"), kp.KeyPEM)
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestFromPEMFiles(t *testing.T) {
	kp := keyPair(t, "files")
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certPath, kp.CertPEM, 0o600))
	require.NoError(t, os.WriteFile(keyPath, kp.KeyPEM, 0o600))

	_, err := FromPEMFiles(certPath, keyPath)
	require.NoError(t, err)

	_, err = FromPEMFiles(filepath.Join(dir, "missing.pem"), keyPath)
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestFromPKCS12Invalid(t *testing.T) {
	_, err := FromPKCS12([]byte("not a keystore"), "secret")
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = FromPKCS12File(filepath.Join(t.TempDir(), "missing.p12"), "secret")
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestFileReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.pem")

	first := keyPair(t, "first")
	require.NoError(t, os.WriteFile(path, append(first.CertPEM, first.KeyPEM...), 0o600))

	f, err := NewFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, path, f.Path())
	loaded := f.LoadedAt()

	cert, err := f.Certificate()
	require.NoError(t, err)
	assert.Equal(t, "first", cert.Leaf.Subject.CommonName)

	second := keyPair(t, "second")
	require.NoError(t, os.WriteFile(path, append(second.CertPEM, second.KeyPEM...), 0o600))
	time.Sleep(time.Millisecond)
	require.NoError(t, f.Reload())
	assert.True(t, f.LoadedAt().After(loaded))

	cert, err = f.Certificate()
	require.NoError(t, err)
	assert.Equal(t, "second", cert.Leaf.Subject.CommonName)

	// A broken file keeps the previous certificate.
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))
	assert.ErrorIs(t, f.Reload(), ErrInvalidReference)
	cert, err = f.Certificate()
	require.NoError(t, err)
	assert.Equal(t, "second", cert.Leaf.Subject.CommonName)
}

func TestExpiry(t *testing.T) {
	kp := keyPair(t, "expiry")
	exp, err := Expiry(FromCertificate(kp.Cert))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 2*time.Minute)
}
