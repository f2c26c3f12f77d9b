// Package testutil provides fixtures shared by package tests: seeded person databases and
// self-signed TLS key pairs.
package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"database/sql"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/personlookup/internal/store"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// MariaSilva is the single-row fixture used across the lookup tests.
var MariaSilva = store.PersonRecord{
	Identifier: "11122233344",
	FullName:   "Maria Silva",
	Sex:        "F",
	BirthDate:  "1990-01-01",
}

// SeedPersonDB writes a person database containing records into a temp dir and returns its path.
func SeedPersonDB(t *testing.T, records ...store.PersonRecord) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cpf.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE cpf (cpf TEXT, nome TEXT, sexo TEXT, nasc TEXT)`)
	require.NoError(t, err)

	for _, r := range records {
		_, err = db.Exec(`INSERT INTO cpf (cpf, nome, sexo, nasc) VALUES (?, ?, ?, ?)`,
			r.Identifier, r.FullName, r.Sex, r.BirthDate)
		require.NoError(t, err)
	}

	return path
}

// EmptyDB creates a database file with no tables, so every lookup statement fails to prepare.
func EmptyDB(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "empty.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	// force the file to be created
	_, err = db.Exec(`PRAGMA user_version = 1`)
	require.NoError(t, err)

	return path
}

// WriteKeyPair writes a self-signed certificate for 127.0.0.1 and its key as PEM files into dir
// and returns their paths.
func WriteKeyPair(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(12345),
		Subject: pkix.Name{
			CommonName: "personlookup-test",
		},
		NotBefore:   time.Now().Add(-time.Hour),
		NotAfter:    time.Now().Add(24 * time.Hour),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses: []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")

	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))

	return certFile, keyFile
}
