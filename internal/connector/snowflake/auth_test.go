package snowflake

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/talentsphere/securecore/internal/query"
)

func writeTempPEM(t *testing.T, blockType string, der []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "key.pem")
	buf := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, buf, 0600); err != nil {
		t.Fatalf("write temp PEM: %v", err)
	}
	return path
}

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	return key
}

func TestLoadPrivateKeyFormats(t *testing.T) {
	key := generateTestKey(t)
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		blockType string
		der       []byte
	}{
		{"pkcs1", "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key)},
		{"pkcs8", "PRIVATE KEY", pkcs8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loaded, err := loadPrivateKey(writeTempPEM(t, tt.blockType, tt.der))
			if err != nil {
				t.Fatalf("loadPrivateKey: %v", err)
			}
			if loaded.N.Cmp(key.N) != 0 {
				t.Error("loaded key modulus does not match original")
			}
		})
	}
}

func TestLoadPrivateKeyErrors(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.pem")
	if err := os.WriteFile(bad, []byte("not a pem file"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"missing file", "/nonexistent/path/key.pem", "read private key file"},
		{"not pem", bad, "no PEM block"},
		{"ec block", writeTempPEM(t, "EC PRIVATE KEY", []byte("fake")), "unsupported PEM block type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadPrivateKey(tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestBuildJWTDSN(t *testing.T) {
	der, _ := x509.MarshalPKCS8PrivateKey(generateTestKey(t))
	keyPath := writeTempPEM(t, "PRIVATE KEY", der)

	newDSN, err := buildJWTDSN("svcuser@acct/warehouse_db/PUBLIC?warehouse=WH", keyPath)
	if err != nil {
		t.Fatalf("buildJWTDSN: %v", err)
	}
	if !strings.Contains(strings.ToLower(newDSN), "authenticator=snowflake_jwt") {
		t.Errorf("DSN missing authenticator param: %s", newDSN)
	}
	if !strings.Contains(newDSN, "svcuser") {
		t.Errorf("DSN missing user: %s", newDSN)
	}

	if _, err := buildJWTDSN(":::invalid", keyPath); err == nil {
		t.Error("expected error for invalid DSN")
	}
	if _, err := buildJWTDSN("svcuser@acct/db/PUBLIC", "/nonexistent/key.pem"); err == nil {
		t.Error("expected error for missing key file")
	}
}

func TestDialect(t *testing.T) {
	c := New()
	if c.DriverName() != "snowflake" || c.SupportsReturning() {
		t.Error("unexpected snowflake metadata")
	}
	if got := c.Placeholder()(3); got != query.Question(3) {
		t.Errorf("placeholder = %q", got)
	}
	if got := c.QuoteIdentifier(`a"b`); got != `"a""b"` {
		t.Errorf("quote = %q", got)
	}
}
