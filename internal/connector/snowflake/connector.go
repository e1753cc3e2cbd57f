package snowflake

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	gosnowflake "github.com/snowflakedb/gosnowflake"

	"github.com/talentsphere/securecore/internal/connector"
	"github.com/talentsphere/securecore/internal/query"
)

// SnowflakeConnector implements connector.Connector for Snowflake.
type SnowflakeConnector struct {
	connector.Handle
}

// New creates an unconnected SnowflakeConnector.
func New() connector.Connector {
	return &SnowflakeConnector{}
}

// Connect opens the pool. When PrivateKeyPath is set, key-pair (JWT)
// authentication replaces the password in the DSN. The key must be
// PEM-encoded PKCS#1 or PKCS#8.
func (c *SnowflakeConnector) Connect(cfg connector.Config) error {
	dsn := cfg.DSN
	if cfg.PrivateKeyPath != "" {
		var err error
		dsn, err = buildJWTDSN(cfg.DSN, cfg.PrivateKeyPath)
		if err != nil {
			return fmt.Errorf("snowflake jwt auth: %w", err)
		}
	}

	if err := c.Open("snowflake", dsn, cfg); err != nil {
		return fmt.Errorf("snowflake connect: %w", err)
	}
	return nil
}

// DriverName returns the driver identifier for Snowflake.
func (c *SnowflakeConnector) DriverName() string { return "snowflake" }

// Placeholder returns the positional ? marker style.
func (c *SnowflakeConnector) Placeholder() query.Placeholder { return query.Question }

func (c *SnowflakeConnector) Paging() query.Paging { return query.LimitOffset }

// QuoteIdentifier wraps a SQL identifier in double quotes. Quoted Snowflake
// identifiers are case-sensitive.
func (c *SnowflakeConnector) QuoteIdentifier(name string) string {
	return connector.QuoteDouble(name)
}

// SupportsReturning indicates that Snowflake does NOT support RETURNING clauses.
func (c *SnowflakeConnector) SupportsReturning() bool { return false }

// buildJWTDSN rewrites dsn to authenticate with the private key at keyPath.
func buildJWTDSN(dsn, keyPath string) (string, error) {
	// ParseDSN insists on a password even for JWT auth; inject a dummy one
	// for the user@account form.
	sfConfig, err := gosnowflake.ParseDSN(dsn)
	if err != nil && strings.Contains(err.Error(), "password is empty") {
		if idx := strings.Index(dsn, "@"); idx > 0 && !strings.Contains(dsn[:idx], ":") {
			dsn = dsn[:idx] + ":_" + dsn[idx:]
		}
		sfConfig, err = gosnowflake.ParseDSN(dsn)
	}
	if err != nil {
		return "", fmt.Errorf("parse DSN: %w", err)
	}
	sfConfig.Password = ""

	privKey, err := loadPrivateKey(keyPath)
	if err != nil {
		return "", err
	}

	sfConfig.Authenticator = gosnowflake.AuthTypeJwt
	sfConfig.PrivateKey = privKey

	newDSN, err := gosnowflake.DSN(sfConfig)
	if err != nil {
		return "", fmt.Errorf("rebuild DSN: %w", err)
	}
	return newDSN, nil
}

// loadPrivateKey reads an RSA key from a PKCS#1 or PKCS#8 PEM file.
func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key file %q: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %q", path)
	}

	var key any
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA (got %T)", key)
	}
	return rsaKey, nil
}
