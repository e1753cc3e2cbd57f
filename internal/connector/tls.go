package connector

import (
	"net/url"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
)

// TLS modes understood by ApplyTLSMode.
const (
	TLSDisable    = "disable"
	TLSRequire    = "require"
	TLSVerifyCA   = "verify-ca"
	TLSVerifyFull = "verify-full"
)

// ApplyTLSMode translates mode into the driver's own DSN parameter. A DSN
// that already sets the parameter is returned unchanged, as is any DSN for
// drivers without a TLS switch (sqlite, snowflake).
func ApplyTLSMode(driver, dsn, mode string) string {
	if mode == "" {
		return dsn
	}
	switch driver {
	case "postgres":
		if strings.Contains(dsn, "sslmode=") {
			return dsn
		}
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			return setURLParams(dsn, map[string]string{"sslmode": mode})
		}
		return strings.TrimSpace(dsn + " sslmode=" + mode)
	case "mysql":
		cfg, err := mysqldriver.ParseDSN(dsn)
		if err != nil || cfg.TLSConfig != "" {
			return dsn
		}
		switch mode {
		case TLSDisable:
			cfg.TLSConfig = "false"
		case TLSRequire:
			cfg.TLSConfig = "skip-verify"
		default:
			cfg.TLSConfig = "true"
		}
		return cfg.FormatDSN()
	case "mssql":
		if strings.Contains(strings.ToLower(dsn), "encrypt=") {
			return dsn
		}
		params := map[string]string{"encrypt": "true"}
		switch mode {
		case TLSDisable:
			params["encrypt"] = "disable"
		case TLSRequire:
			params["TrustServerCertificate"] = "true"
		}
		return setURLParams(dsn, params)
	default:
		return dsn
	}
}

func setURLParams(dsn string, params map[string]string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return dsn
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
