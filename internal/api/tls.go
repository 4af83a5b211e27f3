package api

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
)

// TLSConfig names the PEM key pair the server listens with.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

var tlsConfig *TLSConfig

var errTLSHalfConfigured = errors.New("tls: QUESTGRAPH_TLS_CERT and QUESTGRAPH_TLS_KEY must be set together")

// InitTLS reads QUESTGRAPH_TLS_CERT and QUESTGRAPH_TLS_KEY. Neither set means
// plain HTTP; only one set is a configuration error.
func InitTLS() error {
	tlsConfig = nil
	cert, key := os.Getenv("QUESTGRAPH_TLS_CERT"), os.Getenv("QUESTGRAPH_TLS_KEY")
	switch {
	case cert == "" && key == "":
		return nil
	case cert == "" || key == "":
		return errTLSHalfConfigured
	}
	tlsConfig = &TLSConfig{CertFile: cert, KeyFile: key}
	return nil
}

func IsTLSEnabled() bool {
	return tlsConfig != nil
}

// LoadTLSConfig builds a tls.Config from the configured key pair, or
// returns nil, nil when TLS is off.
func LoadTLSConfig() (*tls.Config, error) {
	if !IsTLSEnabled() {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair %s: %w", tlsConfig.CertFile, err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// SetTLSConfigForTest replaces the TLS configuration directly.
func SetTLSConfigForTest(cfg *TLSConfig) {
	tlsConfig = cfg
}
