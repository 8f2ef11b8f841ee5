package vision

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"sort"
	"strings"

	"imageclassifier/internal/errs"
)

// ServiceAccount is the subset of a GCP service account key file the client uses.
type ServiceAccount struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
	UniverseDomain          string `json:"universe_domain,omitempty"`
}

// ParseServiceAccount decodes raw key file JSON and checks its schema and private key.
func ParseServiceAccount(raw string) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal([]byte(raw), &sa); err != nil {
		return nil, errs.Wrap(errs.ErrParseJSON, fmt.Errorf("service account: %w", err))
	}
	if err := sa.validate(); err != nil {
		return nil, errs.Wrap(errs.ErrServiceAccountSchema, err)
	}
	if err := checkPrivateKey(sa.PrivateKey); err != nil {
		return nil, err
	}
	return &sa, nil
}

func (sa *ServiceAccount) validate() error {
	if sa.Type != "service_account" {
		return fmt.Errorf("type must be service_account, got %q", sa.Type)
	}
	var missing []string
	for name, v := range map[string]string{
		"project_id":                  sa.ProjectID,
		"private_key_id":              sa.PrivateKeyID,
		"private_key":                 sa.PrivateKey,
		"client_email":                sa.ClientEmail,
		"client_id":                   sa.ClientID,
		"auth_uri":                    sa.AuthURI,
		"token_uri":                   sa.TokenURI,
		"auth_provider_x509_cert_url": sa.AuthProviderX509CertURL,
		"client_x509_cert_url":        sa.ClientX509CertURL,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// checkPrivateKey makes sure the key can be decoded, imported and used for RS256 signing.
func checkPrivateKey(keyPEM string) error {
	block, _ := pem.Decode([]byte(keyPEM))
	if block == nil {
		return errs.Wrap(errs.ErrDecode, errors.New("private key is not PEM encoded"))
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		if pkcs1, perr := x509.ParsePKCS1PrivateKey(block.Bytes); perr == nil {
			parsed = pkcs1
		} else {
			return errs.Wrap(errs.ErrImportKey, err)
		}
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return errs.Wrap(errs.ErrImportKey, fmt.Errorf("private key is %T, want RSA", parsed))
	}

	digest := sha256.Sum256([]byte("key check"))
	if _, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:]); err != nil {
		return errs.Wrap(errs.ErrSignPrivateKey, err)
	}
	return nil
}
