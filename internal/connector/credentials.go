package connector

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stacklok/connector-sync/internal/config"
	"github.com/stacklok/connector-sync/internal/httpclient"
)

// Keys read from a connector Secret
const (
	SecretKeyToken        = "token"
	SecretKeyPassword     = "password"
	SecretKeyClientSecret = "clientSecret"
)

// SecretLookup returns the value stored under key in an external secret
type SecretLookup func(key string) (string, bool)

// resolveCredentials reads the secret value required by the auth type.
// Priority: secret lookup, file, environment variable, inline value.
func resolveCredentials(auth *config.AuthConfig, secrets SecretLookup) (*httpclient.Credentials, error) {
	if auth == nil {
		return nil, nil
	}

	creds := &httpclient.Credentials{
		Type:     auth.Type,
		Username: auth.Username,
		Header:   auth.Header,
		TokenURL: auth.TokenURL,
		ClientID: auth.ClientID,
		Scopes:   auth.Scopes,
	}

	var err error
	switch auth.Type {
	case httpclient.AuthTypeBearer, httpclient.AuthTypeAPIKey:
		creds.Token, err = readSecret(secrets, SecretKeyToken, auth.TokenFile, auth.TokenEnv, auth.Token)
	case httpclient.AuthTypeBasic:
		creds.Password, err = readSecret(secrets, SecretKeyPassword, auth.PasswordFile, auth.PasswordEnv, "")
	case httpclient.AuthTypeOAuth2:
		creds.ClientSecret, err = readSecret(secrets, SecretKeyClientSecret, auth.ClientSecretFile, auth.ClientSecretEnv, "")
	}
	if err != nil {
		return nil, err
	}

	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return creds, nil
}

func readSecret(secrets SecretLookup, key, file, env, inline string) (string, error) {
	if secrets != nil {
		if v, ok := secrets(key); ok && v != "" {
			return v, nil
		}
	}
	if file != "" {
		data, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return "", fmt.Errorf("failed to read secret file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if env != "" {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
		return "", fmt.Errorf("environment variable %s is not set", env)
	}
	return inline, nil
}
