package common

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const DefaultAPIKeyHeader = "X-API-Key"

type AuthSettings struct {
	Type        string `yaml:"type"`
	TokenEnv    string `yaml:"token_env"`
	KeyEnv      string `yaml:"key_env"`
	HeaderName  string `yaml:"header_name"`
	UsernameEnv string `yaml:"username_env"`
	PasswordEnv string `yaml:"password_env"`
}

func (a AuthSettings) Validate() error {
	switch strings.ToLower(a.Type) {
	case "", "none", "bearer_token", "api_key", "basic":
		return nil
	default:
		return fmt.Errorf("unsupported auth type %q", a.Type)
	}
}

// BuildHeaders merges static headers with the credentials described by auth.
// Credentials are read from the environment once, when this is called.
func BuildHeaders(logger *zap.Logger, static map[string]string, auth AuthSettings) http.Header {
	h := make(http.Header, len(static)+1)
	for k, v := range static {
		h.Set(k, v)
	}

	switch strings.ToLower(auth.Type) {
	case "bearer_token":
		if token := Env(logger, auth.TokenEnv); token != "" {
			h.Set("Authorization", "Bearer "+token)
		}
	case "api_key":
		header := auth.HeaderName
		if header == "" {
			header = DefaultAPIKeyHeader
		}
		if key := Env(logger, auth.KeyEnv); key != "" {
			h.Set(header, key)
		}
	case "basic":
		user := Env(logger, auth.UsernameEnv)
		pass := Env(logger, auth.PasswordEnv)
		if user != "" || pass != "" {
			h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+pass)))
		}
	}
	return h
}
