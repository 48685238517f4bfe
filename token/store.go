// Package token keeps a third-party bearer credential valid across
// long-running unattended cycles: an in-memory cache with a pre-expiry
// refresh buffer, remote validation and introspection, automated
// long-lived-token exchange, and a browser-driven extraction last resort.
package token

import (
	"strings"

	"github.com/vuxmai/fankeeper/config"
)

// Store abstracts the external configuration document the credential is
// read from and persisted into after every successful refresh.
type Store interface {
	// LoadToken returns the configured token, or "" when absent or a
	// recognised placeholder.
	LoadToken() string

	// SaveToken persists a refreshed token (read-modify-write, single
	// process owns the store).
	SaveToken(token string) error

	// AppCredentials returns the app identifier/secret pair used for
	// automated token exchange. Either may be empty.
	AppCredentials() (appID, appSecret string)
}

// ConfigStore adapts *config.Config to the Store interface.
type ConfigStore struct {
	Cfg *config.Config
}

func (s ConfigStore) LoadToken() string {
	return CleanToken(s.Cfg.AccessToken)
}

func (s ConfigStore) SaveToken(token string) error {
	return s.Cfg.SaveAccessToken(token)
}

func (s ConfigStore) AppCredentials() (string, string) {
	return s.Cfg.AppID, s.Cfg.AppSecret
}

// CleanToken filters placeholder patterns: empty strings, unresolved
// ${VAR} references, and the documentation sentinel.
func CleanToken(raw string) string {
	t := strings.TrimSpace(raw)
	if t == "" || strings.Contains(t, "${") || t == "YOUR_TOKEN" {
		return ""
	}
	return t
}
