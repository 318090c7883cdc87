package connection

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/errs"
)

// ServiceCredential is one decoded service-account document. Fields the
// document omits fall back to static configuration.
type ServiceCredential struct {
	ProjectID   string `json:"project_id"`
	Host        string `json:"host,omitempty"`
	Port        int    `json:"port,omitempty"`
	Database    string `json:"database,omitempty"`
	User        string `json:"user,omitempty"`
	Password    string `json:"password,omitempty"`
	OracleToken string `json:"oracle_token,omitempty"`
}

// CredentialSource names the tier a credential was resolved from.
type CredentialSource string

const (
	SourceRequest CredentialSource = "request"
	SourceEnv     CredentialSource = "env"
	SourceFile    CredentialSource = "file"
	SourceAmbient CredentialSource = "ambient"
)

// ResolveCredential walks the tiers in priority order: explicit request
// payload, then the configured environment variable, then the key file,
// then ambient defaults (nil credential). A tier that is present but
// undecodable fails with an AuthError; it never falls through to the
// next tier, so a broken explicit credential cannot be silently
// replaced by a stale ambient one.
func ResolveCredential(payload json.RawMessage, envVar, filePath string) (*ServiceCredential, CredentialSource, error) {
	if len(payload) > 0 {
		cred, err := decodeCredential(payload)
		if err != nil {
			return nil, SourceRequest, errs.NewAuthError("resolve", fmt.Errorf("request credential: %w", err))
		}
		return cred, SourceRequest, nil
	}

	if envVar != "" {
		if raw := os.Getenv(envVar); raw != "" {
			cred, err := decodeCredential([]byte(raw))
			if err != nil {
				return nil, SourceEnv, errs.NewAuthError("resolve", fmt.Errorf("env credential %s: %w", envVar, err))
			}
			return cred, SourceEnv, nil
		}
	}

	if filePath != "" {
		raw, err := os.ReadFile(filePath)
		if err == nil {
			cred, derr := decodeCredential(raw)
			if derr != nil {
				return nil, SourceFile, errs.NewAuthError("resolve", fmt.Errorf("credential file %s: %w", filePath, derr))
			}
			return cred, SourceFile, nil
		}
		if !os.IsNotExist(err) {
			return nil, SourceFile, errs.NewAuthError("resolve", fmt.Errorf("credential file %s: %w", filePath, err))
		}
	}

	return nil, SourceAmbient, nil
}

func decodeCredential(raw []byte) (*ServiceCredential, error) {
	var cred ServiceCredential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if cred.ProjectID == "" {
		return nil, fmt.Errorf("missing project_id")
	}
	return &cred, nil
}
