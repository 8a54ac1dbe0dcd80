package common

import (
	"log/slog"

	"github.com/alibabacloud-go/tea/tea"
	"github.com/aliyun/credentials-go/credentials"

	"github.com/joseph-ayodele/labreport/internal/entity"
)

// credentialProvider is the subset of credentials.Credential we depend on.
type credentialProvider interface {
	GetCredential() (*credentials.CredentialModel, error)
}

var newCredentialProvider = func() (credentialProvider, error) {
	return credentials.NewCredential(nil)
}

// ResolveCredentials returns the configured key bundle. When the legacy OCR
// pair is missing and the credential chain is enabled, the pair is looked up
// through the Alibaba Cloud default chain (env, profile file, instance role).
// Lookup failures leave the bundle as configured.
func ResolveCredentials(cfg *Config, logger *slog.Logger) entity.Credentials {
	if logger == nil {
		logger = slog.Default()
	}
	creds := cfg.Credentials
	if creds.HasLegacyOCR() || !cfg.Providers.UseCredentialChain {
		return creds
	}

	provider, err := newCredentialProvider()
	if err != nil {
		logger.Warn("credentials.chain.init_failed", "error", err)
		return creds
	}
	model, err := provider.GetCredential()
	if err != nil || model == nil {
		logger.Warn("credentials.chain.lookup_failed", "error", err)
		return creds
	}
	id, secret := tea.StringValue(model.AccessKeyId), tea.StringValue(model.AccessKeySecret)
	if id == "" || secret == "" {
		logger.Warn("credentials.chain.empty", "type", tea.StringValue(model.Type))
		return creds
	}
	creds.LegacyAccessKeyID = id
	creds.LegacyAccessKeySecret = secret
	logger.Info("credentials.chain.resolved", "type", tea.StringValue(model.Type))
	return creds
}
