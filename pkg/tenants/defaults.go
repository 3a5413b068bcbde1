package tenants

import "context"

// WithFallbackDefaults decorates p so that empty SystemDefaults fields are filled from env.
// Values provisioned in the directory always win over env.
func WithFallbackDefaults(p Provider, env SystemDefaults) Provider {
	return &fallbackProvider{Provider: p, env: env}
}

type fallbackProvider struct {
	Provider
	env SystemDefaults
}

func (f *fallbackProvider) SystemDefaults(ctx context.Context) (SystemDefaults, error) {
	s, err := f.Provider.SystemDefaults(ctx)
	if err != nil {
		return s, err
	}
	s.DefaultTenantID = firstNonEmpty(s.DefaultTenantID, f.env.DefaultTenantID)
	s.LineChannelID = firstNonEmpty(s.LineChannelID, f.env.LineChannelID)
	s.LineChannelSecret = firstNonEmpty(s.LineChannelSecret, f.env.LineChannelSecret)
	s.LineRedirectURI = firstNonEmpty(s.LineRedirectURI, f.env.LineRedirectURI)
	return s, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
