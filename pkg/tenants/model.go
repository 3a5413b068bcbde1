package tenants

// Tenant represents an isolated customer organization.
type Tenant struct {
	ID        string `yaml:"id"`        // uuid
	Code      string `yaml:"code"`      // short code (acme)
	Name      string `yaml:"name"`      // display name, exact-match lookup
	Subdomain string `yaml:"subdomain"` // leftmost host label (acme.example.com)

	// LINE channel; any empty field is backfilled from SystemDefaults.
	LineChannelID     string `yaml:"line_channel_id"`
	LineChannelSecret string `yaml:"line_channel_secret"`
	LineRedirectURI   string `yaml:"line_redirect_uri"`
}

// SystemDefaults is the singleton fallback used when a tenant carries no channel of its own
// or no tenant could be resolved from the request.
type SystemDefaults struct {
	DefaultTenantID   string `yaml:"default_tenant_id"`
	LineChannelID     string `yaml:"line_channel_id"`
	LineChannelSecret string `yaml:"line_channel_secret"`
	LineRedirectURI   string `yaml:"line_redirect_uri"`
}
