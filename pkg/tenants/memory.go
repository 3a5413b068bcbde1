// pkg/tenants/memory.go
package tenants

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Seed is the YAML document accepted by TENANT_SEED_FILE.
type Seed struct {
	System  SystemDefaults `yaml:"system"`
	Tenants []Tenant       `yaml:"tenants"`
}

// LoadSeedFile reads a YAML seed document. An empty path yields an empty seed.
func LoadSeedFile(path string) (Seed, error) {
	var s Seed
	if path == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read tenant seed: %w", err)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("parse tenant seed: %w", err)
	}
	return s, nil
}

type memProvider struct {
	log    *zap.SugaredLogger
	system SystemDefaults
	byID   map[string]Tenant
	tenant []Tenant
}

// NewMemoryProvider serves lookups from a fixed seed. Intended for dev and tests.
func NewMemoryProvider(log *zap.SugaredLogger, seed Seed) Provider {
	p := &memProvider{log: log, system: seed.System, byID: map[string]Tenant{}}
	for _, t := range seed.Tenants {
		if t.ID == "" {
			log.Warnw("seed tenant without id skipped", "code", t.Code)
			continue
		}
		p.byID[t.ID] = t
		p.tenant = append(p.tenant, t)
	}
	log.Infow("memory tenant directory ready", "tenants", len(p.tenant))
	return p
}

func (m *memProvider) TenantByID(_ context.Context, id string) (Tenant, error) {
	if t, ok := m.byID[id]; ok {
		return t, nil
	}
	return Tenant{}, ErrNotFound
}

func (m *memProvider) TenantByCode(_ context.Context, code string) (Tenant, error) {
	return m.find(func(t Tenant) bool { return t.Code == code })
}

func (m *memProvider) TenantByName(_ context.Context, name string) (Tenant, error) {
	return m.find(func(t Tenant) bool { return t.Name == name })
}

func (m *memProvider) TenantBySubdomain(_ context.Context, sub string) (Tenant, error) {
	return m.find(func(t Tenant) bool { return t.Subdomain == sub })
}

func (m *memProvider) SystemDefaults(context.Context) (SystemDefaults, error) {
	return m.system, nil
}

func (m *memProvider) find(match func(Tenant) bool) (Tenant, error) {
	for _, t := range m.tenant {
		if match(t) {
			return t, nil
		}
	}
	return Tenant{}, ErrNotFound
}
