package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TenantOverride customises one tenant at start-up. Empty fields keep the stored value.
type TenantOverride struct {
	ID           int64  `yaml:"id"`
	Title        string `yaml:"title"`
	CycleSpec    string `yaml:"cycle"`
	ReminderSpec string `yaml:"reminder"`
	OptOutSpec   string `yaml:"opt_out"`
}

type tenantsFile struct {
	Tenants []TenantOverride `yaml:"tenants"`
}

// LoadTenants reads the optional tenants file. An empty path yields no overrides.
//
//	tenants:
//	  - id: -1001234
//	    title: Coffee chats
//	    cycle: "0 9 * * 1"
func LoadTenants(path string) ([]TenantOverride, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenants file: %w", err)
	}
	return ParseTenants(raw)
}

// ParseTenants decodes a tenants document and rejects zero or duplicate ids.
func ParseTenants(raw []byte) ([]TenantOverride, error) {
	var doc tenantsFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse tenants file: %w", err)
	}
	seen := make(map[int64]bool, len(doc.Tenants))
	for i, t := range doc.Tenants {
		if t.ID == 0 {
			return nil, fmt.Errorf("tenants[%d]: id is required", i)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("tenants[%d]: duplicate id %d", i, t.ID)
		}
		seen[t.ID] = true
	}
	return doc.Tenants, nil
}
