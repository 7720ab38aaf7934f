package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// VaultProfile is an operator-tuned policy profile for one vault
// deployment. It configures the client-side policy layer; the on-ledger
// limits remain authoritative.
type VaultProfile struct {
	Name string `yaml:"name" json:"name"`
	// DailyLimit and FeeBasisPoints are the values used when the profile
	// initializes a new vault. Decimal string, e.g. "1.5".
	DailyLimit     string `yaml:"daily_limit" json:"daily_limit"`
	FeeBasisPoints uint16 `yaml:"fee_basis_points" json:"fee_basis_points"`
	// Whitelist holds hex-encoded destination addresses.
	Whitelist []string `yaml:"whitelist,omitempty" json:"whitelist,omitempty"`
	// Rules are named CEL expressions evaluated before the standard
	// checks; any rule returning false blocks the transfer client-side.
	Rules []ProfileRule `yaml:"rules,omitempty" json:"rules,omitempty"`
	// ProgramVersion is a semver constraint the deployed program must
	// satisfy, e.g. ">= 1.2.0 < 2.0.0".
	ProgramVersion string `yaml:"program_version,omitempty" json:"program_version,omitempty"`
	// OverrideExpiry overrides the default approval window, e.g. "1h".
	OverrideExpiry string `yaml:"override_expiry,omitempty" json:"override_expiry,omitempty"`
}

// ProfileRule is one named policy rule.
type ProfileRule struct {
	Name       string `yaml:"name" json:"name"`
	Expression string `yaml:"expression" json:"expression"`
}

const profileSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "daily_limit"],
  "properties": {
    "name": {"type": "string", "minLength": 1, "maxLength": 50},
    "daily_limit": {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?$"},
    "fee_basis_points": {"type": "integer", "minimum": 0, "maximum": 10000},
    "whitelist": {
      "type": "array",
      "maxItems": 20,
      "items": {"type": "string", "pattern": "^[0-9a-fA-F]{64}$"}
    },
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "expression"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "expression": {"type": "string", "minLength": 1}
        }
      }
    },
    "program_version": {"type": "string"},
    "override_expiry": {"type": "string"}
  }
}`

var compiledProfileSchema = mustCompileProfileSchema()

func mustCompileProfileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://vaultguard.schemas.local/profile.schema.json"
	if err := c.AddResource(url, strings.NewReader(profileSchema)); err != nil {
		panic(fmt.Sprintf("profile schema load failed: %v", err))
	}
	s, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("profile schema compile failed: %v", err))
	}
	return s
}

// LoadProfile reads and validates one profile YAML file.
func LoadProfile(path string) (*VaultProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", path, err)
	}
	return ParseProfile(data)
}

// ParseProfile validates raw YAML against the profile schema before
// decoding, so a malformed profile fails with a field-level message
// instead of a zero-valued struct.
func ParseProfile(data []byte) (*VaultProfile, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	// The schema validator wants JSON-shaped values.
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize profile: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("normalize profile: %w", err)
	}
	if err := compiledProfileSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("profile failed validation: %w", err)
	}

	var p VaultProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

// LoadAllProfiles loads every profile_*.yaml under dir, keyed by name.
func LoadAllProfiles(dir string) (map[string]*VaultProfile, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}
	profiles := make(map[string]*VaultProfile, len(matches))
	for _, path := range matches {
		p, err := LoadProfile(path)
		if err != nil {
			return nil, err
		}
		profiles[p.Name] = p
	}
	return profiles, nil
}
