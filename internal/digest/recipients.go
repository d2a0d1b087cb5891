package digest

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Recipient struct {
	Email   string `yaml:"email"`
	Name    string `yaml:"name"`
	Enabled *bool  `yaml:"enabled"` // missing means enabled
}

type recipientsFile struct {
	Recipients []Recipient `yaml:"recipients"`
}

// LoadRecipients returns primary followed by the enabled addresses from
// path, without duplicates. A missing file yields only primary.
func LoadRecipients(path, primary string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(addr string) {
		addr = strings.TrimSpace(addr)
		key := strings.ToLower(addr)
		if addr == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, addr)
	}
	add(primary)

	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("read recipients %s: %w", path, err)
	}

	var f recipientsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return out, fmt.Errorf("parse recipients %s: %w", path, err)
	}
	for _, r := range f.Recipients {
		if r.Enabled != nil && !*r.Enabled {
			continue
		}
		add(r.Email)
	}
	return out, nil
}
