package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// StaticAddresses returns the configured addresses merged with those in
// File, deduplicated in order. JSON and YAML files hold a list of strings;
// any other file holds one address per line with # comments.
func (c CoreTeamConfig) StaticAddresses() ([]string, error) {
	out := make([]string, 0, len(c.Addresses))
	seen := make(map[string]bool)
	add := func(addr string) {
		addr = strings.TrimSpace(addr)
		if addr == "" || seen[addr] {
			return
		}
		seen[addr] = true
		out = append(out, addr)
	}
	for _, a := range c.Addresses {
		add(a)
	}
	if c.File == "" {
		return out, nil
	}

	data, err := os.ReadFile(c.File)
	if err != nil {
		return nil, fmt.Errorf("read core team file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(c.File)) {
	case ".json", ".yaml", ".yml":
		var list []string
		if err := yaml.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("parse core team file %s: %w", c.File, err)
		}
		for _, a := range list {
			add(a)
		}
	default:
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			line, _, _ := strings.Cut(sc.Text(), "#")
			add(line)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("scan core team file %s: %w", c.File, err)
		}
	}
	return out, nil
}
