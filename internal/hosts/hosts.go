// Package hosts imports a YAML host inventory into the saved-hosts table.
package hosts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jkeevk/aimlul-admin/internal/crypto"
	"github.com/jkeevk/aimlul-admin/internal/database"
)

// Entry is one host in the inventory file.
type Entry struct {
	Name      string `yaml:"name"`
	Address   string `yaml:"address"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Container string `yaml:"container"`
}

type inventory struct {
	Hosts []Entry `yaml:"hosts"`
}

// Parse reads an inventory document and validates its entries.
func Parse(data []byte) ([]Entry, error) {
	var inv inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parse inventory: %w", err)
	}
	for i, e := range inv.Hosts {
		if e.Name == "" {
			return nil, fmt.Errorf("inventory entry %d: name is required", i)
		}
		if e.Address == "" {
			return nil, fmt.Errorf("inventory entry %q: address is required", e.Name)
		}
		if e.Username == "" {
			return nil, fmt.Errorf("inventory entry %q: username is required", e.Name)
		}
	}
	return inv.Hosts, nil
}

// ImportFile loads the inventory at path and upserts each entry into the
// hosts table, encrypting passwords. Returns the number of imported hosts.
func ImportFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read inventory %s: %w", path, err)
	}
	entries, err := Parse(data)
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, e := range entries {
		host, err := database.GetHostByName(e.Name)
		if err != nil {
			if !database.IsNotFound(err) {
				return imported, fmt.Errorf("look up host %q: %w", e.Name, err)
			}
			host = &database.Host{Name: e.Name}
		}
		host.Address = e.Address
		host.Username = e.Username
		host.Container = e.Container
		if e.Password != "" {
			enc, err := crypto.Encrypt(e.Password)
			if err != nil {
				return imported, fmt.Errorf("encrypt password for %q: %w", e.Name, err)
			}
			host.PasswordEnc = enc
		}
		if err := database.SaveHost(host); err != nil {
			return imported, fmt.Errorf("save host %q: %w", e.Name, err)
		}
		imported++
	}
	return imported, nil
}
