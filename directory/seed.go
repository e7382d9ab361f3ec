package directory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"eventide/models"
)

// DemoUsers is the baseline directory a fresh deployment starts with.
func DemoUsers() []models.User {
	return []models.User{
		{ID: "user-1", Name: "Alex Starr", Email: "alex@eventide.app", AvatarURL: "https://i.pravatar.cc/150?u=alexstarr"},
		{ID: "user-2", Name: "Casey Jordan", Email: "casey@eventide.app", AvatarURL: "https://i.pravatar.cc/150?u=caseyjordan"},
		{ID: "user-3", Name: "Riley Quinn", Email: "riley@eventide.app", AvatarURL: "https://i.pravatar.cc/150?u=rileyquinn"},
		{ID: "user-4", Name: "Morgan Lee", Email: "morgan@eventide.app", AvatarURL: "https://i.pravatar.cc/150?u=morganlee"},
		{ID: "user-5", Name: "Jamie Lane", Email: "jamie@eventide.app", AvatarURL: "https://i.pravatar.cc/150?u=jamielane"},
	}
}

type seedFile struct {
	Users []struct {
		ID        string `yaml:"id"`
		Name      string `yaml:"name"`
		Email     string `yaml:"email"`
		AvatarURL string `yaml:"avatarUrl"`
	} `yaml:"users"`
}

// LoadSeedFile reads seed users from a YAML file of the form
//
//	users:
//	  - id: user-1
//	    name: Alex Starr
//	    email: alex@eventide.app
//	    avatarUrl: https://i.pravatar.cc/150?u=alexstarr
func LoadSeedFile(path string) ([]models.User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes the YAML seed format read by LoadSeedFile.
func ParseSeed(data []byte) ([]models.User, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	users := make([]models.User, 0, len(f.Users))
	seen := make(map[string]bool, len(f.Users))
	for i, u := range f.Users {
		if u.ID == "" {
			return nil, invalid("seed user %d has no id", i)
		}
		if seen[u.ID] {
			return nil, invalid("seed user %q listed twice", u.ID)
		}
		seen[u.ID] = true
		users = append(users, models.User{ID: u.ID, Name: u.Name, Email: u.Email, AvatarURL: u.AvatarURL})
	}
	return users, nil
}
