package repository

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/services/scoring"
)

type profilesFile struct {
	Profiles []scoring.ProfileConfig `yaml:"profiles"`
}

// YAMLProfileStore holds profiles compiled from a YAML file. Every profile
// is validated at load time so a bad weight set fails startup.
type YAMLProfileStore struct {
	profiles map[string]*scoring.Profile
}

var _ domrepo.WeightConfigStore = (*YAMLProfileStore)(nil)

// LoadProfiles reads and compiles the profiles file at path.
func LoadProfiles(path string) (*YAMLProfileStore, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return ParseProfiles(b)
}

// ParseProfiles compiles profiles from YAML bytes.
func ParseProfiles(b []byte) (*YAMLProfileStore, error) {
	var f profilesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if len(f.Profiles) == 0 {
		return nil, fmt.Errorf("parse profiles: no profiles defined")
	}
	s := &YAMLProfileStore{profiles: make(map[string]*scoring.Profile, len(f.Profiles))}
	for _, cfg := range f.Profiles {
		p, err := scoring.Compile(cfg)
		if err != nil {
			return nil, err
		}
		if _, dup := s.profiles[p.ID()]; dup {
			return nil, fmt.Errorf("profile %q defined twice: %w", p.ID(), models.ErrInvalidProfile)
		}
		s.profiles[p.ID()] = p
	}
	return s, nil
}

// Profile returns the compiled profile id.
func (s *YAMLProfileStore) Profile(id string) (*scoring.Profile, error) {
	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, models.ErrProfileNotFound)
	}
	return p, nil
}

func (s *YAMLProfileStore) GetWeights(profileID string) (map[string]float64, error) {
	p, err := s.Profile(profileID)
	if err != nil {
		return nil, err
	}
	return p.Weights(), nil
}

// IDs lists profile IDs in sorted order.
func (s *YAMLProfileStore) IDs() []string {
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
