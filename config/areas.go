package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/width"

	"landmatch/server/internal/models"
)

var ErrAreaGroupNotFound = errors.New("area group not found")

// AreaGroupConfig is the on-disk layout of the area groups file
type AreaGroupConfig struct {
	AreaGroups []models.AreaGroup `json:"area_groups"`
}

// AreaGroups holds named sets of municipalities backed by a JSON file
type AreaGroups struct {
	path   string
	mu     sync.RWMutex
	groups []models.AreaGroup
}

// NewAreaGroups creates an empty registry persisted at path
func NewAreaGroups(path string) *AreaGroups {
	return &AreaGroups{path: path}
}

// Load reads the area groups file. A missing file leaves the registry empty.
func (a *AreaGroups) Load() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	absPath, err := filepath.Abs(a.path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if errors.Is(err, os.ErrNotExist) {
		a.groups = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read area groups file: %w", err)
	}

	var cfg AreaGroupConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse area groups: %w", err)
	}

	a.groups = cfg.AreaGroups
	return nil
}

// save writes groups to disk. Callers hold the write lock and assign a.groups
// only after it succeeds.
func (a *AreaGroups) save(groups []models.AreaGroup) error {
	absPath, err := filepath.Abs(a.path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(AreaGroupConfig{AreaGroups: groups}, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal area groups: %w", err)
	}

	if err := os.WriteFile(absPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write area groups file: %w", err)
	}
	return nil
}

// List returns a copy of all configured groups
func (a *AreaGroups) List() []models.AreaGroup {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]models.AreaGroup, len(a.groups))
	for i, g := range a.groups {
		out[i] = models.AreaGroup{Name: g.Name, Cities: append([]string(nil), g.Cities...)}
	}
	return out
}

// Get returns the group with the given name, or nil
func (a *AreaGroups) Get(name string) *models.AreaGroup {
	a.mu.RLock()
	defer a.mu.RUnlock()

	name = NormalizeArea(name)
	for _, g := range a.groups {
		if NormalizeArea(g.Name) == name {
			return &models.AreaGroup{Name: g.Name, Cities: append([]string(nil), g.Cities...)}
		}
	}
	return nil
}

// Upsert updates or adds a group and persists the registry
func (a *AreaGroups) Upsert(group models.AreaGroup) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cities := make([]string, 0, len(group.Cities))
	for _, c := range group.Cities {
		if c = NormalizeArea(c); c != "" {
			cities = append(cities, c)
		}
	}
	group.Name = NormalizeArea(group.Name)
	group.Cities = cities

	next := make([]models.AreaGroup, 0, len(a.groups)+1)
	found := false
	for _, existing := range a.groups {
		if NormalizeArea(existing.Name) == group.Name {
			existing = group
			found = true
		}
		next = append(next, existing)
	}
	if !found {
		next = append(next, group)
	}

	if err := a.save(next); err != nil {
		return err
	}
	a.groups = next
	return nil
}

// Delete removes a group and persists the registry
func (a *AreaGroups) Delete(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	name = NormalizeArea(name)
	next := make([]models.AreaGroup, 0, len(a.groups))
	for _, g := range a.groups {
		if NormalizeArea(g.Name) != name {
			next = append(next, g)
		}
	}
	if len(next) == len(a.groups) {
		return fmt.Errorf("%w: %s", ErrAreaGroupNotFound, name)
	}

	if err := a.save(next); err != nil {
		return err
	}
	a.groups = next
	return nil
}

// Expand returns the member cities when area names a group, otherwise area itself.
// Used by the matching engine to resolve desired and excluded areas.
func (a *AreaGroups) Expand(area string) []string {
	if g := a.Get(area); g != nil && len(g.Cities) > 0 {
		return g.Cities
	}
	return []string{area}
}

// NormalizeArea folds full-width characters and trims surrounding whitespace
func NormalizeArea(area string) string {
	return strings.TrimSpace(width.Fold.String(area))
}
