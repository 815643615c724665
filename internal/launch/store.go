package launch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vmgr-dev/vmgr/internal/ports"
)

// Instance records one VM this program launched.
type Instance struct {
	ID        string           `json:"id"`
	ImageName string           `json:"image_name"`
	ImagePath string           `json:"image_path"`
	PID       int32            `json:"pid"`
	Ports     []ports.Resolved `json:"ports,omitempty"`
	Daemonize bool             `json:"daemonize"`
	StartedAt time.Time        `json:"started_at"`
}

// Store persists instance records as JSON files in a directory.
type Store struct {
	dir string
}

// NewStore creates a Store at dir, creating the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create instances directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save persists an instance record.
func (s *Store) Save(inst *Instance) error {
	data, err := json.MarshalIndent(inst, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal instance: %w", err)
	}
	path := filepath.Join(s.dir, inst.ID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write instance file: %w", err)
	}
	return nil
}

// List returns all recorded instances, sorted by start time.
func (s *Store) List() ([]*Instance, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read instances directory: %w", err)
	}

	var instances []*Instance
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, f.Name()))
		if err != nil {
			continue
		}
		var inst Instance
		if err := json.Unmarshal(data, &inst); err != nil {
			// Not ours or corrupt; leave it alone.
			continue
		}
		instances = append(instances, &inst)
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].StartedAt.Before(instances[j].StartedAt)
	})
	return instances, nil
}

// Remove deletes an instance record by ID.
func (s *Store) Remove(id string) error {
	err := os.Remove(filepath.Join(s.dir, id+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove instance file: %w", err)
	}
	return nil
}
