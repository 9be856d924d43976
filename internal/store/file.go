package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileEnvSource reads environment definitions from a YAML file shaped like:
//
//	activeEnv: staging
//	environments:
//	  staging:
//	    BASE_URL: https://staging.example.com
//	  production:
//	    BASE_URL: https://api.example.com
type FileEnvSource struct {
	Path string
}

func (f *FileEnvSource) Load(ctx context.Context) (EnvSnapshot, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return EnvSnapshot{}, fmt.Errorf("failed to read environment file: %w", err)
	}
	var snap EnvSnapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return EnvSnapshot{}, fmt.Errorf("failed to parse environment file %s: %w", f.Path, err)
	}
	if snap.Data == nil {
		snap.Data = map[string]map[string]string{}
	}
	return snap, nil
}

// FileVariableStore persists the variable table as one YAML map. A missing
// file reads as an empty table; Apply rewrites the whole file.
type FileVariableStore struct {
	Path string

	mu sync.Mutex
}

func (f *FileVariableStore) Read(ctx context.Context) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readLocked()
}

func (f *FileVariableStore) readLocked() (map[string]interface{}, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("failed to read variable file: %w", err)
	}
	vars := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &vars); err != nil {
		return nil, fmt.Errorf("failed to parse variable file %s: %w", f.Path, err)
	}
	return vars, nil
}

func (f *FileVariableStore) Apply(ctx context.Context, modified map[string]interface{}) error {
	if len(modified) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	vars, err := f.readLocked()
	if err != nil {
		return err
	}
	for k, v := range modified {
		vars[k] = v
	}
	data, err := yaml.Marshal(vars)
	if err != nil {
		return fmt.Errorf("failed to encode variable file: %w", err)
	}
	if err := os.WriteFile(f.Path, data, 0644); err != nil {
		return fmt.Errorf("failed to write variable file: %w", err)
	}
	return nil
}
