package file

import (
	"encoding/json"
	"fmt"
	"os"
)

// migration transforms a JSON config from one version to the next.
type migration struct {
	from    int
	to      int
	migrate func(raw json.RawMessage) (json.RawMessage, error)
}

var migrations = []migration{
	{from: 1, to: 2, migrate: v1toV2},
}

// v1toV2 moves the top-level maxIndexCandidates into the scan section and
// renames cache.maxEntries to cache.capacity.
func v1toV2(raw json.RawMessage) (json.RawMessage, error) {
	var env struct {
		Version int                        `json:"version"`
		Config  map[string]json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	cfg := env.Config
	if cfg == nil {
		cfg = make(map[string]json.RawMessage)
	}

	if v, ok := cfg["maxIndexCandidates"]; ok {
		scan, err := section(cfg, "scan")
		if err != nil {
			return nil, err
		}
		if _, set := scan["maxIndexCandidates"]; !set {
			scan["maxIndexCandidates"] = v
		}
		delete(cfg, "maxIndexCandidates")
		if cfg["scan"], err = json.Marshal(scan); err != nil {
			return nil, err
		}
	}

	if _, ok := cfg["cache"]; ok {
		cache, err := section(cfg, "cache")
		if err != nil {
			return nil, err
		}
		if v, ok := cache["maxEntries"]; ok {
			cache["capacity"] = v
			delete(cache, "maxEntries")
		}
		if cfg["cache"], err = json.Marshal(cache); err != nil {
			return nil, err
		}
	}

	env.Version = 2
	env.Config = cfg
	return json.MarshalIndent(env, "", "  ")
}

func section(cfg map[string]json.RawMessage, name string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage)
	raw, ok := cfg[name]
	if !ok || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s section: %w", name, err)
	}
	return out, nil
}

// migrateFile runs all necessary migrations on the config file and returns
// the migrated contents. Before each step, the current file is backed up.
func migrateFile(path string, data []byte, fromVersion int) ([]byte, error) {
	current := fromVersion

	for _, m := range migrations {
		if m.from != current {
			continue
		}

		backupPath := fmt.Sprintf("%s.v%d.bak", path, current)
		if err := os.WriteFile(backupPath, data, 0644); err != nil {
			return nil, fmt.Errorf("backup before migration v%d→v%d: %w", m.from, m.to, err)
		}

		migrated, err := m.migrate(json.RawMessage(data))
		if err != nil {
			return nil, fmt.Errorf("migration v%d→v%d: %w", m.from, m.to, err)
		}
		if err := writeAtomic(path, migrated); err != nil {
			return nil, err
		}

		data = migrated
		current = m.to
	}

	if current != currentVersion {
		return nil, fmt.Errorf("no migration path from version %d to %d", fromVersion, currentVersion)
	}
	return data, nil
}
