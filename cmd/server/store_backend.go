package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"worleybiomes.ai/internal/persistence/preset"
	"worleybiomes.ai/internal/persistence/presetdb"
	"worleybiomes.ai/internal/persistence/presetkv"
)

// openPresetStore picks the preset backend from WB_PRESET_BACKEND. A nil
// store with a nil error means presets are disabled.
func openPresetStore(dataDir string) (preset.Store, error) {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("WB_PRESET_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		s, err := presetdb.Open(filepath.Join(dataDir, "presets", "presets.sqlite"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "leveldb":
		s, err := presetkv.Open(filepath.Join(dataDir, "presets", "leveldb"))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported WB_PRESET_BACKEND: %s", backend)
	}
}
