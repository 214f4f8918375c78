package processor

import (
	"sort"
	"strings"

	"videogenie/internal/pkg/errors"
	"videogenie/internal/ports"
)

// Quality names are mapped to renderer flags here and nowhere else; callers
// can only pick a name.
var presets = map[string]ports.RenderPreset{
	"fast": {Name: "fast", ResizeFactor: 2, LipSyncBatch: 64, FaceDetBatch: 8, DisableSmooth: true},
	"high": {Name: "high", ResizeFactor: 1, LipSyncBatch: 128, FaceDetBatch: 16, DisableSmooth: false},
}

// LookupPreset resolves a quality name, falling back to def when name is empty.
func LookupPreset(name, def string) (ports.RenderPreset, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(def))
	}
	p, ok := presets[name]
	if !ok {
		return ports.RenderPreset{}, errors.ValidationField("quality",
			"unknown quality "+name+"; expected one of "+strings.Join(PresetNames(), ", "))
	}
	return p, nil
}

// ValidQuality reports whether name is a known preset.
func ValidQuality(name string) bool {
	_, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
