package vision

// Class table and semantic mapping
//
// The detection model emits numeric class identifiers. A versioned JSON table
// maps them to human-readable names; when the table file is absent a built-in
// default covering the common aerial classes is used instead. Class names are
// then mapped to three boolean semantic flags (military / civilian /
// infrastructure) by keyword containment against fixed keyword sets. The
// mapping is total and pure: an unknown id resolves to a generated name and
// every unmapped name carries all flags false.

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/AlfonsoCifuentes/riskmap-vision/models"
)

// ClassTable is an immutable id-to-name mapping loaded once at startup and
// injected into the Detector.
type ClassTable struct {
	Version string
	names   map[int]string
}

// classTableFile is the on-disk layout of a versioned class table.
type classTableFile struct {
	Version string         `json:"version"`
	Classes map[string]string `json:"classes"`
}

// LoadClassTable reads a versioned class table from path. A missing file
// falls back to the built-in default table; a malformed file is an error.
func LoadClassTable(path string) (*ClassTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultClassTable(), nil
		}
		return nil, fmt.Errorf("read class table: %w", err)
	}

	var file classTableFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse class table: %w", err)
	}

	names := make(map[int]string, len(file.Classes))
	for key, name := range file.Classes {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("class table key %q is not numeric", key)
		}
		names[id] = name
	}

	version := file.Version
	if version == "" {
		version = "unversioned"
	}
	return &ClassTable{Version: version, names: names}, nil
}

// DefaultClassTable returns the built-in table covering the aerial object
// classes the default model was trained on.
func DefaultClassTable() *ClassTable {
	return &ClassTable{
		Version: "builtin-1",
		names: map[int]string{
			11: "fixed-wing aircraft",
			12: "small aircraft",
			13: "cargo plane",
			15: "helicopter",
			17: "passenger vehicle",
			18: "small car",
			19: "bus",
			20: "pickup truck",
			21: "utility truck",
			23: "truck",
			24: "cargo truck",
			25: "truck with trailer",
			27: "military truck",
			28: "truck tractor",
			29: "tank",
			30: "armored vehicle",
			32: "crane truck",
			33: "railway vehicle",
			40: "maritime vessel",
			41: "motorboat",
			42: "sailboat",
			45: "barge",
			47: "fishing vessel",
			49: "ferry",
			51: "container ship",
			52: "oil tanker",
			53: "engineering vehicle",
			54: "tower crane",
			59: "shed",
			61: "building",
			62: "aircraft hangar",
			63: "damaged building",
			64: "facility",
			65: "construction site",
			71: "passenger terminal",
			72: "helipad",
			73: "storage tank",
			74: "shipping container lot",
			76: "shipping container",
			79: "pylon",
			83: "vehicle lot",
			84: "construction equipment",
			86: "storage facility",
			89: "harbor",
			91: "airport",
			93: "bridge",
			94: "stadium",
			95: "tennis court",
			96: "soccer field",
			97: "swimming pool",
		},
	}
}

// Name resolves a class id to its name. Unknown ids resolve through the
// total default rather than failing.
func (t *ClassTable) Name(id int) string {
	if name, ok := t.names[id]; ok {
		return name
	}
	return fmt.Sprintf("class-%d", id)
}

// Len reports the number of known classes.
func (t *ClassTable) Len() int { return len(t.names) }

// Fixed keyword sets for semantic classification. Matching is substring
// containment on the lower-cased class name.
var (
	militaryKeywords = []string{
		"military", "tank", "armored", "helicopter", "fighter",
		"fixed-wing", "cargo plane", "cargo truck", "aircraft",
		"artillery", "missile", "weapon", "warship", "harbor",
	}
	civilianKeywords = []string{
		"passenger", "small car", "bus", "pedestrian", "person",
		"stadium", "tennis", "soccer", "swimming", "ferry", "sailboat",
	}
	infrastructureKeywords = []string{
		"bridge", "storage tank", "crane", "airport", "helipad",
		"facility", "pylon", "railway", "terminal", "construction",
		"hangar", "shipping container",
	}
)

func matchesAny(name string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// Classify attaches the semantic flags for a class name. Total and pure:
// unmapped names yield all flags false.
func Classify(className string) (military, civilian, infrastructure bool) {
	name := strings.ToLower(className)
	return matchesAny(name, militaryKeywords),
		matchesAny(name, civilianKeywords),
		matchesAny(name, infrastructureKeywords)
}

// toDetection resolves one raw model output into a semantic Detection.
func (t *ClassTable) toDetection(raw RawDetection) models.Detection {
	name := t.Name(raw.ClassID)
	mil, civ, infra := Classify(name)
	return models.Detection{
		Class:            name,
		Confidence:       clamp01(raw.Confidence),
		Box:              models.Box{X: raw.X, Y: raw.Y, W: raw.W, H: raw.H},
		IsMilitary:       mil,
		IsCivilian:       civ,
		IsInfrastructure: infra,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
