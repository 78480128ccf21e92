package needs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rotisserie/eris"
)

// File mirrors the versioned needs.json layout written by sphinx-needs
type File struct {
	CreatedAt      string             `json:"created"`
	Project        string             `json:"project"`
	CurrentVersion string             `json:"current_version"`
	Versions       map[string]Version `json:"versions"`
}

// Version holds the needs of a single documentation version
type Version struct {
	Created     string `json:"created"`
	NeedsAmount int    `json:"needs_amount"`
	Needs       Set    `json:"needs"`
}

// Load reads a needs.json file. Both the versioned layout and a bare id → need map are accepted.
// If the file doesn't name a current version, the highest version is used.
func Load(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}

	var probe map[string]json.RawMessage
	err = json.Unmarshal(data, &probe)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to decode %s", path)
	}

	if _, ok := probe["versions"]; !ok {
		set := Set{}
		err = json.Unmarshal(data, &set)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to decode needs in %s", path)
		}

		return fixIDs(set), nil
	}

	var file File
	err = json.Unmarshal(data, &file)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to decode %s", path)
	}

	if len(file.Versions) == 0 {
		return Set{}, nil
	}

	version := file.CurrentVersion
	if _, ok := file.Versions[version]; !ok {
		version = NewestVersion(file.Versions)
	}

	set := file.Versions[version].Needs
	if set == nil {
		set = Set{}
	}
	return fixIDs(set), nil
}

// Save writes the set in the versioned layout
func Save(path, project, version string, set Set) error {
	if set == nil {
		set = Set{}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	file := File{
		CreatedAt:      now,
		Project:        project,
		CurrentVersion: version,
		Versions: map[string]Version{
			version: {
				Created:     now,
				NeedsAmount: len(set),
				Needs:       set,
			},
		},
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return eris.Wrap(err, "failed to encode needs")
	}

	err = os.MkdirAll(filepath.Dir(path), 0770)
	if err != nil {
		return eris.Wrapf(err, "failed to create directory for %s", path)
	}

	return eris.Wrapf(os.WriteFile(path, data, 0660), "failed to write %s", path)
}

// NewestVersion picks the highest semantic version among the keys. Keys that aren't valid versions rank
// below all valid ones and are compared lexically among themselves.
func NewestVersion(versions map[string]Version) string {
	keys := make([]string, 0, len(versions))
	for key := range versions {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		a, errA := semver.NewVersion(keys[i])
		b, errB := semver.NewVersion(keys[j])

		switch {
		case errA == nil && errB == nil:
			if a.Equal(b) {
				return keys[i] < keys[j]
			}
			return a.LessThan(b)
		case errA != nil && errB != nil:
			return keys[i] < keys[j]
		default:
			// the invalid one is smaller
			return errA != nil
		}
	})

	return keys[len(keys)-1]
}

// some exports only store the id as the map key. null entries are dropped.
func fixIDs(set Set) Set {
	for id, need := range set {
		if need == nil {
			delete(set, id)
			continue
		}
		if need.ID == "" {
			need.ID = id
		}
	}
	return set
}
