package vector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Artifact file names inside a build directory. A build directory is
// immutable once published; the pairing of index and map is enforced by both
// living in the same directory, never by embedding one inside the other.
const (
	IndexFileName    = "vectors.bin"
	IDMapFileName    = "id_map.json"
	ManifestFileName = "manifest.json"

	// CurrentLinkName is the symlink under the index root that points at the
	// serving build directory.
	CurrentLinkName = "current"

	buildsDirName  = "builds"
	currentLinkTmp = "current.tmp"
)

// Manifest records the identity and shape of one build.
type Manifest struct {
	BuildID    string    `json:"build_id"`
	Dimensions int       `json:"dimensions"`
	Size       int       `json:"size"`
	Metric     string    `json:"metric"`
	CreatedAt  time.Time `json:"created_at"`
}

// Snapshot is one published index/identifier-map pair, loaded from a single
// build directory. It is immutable; a rebuild produces a new Snapshot and
// swaps it into the Registry.
type Snapshot struct {
	Manifest Manifest
	Index    *FlatIndex
	IDMap    *IdentifierMap
}

// BuildDir returns the directory for a build id under root.
func BuildDir(root, buildID string) string {
	return filepath.Join(root, buildsDirName, buildID)
}

// WriteSnapshot stages the index, map, and manifest into the build directory
// for buildID. The directory is created; nothing is published yet.
func WriteSnapshot(root, buildID string, ix *FlatIndex, idMap *IdentifierMap) error {
	if ix.Size() != idMap.Len() {
		return fmt.Errorf("index size %d does not match id map size %d", ix.Size(), idMap.Len())
	}
	dir := BuildDir(root, buildID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create build dir: %w", err)
	}
	if err := ix.Save(filepath.Join(dir, IndexFileName)); err != nil {
		return err
	}
	if err := idMap.Save(filepath.Join(dir, IDMapFileName)); err != nil {
		return err
	}
	manifest := Manifest{
		BuildID:    buildID,
		Dimensions: ix.Dimensions(),
		Size:       ix.Size(),
		Metric:     Metric,
		CreatedAt:  time.Now().UTC(),
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFileName), data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Publish atomically retargets the serving link at root to the build
// directory for buildID. A concurrent reader resolves the link before or
// after the rename and in either case sees one complete build, never a mix.
func Publish(root, buildID string) error {
	target := filepath.Join(buildsDirName, buildID)
	if _, err := os.Stat(BuildDir(root, buildID)); err != nil {
		return fmt.Errorf("build %s not staged: %w", buildID, err)
	}
	tmp := filepath.Join(root, currentLinkTmp)
	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("create publish link: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(root, CurrentLinkName)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("publish build %s: %w", buildID, err)
	}
	return nil
}

// DiscardBuild removes a staged, unpublished build directory.
func DiscardBuild(root, buildID string) error {
	return os.RemoveAll(BuildDir(root, buildID))
}

// LoadCurrent loads the serving snapshot under root. The current link is
// resolved once and all artifacts are read from that one directory, so the
// index and map are always a matched pair. Returns os.ErrNotExist when no
// build has been published yet.
func LoadCurrent(root string) (*Snapshot, error) {
	dir, err := filepath.EvalSymlinks(filepath.Join(root, CurrentLinkName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("resolve current build: %w", err)
	}
	return LoadSnapshot(dir)
}

// LoadSnapshot loads the snapshot stored in one build directory and verifies
// the map/index size invariant.
func LoadSnapshot(dir string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if manifest.Metric != Metric {
		return nil, fmt.Errorf("unsupported metric %q in build %s", manifest.Metric, manifest.BuildID)
	}
	ix, err := LoadFlatIndex(filepath.Join(dir, IndexFileName))
	if err != nil {
		return nil, err
	}
	idMap, err := LoadIdentifierMap(filepath.Join(dir, IDMapFileName))
	if err != nil {
		return nil, err
	}
	if ix.Size() != idMap.Len() {
		return nil, fmt.Errorf("corrupt build %s: index size %d, id map size %d", manifest.BuildID, ix.Size(), idMap.Len())
	}
	if ix.Dimensions() != manifest.Dimensions || ix.Size() != manifest.Size {
		return nil, fmt.Errorf("corrupt build %s: manifest disagrees with artifacts", manifest.BuildID)
	}
	return &Snapshot{Manifest: manifest, Index: ix, IDMap: idMap}, nil
}

// PruneBuilds removes all but the keep most recently created build
// directories, never touching the one the current link points at.
func PruneBuilds(root string, keep int) error {
	buildsDir := filepath.Join(root, buildsDirName)
	entries, err := os.ReadDir(buildsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	current, _ := filepath.EvalSymlinks(filepath.Join(root, CurrentLinkName))

	type build struct {
		name    string
		modTime time.Time
	}
	var builds []build
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		builds = append(builds, build{name: e.Name(), modTime: info.ModTime()})
	}
	sort.Slice(builds, func(i, j int) bool { return builds[i].modTime.After(builds[j].modTime) })
	for i, b := range builds {
		dir := filepath.Join(buildsDir, b.name)
		if i < keep {
			continue
		}
		if resolved, err := filepath.EvalSymlinks(dir); err == nil && resolved == current {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("prune build %s: %w", b.name, err)
		}
	}
	return nil
}
