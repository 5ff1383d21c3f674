package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/automigrate/pkg/migration"
	"github.com/platinummonkey/automigrate/pkg/state"
)

// sequencePattern matches the numeric prefix of migration file names,
// "0001_initial.yaml" style.
var sequencePattern = regexp.MustCompile(`^(\d+)_`)

// Repository stores migration plan files under root, one directory per app.
type Repository struct {
	root string
	log  *logrus.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger overrides the repository's logger.
func WithLogger(log *logrus.Logger) Option {
	return func(r *Repository) { r.log = log }
}

// NewRepository creates a repository rooted at dir.
func NewRepository(dir string, opts ...Option) *Repository {
	r := &Repository{root: dir, log: logrus.New()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Save writes a migration's plan file, creating the app directory as needed.
// Returns the written path.
func (r *Repository) Save(m *migration.Migration) (string, error) {
	doc, err := encodeMigration(m)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", m.ID(), err)
	}

	dir := filepath.Join(r.root, m.App)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create migration directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, m.Name+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	r.log.WithFields(logrus.Fields{"app": m.App, "name": m.Name, "path": path}).Info("wrote migration plan")
	return path, nil
}

// Load reads one migration plan file.
func (r *Repository) Load(app, name string) (*migration.Migration, error) {
	path := filepath.Join(r.root, app, name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var doc migrationDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return decodeMigration(&doc)
}

// LoadAll reads every plan file under root, sorted by app then file name, so
// per-app sequence numbers come back in order.
func (r *Repository) LoadAll() ([]*migration.Migration, error) {
	entries, err := os.ReadDir(r.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read migration root %s: %w", r.root, err)
	}

	var migrations []*migration.Migration
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		app := entry.Name()
		files, err := os.ReadDir(filepath.Join(r.root, app))
		if err != nil {
			return nil, fmt.Errorf("failed to read app directory %s: %w", app, err)
		}
		names := make([]string, 0, len(files))
		for _, file := range files {
			if !file.IsDir() && strings.HasSuffix(file.Name(), ".yaml") {
				names = append(names, strings.TrimSuffix(file.Name(), ".yaml"))
			}
		}
		sort.Strings(names)
		for _, name := range names {
			m, err := r.Load(app, name)
			if err != nil {
				return nil, err
			}
			migrations = append(migrations, m)
		}
	}
	return migrations, nil
}

// NextSequence returns the next migration sequence number for an app, by
// scanning existing file names for their numeric prefix. The first migration
// of an app gets 1.
func (r *Repository) NextSequence(app string) (int, error) {
	files, err := os.ReadDir(filepath.Join(r.root, app))
	if os.IsNotExist(err) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read app directory %s: %w", app, err)
	}

	highest := 0
	for _, file := range files {
		match := sequencePattern.FindStringSubmatch(file.Name())
		if match == nil {
			continue
		}
		n, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

// SequencedName prefixes a migration name with the app's next sequence
// number, "0002_add_bio" style.
func (r *Repository) SequencedName(app, name string) (string, error) {
	seq, err := r.NextSequence(app)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d_%s", seq, name), nil
}

// RebuildState replays recorded migrations into the project state they
// produce. Replay is in-memory only: operations apply by (app, name), so
// lexicographic per-app order is sufficient.
func RebuildState(migrations []*migration.Migration) (*state.ProjectState, error) {
	sorted := make([]*migration.Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID() < sorted[j].ID() })

	project := state.NewProjectState()
	for _, m := range sorted {
		if err := m.Apply(project); err != nil {
			return nil, fmt.Errorf("failed to rebuild state: %w", err)
		}
	}
	return project, nil
}

// snapshotDoc is the YAML shape of a declared-models snapshot file.
type snapshotDoc struct {
	Models     []modelDoc `yaml:"models"`
	ManyToMany []m2mDoc   `yaml:"many_to_many,omitempty"`
}

// LoadSnapshot reads a declared-models snapshot, the "new" side of a
// detection run.
func LoadSnapshot(path string) (*state.ProjectState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	var doc snapshotDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}

	project := state.NewProjectState()
	for _, md := range doc.Models {
		modelCopy := md
		model, err := decodeModel(&modelCopy)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", path, err)
		}
		if err := project.AddModel(model); err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", path, err)
		}
	}
	for _, md := range doc.ManyToMany {
		mdCopy := md
		meta, err := decodeManyToMany(&mdCopy)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", path, err)
		}
		project.AddManyToMany(meta)
	}
	if err := project.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	return project, nil
}
