// Package store persists generated game files under a single output
// directory, optionally grouped into named project folders.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultRoot is the output directory used when none is configured.
const DefaultRoot = "generated_games"

// ProjectType marks the project.json files this store writes.
const ProjectType = "phaser3-game"

const projectInfoFile = "project.json"

// SavedFile describes a file after a successful Save.
type SavedFile struct {
	Path     string    `json:"path"`
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	SavedAt  time.Time `json:"saved_at"`
}

// FileInfo describes a stored file as reported by List.
type FileInfo struct {
	Filename string    `json:"filename"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Metadata extends FileInfo with a content type label and a
// human-readable size.
type Metadata struct {
	FileInfo
	Type      string `json:"type"`
	SizeLabel string `json:"size_label"`
}

// ProjectInfo mirrors the project.json written by CreateProject.
type ProjectInfo struct {
	Name      string    `json:"name"`
	Created   time.Time `json:"created"`
	Structure []string  `json:"structure"`
	Type      string    `json:"type"`
}

// Store reads and writes game files beneath a root directory. The root
// itself is created on construction; project subdirectories are created
// on first use.
type Store struct {
	root string
	now  func() time.Time
}

// Option adjusts Store construction.
type Option func(*Store)

// WithNow overrides the clock used for timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a store rooted at dir, falling back to DefaultRoot when
// dir is empty.
func New(dir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultRoot
	}
	s := &Store{root: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(s.root, 0o750); err != nil {
		return nil, fmt.Errorf("store: create root %s: %w", s.root, err)
	}
	return s, nil
}

// Root returns the output directory the store writes under.
func (s *Store) Root() string {
	return s.root
}

// Save writes content to filename, beneath the project folder when
// project is non-empty. Missing directories are created.
func (s *Store) Save(filename, content, project string) (SavedFile, error) {
	name, err := cleanName(filename, "filename")
	if err != nil {
		return SavedFile{}, err
	}
	dir, err := s.projectDir(project)
	if err != nil {
		return SavedFile{}, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return SavedFile{}, fmt.Errorf("store: create directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return SavedFile{}, fmt.Errorf("store: write %s: %w", path, err)
	}
	return SavedFile{
		Path:     path,
		Filename: name,
		Size:     int64(len(content)),
		SavedAt:  s.now().UTC(),
	}, nil
}

// Read returns the content of a stored file. A missing file reports
// fs.ErrNotExist through the error chain.
func (s *Store) Read(filename, project string) (string, error) {
	path, err := s.filePath(filename, project)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path is confined to the store root by cleanName.
	if err != nil {
		return "", fmt.Errorf("store: read %s: %w", path, err)
	}
	return string(data), nil
}

// Delete removes a stored file.
func (s *Store) Delete(filename, project string) error {
	path, err := s.filePath(filename, project)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("store: delete %s: %w", path, err)
	}
	return nil
}

// List walks the project directory (or the whole root when project is
// empty) and reports every regular file with its root-relative path.
func (s *Store) List(project string) ([]FileInfo, error) {
	dir, err := s.projectDir(project)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("store: list %s: %w", dir, err)
	}
	var files []FileInfo
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		files = append(files, FileInfo{
			Filename: d.Name(),
			Path:     filepath.ToSlash(rel),
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("store: list %s: %w", dir, walkErr)
	}
	return files, nil
}

// Metadata stats a stored file and labels it by extension.
func (s *Store) Metadata(filename, project string) (Metadata, error) {
	path, err := s.filePath(filename, project)
	if err != nil {
		return Metadata{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("store: stat %s: %w", path, err)
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return Metadata{}, fmt.Errorf("store: stat %s: %w", path, err)
	}
	return Metadata{
		FileInfo: FileInfo{
			Filename: info.Name(),
			Path:     filepath.ToSlash(rel),
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		},
		Type:      TypeOf(info.Name()),
		SizeLabel: FormatSize(info.Size()),
	}, nil
}

// CreateProject lays out a project folder with js and css
// subdirectories, plus asset folders when includeAssets is set, and
// records the layout in a project.json file.
func (s *Store) CreateProject(name string, includeAssets bool) (ProjectInfo, error) {
	project, err := cleanName(name, "project name")
	if err != nil {
		return ProjectInfo{}, err
	}
	dirs := []string{"js", "css"}
	if includeAssets {
		dirs = append(dirs, "assets", "assets/images", "assets/sounds", "assets/sprites")
	}
	projectDir := filepath.Join(s.root, project)
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(projectDir, d), 0o750); err != nil {
			return ProjectInfo{}, fmt.Errorf("store: create project %s: %w", project, err)
		}
	}
	info := ProjectInfo{
		Name:      project,
		Created:   s.now().UTC(),
		Structure: dirs,
		Type:      ProjectType,
	}
	payload, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return ProjectInfo{}, fmt.Errorf("store: encode project info: %w", err)
	}
	infoPath := filepath.Join(projectDir, projectInfoFile)
	if err := os.WriteFile(infoPath, payload, 0o600); err != nil {
		return ProjectInfo{}, fmt.Errorf("store: write %s: %w", infoPath, err)
	}
	return info, nil
}

// Projects lists every project folder under the root. Folders without a
// readable project.json are reported by name alone.
func (s *Store) Projects() ([]ProjectInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("store: list projects: %w", err)
	}
	var projects []ProjectInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info := ProjectInfo{Name: entry.Name()}
		data, err := os.ReadFile(filepath.Join(s.root, entry.Name(), projectInfoFile)) // #nosec G304 -- reads only inside the store root.
		if err == nil {
			_ = json.Unmarshal(data, &info)
			info.Name = entry.Name()
		}
		projects = append(projects, info)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, nil
}

func (s *Store) filePath(filename, project string) (string, error) {
	name, err := cleanName(filename, "filename")
	if err != nil {
		return "", err
	}
	dir, err := s.projectDir(project)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func (s *Store) projectDir(project string) (string, error) {
	if strings.TrimSpace(project) == "" {
		return s.root, nil
	}
	name, err := cleanName(project, "project name")
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, name), nil
}

// ErrInvalidName reports a filename or project name that is empty or
// would escape the store root.
var ErrInvalidName = errors.New("store: invalid name")

// cleanName rejects empty names and anything that would escape the
// store root, such as separators or parent references.
func cleanName(name, label string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidName, label)
	}
	if trimmed != filepath.Base(trimmed) || trimmed == "." || trimmed == ".." {
		return "", fmt.Errorf("%w: %s %q", ErrInvalidName, label, name)
	}
	return trimmed, nil
}

var fileTypes = map[string]string{
	".html": "HTML",
	".js":   "JavaScript",
	".css":  "CSS",
	".json": "JSON",
	".png":  "Image",
	".jpg":  "Image",
	".jpeg": "Image",
	".gif":  "Image",
	".svg":  "Image",
	".mp3":  "Audio",
	".wav":  "Audio",
	".ogg":  "Audio",
}

// TypeOf labels a filename by extension, reporting Unknown for anything
// unrecognized.
func TypeOf(filename string) string {
	if t, ok := fileTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return t
	}
	return "Unknown"
}

// FormatSize renders a byte count with two decimals in the largest unit
// below 1024, up to terabytes.
func FormatSize(size int64) string {
	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if value < 1024 {
			return fmt.Sprintf("%.2f %s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.2f TB", value)
}
