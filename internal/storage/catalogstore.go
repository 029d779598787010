package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// CatalogsDir holds one directory per workspace with its latest motif
// catalog and behavioral library.
const CatalogsDir = "catalogs"

const (
	catalogFile = "catalog.yaml"
	libraryFile = "library.yaml"
)

// CatalogStore persists motif catalogs and behavioral libraries as YAML
// under <base>/catalogs/<workspace key>/. Saving replaces the previous run.
type CatalogStore interface {
	SaveCatalog(catalog models.MotifCatalog) error
	LoadCatalog(workspace string) (models.MotifCatalog, bool, error)
	SaveLibrary(library models.BehavioralLibrary) error
	LoadLibrary(workspace string) (models.BehavioralLibrary, bool, error)
}

type fileCatalogStore struct {
	basePath string
	mu       sync.Mutex
}

// NewCatalogStore creates a CatalogStore rooted at basePath.
func NewCatalogStore(basePath string) CatalogStore {
	return &fileCatalogStore{basePath: basePath}
}

func (s *fileCatalogStore) dir(workspace string) string {
	return filepath.Join(s.basePath, CatalogsDir, workspaceKey(workspace))
}

func (s *fileCatalogStore) SaveCatalog(catalog models.MotifCatalog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := saveYAML(filepath.Join(s.dir(catalog.Workspace), catalogFile), catalog); err != nil {
		return fmt.Errorf("saving motif catalog for %s: %w", catalog.Workspace, err)
	}
	return nil
}

func (s *fileCatalogStore) LoadCatalog(workspace string) (models.MotifCatalog, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c models.MotifCatalog
	ok, err := loadYAML(filepath.Join(s.dir(workspace), catalogFile), &c)
	if err != nil {
		return models.MotifCatalog{}, false, fmt.Errorf("loading motif catalog for %s: %w", workspace, err)
	}
	return c, ok, nil
}

func (s *fileCatalogStore) SaveLibrary(library models.BehavioralLibrary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := saveYAML(filepath.Join(s.dir(library.Workspace), libraryFile), library); err != nil {
		return fmt.Errorf("saving behavioral library for %s: %w", library.Workspace, err)
	}
	return nil
}

func (s *fileCatalogStore) LoadLibrary(workspace string) (models.BehavioralLibrary, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var l models.BehavioralLibrary
	ok, err := loadYAML(filepath.Join(s.dir(workspace), libraryFile), &l)
	if err != nil {
		return models.BehavioralLibrary{}, false, fmt.Errorf("loading behavioral library for %s: %w", workspace, err)
	}
	return l, ok, nil
}

// loadYAML decodes path into v. A missing file reports ok=false.
func loadYAML(path string, v any) (bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path built from sanitized workspace key
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parsing %s: %w", path, err)
	}
	return true, nil
}

// saveYAML writes v to a temporary file and renames it over path.
func saveYAML(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
