package adapters

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// WorkspaceAdapter discovers the configuration files of a Python
// project that belong in an environment snapshot alongside the
// manifest.
type WorkspaceAdapter struct{}

func NewWorkspaceAdapter() WorkspaceAdapter {
	return WorkspaceAdapter{}
}

// FindConfigFiles walks the project root and returns every dependency
// configuration file, skipping virtualenvs, caches, and VCS metadata.
func (a WorkspaceAdapter) FindConfigFiles(root string) ([]string, error) {
	var paths []string
	if root == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("project root is empty")
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if shouldSkipProjectDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldSkipProjectPath(path) {
			return nil
		}
		if isConfigFile(filepath.Base(path)) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to scan project").
			WithCause(err)
	}
	return paths, nil
}

func isConfigFile(name string) bool {
	switch name {
	case "pyproject.toml", "setup.cfg", "setup.py", "Pipfile", "constraints.txt":
		return true
	}
	return strings.HasPrefix(name, "requirements") && strings.HasSuffix(name, ".txt")
}

func shouldSkipProjectDir(name string) bool {
	switch name {
	case ".git", ".tox", ".venv", "venv", "__pycache__", "node_modules", ".mypy_cache", ".pytest_cache":
		return true
	default:
		return false
	}
}

func shouldSkipProjectPath(path string) bool {
	ignored := []string{
		string(filepath.Separator) + ".git" + string(filepath.Separator),
		string(filepath.Separator) + ".tox" + string(filepath.Separator),
		string(filepath.Separator) + ".venv" + string(filepath.Separator),
		string(filepath.Separator) + "venv" + string(filepath.Separator),
		string(filepath.Separator) + "__pycache__" + string(filepath.Separator),
		string(filepath.Separator) + "site-packages" + string(filepath.Separator),
	}
	for _, marker := range ignored {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}
