package capability

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"

	"github.com/papyr-io/papyr/internal/security"
)

// executableMIMEPrefixes block binaries that slip past the extension check
// by arriving without one.
var executableMIMEPrefixes = []string{
	"application/x-executable",
	"application/x-elf",
	"application/x-mach-binary",
	"application/x-msdownload",
	"application/vnd.microsoft.portable-executable",
}

// Files performs sandboxed file operations for scripts. All paths are
// confined to the policy's sandbox root; see security.ResolveSandboxPath.
type Files struct{}

// NewFiles creates the file-operation helper.
func NewFiles() *Files {
	return &Files{}
}

// Read returns the contents of a sandboxed file.
func (f *Files) Read(p *security.Policy, path string) (string, error) {
	resolved, err := security.ResolveSandboxPath(p, path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s failed: %w", path, err)
	}
	if mt := mimetype.Detect(data); isExecutableMIME(mt.String()) {
		return "", security.Violated("file.content", "file %s has executable content (%s)", path, mt)
	}
	return string(data), nil
}

// Write stores data in a sandboxed file, creating parent directories.
func (f *Files) Write(p *security.Policy, path, data string) error {
	resolved, err := security.ResolveSandboxPath(p, path)
	if err != nil {
		return err
	}
	if err := security.CheckFileSize(p, int64(len(data))); err != nil {
		return err
	}
	if mt := mimetype.Detect([]byte(data)); isExecutableMIME(mt.String()) {
		return security.Violated("file.content", "refusing to write executable content (%s)", mt)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create directory for %s failed: %w", path, err)
	}
	if err := os.WriteFile(resolved, []byte(data), 0o644); err != nil {
		return fmt.Errorf("write %s failed: %w", path, err)
	}
	return nil
}

// List returns the sandbox-relative paths under dir, recursively, sorted.
func (f *Files) List(p *security.Policy, dir string) ([]string, error) {
	resolved, err := security.ResolveSandboxPath(p, dir)
	if err != nil {
		return nil, err
	}

	var out []string
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(resolved, path)
		if relErr != nil {
			return nil
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list %s failed: %w", dir, err)
	}
	sort.Strings(out)
	return out, nil
}

// Delete removes a sandboxed file. Directories are refused.
func (f *Files) Delete(p *security.Policy, path string) error {
	resolved, err := security.ResolveSandboxPath(p, path)
	if err != nil {
		return err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s failed: %w", path, err)
	}
	if info.IsDir() {
		return security.Violated("file.path", "refusing to delete directory %s", path)
	}
	if err := os.Remove(resolved); err != nil {
		return fmt.Errorf("delete %s failed: %w", path, err)
	}
	return nil
}

func isExecutableMIME(mime string) bool {
	for _, prefix := range executableMIMEPrefixes {
		if strings.HasPrefix(mime, prefix) {
			return true
		}
	}
	return false
}
