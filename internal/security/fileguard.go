package security

import (
	"path/filepath"
	"strings"
)

// blockedExtensions are refused for both read and write at every level.
// A book source has no reason to touch executable or script files.
var blockedExtensions = []string{
	".exe", ".dll", ".so", ".dylib", ".msi",
	".sh", ".bash", ".bat", ".cmd", ".ps1",
	".jar", ".com", ".scr", ".vbs",
}

// ResolveSandboxPath confines a script-supplied path to the policy's
// sandbox root. The path is joined to the root, normalized, and must still
// be prefixed by the root afterwards, which defeats both ".." traversal
// and absolute-path escapes. Trusted policies skip confinement but still
// get normalization; parent-directory components are refused at every
// level, trusted included.
func ResolveSandboxPath(p *Policy, path string) (string, error) {
	if !p.AllowFile {
		return "", Violated("file.denied", "file access is not permitted at level %s", p.Level)
	}
	if strings.TrimSpace(path) == "" {
		return "", Violated("file.path", "empty path")
	}
	if hasParentComponent(path) {
		return "", Violated("file.path", "path %q contains a parent-directory component", path)
	}
	if err := checkExtension(path); err != nil {
		return "", err
	}

	if p.Level == LevelTrusted {
		return filepath.Clean(path), nil
	}

	root := p.SandboxRoot
	// Joining after rooting the input makes absolute paths relative to the
	// sandbox instead of escaping it.
	resolved := filepath.Join(root, filepath.Clean(string(filepath.Separator)+path))
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", Violated("file.path", "path %q escapes the sandbox root", path)
	}
	return resolved, nil
}

// hasParentComponent reports whether any path segment is "..". Names that
// merely contain consecutive dots, like "notes..v2.txt", are fine.
func hasParentComponent(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func checkExtension(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	for _, blocked := range blockedExtensions {
		if ext == blocked {
			return Violated("file.extension", "extension %q is not permitted", ext)
		}
	}
	return nil
}

// CheckFileSize enforces the policy's write ceiling.
func CheckFileSize(p *Policy, size int64) error {
	if size > p.MaxFileSize {
		return Violated("file.size", "write of %d bytes exceeds limit of %d", size, p.MaxFileSize)
	}
	return nil
}
