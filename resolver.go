package loop_client

import (
	"fmt"
	"path"
	"strings"
)

const (
	DefaultClientDir  = "LoopClient"
	DefaultFilePrefix = "[LOOP] "
)

// A Resolver computes where a download is saved: <Root>/<ClientDir>/<FilePrefix><filename>, using the separator
// convention of the target platform. The filename is used as-is; sanitising it is left to the host filesystem.
type Resolver struct {
	Root       string
	ClientDir  string
	FilePrefix string
}

func NewResolver(root string) Resolver {
	return Resolver{
		Root:       root,
		ClientDir:  DefaultClientDir,
		FilePrefix: DefaultFilePrefix,
	}
}

// Dir returns the directory all downloads are saved into.
func (r Resolver) Dir(platform Platform) string {
	sep := platform.Separator()
	return strings.TrimRight(r.Root, sep) + sep + r.ClientDir
}

// Resolve is a pure function of its inputs: it never touches the filesystem and never avoids collisions.
func (r Resolver) Resolve(platform Platform, filename string) string {
	return r.Dir(platform) + platform.Separator() + r.FilePrefix + filename
}

// ResolveUnique is like Resolve, but if taken reports the path as in use, it inserts " (n)" before the extension
// with n counting up from 1 until a free path is found.
func (r Resolver) ResolveUnique(platform Platform, filename string, taken func(string) bool) string {
	candidate := r.Resolve(platform, filename)
	if taken == nil || !taken(candidate) {
		return candidate
	}
	stem, ext := splitExt(filename)
	for n := 1; ; n++ {
		candidate = r.Resolve(platform, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if !taken(candidate) {
			return candidate
		}
	}
}

// splitExt treats compound archive suffixes like ".tar.gz" as a single extension.
func splitExt(filename string) (string, string) {
	lower := strings.ToLower(filename)
	for _, compound := range []string{".tar.gz", ".tar.bz2", ".tar.xz", ".tar.zst"} {
		if strings.HasSuffix(lower, compound) && len(filename) > len(compound) {
			cut := len(filename) - len(compound)
			return filename[:cut], filename[cut:]
		}
	}
	ext := path.Ext(filename)
	if ext == filename {
		// Dotfiles like ".bashrc" have no extension
		return filename, ""
	}
	return strings.TrimSuffix(filename, ext), ext
}
