package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"clustermatch/internal/domain"
)

// Resolver finds artifact files under a data directory.
type Resolver struct {
	root string
}

func NewResolver(root string) *Resolver {
	return &Resolver{root: root}
}

// Resolve returns the path of the newest file matching pattern. Matches are
// ordered with digit runs compared numerically, so "_v10" beats "_v9".
func (r *Resolver) Resolve(artifact, pattern string) (string, error) {
	matches, err := r.Matches(pattern)
	if err != nil {
		return "", domain.NewArtifactError(artifact, err)
	}
	if len(matches) == 0 {
		return "", domain.NewArtifactError(artifact, fmt.Errorf("no file matches %q in %s: %w", pattern, r.root, os.ErrNotExist))
	}
	return filepath.Join(r.root, filepath.FromSlash(matches[len(matches)-1])), nil
}

// Matches returns all regular files matching pattern, relative to the root,
// oldest version first.
func (r *Resolver) Matches(pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}
	matches, err := doublestar.Glob(os.DirFS(r.root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	sort.Slice(matches, func(i, j int) bool { return naturalLess(matches[i], matches[j]) })
	return matches, nil
}

func naturalLess(a, b string) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if isDigit(a[i]) && isDigit(b[j]) {
			si := i
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			sj := j
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			na, nb := trimZeros(a[si:i]), trimZeros(b[sj:j])
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			continue
		}
		if a[i] != b[j] {
			return a[i] < b[j]
		}
		i++
		j++
	}
	return len(a)-i < len(b)-j
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func trimZeros(s string) string {
	for len(s) > 1 && s[0] == '0' {
		s = s[1:]
	}
	return s
}
