// Package resolver maps normalized page identifiers to source artifacts on
// disk. The coordinator only depends on the Resolver interface; the filesystem
// implementation here covers the common dev-server layout of a pages root with
// per-page source files.
package resolver

import (
	"os"
	"path/filepath"
	"strings"

	oerrors "git.home.luguber.info/inful/ondemand/internal/errors"
)

// Resolver turns a page identifier into a concrete artifact path.
type Resolver interface {
	// Resolve fails with a resolution error when the page has no matching source.
	Resolve(pageID string) (string, error)
}

// DefaultExtensions are probed in order when resolving a page.
var DefaultExtensions = []string{".js", ".jsx", ".ts", ".tsx"}

// FSResolver resolves pages against a directory tree. "/foo" matches
// root/foo.<ext> or root/foo/index.<ext>; "/" matches root/index.<ext>.
type FSResolver struct {
	root       string
	extensions []string
}

func NewFSResolver(root string, extensions []string) *FSResolver {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	return &FSResolver{root: root, extensions: extensions}
}

func (r *FSResolver) Resolve(pageID string) (string, error) {
	rel := strings.Trim(pageID, "/")

	var candidates []string
	if rel == "" {
		candidates = []string{"index"}
	} else {
		candidates = []string{rel, filepath.Join(rel, "index")}
	}

	for _, cand := range candidates {
		for _, ext := range r.extensions {
			path := filepath.Join(r.root, cand+ext)
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return "", oerrors.Wrap(err, oerrors.CategoryResolution, oerrors.SeverityError, "resolving artifact path").
					WithContext("page", pageID)
			}
			return abs, nil
		}
	}
	return "", oerrors.ResolutionError(pageID)
}
