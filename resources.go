package gosm

import (
	"io"
	"io/fs"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// Locates mapper documents. `Open` resolves a single logical resource name, as
// found in `<mapper resource="...">`. `Glob` expands a search path such as
// `mapper/**/*.xml` into resource names that can then be passed to `Open`.
//
// The default resolver is `FSResolver{os.DirFS(".")}`.
type Resolver interface {
	Open(name string) (io.ReadCloser, error)
	Glob(pattern string) ([]string, error)
}

/*
`Resolver` backed by an `fs.FS`. Works with `os.DirFS`, `embed.FS`,
`fstest.MapFS` and so on. Glob patterns support `**` for any number of
directories.
*/
type FSResolver struct{ FS fs.FS }

// Implement `Resolver`.
func (self FSResolver) Open(name string) (io.ReadCloser, error) {
	file, err := self.fsys().Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, `opening resource %q`, name)
	}
	return file, nil
}

// Implement `Resolver`. The result is sorted, which makes loading order
// deterministic.
func (self FSResolver) Glob(pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.Errorf(`invalid search path %q`, pattern)
	}
	names, err := doublestar.Glob(self.fsys(), pattern)
	if err != nil {
		return nil, errors.Wrapf(err, `expanding search path %q`, pattern)
	}
	sort.Strings(names)
	return names, nil
}

func (self FSResolver) fsys() fs.FS {
	if self.FS == nil {
		return os.DirFS(".")
	}
	return self.FS
}

func parseResource(res Resolver, name string) (*Node, error) {
	file, err := res.Open(name)
	if err != nil {
		return nil, ErrConfiguration.while(`loading mapper ` + name).because(err)
	}
	defer file.Close()

	root, err := parseXml(file)
	if err != nil {
		return nil, ErrConfiguration.while(`parsing mapper ` + name).because(err)
	}
	return root, nil
}
