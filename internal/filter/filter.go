// Package filter decides which tree entries are worth describing.
package filter

import (
	"fmt"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fyrsmithlabs/repodescribe/internal/source"
)

// OverridesFile is the per-repository override file read from the walk root.
const OverridesFile = ".repodescribe.toml"

// Reason names the rule that excluded an entry.
type Reason string

const (
	Included      Reason = ""
	ReasonName    Reason = "name"
	ReasonHidden  Reason = "hidden"
	ReasonExt     Reason = "extension"
	ReasonDirName Reason = "directory"
)

var (
	defaultNames = []string{".gitignore", "listofdocs.json", "package.json", "package-lock.json"}
	defaultExts  = []string{".png", ".jpg", ".jpeg", ".gif", ".mp4", ".mov", ".avi", ".webm"}
	defaultDirs  = []string{"node_modules"}
)

// Filter holds the denylist. The zero value excludes nothing; use Default.
type Filter struct {
	names map[string]bool
	exts  map[string]bool
	dirs  map[string]bool
}

// Default returns the built-in denylist.
func Default() *Filter {
	f := &Filter{
		names: make(map[string]bool),
		exts:  make(map[string]bool),
		dirs:  make(map[string]bool),
	}
	f.add(Overrides{ExcludeNames: defaultNames, ExcludeExtensions: defaultExts, ExcludeDirs: defaultDirs})
	return f
}

// Overrides adds exclusions on top of the defaults.
type Overrides struct {
	ExcludeNames      []string `toml:"exclude_names" koanf:"exclude_names"`
	ExcludeExtensions []string `toml:"exclude_extensions" koanf:"exclude_extensions"`
	ExcludeDirs       []string `toml:"exclude_dirs" koanf:"exclude_dirs"`
}

// ParseOverrides decodes a .repodescribe.toml document.
func ParseOverrides(data []byte) (Overrides, error) {
	var o Overrides
	md, err := toml.Decode(string(data), &o)
	if err != nil {
		return Overrides{}, fmt.Errorf("parsing %s: %w", OverridesFile, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Overrides{}, fmt.Errorf("parsing %s: unknown keys %v", OverridesFile, undecoded)
	}
	return o, nil
}

// With returns a copy of f extended by o. Defaults are never removed.
func (f *Filter) With(o Overrides) *Filter {
	out := &Filter{
		names: clone(f.names),
		exts:  clone(f.exts),
		dirs:  clone(f.dirs),
	}
	out.add(o)
	return out
}

func (f *Filter) add(o Overrides) {
	for _, n := range o.ExcludeNames {
		f.names[n] = true
	}
	for _, e := range o.ExcludeExtensions {
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		f.exts[e] = true
	}
	for _, d := range o.ExcludeDirs {
		f.dirs[strings.Trim(d, "/")] = true
	}
}

// Check reports why e is excluded, or Included.
func (f *Filter) Check(e source.Entry) Reason {
	switch {
	case f.names[e.Name]:
		return ReasonName
	case strings.HasPrefix(e.Name, "."):
		return ReasonHidden
	case e.Type == source.TypeDir && f.dirs[e.Name]:
		return ReasonDirName
	case e.Type == source.TypeFile && f.exts[path.Ext(e.Name)]:
		return ReasonExt
	}
	return Included
}

// Excluded reports whether e should be skipped before any fetch.
func (f *Filter) Excluded(e source.Entry) bool {
	return f.Check(e) != Included
}

func clone(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
