package filter

import (
	"testing"

	"github.com/fyrsmithlabs/repodescribe/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(name string) source.Entry { return source.Entry{Name: name, Path: name, Type: source.TypeFile} }
func dir(name string) source.Entry  { return source.Entry{Name: name, Path: name, Type: source.TypeDir} }

func TestDefault(t *testing.T) {
	f := Default()
	tests := []struct {
		entry source.Entry
		want  Reason
	}{
		{file(".gitignore"), ReasonName},
		{file("listofdocs.json"), ReasonName},
		{file("package.json"), ReasonName},
		{file("package-lock.json"), ReasonName},
		{file(".env"), ReasonHidden},
		{dir(".github"), ReasonHidden},
		{file("logo.png"), ReasonExt},
		{file("photo.jpg"), ReasonExt},
		{file("photo.jpeg"), ReasonExt},
		{file("anim.gif"), ReasonExt},
		{file("clip.mp4"), ReasonExt},
		{file("clip.mov"), ReasonExt},
		{file("clip.avi"), ReasonExt},
		{file("clip.webm"), ReasonExt},
		{dir("node_modules"), ReasonDirName},

		{file("README.md"), Included},
		{file("main.go"), Included},
		{file("tsconfig.json"), Included},
		{dir("src"), Included},
		// extension rules are for files only
		{dir("assets.png"), Included},
		// directory rules are for directories only
		{file("node_modules"), Included},
		// matching is exact
		{file("LOGO.PNG"), Included},
	}
	for _, tt := range tests {
		t.Run(tt.entry.Name+"/"+string(tt.entry.Type), func(t *testing.T) {
			assert.Equal(t, tt.want, f.Check(tt.entry))
			assert.Equal(t, tt.want != Included, f.Excluded(tt.entry))
		})
	}
}

func TestParseOverrides(t *testing.T) {
	o, err := ParseOverrides([]byte(`
exclude_names = ["CHANGELOG.md"]
exclude_extensions = [".svg", "pdf"]
exclude_dirs = ["vendor/", "testdata"]
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"CHANGELOG.md"}, o.ExcludeNames)

	f := Default().With(o)
	assert.True(t, f.Excluded(file("CHANGELOG.md")))
	assert.True(t, f.Excluded(file("diagram.svg")))
	assert.True(t, f.Excluded(file("paper.pdf")))
	assert.True(t, f.Excluded(dir("vendor")))
	assert.True(t, f.Excluded(dir("testdata")))

	// defaults survive
	assert.True(t, f.Excluded(file("package.json")))
	assert.True(t, f.Excluded(file(".env")))
}

func TestWith_DoesNotMutateReceiver(t *testing.T) {
	base := Default()
	_ = base.With(Overrides{ExcludeNames: []string{"Makefile"}})
	assert.False(t, base.Excluded(file("Makefile")))
}

func TestParseOverrides_Invalid(t *testing.T) {
	_, err := ParseOverrides([]byte(`exclude_names = "not a list"`))
	require.Error(t, err)

	_, err = ParseOverrides([]byte(`include_names = ["x"]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
}
