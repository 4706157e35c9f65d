package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepository(t *testing.T) {
	tests := []struct {
		in   string
		want Repository
	}{
		{"octo/hello", Repository{Owner: "octo", Name: "hello"}},
		{"github.com/octo/hello", Repository{Owner: "octo", Name: "hello"}},
		{"https://github.com/octo/hello", Repository{Owner: "octo", Name: "hello"}},
		{"https://github.com/octo/hello.git", Repository{Owner: "octo", Name: "hello"}},
		{"https://github.com/octo/hello/", Repository{Owner: "octo", Name: "hello"}},
		{"https://github.com/octo/hello/tree/main", Repository{Owner: "octo", Name: "hello", Ref: "main"}},
		{"https://github.com/octo/hello/tree/v2/pkg/api", Repository{Owner: "octo", Name: "hello", Ref: "v2", Path: "pkg/api"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRepository(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRepository_Invalid(t *testing.T) {
	for _, in := range []string{"", "octo", "https://github.com/octo", "octo/hello/extra"} {
		_, err := ParseRepository(in)
		assert.Error(t, err, in)
	}
}

func TestRepository_Names(t *testing.T) {
	r := Repository{Owner: "octo", Name: "hello"}
	assert.Equal(t, "octo/hello", r.FullName())
	assert.Equal(t, "https://github.com/octo/hello", r.URL())
}

func TestRetrievalError(t *testing.T) {
	err := &RetrievalError{Op: "list", Path: "", Err: ErrNotDirectory}
	assert.Equal(t, "list /: not a directory", err.Error())
	assert.ErrorIs(t, err, ErrRetrieval)
	assert.ErrorIs(t, err, ErrNotDirectory)
}
