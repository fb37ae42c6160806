//go:build !windows

package filesystem

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"votefuse/pkg/contract"
)

func TestMapPathRootedUnix(t *testing.T) {
	w, _ := New(&Options{Root: t.TempDir()})
	for _, id := range []string{"/abs/out.csv", "..", "../x.csv", ".", "dir/"} {
		_, err := w.mapPath(contract.ArtifactID(id))
		assert.ErrorIs(t, err, contract.ErrPathInvalid, id)
	}
}

func TestMapPathUnrootedAllowsAbs(t *testing.T) {
	w, _ := New(nil)
	p, err := w.mapPath("/tmp/x/NN_SENATE_119.csv")
	assert.NoError(t, err)
	assert.Equal(t, "/tmp/x/NN_SENATE_119.csv", p)
}
