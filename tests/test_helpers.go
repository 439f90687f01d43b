package tests

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jfrog/build-promotion-go/entities"
	"github.com/jfrog/build-promotion-go/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func CreateTempDirWithCallbackAndAssert(t *testing.T) (string, func()) {
	tempDirPath, err := utils.CreateTempDir()
	assert.NoError(t, err, "Couldn't create temp dir")
	return tempDirPath, func() {
		assert.NoError(t, utils.RemoveTempDir(tempDirPath), "Couldn't remove temp dir")
	}
}

// Create a local repository tree under root.
// relativePaths - slash separated paths of the files to create. The content of each file is its path.
func CreateArtifactsTree(t *testing.T, root string, relativePaths ...string) {
	for _, relativePath := range relativePaths {
		path := filepath.Join(root, filepath.FromSlash(relativePath))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(relativePath), 0644))
	}
}

func GetBuildInfo(t *testing.T, filePath string) *entities.BuildInfo {
	data, err := os.ReadFile(filePath)
	require.NoError(t, err)
	buildInfo, err := entities.ParseBuildInfo(data)
	require.NoError(t, err)
	return buildInfo
}
