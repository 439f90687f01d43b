package staging

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/jfrog/build-promotion-go/utils"
	"github.com/pkg/errors"
)

// DeployableArtifact is a local file and the path it's deployed to, relative to the staging repository root.
type DeployableArtifact struct {
	File string
	Path string
}

// ArtifactCollector lists the files to deploy from a local Maven repository layout.
type ArtifactCollector struct {
	excludes []*regexp.Regexp
}

// NewArtifactCollector compiles the exclude patterns. A file is excluded when any pattern matches its relative path.
func NewArtifactCollector(excludes []string) (*ArtifactCollector, error) {
	regExps, err := utils.CompileRegExps(excludes...)
	if err != nil {
		return nil, err
	}
	return &ArtifactCollector{excludes: regExps}, nil
}

// Collect walks root recursively. The order of the result isn't meaningful.
func (ac *ArtifactCollector) Collect(root string) ([]DeployableArtifact, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to collect artifacts from %s", root)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("failed to collect artifacts from %s: not a directory", root)
	}
	files, err := utils.ListFilesRecursive(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to collect artifacts from %s", root)
	}
	artifacts := make([]DeployableArtifact, 0, len(files))
	for _, file := range files {
		relative, err := filepath.Rel(root, file)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to collect artifacts from %s", root)
		}
		relative = filepath.ToSlash(relative)
		if utils.MatchAny(ac.excludes, relative) {
			continue
		}
		artifacts = append(artifacts, DeployableArtifact{File: file, Path: relative})
	}
	return artifacts, nil
}
