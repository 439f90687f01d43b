package entities

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrInvalidCoordinates = errors.New("invalid artifact coordinates")
	ErrNoJarModule        = errors.New("could not find jar module in build info")
)

// ReleaseDescriptor identifies the build being released. It's created from the build-info before
// any remote call is made and isn't modified afterwards.
type ReleaseDescriptor struct {
	buildName      string
	buildNumber    string
	version        string
	groupId        string
	markerArtifact MarkerArtifact
}

func NewReleaseDescriptor(buildName, buildNumber, groupId, version string, marker MarkerArtifact) ReleaseDescriptor {
	return ReleaseDescriptor{
		buildName:      buildName,
		buildNumber:    buildNumber,
		groupId:        groupId,
		version:        version,
		markerArtifact: marker,
	}
}

// ReleaseDescriptorFromBuildInfo reads the group and version from the id of the first module, and
// picks the first module that produced a jar as the marker artifact.
func ReleaseDescriptorFromBuildInfo(buildInfo *BuildInfo) (ReleaseDescriptor, error) {
	if len(buildInfo.Modules) == 0 {
		return ReleaseDescriptor{}, errors.Errorf("build info %s/%s has no modules", buildInfo.Name, buildInfo.Number)
	}
	moduleInfo := strings.Split(buildInfo.Modules[0].Id, ":")
	if len(moduleInfo) < 3 {
		return ReleaseDescriptor{}, errors.Wrapf(ErrInvalidCoordinates, "module id '%s'", buildInfo.Modules[0].Id)
	}
	jarModule := buildInfo.FindJarModule()
	if jarModule == nil {
		return ReleaseDescriptor{}, errors.Wrapf(ErrNoJarModule, "build %s", buildInfo.Number)
	}
	marker, err := ParseMarkerArtifact(jarModule.Id)
	if err != nil {
		return ReleaseDescriptor{}, err
	}
	return NewReleaseDescriptor(buildInfo.Name, buildInfo.Number, moduleInfo[0], moduleInfo[2], marker), nil
}

func (rd ReleaseDescriptor) BuildName() string {
	return rd.buildName
}

func (rd ReleaseDescriptor) BuildNumber() string {
	return rd.buildNumber
}

func (rd ReleaseDescriptor) Version() string {
	return rd.version
}

func (rd ReleaseDescriptor) GroupId() string {
	return rd.groupId
}

func (rd ReleaseDescriptor) MarkerArtifact() MarkerArtifact {
	return rd.markerArtifact
}

// MarkerArtifact is the artifact probed to find out whether a release was already published.
type MarkerArtifact struct {
	GroupId    string
	ArtifactId string
	Version    string
}

// ParseMarkerArtifact parses 'group:artifact:version' coordinates.
func ParseMarkerArtifact(coordinates string) (MarkerArtifact, error) {
	split := strings.Split(coordinates, ":")
	if len(split) != 3 {
		return MarkerArtifact{}, errors.Wrapf(ErrInvalidCoordinates, "'%s'", coordinates)
	}
	for _, segment := range split {
		if segment == "" {
			return MarkerArtifact{}, errors.Wrapf(ErrInvalidCoordinates, "'%s'", coordinates)
		}
	}
	return MarkerArtifact{GroupId: split[0], ArtifactId: split[1], Version: split[2]}, nil
}

func (ma MarkerArtifact) String() string {
	return fmt.Sprintf("%s:%s:%s", ma.GroupId, ma.ArtifactId, ma.Version)
}

// Sha1Path returns the path of the jar checksum file, relative to the root of a Maven repository.
func (ma MarkerArtifact) Sha1Path() string {
	return fmt.Sprintf("%s/%s/%s/%s-%s.jar.sha1",
		strings.ReplaceAll(ma.GroupId, ".", "/"), ma.ArtifactId, ma.Version, ma.ArtifactId, ma.Version)
}
