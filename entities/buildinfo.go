package entities

import (
	"strings"
)

type ModuleType string

const (
	// Build type
	Build ModuleType = "build"

	Generic ModuleType = "generic"
	Maven   ModuleType = "maven"
	Gradle  ModuleType = "gradle"

	JarArtifactType = "jar"
)

type BuildInfo struct {
	Name       string   `json:"name,omitempty"`
	Number     string   `json:"number,omitempty"`
	Version    string   `json:"version,omitempty"`
	Agent      *Agent   `json:"agent,omitempty"`
	BuildAgent *Agent   `json:"buildAgent,omitempty"`
	Modules    []Module `json:"modules,omitempty"`
	Started    string   `json:"started,omitempty"`
	Properties Env      `json:"properties,omitempty"`
	Principal  string   `json:"artifactoryPrincipal,omitempty"`
	BuildUrl   string   `json:"url,omitempty"`
	// Promotion history of the build, most recent first.
	Statuses []PromotionStatus `json:"statuses,omitempty"`
}

// CurrentStatus returns the most recent promotion status of the build, or nil if it was never promoted.
func (bi *BuildInfo) CurrentStatus() *PromotionStatus {
	if len(bi.Statuses) == 0 {
		return nil
	}
	return &bi.Statuses[0]
}

// FindJarModule returns the first module that produced a jar artifact.
func (bi *BuildInfo) FindJarModule() *Module {
	for i := range bi.Modules {
		if bi.Modules[i].HasArtifactOfType(JarArtifactType) {
			return &bi.Modules[i]
		}
	}
	return nil
}

// PublishedBuildInfo represents the response structure returned from Artifactory when getting a build-info.
type PublishedBuildInfo struct {
	Uri       string    `json:"uri,omitempty"`
	BuildInfo BuildInfo `json:"buildInfo,omitempty"`
}

type PromotionStatus struct {
	Status     string `json:"status,omitempty"`
	Repository string `json:"repository,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	User       string `json:"user,omitempty"`
	Comment    string `json:"comment,omitempty"`
}

type Agent struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

type Module struct {
	Type      ModuleType `json:"type,omitempty"`
	Id        string     `json:"id,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

func (m *Module) HasArtifactOfType(artifactType string) bool {
	for _, artifact := range m.Artifacts {
		if strings.EqualFold(artifact.Type, artifactType) {
			return true
		}
	}
	return false
}

type Artifact struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
	Path string `json:"path,omitempty"`
	Checksum
}

type Checksum struct {
	Sha1   string `json:"sha1,omitempty"`
	Md5    string `json:"md5,omitempty"`
	Sha256 string `json:"sha256,omitempty"`
}

func (c *Checksum) IsEmpty() bool {
	return c.Md5 == "" && c.Sha1 == "" && c.Sha256 == ""
}

type Env map[string]string
