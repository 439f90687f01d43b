package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jfrog/gofrog/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPollingInterval = 15 * time.Second
	DefaultUploadThreads   = 8
	DefaultDeployTimeout   = 60 * time.Minute
	DefaultBuildInfoFile   = `build-info\.json`

	DefaultArtifactoryUrl  = "https://repo.spring.io"
	DefaultSdkmanUrl       = "https://vendors.sdkman.io/"
	DefaultDownloadBaseUrl = "https://repo.maven.apache.org/maven2/"
)

var sdkmanArtifactPattern = regexp.MustCompile(`^[a-z.]+:[a-z\-]+:[^:]+(:[a-z.]+(:[a-z]+)?)?$`)

type Config struct {
	Sonatype    SonatypeConfig    `toml:"sonatype" yaml:"sonatype"`
	Artifactory ArtifactoryConfig `toml:"artifactory" yaml:"artifactory"`
	Sdkman      SdkmanConfig      `toml:"sdkman" yaml:"sdkman"`
}

type SonatypeConfig struct {
	Url      string `toml:"url" yaml:"url"`
	Username string `toml:"username" yaml:"username"`
	Password string `toml:"password" yaml:"password"`
	// Name of the staging profile used to publish releases.
	StagingProfile string `toml:"staging_profile" yaml:"staging_profile"`
	// Deprecated: use StagingProfile.
	StagingProfileId string `toml:"staging_profile_id" yaml:"staging_profile_id"`
	// Time between requests made to determine if the closing of a staging repository has completed.
	PollingInterval Duration `toml:"polling_interval" yaml:"polling_interval"`
	UploadThreads   int      `toml:"upload_threads" yaml:"upload_threads"`
	DeployTimeout   Duration `toml:"deploy_timeout" yaml:"deploy_timeout"`
	// Regular expressions matched against the relative path of the artifacts to exclude.
	Exclude     []string `toml:"exclude" yaml:"exclude"`
	AutoRelease *bool    `toml:"auto_release" yaml:"auto_release"`
}

// IsAutoRelease is true unless auto release was explicitly disabled.
func (sc *SonatypeConfig) IsAutoRelease() bool {
	return sc.AutoRelease == nil || *sc.AutoRelease
}

type ArtifactoryConfig struct {
	Url      string `toml:"url" yaml:"url"`
	Username string `toml:"username" yaml:"username"`
	Password string `toml:"password" yaml:"password"`
	// Optional project key, sent as the 'project' query parameter.
	Project    string           `toml:"project" yaml:"project"`
	Repository RepositoryConfig `toml:"repository" yaml:"repository"`
}

type RepositoryConfig struct {
	Staging          string `toml:"staging" yaml:"staging"`
	Milestone        string `toml:"milestone" yaml:"milestone"`
	ReleaseCandidate string `toml:"release_candidate" yaml:"release_candidate"`
	Release          string `toml:"release" yaml:"release"`
}

type SdkmanConfig struct {
	ConsumerKey   string `toml:"consumer_key" yaml:"consumer_key"`
	ConsumerToken string `toml:"consumer_token" yaml:"consumer_token"`
	Candidate     string `toml:"candidate" yaml:"candidate"`
	// group:artifact:version[:packaging[:classifier]]
	Artifact string `toml:"artifact" yaml:"artifact"`
	// Printf pattern receiving the version.
	BroadcastUrl    string `toml:"broadcast_url" yaml:"broadcast_url"`
	Url             string `toml:"url" yaml:"url"`
	DownloadBaseUrl string `toml:"download_base_url" yaml:"download_base_url"`
}

func Default() *Config {
	return &Config{
		Sonatype: SonatypeConfig{
			PollingInterval: Duration{DefaultPollingInterval},
			UploadThreads:   DefaultUploadThreads,
			DeployTimeout:   Duration{DefaultDeployTimeout},
			Exclude:         []string{DefaultBuildInfoFile},
		},
		Artifactory: ArtifactoryConfig{
			Url: DefaultArtifactoryUrl,
			Repository: RepositoryConfig{
				Staging:          "libs-staging-local",
				Milestone:        "libs-milestone-local",
				ReleaseCandidate: "libs-milestone-local",
				Release:          "libs-release-local",
			},
		},
		Sdkman: SdkmanConfig{
			Url:             DefaultSdkmanUrl,
			DownloadBaseUrl: DefaultDownloadBaseUrl,
		},
	}
}

// Load reads a TOML or YAML file, chosen by extension, on top of the defaults, and then applies
// environment overrides. An empty path returns the defaults with the environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(content, cfg)
		case ".toml":
			err = decodeToml(content, cfg)
		default:
			return nil, errors.Errorf("unsupported config file format '%s'. Use .toml, .yaml or .yml", filepath.Ext(path))
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", path)
		}
		log.Debug("Loaded config from " + path)
		for _, warning := range deprecations(cfg) {
			log.Warn(warning)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func decodeToml(content []byte, cfg *Config) error {
	md, err := toml.Decode(string(content), cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.Warn("Ignoring unknown config keys:", undecoded)
	}
	return nil
}

// deprecations lists a warning for each deprecated setting used by the file.
func deprecations(cfg *Config) []string {
	var warnings []string
	if cfg.Sonatype.StagingProfileId != "" {
		warnings = append(warnings, "'sonatype.staging_profile_id' is deprecated. Use 'sonatype.staging_profile' instead.")
	}
	return warnings
}

var envOverrides = map[string]func(cfg *Config, value string){
	"SONATYPE_USERNAME":     func(cfg *Config, value string) { cfg.Sonatype.Username = value },
	"SONATYPE_PASSWORD":     func(cfg *Config, value string) { cfg.Sonatype.Password = value },
	"ARTIFACTORY_USERNAME":  func(cfg *Config, value string) { cfg.Artifactory.Username = value },
	"ARTIFACTORY_PASSWORD":  func(cfg *Config, value string) { cfg.Artifactory.Password = value },
	"SDKMAN_CONSUMER_KEY":   func(cfg *Config, value string) { cfg.Sdkman.ConsumerKey = value },
	"SDKMAN_CONSUMER_TOKEN": func(cfg *Config, value string) { cfg.Sdkman.ConsumerToken = value },
}

func applyEnv(cfg *Config) {
	for key, apply := range envOverrides {
		if value, ok := os.LookupEnv(key); ok {
			apply(cfg, value)
		}
	}
}

// ValidateSonatype checks the settings needed to publish a staging repository.
func (c *Config) ValidateSonatype() error {
	sonatype := c.Sonatype
	if sonatype.Url == "" {
		return errors.New("sonatype url is required")
	}
	if sonatype.StagingProfile == "" && sonatype.StagingProfileId == "" {
		return errors.New("either sonatype staging_profile or staging_profile_id is required")
	}
	if sonatype.UploadThreads <= 0 {
		return errors.Errorf("sonatype upload_threads must be positive, got %d", sonatype.UploadThreads)
	}
	if sonatype.PollingInterval.Duration <= 0 {
		return errors.Errorf("sonatype polling_interval must be positive, got %s", sonatype.PollingInterval)
	}
	if sonatype.DeployTimeout.Duration <= 0 {
		return errors.Errorf("sonatype deploy_timeout must be positive, got %s", sonatype.DeployTimeout)
	}
	for _, pattern := range sonatype.Exclude {
		if _, err := regexp.Compile(pattern); err != nil {
			return errors.Wrapf(err, "invalid sonatype exclude pattern '%s'", pattern)
		}
	}
	return nil
}

// ValidateArtifactory checks the settings needed to promote a build.
func (c *Config) ValidateArtifactory() error {
	artifactory := c.Artifactory
	if artifactory.Url == "" {
		return errors.New("artifactory url is required")
	}
	repositories := map[string]string{
		"staging":           artifactory.Repository.Staging,
		"milestone":         artifactory.Repository.Milestone,
		"release_candidate": artifactory.Repository.ReleaseCandidate,
		"release":           artifactory.Repository.Release,
	}
	for name, value := range repositories {
		if value == "" {
			return errors.Errorf("artifactory repository.%s is required", name)
		}
	}
	return nil
}

// ValidateSdkman checks the settings needed to publish a release to SDKMAN!.
func (c *Config) ValidateSdkman() error {
	sdkman := c.Sdkman
	if sdkman.Candidate == "" {
		return errors.New("sdkman candidate is required")
	}
	if !sdkmanArtifactPattern.MatchString(sdkman.Artifact) {
		return errors.Errorf("sdkman artifact '%s' doesn't match group:artifact:version[:packaging[:classifier]]", sdkman.Artifact)
	}
	return nil
}
