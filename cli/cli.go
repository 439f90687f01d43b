package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jfrog/build-promotion-go/broadcast"
	"github.com/jfrog/build-promotion-go/config"
	"github.com/jfrog/build-promotion-go/entities"
	"github.com/jfrog/build-promotion-go/httpclient"
	"github.com/jfrog/build-promotion-go/promotion"
	"github.com/jfrog/build-promotion-go/staging"
	"github.com/jfrog/build-promotion-go/utils"
	"github.com/pkg/errors"
	clitool "github.com/urfave/cli/v2"
)

const configFlag = "config"

func GetFlags() []clitool.Flag {
	return []clitool.Flag{
		&clitool.StringFlag{
			Name:    configFlag,
			Aliases: []string{"c"},
			Usage:   "[Optional] Path to a .toml, .yaml or .yml configuration file. Credentials can also be set with environment variables.` `",
		},
	}
}

func GetCommands(logger utils.Log) []*clitool.Command {
	return []*clitool.Command{
		{
			Name:      "promote",
			Usage:     "Promote a staged build to the repository of its release kind",
			UsageText: "bp promote <release-kind> <build-info.json>",
			Action: func(context *clitool.Context) error {
				args, err := validateArgs(context, "releaseType", "buildInfoLocation")
				if err != nil {
					return err
				}
				cfg, kind, release, err := prepare(context, args[0], args[1])
				if err != nil {
					return err
				}
				if err = cfg.ValidateArtifactory(); err != nil {
					return err
				}
				client, err := httpclient.New(httpclient.Details{
					Url:      cfg.Artifactory.Url,
					Username: cfg.Artifactory.Username,
					Password: cfg.Artifactory.Password,
				})
				if err != nil {
					return err
				}
				service := promotion.NewService(client, promotionOptions(cfg.Artifactory), logger)
				return service.Promote(context.Context, kind, release)
			},
		},
		{
			Name:      "publish-to-central",
			Usage:     "Publish the artifacts of a release to Maven Central through a staging repository",
			UsageText: "bp publish-to-central <release-kind> <build-info.json> <artifacts-dir>",
			Action: func(context *clitool.Context) error {
				args, err := validateArgs(context, "releaseType", "buildInfoLocation", "artifactsLocation")
				if err != nil {
					return err
				}
				cfg, kind, release, err := prepare(context, args[0], args[1])
				if err != nil {
					return err
				}
				if kind != entities.Release {
					logger.Info(fmt.Sprintf("Skipping publication of %s %s. Only releases are published", kind, release.Version()))
					return nil
				}
				if err = cfg.ValidateSonatype(); err != nil {
					return err
				}
				client, err := httpclient.New(httpclient.Details{
					Url:      cfg.Sonatype.Url,
					Username: cfg.Sonatype.Username,
					Password: cfg.Sonatype.Password,
				})
				if err != nil {
					return err
				}
				service, err := staging.NewService(client, stagingOptions(cfg.Sonatype), logger)
				if err != nil {
					return err
				}
				report, err := service.Publish(context.Context, release, args[2])
				if report != nil {
					if printErr := printReport(report); err == nil {
						err = printErr
					}
				}
				return err
			},
		},
		{
			Name:      "publish-to-sdkman",
			Usage:     "Announce a release to SDKMAN!",
			UsageText: "bp publish-to-sdkman <release-kind> <version> [latest]",
			Action: func(context *clitool.Context) error {
				args, err := validateArgs(context, "releaseType", "version")
				if err != nil {
					return err
				}
				kind, err := entities.ParseReleaseKind(args[0])
				if err != nil {
					return err
				}
				if kind != entities.Release {
					logger.Info(fmt.Sprintf("Skipping SDKMAN! publication of %s %s. Only releases are published", kind, args[1]))
					return nil
				}
				cfg, err := config.Load(context.String(configFlag))
				if err != nil {
					return err
				}
				if err = cfg.ValidateSdkman(); err != nil {
					return err
				}
				artifact, err := broadcast.ParseCoordinates(cfg.Sdkman.Artifact)
				if err != nil {
					return err
				}
				client, err := httpclient.New(httpclient.Details{Url: cfg.Sdkman.Url})
				if err != nil {
					return err
				}
				service := broadcast.NewService(client, broadcast.Options{
					ConsumerKey:     cfg.Sdkman.ConsumerKey,
					ConsumerToken:   cfg.Sdkman.ConsumerToken,
					Candidate:       cfg.Sdkman.Candidate,
					Artifact:        artifact,
					BroadcastUrl:    cfg.Sdkman.BroadcastUrl,
					DownloadBaseUrl: cfg.Sdkman.DownloadBaseUrl,
				})
				makeDefault := len(args) > 2 && strings.EqualFold(args[2], "true")
				return service.Publish(context.Context, args[1], makeDefault)
			},
		},
	}
}

// validateArgs returns the command arguments, failing with the names of the missing ones.
func validateArgs(context *clitool.Context, expected ...string) ([]string, error) {
	args := context.Args().Slice()
	if len(args) < len(expected) {
		return nil, errors.New("Missing argument(s): " + strings.Join(expected[len(args):], ", "))
	}
	return args, nil
}

func prepare(context *clitool.Context, releaseType, buildInfoLocation string) (*config.Config, entities.ReleaseKind, entities.ReleaseDescriptor, error) {
	kind, err := entities.ParseReleaseKind(releaseType)
	if err != nil {
		return nil, "", entities.ReleaseDescriptor{}, err
	}
	release, err := readRelease(buildInfoLocation)
	if err != nil {
		return nil, "", entities.ReleaseDescriptor{}, err
	}
	cfg, err := config.Load(context.String(configFlag))
	if err != nil {
		return nil, "", entities.ReleaseDescriptor{}, err
	}
	return cfg, kind, release, nil
}

func readRelease(buildInfoLocation string) (entities.ReleaseDescriptor, error) {
	content, err := os.ReadFile(buildInfoLocation)
	if err != nil {
		return entities.ReleaseDescriptor{}, errors.Wrapf(err, "failed to read build info from %s", buildInfoLocation)
	}
	buildInfo, err := entities.ParseBuildInfo(content)
	if err != nil {
		return entities.ReleaseDescriptor{}, err
	}
	return entities.ReleaseDescriptorFromBuildInfo(buildInfo)
}

func promotionOptions(artifactory config.ArtifactoryConfig) promotion.Options {
	return promotion.Options{
		Project:          artifactory.Project,
		SourceRepository: artifactory.Repository.Staging,
		Targets: map[entities.ReleaseKind]string{
			entities.Milestone:        artifactory.Repository.Milestone,
			entities.ReleaseCandidate: artifactory.Repository.ReleaseCandidate,
			entities.Release:          artifactory.Repository.Release,
		},
	}
}

func stagingOptions(sonatype config.SonatypeConfig) staging.Options {
	return staging.Options{
		StagingProfile:   sonatype.StagingProfile,
		StagingProfileId: sonatype.StagingProfileId,
		PollingInterval:  sonatype.PollingInterval.Duration,
		UploadThreads:    sonatype.UploadThreads,
		DeployTimeout:    sonatype.DeployTimeout.Duration,
		Exclude:          sonatype.Exclude,
		AutoRelease:      sonatype.IsAutoRelease(),
	}
}

func printReport(report *staging.Report) error {
	content, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	fmt.Println(string(content))
	return nil
}
