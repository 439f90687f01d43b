package promotion

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jfrog/build-promotion-go/entities"
	"github.com/jfrog/build-promotion-go/httpclient"
	"github.com/jfrog/build-promotion-go/utils"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	promotionPath = "/api/build/promote/"
	buildInfoPath = "/api/build/"

	stagedStatus = "staged"
)

// Request is the body of a build promotion.
type Request struct {
	Status     string `json:"status"`
	SourceRepo string `json:"sourceRepo"`
	TargetRepo string `json:"targetRepo"`
}

type Options struct {
	// Optional project key.
	Project          string
	SourceRepository string
	// The repository a build is promoted to, per release kind.
	Targets map[entities.ReleaseKind]string
}

// Service moves the artifacts of a build from the staging repository to the repository of a release kind.
type Service struct {
	client  *httpclient.Client
	options Options
	logger  utils.Log
}

func NewService(client *httpclient.Client, options Options, logger utils.Log) *Service {
	if logger == nil {
		logger = &utils.NullLog{}
	}
	return &Service{client: client, options: options, logger: logger}
}

// Promote promotes the build of the release to the target repository of kind.
// A conflict is accepted when the build is found to be promoted to that repository already, so
// that promoting twice succeeds.
func (s *Service) Promote(ctx context.Context, kind entities.ReleaseKind, release entities.ReleaseDescriptor) error {
	target, err := s.target(kind)
	if err != nil {
		return err
	}
	buildName, buildNumber := release.BuildName(), release.BuildNumber()
	request := Request{Status: stagedStatus, SourceRepo: s.options.SourceRepository, TargetRepo: target}
	s.logger.Info("Promoting " + buildName + "/" + buildNumber + " to " + target)
	err = s.client.SendJson(ctx, http.MethodPost, promotionPath+buildPath(buildName, buildNumber), s.query(), request, nil)
	if err == nil {
		s.logger.Debug("Promotion complete")
		return nil
	}
	if !httpclient.IsConflict(err) {
		return errors.Wrapf(err, "failed to promote %s/%s to %s", buildName, buildNumber, target)
	}
	promoted, recheckErr := s.isAlreadyPromoted(ctx, buildName, buildNumber, target)
	if recheckErr != nil {
		return errors.Wrapf(recheckErr, "failed to check whether %s/%s is already promoted after a conflict", buildName, buildNumber)
	}
	if promoted {
		s.logger.Info("Already promoted.")
		return nil
	}
	s.logger.Info("Promotion failed.")
	return errors.Wrapf(err, "failed to promote %s/%s to %s", buildName, buildNumber, target)
}

// A client error on the recheck means not promoted. Other failures are returned.
func (s *Service) isAlreadyPromoted(ctx context.Context, buildName, buildNumber, target string) (bool, error) {
	s.logger.Debug("Checking if already promoted")
	var published entities.PublishedBuildInfo
	if err := s.client.GetJson(ctx, buildInfoPath+buildPath(buildName, buildNumber), s.query(), &published); err != nil {
		if httpclient.IsClientError(err) {
			s.logger.Debug("Client error, assuming not promoted")
			return false, nil
		}
		return false, err
	}
	status := published.BuildInfo.CurrentStatus()
	if status == nil {
		s.logger.Debug("Returned no status object")
		return false, nil
	}
	s.logger.Debug("Returned repository", status.Repository, "expecting", target)
	return status.Repository == target, nil
}

func (s *Service) target(kind entities.ReleaseKind) (string, error) {
	target, ok := s.options.Targets[kind]
	if !ok || target == "" {
		kinds := maps.Keys(s.options.Targets)
		slices.Sort(kinds)
		return "", errors.Errorf("no target repository for release kind '%s'. Configured release kinds: %v", kind, kinds)
	}
	return target, nil
}

func (s *Service) query() url.Values {
	return url.Values{"project": {s.options.Project}}
}

func buildPath(buildName, buildNumber string) string {
	return url.PathEscape(buildName) + "/" + url.PathEscape(buildNumber)
}
