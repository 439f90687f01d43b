package staging

import (
	"context"
	"fmt"
	"time"

	"github.com/jfrog/build-promotion-go/entities"
	"github.com/jfrog/build-promotion-go/httpclient"
	"github.com/jfrog/build-promotion-go/utils"
)

type State string

const (
	CheckingIdempotency State = "checking idempotency"
	ResolvingProfile    State = "resolving staging profile"
	CreatingRepository  State = "creating staging repository"
	Deploying           State = "deploying"
	Closing             State = "closing"
	Releasing           State = "releasing"
	Done                State = "done"
	AlreadyPublished    State = "already published"
)

// IsTerminal is true for the states a publication ends in successfully.
func (s State) IsTerminal() bool {
	return s == Done || s == AlreadyPublished
}

type Options struct {
	// Used when StagingProfileId is empty.
	StagingProfile   string
	StagingProfileId string
	PollingInterval  time.Duration
	UploadThreads    int
	DeployTimeout    time.Duration
	Exclude          []string
	// When false, the publication ends once the staging repository is closed.
	AutoRelease bool
}

// Report describes a publication, whether it completed or not.
type Report struct {
	State            State             `json:"state"`
	StagingProfileId string            `json:"stagingProfileId,omitempty"`
	RepositoryId     string            `json:"repositoryId,omitempty"`
	Acknowledgements []Acknowledgement `json:"deployed,omitempty"`
	Transitions      []State           `json:"transitions"`
}

func (r *Report) transition(state State) {
	r.State = state
	r.Transitions = append(r.Transitions, state)
}

// Service publishes releases through a staging repository of the staging server.
type Service struct {
	checker      *PublicationChecker
	repositories *RepositoryClient
	collector    *ArtifactCollector
	deployer     *Deployer
	options      Options
	logger       utils.Log
}

// NewService creates the publication pipeline. The client must be dedicated to the staging server.
func NewService(client *httpclient.Client, options Options, logger utils.Log) (*Service, error) {
	if logger == nil {
		logger = &utils.NullLog{}
	}
	collector, err := NewArtifactCollector(options.Exclude)
	if err != nil {
		return nil, err
	}
	return &Service{
		checker:      NewPublicationChecker(client, logger),
		repositories: NewRepositoryClient(client, options.PollingInterval, logger),
		collector:    collector,
		deployer:     NewDeployer(client, options.UploadThreads, options.DeployTimeout, logger),
		options:      options,
		logger:       logger,
	}, nil
}

// publication holds the state of one run of the pipeline.
type publication struct {
	release       entities.ReleaseDescriptor
	artifactsRoot string
	report        *Report
}

type step func(ctx context.Context, pub *publication) (State, error)

func (s *Service) steps() map[State]step {
	return map[State]step{
		CheckingIdempotency: s.checkIdempotency,
		ResolvingProfile:    s.resolveProfile,
		CreatingRepository:  s.createRepository,
		Deploying:           s.deploy,
		Closing:             s.close,
		Releasing:           s.releaseRepository,
	}
}

// Publish runs the publication of the release: it stops early if the marker artifact is already
// published, otherwise creates a staging repository, deploys the artifacts found under artifactsRoot,
// closes the repository and releases it.
// A failure aborts the pipeline without undoing the previous steps. Running Publish again after a
// failure that happened once the repository was created creates another staging repository.
func (s *Service) Publish(ctx context.Context, release entities.ReleaseDescriptor, artifactsRoot string) (*Report, error) {
	pub := &publication{
		release:       release,
		artifactsRoot: artifactsRoot,
		report:        &Report{StagingProfileId: s.options.StagingProfileId},
	}
	pub.report.transition(CheckingIdempotency)
	steps := s.steps()
	for !pub.report.State.IsTerminal() {
		current := pub.report.State
		next, err := steps[current](ctx, pub)
		if err != nil {
			return pub.report, &PipelineError{State: current, RepositoryId: pub.report.RepositoryId, Err: err}
		}
		pub.report.transition(next)
	}
	return pub.report, nil
}

func (s *Service) checkIdempotency(ctx context.Context, pub *publication) (State, error) {
	published, err := s.checker.IsPublished(ctx, pub.release.MarkerArtifact())
	if err != nil {
		return "", err
	}
	if published {
		return AlreadyPublished, nil
	}
	if pub.report.StagingProfileId == "" {
		return ResolvingProfile, nil
	}
	return CreatingRepository, nil
}

func (s *Service) resolveProfile(ctx context.Context, pub *publication) (State, error) {
	profileId, err := s.repositories.ResolveProfileId(ctx, s.options.StagingProfile)
	if err != nil {
		return "", err
	}
	pub.report.StagingProfileId = profileId
	return CreatingRepository, nil
}

func (s *Service) createRepository(ctx context.Context, pub *publication) (State, error) {
	s.logger.Info("Creating staging repository")
	repositoryId, err := s.repositories.Create(ctx, pub.report.StagingProfileId, pub.release.BuildNumber())
	if err != nil {
		return "", err
	}
	pub.report.RepositoryId = repositoryId
	return Deploying, nil
}

func (s *Service) deploy(ctx context.Context, pub *publication) (State, error) {
	artifacts, err := s.collector.Collect(pub.artifactsRoot)
	if err != nil {
		return "", err
	}
	s.logger.Info(fmt.Sprintf("Staging repository %s created. Deploying %d artifacts", pub.report.RepositoryId, len(artifacts)))
	acks, err := s.deployer.Deploy(ctx, pub.report.RepositoryId, artifacts)
	if err != nil {
		return "", err
	}
	pub.report.Acknowledgements = acks
	s.logger.Info("Deploy complete. Closing staging repository")
	return Closing, nil
}

func (s *Service) close(ctx context.Context, pub *publication) (State, error) {
	if err := s.repositories.Close(ctx, pub.report.StagingProfileId, pub.report.RepositoryId); err != nil {
		return "", err
	}
	s.logger.Info("Staging repository closed")
	if !s.options.AutoRelease {
		s.logger.Info(fmt.Sprintf("Auto release is disabled. Staging repository %s was left closed", pub.report.RepositoryId))
		return Done, nil
	}
	return Releasing, nil
}

func (s *Service) releaseRepository(ctx context.Context, pub *publication) (State, error) {
	if err := s.repositories.Release(ctx, pub.report.RepositoryId, "Releasing "+pub.release.BuildNumber()); err != nil {
		return "", err
	}
	s.logger.Info("Staging repository released")
	return Done, nil
}
