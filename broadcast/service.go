package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jfrog/build-promotion-go/entities"
	"github.com/jfrog/build-promotion-go/httpclient"
	"github.com/jfrog/gofrog/log"
	"github.com/pkg/errors"
)

const (
	consumerKeyHeader   = "Consumer-Key"
	consumerTokenHeader = "Consumer-Token"

	defaultPackaging = "jar"
)

type Options struct {
	ConsumerKey   string
	ConsumerToken string
	Candidate     string
	Artifact      Artifact
	// Printf pattern receiving the version. No URL is announced when empty.
	BroadcastUrl    string
	DownloadBaseUrl string
}

// Artifact is the downloadable distribution of a candidate.
type Artifact struct {
	GroupId    string
	ArtifactId string
	Packaging  string
	Classifier string
}

// ParseCoordinates parses 'group:artifact:version[:packaging[:classifier]]' coordinates.
// The version segment is ignored, the released version is used instead.
func ParseCoordinates(coordinates string) (Artifact, error) {
	split := strings.Split(coordinates, ":")
	if len(split) < 2 || len(split) > 5 || split[0] == "" || split[1] == "" {
		return Artifact{}, errors.Wrapf(entities.ErrInvalidCoordinates, "'%s'", coordinates)
	}
	artifact := Artifact{GroupId: split[0], ArtifactId: split[1], Packaging: defaultPackaging}
	if len(split) > 3 && split[3] != "" {
		artifact.Packaging = split[3]
	}
	if len(split) > 4 {
		artifact.Classifier = split[4]
	}
	return artifact, nil
}

// Path returns the path of the artifact of version, relative to the root of a Maven repository.
func (a Artifact) Path(version string) string {
	var builder strings.Builder
	builder.WriteString(strings.ReplaceAll(a.GroupId, ".", "/") + "/")
	builder.WriteString(a.ArtifactId + "/" + version + "/")
	builder.WriteString(a.ArtifactId + "-" + version)
	if a.Classifier != "" {
		builder.WriteString("-" + a.Classifier)
	}
	builder.WriteString("." + a.Packaging)
	return builder.String()
}

type candidateRequest struct {
	Candidate string `json:"candidate"`
	Version   string `json:"version"`
}

type releaseRequest struct {
	Candidate string `json:"candidate"`
	Version   string `json:"version"`
	Url       string `json:"url"`
}

type announceRequest struct {
	Candidate string `json:"candidate"`
	Version   string `json:"version"`
	Url       string `json:"url,omitempty"`
}

// Service announces new versions of a candidate to the SDKMAN! vendor API.
type Service struct {
	client  *httpclient.Client
	options Options
}

func NewService(client *httpclient.Client, options Options) *Service {
	return &Service{client: client, options: options}
}

// Publish releases the version, makes it the default one if requested and broadcasts it.
func (s *Service) Publish(ctx context.Context, version string, makeDefault bool) error {
	if err := s.release(ctx, version); err != nil {
		return err
	}
	if makeDefault {
		if err := s.makeDefault(ctx, version); err != nil {
			return err
		}
	}
	return s.broadcast(ctx, version)
}

func (s *Service) release(ctx context.Context, version string) error {
	request := releaseRequest{
		Candidate: s.options.Candidate,
		Version:   version,
		Url:       s.options.DownloadBaseUrl + s.options.Artifact.Path(version),
	}
	if err := s.send(ctx, http.MethodPost, "release", request); err != nil {
		return errors.Wrapf(err, "failed to release %s %s", s.options.Candidate, version)
	}
	log.Debug("Release complete")
	return nil
}

func (s *Service) makeDefault(ctx context.Context, version string) error {
	log.Debug("Making this version the default")
	request := candidateRequest{Candidate: s.options.Candidate, Version: version}
	if err := s.send(ctx, http.MethodPut, "default", request); err != nil {
		return errors.Wrapf(err, "failed to make %s %s the default version", s.options.Candidate, version)
	}
	log.Debug("Make default complete")
	return nil
}

func (s *Service) broadcast(ctx context.Context, version string) error {
	request := announceRequest{Candidate: s.options.Candidate, Version: version}
	if s.options.BroadcastUrl != "" {
		request.Url = fmt.Sprintf(s.options.BroadcastUrl, version)
	}
	if err := s.send(ctx, http.MethodPost, "announce/struct", request); err != nil {
		return errors.Wrapf(err, "failed to broadcast %s %s", s.options.Candidate, version)
	}
	log.Debug("Broadcast complete")
	return nil
}

func (s *Service) send(ctx context.Context, method, path string, payload interface{}) error {
	content, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal request body")
	}
	req, err := http.NewRequestWithContext(ctx, method, s.client.BuildUrl(path, nil), bytes.NewReader(content))
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(consumerKeyHeader, s.options.ConsumerKey)
	req.Header.Set(consumerTokenHeader, s.options.ConsumerToken)
	_, err = s.client.Do(req)
	return err
}
