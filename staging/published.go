package staging

import (
	"context"

	"github.com/jfrog/build-promotion-go/entities"
	"github.com/jfrog/build-promotion-go/httpclient"
	"github.com/jfrog/build-promotion-go/utils"
	"github.com/pkg/errors"
)

const releasesContentPath = "/service/local/repositories/releases/content/"

// PublicationChecker finds out whether a release is already available in the releases repository.
type PublicationChecker struct {
	client *httpclient.Client
	logger utils.Log
}

func NewPublicationChecker(client *httpclient.Client, logger utils.Log) *PublicationChecker {
	if logger == nil {
		logger = &utils.NullLog{}
	}
	return &PublicationChecker{client: client, logger: logger}
}

// IsPublished probes the checksum of the marker artifact jar.
// A 2xx response means published and a 4xx response means not published. Other failures are returned.
func (pc *PublicationChecker) IsPublished(ctx context.Context, marker entities.MarkerArtifact) (bool, error) {
	_, err := pc.client.Get(ctx, releasesContentPath+marker.Sha1Path(), nil)
	if err == nil {
		pc.logger.Info("Already published to Sonatype.")
		return true, nil
	}
	if httpclient.IsClientError(err) {
		pc.logger.Debug("Artifact not yet published:", marker.String())
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to check whether %s is published", marker.String())
}
