package staging

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jfrog/build-promotion-go/httpclient"
	"github.com/jfrog/build-promotion-go/utils"
	"github.com/jfrog/gofrog/parallel"
	"github.com/pkg/errors"
)

// Acknowledgement records a successful upload.
type Acknowledgement struct {
	Path   string `json:"path"`
	Sha1   string `json:"sha1"`
	Sha256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Deployer uploads artifacts to a staging repository with a bounded number of concurrent uploads.
type Deployer struct {
	client  *httpclient.Client
	threads int
	timeout time.Duration
	logger  utils.Log
}

func NewDeployer(client *httpclient.Client, threads int, timeout time.Duration, logger utils.Log) *Deployer {
	if logger == nil {
		logger = &utils.NullLog{}
	}
	if threads < 1 {
		threads = 1
	}
	return &Deployer{client: client, threads: threads, timeout: timeout, logger: logger}
}

// Deploy uploads all artifacts and blocks until they're all uploaded, one of them fails, the
// timeout elapses or ctx is cancelled. There's no partial success: the first failed upload stops
// the dispatching of the remaining ones and is returned. All workers have exited when Deploy returns.
func (d *Deployer) Deploy(ctx context.Context, repositoryId string, artifacts []DeployableArtifact) ([]Acknowledgement, error) {
	deployCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	producerConsumer := parallel.NewBounedRunner(d.threads, false)
	acksChan := make(chan Acknowledgement, len(artifacts))
	errorChan := make(chan error, 1)

	go func() {
		defer producerConsumer.Done()
		for _, artifact := range artifacts {
			if deployCtx.Err() != nil {
				return
			}
			handlerFunc := d.createDeployFunc(deployCtx, repositoryId, artifact, acksChan)
			_, err := producerConsumer.AddTaskWithError(handlerFunc, func(err error) {
				// Keep the first error only, and stop the uploads that didn't start yet.
				select {
				case errorChan <- err:
				default:
				}
				cancel()
			})
			if err != nil {
				return
			}
		}
	}()

	producerConsumer.Run()
	close(acksChan)

	acks := make([]Acknowledgement, 0, len(artifacts))
	for ack := range acksChan {
		acks = append(acks, ack)
	}
	var deployErr error
	select {
	case deployErr = <-errorChan:
	default:
	}
	return d.outcome(ctx, deployCtx, repositoryId, artifacts, acks, deployErr)
}

// outcome decides the result of a finished batch. A batch whose uploads all completed is successful
// even if the deadline or ctx expired right after the last one.
func (d *Deployer) outcome(ctx, deployCtx context.Context, repositoryId string, artifacts []DeployableArtifact, acks []Acknowledgement, deployErr error) ([]Acknowledgement, error) {
	if deployErr == nil && len(acks) == len(artifacts) {
		if err := verifyAcknowledgements(artifacts, acks); err != nil {
			return nil, err
		}
		return acks, nil
	}
	if ctx.Err() != nil {
		return nil, interrupted("interrupted during artifact deploy", ctx.Err())
	}
	if errors.Is(deployCtx.Err(), context.DeadlineExceeded) {
		return nil, errors.Wrapf(ErrDeployTimedOut, "staging repository %s, after %s", repositoryId, d.timeout)
	}
	if deployErr != nil {
		return nil, deployErr
	}
	return nil, verifyAcknowledgements(artifacts, acks)
}

func (d *Deployer) createDeployFunc(ctx context.Context, repositoryId string, artifact DeployableArtifact, acksChan chan<- Acknowledgement) func(threadId int) error {
	return func(threadId int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		ack, err := d.deployArtifact(ctx, repositoryId, artifact)
		if err != nil {
			return err
		}
		acksChan <- ack
		return nil
	}
}

func (d *Deployer) deployArtifact(ctx context.Context, repositoryId string, artifact DeployableArtifact) (ack Acknowledgement, err error) {
	wrap := func(err error) error {
		return &DeployError{Path: artifact.Path, RepositoryId: repositoryId, Err: err}
	}
	checksums, err := utils.GetFileChecksums(artifact.File)
	if err != nil {
		return ack, wrap(err)
	}
	file, err := os.Open(artifact.File)
	if err != nil {
		return ack, wrap(err)
	}
	defer func() {
		if closeErr := file.Close(); err == nil && closeErr != nil {
			err = wrap(closeErr)
		}
	}()
	info, err := file.Stat()
	if err != nil {
		return ack, wrap(err)
	}
	// The transport closes the request body, the deferred Close owns the file.
	err = d.client.PutBinary(ctx, deployPath(repositoryId, artifact.Path), io.NopCloser(file), info.Size())
	if err != nil {
		if httpErr, ok := httpclient.AsHttpError(err); ok {
			d.logger.Error(fmt.Sprintf("Failed to deploy %s. Error response: %s", artifact.Path, httpErr.Body))
		}
		return ack, wrap(err)
	}
	d.logger.Info("Deployed", artifact.Path)
	return Acknowledgement{Path: artifact.Path, Sha1: checksums.Sha1, Sha256: checksums.Sha256, Size: info.Size()}, nil
}

func deployPath(repositoryId, relativePath string) string {
	segments := strings.Split(relativePath, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return stagingPath + "deployByRepositoryId/" + repositoryId + "/" + strings.Join(segments, "/")
}

// Each collected artifact must be acknowledged exactly once.
func verifyAcknowledgements(artifacts []DeployableArtifact, acks []Acknowledgement) error {
	pending := utils.NewStringSet()
	for _, artifact := range artifacts {
		pending.Add(artifact.Path)
	}
	acknowledged := utils.NewStringSet()
	for _, ack := range acks {
		if acknowledged.Contains(ack.Path) {
			return errors.Errorf("%s was deployed more than once", ack.Path)
		}
		if !pending.Contains(ack.Path) {
			return errors.Errorf("unexpected deploy acknowledgement for %s", ack.Path)
		}
		pending.Delete(ack.Path)
		acknowledged.Add(ack.Path)
	}
	if !pending.IsEmpty() {
		missing := pending.ToSlice()
		return errors.Errorf("%d artifacts weren't acknowledged: %s", len(missing), strings.Join(missing, ", "))
	}
	return nil
}
