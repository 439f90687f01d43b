package staging

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/jfrog/build-promotion-go/httpclient"
	"github.com/jfrog/build-promotion-go/utils"
	"github.com/pkg/errors"
)

const (
	stagingPath = "/service/local/staging/"

	failureMessageProperty = "failureMessage"
)

type RepositoryType string

const (
	Open     RepositoryType = "open"
	Closed   RepositoryType = "closed"
	Released RepositoryType = "released"
)

// Repository is the state of a staging repository as reported by the server.
// Transitioning is true while the server is still processing the last requested operation.
type Repository struct {
	Type          RepositoryType `json:"type"`
	Transitioning bool           `json:"transitioning"`
}

type profilesResponse struct {
	Data []struct {
		Id   string `json:"id"`
		Name string `json:"name"`
	} `json:"data"`
}

type descriptionData struct {
	Description string `json:"description"`
}

type stagedRepositoryData struct {
	StagedRepositoryId string `json:"stagedRepositoryId"`
}

type bulkPromoteData struct {
	StagedRepositoryIds  []string `json:"stagedRepositoryIds"`
	Description          string   `json:"description"`
	AutoDropAfterRelease bool     `json:"autoDropAfterRelease"`
}

type dataRequest[T any] struct {
	Data T `json:"data"`
}

// RepositoryClient runs the staging repository operations of the staging server.
type RepositoryClient struct {
	client          *httpclient.Client
	pollingInterval time.Duration
	logger          utils.Log
}

func NewRepositoryClient(client *httpclient.Client, pollingInterval time.Duration, logger utils.Log) *RepositoryClient {
	if logger == nil {
		logger = &utils.NullLog{}
	}
	return &RepositoryClient{client: client, pollingInterval: pollingInterval, logger: logger}
}

// ResolveProfileId returns the id of the staging profile with the given name.
func (rc *RepositoryClient) ResolveProfileId(ctx context.Context, profileName string) (string, error) {
	rc.logger.Info("Fetching staging profile id for:", profileName)
	var profiles profilesResponse
	if err := rc.client.GetJson(ctx, stagingPath+"profiles", nil, &profiles); err != nil {
		return "", errors.Wrap(err, "failed to list staging profiles")
	}
	for _, profile := range profiles.Data {
		if profile.Name == profileName {
			return profile.Id, nil
		}
	}
	return "", &ProfileNotFoundError{Name: profileName}
}

// Create starts a new staging repository in the profile and returns its id.
func (rc *RepositoryClient) Create(ctx context.Context, profileId, description string) (string, error) {
	request := dataRequest[descriptionData]{Data: descriptionData{Description: description}}
	var response dataRequest[stagedRepositoryData]
	if err := rc.client.SendJson(ctx, http.MethodPost, stagingPath+"profiles/"+profileId+"/start", nil, request, &response); err != nil {
		return "", errors.Wrapf(err, "failed to create a staging repository in profile %s", profileId)
	}
	if response.Data.StagedRepositoryId == "" {
		return "", errors.Errorf("the server didn't return the id of the staging repository created in profile %s", profileId)
	}
	return response.Data.StagedRepositoryId, nil
}

// Status fetches the current state of the repository.
func (rc *RepositoryClient) Status(ctx context.Context, repositoryId string) (*Repository, error) {
	repository := &Repository{}
	if err := rc.client.GetJson(ctx, stagingPath+"repository/"+repositoryId, nil, repository); err != nil {
		return nil, errors.Wrapf(err, "failed to get the status of staging repository %s", repositoryId)
	}
	return repository, nil
}

// Close requests the closing of the repository and waits for the server to finish validating it.
// The status is polled until the repository stops transitioning. A repository that is open at
// that point was rejected, and a CloseFailedError holding the failure messages is returned.
func (rc *RepositoryClient) Close(ctx context.Context, profileId, repositoryId string) error {
	request := dataRequest[stagedRepositoryData]{Data: stagedRepositoryData{StagedRepositoryId: repositoryId}}
	if err := rc.client.SendJson(ctx, http.MethodPost, stagingPath+"profiles/"+profileId+"/finish", nil, request, nil); err != nil {
		return errors.Wrapf(err, "failed to request the closing of staging repository %s", repositoryId)
	}
	rc.logger.Info("Close requested. Awaiting result")
	return rc.awaitClose(ctx, repositoryId)
}

func (rc *RepositoryClient) awaitClose(ctx context.Context, repositoryId string) error {
	const interruptedMsg = "interrupted while waiting for staging repository to close"
	for {
		if ctx.Err() != nil {
			return interrupted(interruptedMsg, ctx.Err())
		}
		repository, err := rc.Status(ctx, repositoryId)
		if err != nil {
			if ctx.Err() != nil {
				return interrupted(interruptedMsg, ctx.Err())
			}
			return err
		}
		if !repository.Transitioning {
			if repository.Type == Open {
				return rc.closeFailed(ctx, repositoryId)
			}
			return nil
		}
		rc.logger.Debug("Staging repository", repositoryId, "is still transitioning")
		timer := time.NewTimer(rc.pollingInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return interrupted(interruptedMsg, ctx.Err())
		case <-timer.C:
		}
	}
}

func (rc *RepositoryClient) closeFailed(ctx context.Context, repositoryId string) error {
	closeErr := &CloseFailedError{RepositoryId: repositoryId}
	failures, err := rc.FailureMessages(ctx, repositoryId)
	if err != nil {
		rc.logger.Error("Close failed for unknown reasons. Failed to read the repository activity:", err.Error())
		return closeErr
	}
	if len(failures) == 0 {
		rc.logger.Error("Close failed for unknown reasons")
	} else {
		rc.logger.Error("Close failed:\n    " + strings.Join(failures, "\n    "))
	}
	closeErr.Failures = failures
	return closeErr
}

// FailureMessages reads the activity of the repository and returns the failure messages of its failed events.
func (rc *RepositoryClient) FailureMessages(ctx context.Context, repositoryId string) ([]string, error) {
	activity, err := rc.client.Get(ctx, stagingPath+"repository/"+repositoryId+"/activity", nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get the activity of staging repository %s", repositoryId)
	}
	return parseFailureMessages(activity)
}

// The activity is an array of activities, each holding events with a severity and name/value properties.
// Events with a positive severity are failures.
func parseFailureMessages(activity []byte) ([]string, error) {
	failures := []string{}
	_, err := jsonparser.ArrayEach(activity, func(activityValue []byte, _ jsonparser.ValueType, _ int, _ error) {
		_, _ = jsonparser.ArrayEach(activityValue, func(event []byte, _ jsonparser.ValueType, _ int, _ error) {
			severity, err := jsonparser.GetInt(event, "severity")
			if err != nil || severity <= 0 {
				return
			}
			_, _ = jsonparser.ArrayEach(event, func(property []byte, _ jsonparser.ValueType, _ int, _ error) {
				if name, _ := jsonparser.GetString(property, "name"); name != failureMessageProperty {
					return
				}
				if value, err := jsonparser.GetString(property, "value"); err == nil {
					failures = append(failures, value)
				}
			}, "properties")
		}, "events")
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse staging repository activity")
	}
	return failures, nil
}

// Release promotes the closed repository to the releases repository, dropping it afterwards.
func (rc *RepositoryClient) Release(ctx context.Context, repositoryId, description string) error {
	request := dataRequest[bulkPromoteData]{Data: bulkPromoteData{
		StagedRepositoryIds:  []string{repositoryId},
		Description:          description,
		AutoDropAfterRelease: true,
	}}
	if err := rc.client.SendJson(ctx, http.MethodPost, stagingPath+"bulk/promote", nil, request, nil); err != nil {
		return errors.Wrapf(err, "failed to release staging repository %s", repositoryId)
	}
	return nil
}
