package staging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jfrog/build-promotion-go/entities"
	"github.com/jfrog/build-promotion-go/tests"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testProfileId    = "5d9ba3bb4ea3b"
	testProfileName  = "org.example"
	testRepositoryId = "orgexample-1001"
	testBuildNumber  = "test-build-1.0.0-12"

	markerSha1Path = "/service/local/repositories/releases/content/org/example/test/test-artifact/1.0.0/test-artifact-1.0.0.jar.sha1"
	profilesPath   = "/service/local/staging/profiles"
	startPath      = "/service/local/staging/profiles/" + testProfileId + "/start"
	finishPath     = "/service/local/staging/profiles/" + testProfileId + "/finish"
	statusPath     = "/service/local/staging/repository/" + testRepositoryId
	activityPath   = statusPath + "/activity"
	promotePath    = "/service/local/staging/bulk/promote"
	deployPrefix   = "/service/local/staging/deployByRepositoryId/" + testRepositoryId + "/"
)

var testArtifacts = []string{
	"org/example/test/test-artifact/1.0.0/test-artifact-1.0.0.jar",
	"org/example/test/test-artifact/1.0.0/test-artifact-1.0.0.pom",
	"org/example/test/test-artifact/1.0.0/test-artifact-1.0.0-sources.jar",
}

// fakeStagingServer simulates the staging API.
type fakeStagingServer struct {
	*tests.RecordingServer
	mutex     sync.Mutex
	published bool
	// Served in order for each status request, the last one is repeated.
	statuses []Repository
	activity string
	// Deploys whose path contains this value are rejected.
	rejectDeploy string
	// Deploys block until the request is cancelled.
	blockDeploys bool
	// Called on each status request.
	onStatus    func()
	statusCalls int
}

func newFakeStagingServer(t *testing.T) *fakeStagingServer {
	fake := &fakeStagingServer{
		statuses: []Repository{{Type: Closed}},
		activity: "[]",
	}
	fake.RecordingServer = tests.NewRecordingServer(t, fake.handle)
	return fake
}

func (f *fakeStagingServer) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == markerSha1Path:
		if f.published {
			_, _ = w.Write([]byte("da39a3ee5e6b4b0d3255bfef95601890afd80709"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodGet && r.URL.Path == profilesPath:
		_, _ = w.Write([]byte(`{"data":[{"id":"28a3b8e41a9f0","name":"com.other"},{"id":"` + testProfileId + `","name":"` + testProfileName + `"}]}`))
	case r.Method == http.MethodPost && r.URL.Path == startPath:
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"stagedRepositoryId":"` + testRepositoryId + `","description":"` + testBuildNumber + `"}}`))
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, deployPrefix):
		if f.blockDeploys {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
			return
		}
		if f.rejectDeploy != "" && strings.Contains(r.URL.Path, f.rejectDeploy) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("invalid artifact"))
			return
		}
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodPost && r.URL.Path == finishPath:
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodGet && r.URL.Path == statusPath:
		f.mutex.Lock()
		repository := f.statuses[minInt(f.statusCalls, len(f.statuses)-1)]
		f.statusCalls++
		onStatus := f.onStatus
		f.mutex.Unlock()
		if onStatus != nil {
			onStatus()
		}
		content, _ := json.Marshal(repository)
		_, _ = w.Write(content)
	case r.Method == http.MethodGet && r.URL.Path == activityPath:
		_, _ = w.Write([]byte(f.activity))
	case r.Method == http.MethodPost && r.URL.Path == promotePath:
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func testRelease() entities.ReleaseDescriptor {
	marker := entities.MarkerArtifact{GroupId: "org.example.test", ArtifactId: "test-artifact", Version: "1.0.0"}
	return entities.NewReleaseDescriptor("test-build", testBuildNumber, "org.example.test", "1.0.0", marker)
}

func testOptions() Options {
	return Options{
		StagingProfileId: testProfileId,
		PollingInterval:  10 * time.Millisecond,
		UploadThreads:    4,
		DeployTimeout:    time.Minute,
		Exclude:          []string{`build-info\.json`},
		AutoRelease:      true,
	}
}

func createArtifactsRoot(t *testing.T, paths ...string) string {
	root, cleanup := tests.CreateTempDirWithCallbackAndAssert(t)
	t.Cleanup(cleanup)
	tests.CreateArtifactsTree(t, root, paths...)
	return root
}

func newTestService(t *testing.T, fake *fakeStagingServer, options Options) *Service {
	service, err := NewService(fake.Client(t, "user", "secret"), options, nil)
	require.NoError(t, err)
	return service
}

func TestPublish(t *testing.T) {
	fake := newFakeStagingServer(t)
	fake.statuses = []Repository{{Type: Open, Transitioning: true}, {Type: Open, Transitioning: true}, {Type: Closed}}
	root := createArtifactsRoot(t, append(testArtifacts, "build-info.json")...)

	report, err := newTestService(t, fake, testOptions()).Publish(context.Background(), testRelease(), root)
	require.NoError(t, err)

	assert.Equal(t, Done, report.State)
	assert.Equal(t, []State{CheckingIdempotency, CreatingRepository, Deploying, Closing, Releasing, Done}, report.Transitions)
	assert.Equal(t, testRepositoryId, report.RepositoryId)
	assert.Len(t, report.Acknowledgements, len(testArtifacts))

	var deployed []string
	for _, request := range fake.Requests() {
		if request.Method == http.MethodPut {
			deployed = append(deployed, strings.TrimPrefix(request.Path, deployPrefix))
			assert.Equal(t, "application/octet-stream", request.Header.Get("Content-Type"))
			assert.Equal(t, strings.TrimPrefix(request.Path, deployPrefix), string(request.Body))
		}
	}
	assert.ElementsMatch(t, testArtifacts, deployed)
	assert.Equal(t, 3, fake.Count(http.MethodGet, statusPath))
	assert.Equal(t, 0, fake.Count(http.MethodGet, activityPath))
	assert.Equal(t, 0, fake.Count(http.MethodGet, profilesPath))

	requests := fake.Requests()
	assert.JSONEq(t, `{"data":{"description":"`+testBuildNumber+`"}}`, string(findRequest(t, requests, startPath).Body))
	assert.JSONEq(t, `{"data":{"stagedRepositoryId":"`+testRepositoryId+`"}}`, string(findRequest(t, requests, finishPath).Body))
	assert.JSONEq(t, `{"data":{"stagedRepositoryIds":["`+testRepositoryId+`"],"description":"Releasing `+testBuildNumber+`","autoDropAfterRelease":true}}`,
		string(findRequest(t, requests, promotePath).Body))
	for _, request := range requests {
		username, password, ok := (&http.Request{Header: request.Header}).BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "user", username)
		assert.Equal(t, "secret", password)
	}
}

func findRequest(t *testing.T, requests []tests.RecordedRequest, path string) tests.RecordedRequest {
	for _, request := range requests {
		if request.Path == path {
			return request
		}
	}
	require.Fail(t, "no request to "+path)
	return tests.RecordedRequest{}
}

func TestPublishAlreadyPublished(t *testing.T) {
	fake := newFakeStagingServer(t)
	fake.published = true
	root := createArtifactsRoot(t, testArtifacts...)

	report, err := newTestService(t, fake, testOptions()).Publish(context.Background(), testRelease(), root)
	require.NoError(t, err)

	assert.Equal(t, AlreadyPublished, report.State)
	assert.Equal(t, []State{CheckingIdempotency, AlreadyPublished}, report.Transitions)
	assert.Empty(t, report.RepositoryId)
	assert.Len(t, fake.Requests(), 1)
}

func TestPublishResolvesProfile(t *testing.T) {
	fake := newFakeStagingServer(t)
	root := createArtifactsRoot(t, testArtifacts...)
	options := testOptions()
	options.StagingProfileId = ""
	options.StagingProfile = testProfileName

	report, err := newTestService(t, fake, options).Publish(context.Background(), testRelease(), root)
	require.NoError(t, err)

	assert.Equal(t, testProfileId, report.StagingProfileId)
	assert.Equal(t, []State{CheckingIdempotency, ResolvingProfile, CreatingRepository, Deploying, Closing, Releasing, Done}, report.Transitions)
	assert.Equal(t, 1, fake.Count(http.MethodGet, profilesPath))
	assert.Equal(t, 1, fake.Count(http.MethodPost, startPath))
}

func TestPublishProfileNotFound(t *testing.T) {
	fake := newFakeStagingServer(t)
	root := createArtifactsRoot(t, testArtifacts...)
	options := testOptions()
	options.StagingProfileId = ""
	options.StagingProfile = "org.unknown"

	report, err := newTestService(t, fake, options).Publish(context.Background(), testRelease(), root)

	var profileErr *ProfileNotFoundError
	require.True(t, errors.As(err, &profileErr))
	assert.Equal(t, "org.unknown", profileErr.Name)
	var pipelineErr *PipelineError
	require.True(t, errors.As(err, &pipelineErr))
	assert.Equal(t, ResolvingProfile, pipelineErr.State)
	assert.Equal(t, ResolvingProfile, report.State)
	assert.Equal(t, 0, fake.CountMethod(http.MethodPost))
}

func TestPublishCloseFailed(t *testing.T) {
	fake := newFakeStagingServer(t)
	fake.statuses = []Repository{{Type: Open, Transitioning: true}, {Type: Open}}
	fake.activity = `[
	  {"name":"open","events":[{"name":"repositoryCreated","severity":0,"properties":[{"name":"id","value":"` + testRepositoryId + `"}]}]},
	  {"name":"close","events":[
	    {"name":"ruleEvaluate","severity":0,"properties":[{"name":"typeId","value":"signature-staging"}]},
	    {"name":"ruleFailed","severity":1,"properties":[{"name":"typeId","value":"signature-staging"},{"name":"failureMessage","value":"Missing Signature: '/org/example/test/test-artifact/1.0.0/test-artifact-1.0.0.jar.asc' does not exist."}]},
	    {"name":"ruleFailed","severity":1,"properties":[{"name":"failureMessage","value":"Invalid POM: missing description"}]}
	  ]}
	]`
	root := createArtifactsRoot(t, testArtifacts...)

	report, err := newTestService(t, fake, testOptions()).Publish(context.Background(), testRelease(), root)

	var closeErr *CloseFailedError
	require.True(t, errors.As(err, &closeErr))
	assert.Equal(t, testRepositoryId, closeErr.RepositoryId)
	assert.Equal(t, []string{
		"Missing Signature: '/org/example/test/test-artifact/1.0.0/test-artifact-1.0.0.jar.asc' does not exist.",
		"Invalid POM: missing description",
	}, closeErr.Failures)
	assert.Equal(t, Closing, report.State)
	assert.Equal(t, 2, fake.Count(http.MethodGet, statusPath))
	assert.Equal(t, 1, fake.Count(http.MethodGet, activityPath))
	assert.Equal(t, 0, fake.Count(http.MethodPost, promotePath))
}

func TestPublishCloseFailedWithoutActivity(t *testing.T) {
	fake := newFakeStagingServer(t)
	fake.statuses = []Repository{{Type: Open}}
	fake.activity = "not json"
	root := createArtifactsRoot(t, testArtifacts...)

	_, err := newTestService(t, fake, testOptions()).Publish(context.Background(), testRelease(), root)

	var closeErr *CloseFailedError
	require.True(t, errors.As(err, &closeErr))
	assert.Empty(t, closeErr.Failures)
	assert.Equal(t, 1, fake.Count(http.MethodGet, activityPath))
}

func TestPublishDeployFailure(t *testing.T) {
	fake := newFakeStagingServer(t)
	fake.rejectDeploy = "sources"
	root := createArtifactsRoot(t, testArtifacts...)

	report, err := newTestService(t, fake, testOptions()).Publish(context.Background(), testRelease(), root)

	var deployErr *DeployError
	require.True(t, errors.As(err, &deployErr))
	assert.Equal(t, "org/example/test/test-artifact/1.0.0/test-artifact-1.0.0-sources.jar", deployErr.Path)
	assert.Equal(t, testRepositoryId, deployErr.RepositoryId)
	var pipelineErr *PipelineError
	require.True(t, errors.As(err, &pipelineErr))
	assert.Equal(t, Deploying, pipelineErr.State)
	assert.Equal(t, testRepositoryId, pipelineErr.RepositoryId)
	assert.Equal(t, Deploying, report.State)
	assert.Equal(t, 0, fake.Count(http.MethodPost, finishPath))
}

func TestPublishDeployTimeout(t *testing.T) {
	fake := newFakeStagingServer(t)
	fake.blockDeploys = true
	root := createArtifactsRoot(t, testArtifacts...)
	options := testOptions()
	options.DeployTimeout = 100 * time.Millisecond

	_, err := newTestService(t, fake, options).Publish(context.Background(), testRelease(), root)

	assert.True(t, errors.Is(err, ErrDeployTimedOut))
	assert.False(t, errors.Is(err, ErrInterrupted))
	assert.Equal(t, 0, fake.Count(http.MethodPost, finishPath))
}

func TestPublishInterruptedWhileClosing(t *testing.T) {
	fake := newFakeStagingServer(t)
	fake.statuses = []Repository{{Type: Open, Transitioning: true}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once sync.Once
	fake.onStatus = func() {
		once.Do(cancel)
	}
	root := createArtifactsRoot(t, testArtifacts...)
	options := testOptions()
	options.PollingInterval = time.Minute

	report, err := newTestService(t, fake, options).Publish(ctx, testRelease(), root)

	assert.True(t, errors.Is(err, ErrInterrupted))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, Closing, report.State)
	assert.Equal(t, 1, fake.Count(http.MethodGet, statusPath))
	assert.Equal(t, 0, fake.Count(http.MethodPost, promotePath))
}

func TestPublishManyArtifacts(t *testing.T) {
	fake := newFakeStagingServer(t)
	paths := []string{"build-info.json"}
	for i := 0; i < 149; i++ {
		paths = append(paths, fmt.Sprintf("org/example/test/module-%d/1.0.0/module-%d-1.0.0.jar", i, i))
	}
	root := createArtifactsRoot(t, paths...)
	options := testOptions()
	options.UploadThreads = 8

	report, err := newTestService(t, fake, options).Publish(context.Background(), testRelease(), root)
	require.NoError(t, err)

	assert.Equal(t, 149, fake.CountMethod(http.MethodPut))
	assert.Len(t, report.Acknowledgements, 149)
	for _, request := range fake.Requests() {
		assert.NotContains(t, request.Path, "build-info.json")
	}
}

func TestPublishWithoutAutoRelease(t *testing.T) {
	fake := newFakeStagingServer(t)
	root := createArtifactsRoot(t, testArtifacts...)
	options := testOptions()
	options.AutoRelease = false

	report, err := newTestService(t, fake, options).Publish(context.Background(), testRelease(), root)
	require.NoError(t, err)

	assert.Equal(t, []State{CheckingIdempotency, CreatingRepository, Deploying, Closing, Done}, report.Transitions)
	assert.Equal(t, 1, fake.Count(http.MethodPost, finishPath))
	assert.Equal(t, 0, fake.Count(http.MethodPost, promotePath))
}

func TestPublishIdempotencyCheckFailure(t *testing.T) {
	fake := newFakeStagingServer(t)
	fake.Close()
	root := createArtifactsRoot(t, testArtifacts...)

	report, err := newTestService(t, fake, testOptions()).Publish(context.Background(), testRelease(), root)

	var pipelineErr *PipelineError
	require.True(t, errors.As(err, &pipelineErr))
	assert.Equal(t, CheckingIdempotency, pipelineErr.State)
	assert.Equal(t, CheckingIdempotency, report.State)
}
