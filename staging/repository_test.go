package staging

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jfrog/build-promotion-go/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFailureMessages(t *testing.T) {
	testCases := []struct {
		name     string
		activity string
		expected []string
	}{
		{name: "empty", activity: `[]`, expected: []string{}},
		{name: "no failures", activity: `[{"events":[{"severity":0,"properties":[{"name":"failureMessage","value":"ignored"}]}]}]`, expected: []string{}},
		{name: "no events", activity: `[{"name":"open"}]`, expected: []string{}},
		{
			name:     "failures",
			activity: `[{"events":[{"severity":1,"properties":[{"name":"typeId","value":"pom-staging"},{"name":"failureMessage","value":"first"}]}]},{"events":[{"severity":2,"properties":[{"name":"failureMessage","value":"second"}]}]}]`,
			expected: []string{"first", "second"},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			failures, err := parseFailureMessages([]byte(testCase.activity))
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, failures)
		})
	}
}

func TestParseFailureMessagesInvalid(t *testing.T) {
	_, err := parseFailureMessages([]byte(`{"not":"an array"}`))
	assert.Error(t, err)
}

func TestCreate(t *testing.T) {
	fake := newFakeStagingServer(t)
	repositories := NewRepositoryClient(fake.Client(t, "", ""), 0, nil)

	_, err := repositories.Create(context.Background(), "unknown", "description")
	assert.True(t, httpclient.IsClientError(err))

	_, err = repositories.Create(context.Background(), testProfileId, "description")
	assert.NoError(t, err)
	assert.Equal(t, 2, fake.CountMethod(http.MethodPost))
}

func TestStatus(t *testing.T) {
	fake := newFakeStagingServer(t)
	fake.statuses = []Repository{{Type: Released}}
	repositories := NewRepositoryClient(fake.Client(t, "", ""), 0, nil)

	repository, err := repositories.Status(context.Background(), testRepositoryId)
	require.NoError(t, err)
	assert.Equal(t, &Repository{Type: Released}, repository)
}

func TestCloseInterruptedWhilePolling(t *testing.T) {
	fake := newFakeStagingServer(t)
	fake.statuses = []Repository{{Type: Open, Transitioning: true}}
	polled := make(chan struct{}, 1)
	fake.onStatus = func() {
		select {
		case polled <- struct{}{}:
		default:
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-polled
		// Let the status response reach the client, so the cancellation happens during the wait.
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	repositories := NewRepositoryClient(fake.Client(t, "", ""), time.Minute, nil)

	start := time.Now()
	err := repositories.Close(ctx, testProfileId, testRepositoryId)

	assert.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 30*time.Second)
	assert.Equal(t, 1, fake.Count(http.MethodGet, statusPath))
	assert.Equal(t, 0, fake.Count(http.MethodGet, activityPath))
}
