package staging

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrDeployTimedOut = errors.New("deploy timed out")
	ErrInterrupted    = errors.New("interrupted")
)

// ProfileNotFoundError is returned when no staging profile has the configured name.
type ProfileNotFoundError struct {
	Name string
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("could not find staging profile named '%s'", e.Name)
}

// DeployError is the failure of a single artifact upload.
type DeployError struct {
	Path         string
	RepositoryId string
	Err          error
}

func (e *DeployError) Error() string {
	return fmt.Sprintf("failed to deploy %s to staging repository %s: %s", e.Path, e.RepositoryId, e.Err.Error())
}

func (e *DeployError) Unwrap() error {
	return e.Err
}

// CloseFailedError is returned when the server rules reject the closing of a staging repository.
// Failures holds the messages found in the repository activity, if any could be read.
type CloseFailedError struct {
	RepositoryId string
	Failures     []string
}

func (e *CloseFailedError) Error() string {
	msg := fmt.Sprintf("close failed for staging repository %s", e.RepositoryId)
	if len(e.Failures) == 0 {
		return msg
	}
	return msg + ":\n    " + strings.Join(e.Failures, "\n    ")
}

// PipelineError wraps the error that aborted a publication with the state it happened in.
type PipelineError struct {
	State        State
	RepositoryId string
	Err          error
}

func (e *PipelineError) Error() string {
	if e.RepositoryId == "" {
		return fmt.Sprintf("publication failed while %s: %s", e.State, e.Err.Error())
	}
	return fmt.Sprintf("publication failed while %s (staging repository %s): %s", e.State, e.RepositoryId, e.Err.Error())
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// interrupted wraps the cause of a cancelled context so that both ErrInterrupted and the cause can be matched.
func interrupted(msg string, cause error) error {
	return &interruptedError{msg: msg, cause: cause}
}

type interruptedError struct {
	msg   string
	cause error
}

func (e *interruptedError) Error() string {
	return fmt.Sprintf("%s: %s", e.msg, e.cause.Error())
}

func (e *interruptedError) Is(target error) bool {
	return target == ErrInterrupted
}

func (e *interruptedError) Unwrap() error {
	return e.cause
}
