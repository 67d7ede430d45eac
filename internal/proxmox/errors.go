package proxmox

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFailed is returned when neither the token nor the
	// username/password path produced a usable authentication.
	ErrAuthFailed = errors.New("proxmox authentication failed")

	// ErrTaskTimeout is returned when a task does not reach a terminal
	// state within the wait deadline.
	ErrTaskTimeout = errors.New("task timeout")
)

// HTTPError is any non-2xx response from the hypervisor.
type HTTPError struct {
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s failed (%d): %s", e.Path, e.Status, e.Body)
}

// TaskError is a hypervisor task that reached a terminal state with a
// non-success exit status.
type TaskError struct {
	UPID       string
	ExitStatus string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task failed: %s", e.ExitStatus)
}
