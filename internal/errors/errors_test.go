package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDownloadError_Is(t *testing.T) {
	generic := &DownloadError{ExitCode: 1, Reason: "HTTP Error 404"}
	assert.True(t, errors.Is(generic, ErrDownloadFailed))
	assert.False(t, errors.Is(generic, ErrAuthRejected))

	auth := &DownloadError{ExitCode: 1, Reason: "use --cookies", AuthRelated: true}
	assert.True(t, errors.Is(auth, ErrDownloadFailed))
	assert.True(t, errors.Is(auth, ErrAuthRejected))

	wrapped := fmt.Errorf("submit: %w", auth)
	var de *DownloadError
	assert.True(t, errors.As(wrapped, &de))
	assert.Equal(t, 1, de.ExitCode)
}

func TestDownloadError_Message(t *testing.T) {
	assert.Equal(t, "download failed: exit code 2", (&DownloadError{ExitCode: 2}).Error())
	assert.Equal(t, "authentication rejected: exit code 1: bad cookies",
		(&DownloadError{ExitCode: 1, Reason: "bad cookies", AuthRelated: true}).Error())
}
