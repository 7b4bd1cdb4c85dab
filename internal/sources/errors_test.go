package sources

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindForStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   TransportErrorKind
	}{
		{0, KindConnectivity},
		{http.StatusUnauthorized, KindAuthentication},
		{http.StatusForbidden, KindAuthentication},
		{http.StatusNotFound, KindNotFound},
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusBadGateway, KindOther},
		{http.StatusBadRequest, KindOther},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, KindForStatus(tt.status))
		})
	}
}

func TestTransportError(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	notFound := newTransportError("gitlab_repo", "get file", http.StatusNotFound, cause)
	assert.ErrorIs(t, notFound, ErrTransport)
	assert.ErrorIs(t, notFound, ErrNotFound)
	assert.ErrorIs(t, notFound, cause)
	assert.NotErrorIs(t, notFound, ErrLocal)
	assert.Equal(t, "gitlab_repo: get file failed (not-found) HTTP 404: boom", notFound.Error())

	offline := newTransportError("attendance", "get attendance", 0, cause)
	offline.Hint = "connect to the VPN"
	assert.NotErrorIs(t, offline, ErrNotFound)
	assert.Equal(t, "attendance: get attendance failed (connectivity): boom (connect to the VPN)", offline.Error())

	// wrapping keeps classification
	wrapped := fmt.Errorf("fetch failed: %w", notFound)
	assert.ErrorIs(t, wrapped, ErrNotFound)
}

func TestLocalError(t *testing.T) {
	t.Parallel()

	missing := &LocalError{Source: "files", Operation: "read", Path: "a.txt", Err: os.ErrNotExist, notFound: true}
	assert.ErrorIs(t, missing, ErrLocal)
	assert.ErrorIs(t, missing, ErrNotFound)
	assert.ErrorIs(t, missing, os.ErrNotExist)
	assert.NotErrorIs(t, missing, ErrTransport)

	denied := &LocalError{Source: "files", Operation: "read", Path: "a.txt", Err: os.ErrPermission}
	assert.NotErrorIs(t, denied, ErrNotFound)
	assert.Equal(t, "files: read a.txt: permission denied", denied.Error())
}

func TestCapabilityNotSupportedError(t *testing.T) {
	t.Parallel()

	err := error(&CapabilityNotSupportedError{DataType: "repository", SourceType: "local_repository", Operation: "GetIssues"})
	assert.ErrorIs(t, err, ErrCapabilityNotSupported)
	assert.NotErrorIs(t, err, ErrTransport)
	assert.Equal(t, `GetIssues is not supported for data type "repository" backed by local_repository`, err.Error())
}
