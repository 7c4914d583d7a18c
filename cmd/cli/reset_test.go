package cli

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetBreakersAcceptsNoContent(t *testing.T) {
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := resetBreakers(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	assert.Equal(t, "/breakers/reset", gotPath)
}

func TestResetBreakersReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := resetBreakers(strings.TrimPrefix(srv.URL, "http://"))
	assert.ErrorContains(t, err, "status 500")
}

func TestResetBreakersUnreachableService(t *testing.T) {
	err := resetBreakers("localhost:1")
	assert.ErrorContains(t, err, "not reachable")
}
