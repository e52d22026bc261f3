package groupcache

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelpline/msgcore/internal/errs"
)

func TestHTTPRepositoryMembersSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/groups/g1/members", r.URL.Path)
		_ = json.NewEncoder(w).Encode(membersResponse{UserIDs: []string{"a", "b"}})
	}))
	defer srv.Close()

	repo := NewHTTPRepository(srv.URL, zap.NewNop())
	members, err := repo.Members("g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, members)
}

func TestHTTPRepositoryMembersNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	repo := NewHTTPRepository(srv.URL, zap.NewNop())
	_, err := repo.Members("missing")
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.Of(err))
}

func TestHTTPRepositoryMembersServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	repo := NewHTTPRepository(srv.URL, zap.NewNop())
	_, err := repo.Members("g1")
	require.Error(t, err)
	assert.Equal(t, errs.KindTransient, errs.Of(err))
}
