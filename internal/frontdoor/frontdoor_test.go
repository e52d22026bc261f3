package frontdoor

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"

	"github.com/kelpline/msgcore/internal/auth"
	"github.com/kelpline/msgcore/internal/errs"
	"github.com/kelpline/msgcore/internal/rpcpool"
)

func TestStatusForMapsFixedTable(t *testing.T) {
	cases := map[errs.Kind]int{
		errs.KindNotFound:         http.StatusNotFound,
		errs.KindInvalidArgument:  http.StatusBadRequest,
		errs.KindAlreadyExists:    http.StatusInternalServerError,
		errs.KindAuthentication:   http.StatusUnauthorized,
		errs.KindPermissionDenied: http.StatusForbidden,
		errs.KindUnavailable:      http.StatusServiceUnavailable,
		errs.KindTransient:        http.StatusInternalServerError,
		errs.KindInternal:         http.StatusInternalServerError,
		errs.KindUnknown:          http.StatusInternalServerError,
	}
	for k, want := range cases {
		assert.Equal(t, want, statusFor(k), k.String())
	}
}

func TestWhitelistedByPath(t *testing.T) {
	f := New(nil, Whitelist{Paths: map[string]struct{}{"/healthz": {}}}, nil, nil, zap.NewNop())
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	assert.True(t, f.whitelisted(r))

	r2 := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	assert.False(t, f.whitelisted(r2))
}

func TestWhitelistedByIP(t *testing.T) {
	f := New(nil, Whitelist{IPs: map[string]struct{}{"10.0.0.5": {}}}, nil, nil, zap.NewNop())
	r := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	r.RemoteAddr = "10.0.0.5:54321"
	assert.True(t, f.whitelisted(r))
}

func TestHandleRequiresAuthWithoutToken(t *testing.T) {
	route := Route{PathPrefix: "/api/chat", Kind: KindRPC, RequireAuth: true, ServiceName: "ingest"}
	f := New([]Route{route}, Whitelist{}, auth.NewJWTManager("secret"), map[string]*rpcpool.Pool{}, zap.NewNop())

	r := httptest.NewRequest(http.MethodGet, "/api/chat/send", nil)
	w := httptest.NewRecorder()
	f.handle(route, w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleWhitelistedSkipsAuthButHasNoBackend(t *testing.T) {
	route := Route{PathPrefix: "/api/chat", Kind: KindRPC, RequireAuth: true, ServiceName: "ingest"}
	f := New([]Route{route}, Whitelist{Paths: map[string]struct{}{"/api/chat/send": {}}},
		auth.NewJWTManager("secret"), nil, zap.NewNop())

	r := httptest.NewRequest(http.MethodGet, "/api/chat/send", nil)
	w := httptest.NewRecorder()
	f.handle(route, w, r)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
