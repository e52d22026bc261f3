// Package frontdoor implements the HTTP Front Door (C10): a configured
// route table of path-prefix -> (service_kind, require_auth, rewrite),
// applying whitelists before auth, verifying bearer tokens, looking up a
// live backend via C4/C5, and dispatching either a typed RPC call or an
// HTTP proxy request (spec §4.10).
package frontdoor

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kelpline/msgcore/internal/auth"
	"github.com/kelpline/msgcore/internal/errs"
	"github.com/kelpline/msgcore/internal/rpcpool"
	"github.com/kelpline/msgcore/pkg/rpc"
)

// Kind distinguishes how a routed backend speaks.
type Kind int

const (
	KindHTTP Kind = iota
	KindRPC
)

// Route is one row of the configured route table (spec §4.10).
type Route struct {
	PathPrefix  string
	Kind        Kind
	RequireAuth bool
	Rewrite     string // replaces PathPrefix before forwarding
	ServiceName string // registry service name backing this route
}

// Whitelist holds IP and path exemptions evaluated before auth (spec
// §4.10 "apply whitelists (ip, path) before auth").
type Whitelist struct {
	IPs   map[string]struct{}
	Paths map[string]struct{}
}

// FrontDoor wires the route table to a *chi.Mux.
type FrontDoor struct {
	routes    []Route
	whitelist Whitelist
	jwt       *auth.JWTManager
	pools     map[string]*rpcpool.Pool // serviceName -> C5 pool, HTTP backends too
	log       *zap.Logger
}

func New(routes []Route, whitelist Whitelist, jwt *auth.JWTManager, pools map[string]*rpcpool.Pool, log *zap.Logger) *FrontDoor {
	return &FrontDoor{routes: routes, whitelist: whitelist, jwt: jwt, pools: pools, log: log}
}

// Router builds the chi.Mux serving every configured route.
func (f *FrontDoor) Router() http.Handler {
	r := chi.NewRouter()
	for _, route := range f.routes {
		route := route
		r.HandleFunc(route.PathPrefix+"/*", func(w http.ResponseWriter, req *http.Request) {
			f.handle(route, w, req)
		})
	}
	return r
}

// handle applies the whitelist-before-auth rule (spec §4.10): a whitelisted
// request, or a route that doesn't require auth, dispatches directly;
// everything else goes through the shared JWTManager.AuthMiddleware so the
// front door verifies bearer tokens the same way every other HTTP surface
// in this codebase would, instead of re-deriving token extraction here.
func (f *FrontDoor) handle(route Route, w http.ResponseWriter, r *http.Request) {
	dispatch := func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := auth.GetUserFromContext(r.Context()); ok {
			f.log.Debug("frontdoor: authenticated request",
				zap.String("path", r.URL.Path), zap.String("user_id", claims.UserID))
		}

		rewritten := strings.Replace(r.URL.Path, route.PathPrefix, route.Rewrite, 1)

		switch route.Kind {
		case KindRPC:
			f.proxyRPC(route, rewritten, w, r)
		default:
			f.proxyHTTP(route, rewritten, w, r)
		}
	}

	if f.whitelisted(r) || !route.RequireAuth {
		dispatch(w, r)
		return
	}
	f.jwt.AuthMiddleware(dispatch)(w, r)
}

func (f *FrontDoor) whitelisted(r *http.Request) bool {
	if _, ok := f.whitelist.Paths[r.URL.Path]; ok {
		return true
	}
	ip := strings.Split(r.RemoteAddr, ":")[0]
	_, ok := f.whitelist.IPs[ip]
	return ok
}

// proxyHTTP forwards the request body to a live HTTP backend, preserving
// headers except hop-by-hop ones, and decompressing gzip-encoded JSON
// bodies before forwarding (spec §4.10).
func (f *FrontDoor) proxyHTTP(route Route, rewrittenPath string, w http.ResponseWriter, r *http.Request) {
	pool := f.pools[route.ServiceName]
	if pool == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	stats := pool.StatsSnapshot()
	if stats.EndpointCount == 0 {
		http.Error(w, "no live backend", http.StatusServiceUnavailable)
		return
	}

	// Backend address resolution for HTTP routes reuses the same C5 pool
	// abstraction; for HTTP we keep a side table of addr strings rather
	// than *grpc.ClientConn, so callers pass http addresses through
	// Route.ServiceName + registry lookups performed by the caller when
	// wiring pools. Here we just require the caller configured the pool's
	// backing addresses as reachable HTTP origins.
	target := &url.URL{Scheme: "http", Host: firstEndpointAddr(pool)}
	proxy := httputil.NewSingleHostReverseProxy(target)

	if r.Header.Get("Content-Encoding") == "gzip" {
		decompressGzipBody(r)
	}

	r.URL.Path = rewrittenPath
	stripHopByHopHeaders(r.Header)
	proxy.ServeHTTP(w, r)
}

func firstEndpointAddr(pool *rpcpool.Pool) string {
	for addr := range pool.All() {
		return addr
	}
	return ""
}

func decompressGzipBody(r *http.Request) {
	gz, err := gzip.NewReader(r.Body)
	if err != nil {
		return
	}
	defer gz.Close()
	data, err := io.ReadAll(gz)
	if err != nil {
		return
	}
	r.Body = io.NopCloser(strings.NewReader(string(data)))
	r.Header.Del("Content-Encoding")
	r.ContentLength = int64(len(data))
}

// statusFor maps an errs.Kind to an HTTP status by the fixed table of
// spec §7: NotFound->404, InvalidArgument->400, Authentication->401,
// PermissionDenied->403, Unavailable->503, else 500.
func statusFor(k errs.Kind) int {
	switch k {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindInvalidArgument:
		return http.StatusBadRequest
	case errs.KindAuthentication:
		return http.StatusUnauthorized
	case errs.KindPermissionDenied:
		return http.StatusForbidden
	case errs.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailers", "Transfer-Encoding", "Upgrade",
}

func stripHopByHopHeaders(h http.Header) {
	for _, header := range hopByHopHeaders {
		h.Del(header)
	}
}

// proxyRPC terminates HTTP and issues a typed ChatService.SendMsg call
// against the live backend selected by the C5 pool, instead of proxying
// bytes (spec §4.10 "for services that speak RPC internally, the front door
// terminates HTTP and issues a typed RPC call"). The front door's only RPC
// backend is the chat ingest service (spec §6's RPC surface); other
// services in the route table speak HTTP and go through proxyHTTP.
func (f *FrontDoor) proxyRPC(route Route, rewrittenPath string, w http.ResponseWriter, r *http.Request) {
	pool := f.pools[route.ServiceName]
	if pool == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	conn := pool.Next()
	if conn == nil {
		http.Error(w, "no live backend", http.StatusServiceUnavailable)
		return
	}

	var req rpc.SendMsgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	client := rpc.NewChatServiceClient(conn)
	resp, err := client.SendMsg(r.Context(), &req)
	if err != nil {
		http.Error(w, "backend unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
