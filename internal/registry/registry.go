// Package registry implements the Service Registry Client (C4): register
// this process under a stable id, attach health-check metadata, deregister
// on shutdown, and answer find_by_name (spec §4.4). Every operation is a
// plain net/http call (justified in SPEC_FULL §2: no registry-client
// library appears anywhere in the retrieval pack), following the same
// typed-interface shape as webitel-im-delivery-service's Connector.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kelpline/msgcore/internal/errs"
)

// Record is a service record as stored by the registry (spec §3 "Service
// record").
type Record struct {
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Host  string             `json:"host"`
	Port  int               `json:"port"`
	Tags  []string          `json:"tags,omitempty"`
	Check Check             `json:"check"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Check describes the health-check probe attached at registration (spec
// §4.4 "HTTP or TCP probe + deregister-after-critical period").
type Check struct {
	Kind                           string        `json:"kind"` // "http" or "tcp"
	Target                         string        `json:"target"`
	Interval                       time.Duration `json:"interval"`
	DeregisterCriticalAfter        time.Duration `json:"deregister_critical_after"`
}

// ID returns the stable registration id fixed by the spec's Open Question
// (c): `{name}-{host}-{port}`.
func ID(name, host string, port int) string {
	return fmt.Sprintf("%s-%s-%d", name, host, port)
}

// Client is an HTTP client for the registry's register/deregister/
// find_by_name surface.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// New builds a Client. baseURL is e.g. "http://registry.internal:8500".
func New(baseURL string, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// Register records this process under rec.ID. Failures surface as
// errs.KindTransient (errs.KindInternal when the request cannot be built)
// and never panic the caller (spec §4.4).
func (c *Client) Register(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return errs.Wrap(err, errs.KindInternal, "registry: marshal record")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/v1/agent/service/register",
		bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(err, errs.KindInternal, "registry: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrap(err, errs.KindTransient, "registry: register request")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errs.New(errs.KindTransient, fmt.Sprintf("registry: register status %d", resp.StatusCode))
	}
	return nil
}

// Deregister removes id from the registry, called on graceful shutdown
// (spec §5 "Cancellation & timeouts": deregister first, then drain).
func (c *Client) Deregister(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.baseURL+"/v1/agent/service/deregister/"+id, nil)
	if err != nil {
		return errs.Wrap(err, errs.KindInternal, "registry: build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrap(err, errs.KindTransient, "registry: deregister request")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errs.New(errs.KindTransient, fmt.Sprintf("registry: deregister status %d", resp.StatusCode))
	}
	return nil
}

// FindByName answers find_by_name(service_name) -> {id -> record} (spec
// §4.4).
func (c *Client) FindByName(ctx context.Context, name string) (map[string]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/health/service/"+name+"?passing=true", nil)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "registry: build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindTransient, "registry: find_by_name request")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, errs.New(errs.KindTransient, fmt.Sprintf("registry: find_by_name status %d", resp.StatusCode))
	}

	var records []Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "registry: decode find_by_name")
	}

	out := make(map[string]Record, len(records))
	for _, r := range records {
		out[r.ID] = r
	}
	return out, nil
}
