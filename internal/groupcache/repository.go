package groupcache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kelpline/msgcore/internal/errs"
)

// HTTPRepository calls the external group repository over plain HTTP (spec
// §1 "user/friend/group CRUD repositories ... specified only by the RPC
// shapes consumed by the core"). Like C4's registry client, no group-service
// client library exists anywhere in the example corpus, so this is the
// second deliberately stdlib-only component (DESIGN.md, "Stdlib-only
// components").
type HTTPRepository struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewHTTPRepository(baseURL string, log *zap.Logger) *HTTPRepository {
	return &HTTPRepository{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
		log:     log,
	}
}

type membersResponse struct {
	UserIDs []string `json:"user_ids"`
}

// Members implements Repository by fetching the current member set for
// groupID. It satisfies Cache's fallback-and-repopulate path on a miss.
func (c *HTTPRepository) Members(groupID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/v1/groups/%s/members", c.baseURL, groupID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "groupcache: build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindTransient, "groupcache: repository unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errs.New(errs.KindNotFound, "groupcache: group not found")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.KindTransient, fmt.Sprintf("groupcache: repository status %d", resp.StatusCode))
	}

	var out membersResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "groupcache: decode response")
	}
	return out.UserIDs, nil
}
