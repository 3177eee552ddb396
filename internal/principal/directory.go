package principal

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/campuslink/portal/internal/common/errors"
)

// Directory resolves user ids against the external principal directory.
// Conversation creation uses it to reject unknown participants up front.
type Directory interface {
	Resolve(ctx context.Context, userID string) (*Principal, error)
}

// HTTPDirectory talks to the directory service over REST.
type HTTPDirectory struct {
	client *resty.Client
}

func NewHTTPDirectory(baseURL string, timeout time.Duration) *HTTPDirectory {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond)

	return &HTTPDirectory{client: client}
}

func (d *HTTPDirectory) Resolve(ctx context.Context, userID string) (*Principal, error) {
	var p Principal

	resp, err := d.client.R().
		SetContext(ctx).
		SetResult(&p).
		Get(fmt.Sprintf("/users/%s", userID))

	if err != nil {
		return nil, errors.Internal("directory lookup failed", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return &p, nil
	case http.StatusNotFound:
		return nil, errors.NotFound("unknown user")
	default:
		return nil, errors.Internal(
			fmt.Sprintf("directory returned status %d", resp.StatusCode()), nil)
	}
}

// StaticDirectory serves a fixed principal set. Used in tests and in dev mode
// when no directory service is configured.
type StaticDirectory struct {
	mu    sync.RWMutex
	users map[string]Principal
}

func NewStaticDirectory(users ...Principal) *StaticDirectory {
	d := &StaticDirectory{users: make(map[string]Principal)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *StaticDirectory) Add(p Principal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[p.ID] = p
}

func (d *StaticDirectory) Resolve(_ context.Context, userID string) (*Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.users[userID]
	if !ok {
		return nil, errors.NotFound("unknown user")
	}
	return &p, nil
}
