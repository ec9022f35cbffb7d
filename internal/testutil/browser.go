package testutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Browser is a scripted stand-in for the user's browser. Every URL it is
// asked to open is recorded. With FollowRedirects set it loads the page and
// follows redirects, which lets a popup login reach the client's loopback
// callback; otherwise it only records the URL, which is what a redirect
// flow needs before the test calls IdP.Authorize and HandleRedirect.
type Browser struct {
	FollowRedirects bool

	mu      sync.Mutex
	visited []string
	fail    error
}

// Navigate implements the client's Navigator.
func (b *Browser) Navigate(ctx context.Context, target string) error {
	b.mu.Lock()
	b.visited = append(b.visited, target)
	fail := b.fail
	b.mu.Unlock()

	if fail != nil {
		return fail
	}
	if !b.FollowRedirects {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("browser: %s returned status %d", target, resp.StatusCode)
	}
	return nil
}

// FailWith makes the next navigations fail, as if the window was blocked.
func (b *Browser) FailWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = err
}

// Visited returns every URL opened so far.
func (b *Browser) Visited() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.visited))
	copy(out, b.visited)
	return out
}

// Last returns the most recently opened URL, or "".
func (b *Browser) Last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.visited) == 0 {
		return ""
	}
	return b.visited[len(b.visited)-1]
}
