package platform

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/postflow-engine/internal/transfer"
)

// metaGraph is the request shape shared by the Facebook, Instagram and Threads Graph APIs:
// versioned paths, access_token as a parameter, {"id": ...} replies.
type metaGraph struct {
	api     apiClient
	baseURL string
	version string
}

const (
	defaultContainerPollInterval = 3 * time.Second
	defaultContainerPollAttempts = 20
)

// containerPoll bounds how long a media container may take to process.
type containerPoll struct {
	interval time.Duration
	attempts int
}

func newContainerPoll(interval time.Duration, attempts int) containerPoll {
	if interval <= 0 {
		interval = defaultContainerPollInterval
	}
	if attempts <= 0 {
		attempts = defaultContainerPollAttempts
	}
	return containerPoll{interval: interval, attempts: attempts}
}

// containerState extracts the state and its detail from a status reply.
type containerState func(transfer.MetaContainerStatus) (state, detail string)

func (g metaGraph) endpoint(path string, params url.Values) string {
	u := strings.TrimRight(g.baseURL, "/")
	if g.version != "" {
		u += "/" + g.version
	}
	u += "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// create POSTs params to path and returns the created object's id.
func (g metaGraph) create(ctx context.Context, path, accessToken string, params url.Values) (string, error) {
	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	form.Set("access_token", accessToken)

	var out transfer.MetaObject
	if err := g.api.postForm(ctx, g.endpoint(path, nil), nil, form, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", ErrUnexpectedReply
	}
	return out.ID, nil
}

func (g metaGraph) get(ctx context.Context, path, accessToken string, params url.Values, out any) error {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("access_token", accessToken)
	return g.api.get(ctx, g.endpoint(path, q), nil, out)
}

// permalink looks up the public URL of a published object. It returns
// fallback if the lookup fails, since the post is already live by then.
func (g metaGraph) permalink(ctx context.Context, mediaID, accessToken, fallback string) string {
	var out transfer.MetaObject
	if err := g.get(ctx, mediaID, accessToken, url.Values{"fields": {"permalink"}}, &out); err != nil || out.Permalink == "" {
		return fallback
	}
	return out.Permalink
}

// waitReady polls a container until it can be published. fields names the
// status fields to request.
func (g metaGraph) waitReady(ctx context.Context, containerID, accessToken, fields string, poll containerPoll, read containerState) error {
	for attempt := 1; ; attempt++ {
		var out transfer.MetaContainerStatus
		if err := g.get(ctx, containerID, accessToken, url.Values{"fields": {fields}}, &out); err != nil {
			return err
		}

		state, detail := read(out)
		switch state {
		case "FINISHED", "PUBLISHED":
			return nil
		case "ERROR", "EXPIRED":
			if detail == "" {
				detail = state
			}
			return fmt.Errorf("%w: %s", ErrMediaRejected, detail)
		}

		if attempt >= poll.attempts {
			return fmt.Errorf("%w after %d checks", ErrMediaNotReady, attempt)
		}
		timer := time.NewTimer(poll.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
