package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/h2non/filetype"
)

const DefaultMaxBytes = 20 << 20

var (
	ErrTooLarge    = errors.New("media file too large")
	ErrUnsupported = errors.New("unsupported media type")
)

// Object is a downloaded media file with its sniffed type.
type Object struct {
	Data      []byte
	MIME      string
	Extension string
}

func (o *Object) IsImage() bool { return filetype.IsImage(o.Data) }

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Object, error)
}

type fetcher struct {
	http     *http.Client
	r2       *R2Store
	maxBytes int64
}

// NewFetcher downloads media over HTTP, reading app-hosted files straight from R2 when r2 is set.
func NewFetcher(client *http.Client, r2 *R2Store) Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &fetcher{http: client, r2: r2, maxBytes: DefaultMaxBytes}
}

func (f *fetcher) Fetch(ctx context.Context, rawURL string) (*Object, error) {
	var data []byte
	var err error

	if key, ok := f.r2.KeyFor(rawURL); ok {
		data, err = f.r2.Get(ctx, key, f.maxBytes)
		if err != nil {
			slog.Info("r2 read failed, falling back to http", slog.String("key", key), slog.String("error", err.Error()))
			data, err = f.download(ctx, rawURL)
		}
	} else {
		data, err = f.download(ctx, rawURL)
	}
	if err != nil {
		return nil, err
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return nil, ErrUnsupported
	}
	if !filetype.IsImage(data) && !filetype.IsVideo(data) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind.MIME.Value)
	}
	return &Object{Data: data, MIME: kind.MIME.Value, Extension: kind.Extension}, nil
}

func (f *fetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating media request: %w", err)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected media response status: %d", resp.StatusCode)
	}
	return readLimited(resp.Body, f.maxBytes)
}
