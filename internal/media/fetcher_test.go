package media

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Smallest valid PNG header, enough for type sniffing.
var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52}

type stubGetter struct {
	data []byte
	err  error
	keys []string
}

func (s *stubGetter) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	s.keys = append(s.keys, *params.Key)
	if s.err != nil {
		return nil, s.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(s.data))}, nil
}

func TestFetchOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()

	obj, err := NewFetcher(srv.Client(), nil).Fetch(context.Background(), srv.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", obj.MIME)
	assert.Equal(t, "png", obj.Extension)
	assert.True(t, obj.IsImage())
}

func TestFetchRejectsUnknownType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("just some text"))
	}))
	defer srv.Close()

	_, err := NewFetcher(srv.Client(), nil).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestFetchRejectsOversized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(append(pngBytes, make([]byte, 64)...))
	}))
	defer srv.Close()

	f := &fetcher{http: srv.Client(), maxBytes: 32}
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFetchReadsAppMediaFromR2(t *testing.T) {
	getter := &stubGetter{data: pngBytes}
	store := &R2Store{client: getter, bucket: "media", publicURL: "https://media.example.com"}

	obj, err := NewFetcher(nil, store).Fetch(context.Background(), "https://media.example.com/uploads/a.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", obj.MIME)
	assert.Equal(t, []string{"uploads/a.png"}, getter.keys)
}

func TestKeyFor(t *testing.T) {
	store := &R2Store{publicURL: "https://media.example.com"}

	key, ok := store.KeyFor("https://media.example.com/x/y.jpg")
	assert.True(t, ok)
	assert.Equal(t, "x/y.jpg", key)

	_, ok = store.KeyFor("https://elsewhere.example.com/x/y.jpg")
	assert.False(t, ok)

	var nilStore *R2Store
	_, ok = nilStore.KeyFor("https://media.example.com/x/y.jpg")
	assert.False(t, ok)
}
