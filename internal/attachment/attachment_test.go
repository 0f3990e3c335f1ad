package attachment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := map[string]Kind{
		"a.png":                 KindPhoto,
		"images/u/1cat.jpeg":    KindPhoto,
		"x.jpg":                 KindPhoto,
		"x.webp":                KindPhoto,
		"x.avif":                KindPhoto,
		"x.gif":                 KindPhoto,
		"b.mp4":                 KindVideo,
		"b.webm":                KindVideo,
		"b.ogg":                 KindVideo,
		"c.mp3":                 KindAudio,
		"c.wav":                 KindAudio,
		"d.pdf":                 KindUnknown,
		"A.PNG":                 KindUnknown,
		"png":                   KindUnknown,
		"photo.png.txt":         KindUnknown,
		"":                      KindUnknown,
		"images/u/1archive.tar": KindUnknown,
	}
	for ref, want := range cases {
		assert.Equal(t, want, Classify(ref), ref)
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "photo", KindPhoto.String())
	assert.Equal(t, "video", KindVideo.String())
	assert.Equal(t, "audio", KindAudio.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}

type fakeBackend struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (f *fakeBackend) ResolveURL(_ context.Context, ref string) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	return "https://objects/" + ref, nil
}

func TestResolveCachesResult(t *testing.T) {
	b := &fakeBackend{}
	r := NewResolver(b, nil)

	u1, err := r.Resolve(context.Background(), "a.png")
	require.NoError(t, err)
	u2, err := r.Resolve(context.Background(), "a.png")
	require.NoError(t, err)

	assert.Equal(t, "https://objects/a.png", u1)
	assert.Equal(t, u1, u2)
	assert.EqualValues(t, 1, b.calls.Load())

	cached, ok := r.Cached("a.png")
	assert.True(t, ok)
	assert.Equal(t, u1, cached)
}

func TestResolveCollapsesConcurrentMisses(t *testing.T) {
	b := &fakeBackend{delay: 50 * time.Millisecond}
	r := NewResolver(b, nil)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve(context.Background(), "v.mp4")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, b.calls.Load())
	assert.Equal(t, 1, r.Len())
}

func TestResolveDoesNotCacheFailures(t *testing.T) {
	b := &fakeBackend{err: errors.New("boom")}
	r := NewResolver(b, nil)

	_, err := r.Resolve(context.Background(), "a.png")
	require.Error(t, err)
	_, ok := r.Cached("a.png")
	assert.False(t, ok)

	b.err = nil
	u, err := r.Resolve(context.Background(), "a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://objects/a.png", u)
	assert.EqualValues(t, 2, b.calls.Load())
}

func TestResolveAsync(t *testing.T) {
	b := &fakeBackend{}
	r := NewResolver(b, nil)

	done := make(chan string, 1)
	r.ResolveAsync(context.Background(), "c.mp3", func(u string, err error) {
		assert.NoError(t, err)
		done <- u
	})
	select {
	case u := <-done:
		assert.Equal(t, "https://objects/c.mp3", u)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for async resolve")
	}

	var hit bool
	r.ResolveAsync(context.Background(), "c.mp3", func(string, error) { hit = true })
	assert.True(t, hit, "cache hit should call back synchronously")
	assert.EqualValues(t, 1, b.calls.Load())
}
