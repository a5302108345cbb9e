package archivecache

import (
	gozip "archive/zip"
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elliotnunn/memzip/internal/zip"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func tinyArchive(t *testing.T) *zip.Archive {
	var buf bytes.Buffer
	w := gozip.NewWriter(&buf)
	fw, err := w.Create("a.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	a, err := zip.Extract(buf.Bytes())
	require.NoError(t, err)
	return a
}

func TestKey(t *testing.T) {
	mtime := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, Key("a.zip", 10, mtime), Key("a.zip", 10, mtime))
	require.NotEqual(t, Key("a.zip", 10, mtime), Key("a.zip", 11, mtime))
	require.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

func TestSingleLoad(t *testing.T) {
	c := New(64)
	a := tinyArchive(t)
	var calls atomic.Int32
	release := make(chan struct{})
	load := func() (*zip.Archive, error) {
		calls.Add(1)
		<-release
		return a, nil
	}

	var wg sync.WaitGroup
	results := make([]*zip.Archive, 20)
	for i := range results {
		wg.Go(func() {
			got, err := c.Get(context.Background(), 42, load)
			if err == nil {
				results[i] = got
			}
		})
	}
	time.Sleep(50 * time.Millisecond) // let them pile up on the flight
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		require.Same(t, a, r)
	}

	// now a plain hit
	got, err := c.Get(context.Background(), 42, func() (*zip.Archive, error) {
		return nil, errors.New("should not load again")
	})
	require.NoError(t, err)
	require.Same(t, a, got)

	loads, _ := c.Stats()
	require.Equal(t, 1, loads)
}

func TestErrorNotCached(t *testing.T) {
	c := New(64)
	boom := errors.New("boom")
	_, err := c.Get(context.Background(), 1, func() (*zip.Archive, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	a := tinyArchive(t)
	got, err := c.Get(context.Background(), 1, func() (*zip.Archive, error) { return a, nil })
	require.NoError(t, err)
	require.Same(t, a, got)
}

func TestCancel(t *testing.T) {
	c := New(64)
	release := make(chan struct{})
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, 7, func() (*zip.Archive, error) {
		defer close(done)
		<-release
		return nil, errors.New("too late")
	})
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	<-done // no goroutine outlives the test
}

func TestBounded(t *testing.T) {
	c := New(10)
	a := tinyArchive(t)
	for k := range uint64(200) {
		_, err := c.Get(context.Background(), k, func() (*zip.Archive, error) { return a, nil })
		require.NoError(t, err)
	}
	loads, evicted := c.Stats()
	require.Equal(t, 200, loads)
	require.Positive(t, evicted)
}
