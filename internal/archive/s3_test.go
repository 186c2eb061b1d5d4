package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pGUPT4/news-app/internal/apperror"
	"github.com/pGUPT4/news-app/internal/model"
)

// =========================================================================
// FAKE S3
// =========================================================================

type fakeObject struct {
	data     []byte
	modified time.Time
}

// fakeS3 is an in-memory S3API. Listings are served two keys per page so
// the paginator in LatestKey is exercised.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	now     time.Time
	putErr  error
	listErr error
	getErr  error
	lists   int // ListObjectsV2 calls
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects: make(map[string]fakeObject),
		now:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeS3) seed(key string, data string, modified time.Time) {
	f.objects[key] = fakeObject{data: []byte(data), modified: modified}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = fakeObject{data: data, modified: f.now}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++

	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		start, _ = strconv.Atoi(*in.ContinuationToken)
	}
	end := start + 2
	if end > len(keys) {
		end = len(keys)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		obj := f.objects[k]
		out.Contents = append(out.Contents, s3types.Object{
			Key:          aws.String(k),
			LastModified: aws.Time(obj.modified),
			Size:         aws.Int64(int64(len(obj.data))),
		})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func newTestS3(t *testing.T, fake *fakeS3) *S3 {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewS3(fake, "test-bucket", time.Second, logger)
}

// =========================================================================
// KEY + SELECTION TESTS
// =========================================================================

func TestNewsKey(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "raw/news-2025-01-01-00-00-00.json", NewsKey(PrefixRaw, ts))

	// Non-UTC input is normalised to UTC.
	est := time.FixedZone("EST", -5*60*60)
	assert.Equal(t, "processed/news-2025-03-04-17-06-07.json",
		NewsKey(PrefixProcessed, time.Date(2025, 3, 4, 12, 6, 7, 0, est)))
}

func TestLatest(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, ok := Latest(nil)
	assert.False(t, ok)

	got, ok := Latest([]Object{
		{Key: "b", LastModified: base.Add(time.Hour)},
		{Key: "c", LastModified: base.Add(3 * time.Hour)},
		{Key: "a", LastModified: base},
	})
	require.True(t, ok)
	assert.Equal(t, "c", got.Key)
}

// =========================================================================
// S3 STORE TESTS
// =========================================================================

func TestS3_PutAndGetRoundTrip(t *testing.T) {
	store := newTestS3(t, newFakeS3())
	ctx := context.Background()

	batch := model.ArticleBatch{
		{"title": "A", "url": "https://example.com/a"},
		{"title": "B", "section": "world", "per_facet": []any{"x", "y"}},
	}
	data, err := json.Marshal(batch)
	require.NoError(t, err)

	res := store.Put(ctx, "raw/news-2025-01-01-00-00-00.json", data)
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "raw/news-2025-01-01-00-00-00.json", res.Key)

	got, err := store.Get(ctx, res.Key)
	require.NoError(t, err)

	var decoded model.ArticleBatch
	require.NoError(t, json.Unmarshal(got, &decoded))
	assert.Equal(t, batch, decoded)
}

func TestS3_PutFailure(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("AccessDenied")
	store := newTestS3(t, fake)

	res := store.Put(context.Background(), "raw/news-x.json", []byte(`[]`))
	assert.False(t, res.OK)
	assert.Empty(t, res.Key)
	assert.Contains(t, res.Message, "AccessDenied")
}

func TestS3_GetMissingKey(t *testing.T) {
	store := newTestS3(t, newFakeS3())

	_, err := store.Get(context.Background(), "processed/nope.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestS3_GetTransportError(t *testing.T) {
	fake := newFakeS3()
	fake.getErr = errors.New("connection reset")
	store := newTestS3(t, fake)

	_, err := store.Get(context.Background(), "processed/x.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrTransport))
}

func TestS3_LatestKeyAcrossPages(t *testing.T) {
	fake := newFakeS3()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// Lexical order and modification order disagree on purpose.
	fake.seed("processed/news-a.json", `[]`, base.Add(1*time.Hour))
	fake.seed("processed/news-b.json", `[]`, base.Add(5*time.Hour))
	fake.seed("processed/news-c.json", `[]`, base.Add(2*time.Hour))
	fake.seed("processed/news-d.json", `[]`, base.Add(3*time.Hour))
	fake.seed("processed/news-e.json", `[]`, base.Add(4*time.Hour))
	fake.seed("raw/news-z.json", `[]`, base.Add(10*time.Hour)) // other prefix

	store := newTestS3(t, fake)

	key, err := store.LatestKey(context.Background(), PrefixProcessed)
	require.NoError(t, err)
	assert.Equal(t, "processed/news-b.json", key)
	assert.Equal(t, 3, fake.lists, "five keys at two per page is three pages")
}

func TestS3_LatestKeyEmptyPrefix(t *testing.T) {
	fake := newFakeS3()
	fake.seed("raw/news-a.json", `[]`, time.Now())
	store := newTestS3(t, fake)

	_, err := store.LatestKey(context.Background(), PrefixProcessed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	assert.Equal(t, "No processed files found", err.Error())
}

func TestS3_LatestKeyListError(t *testing.T) {
	fake := newFakeS3()
	fake.listErr = errors.New("throttled")
	store := newTestS3(t, fake)

	_, err := store.LatestKey(context.Background(), PrefixProcessed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrTransport))
}
