package msgstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	// pageSize > 0 splits ListObjectsV2 results into pages.
	pageSize int
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.objects[*params.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*params.Key]
	if !ok {
		msg := fmt.Sprintf("key %q not found", *params.Key)
		return nil, &types.NoSuchKey{Message: &msg}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *params.Key)
	return &s3.DeleteObjectOutput{}, nil
}

// ListObjectsV2 serves pages of pageSize keys when pageSize is set.
func (m *mockS3Client) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for k := range m.objects {
		if params.Prefix == nil || strings.HasPrefix(k, *params.Prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	start := 0
	if params.ContinuationToken != nil {
		start, _ = strconv.Atoi(*params.ContinuationToken)
	}
	end := len(keys)
	if m.pageSize > 0 && start+m.pageSize < end {
		end = start + m.pageSize
	}

	out := &s3.ListObjectsV2Output{}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func TestS3Store_PutGetDelete(t *testing.T) {
	mock := newMockS3Client()
	store := NewS3Store(mock, "bucket", "payloads/")
	ctx := context.Background()

	if err := store.Put(ctx, "prioq-low-1", []byte("body")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := mock.objects["payloads/prioq-low-1"]; !ok {
		t.Fatalf("object not stored under prefixed key, have %v", mock.objects)
	}

	got, err := store.Get(ctx, "prioq-low-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "body" {
		t.Errorf("Get = %q, want %q", got, "body")
	}

	if err := store.Delete(ctx, "prioq-low-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "prioq-low-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete: got err=%v, want ErrNotFound", err)
	}
}

func TestS3Store_PutError(t *testing.T) {
	mock := newMockS3Client()
	mock.putErr = errors.New("access denied")
	store := NewS3Store(mock, "bucket", "")

	if err := store.Put(context.Background(), "k", []byte("x")); err == nil {
		t.Fatal("Put: expected error")
	}
}

func TestS3Store_DeleteMissing(t *testing.T) {
	store := NewS3Store(newMockS3Client(), "bucket", "")

	if err := store.Delete(context.Background(), "never-existed"); err != nil {
		t.Errorf("Delete missing: got err=%v, want nil", err)
	}
}

func TestNewS3StoreFromConfig_RequiresBucket(t *testing.T) {
	if _, err := NewS3StoreFromConfig(context.Background(), Config{Type: "s3"}); err == nil {
		t.Fatal("expected error without bucket")
	}
}

func TestS3Store_ListPages(t *testing.T) {
	mock := newMockS3Client()
	mock.pageSize = 2
	store := NewS3Store(mock, "bucket", "payloads/")
	ctx := context.Background()

	for _, k := range []string{"jobs-high-c", "jobs-high-a", "jobs-high-b", "jobs-low-a", "other-x"} {
		if err := store.Put(ctx, k, []byte("x")); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}

	keys, err := store.List(ctx, "jobs-high-")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"jobs-high-a", "jobs-high-b", "jobs-high-c"}
	if !slices.Equal(keys, want) {
		t.Errorf("List = %v, want %v", keys, want)
	}
}
