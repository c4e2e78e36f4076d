package s3

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/gezibash/arc-rosca/internal/archive/physical"
	"github.com/gezibash/arc-rosca/internal/archive/physical/physicaltest"
)

type listResult struct {
	XMLName     xml.Name      `xml:"ListBucketResult"`
	Name        string        `xml:"Name"`
	Prefix      string        `xml:"Prefix"`
	KeyCount    int           `xml:"KeyCount"`
	MaxKeys     int           `xml:"MaxKeys"`
	IsTruncated bool          `xml:"IsTruncated"`
	Contents    []listContent `xml:"Contents"`
}

type listContent struct {
	Key  string `xml:"Key"`
	Size int64  `xml:"Size"`
}

// mockS3Server creates an httptest server that emulates the slice of the
// S3 API the backend uses, with path-style addressing.
func mockS3Server() *httptest.Server {
	store := &mockStore{objects: make(map[string][]byte)}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Path format: /bucket/key or /bucket
		parts := strings.SplitN(r.URL.Path, "/", 3)

		if len(parts) < 3 || parts[2] == "" {
			if r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2" {
				writeList(w, parts[1], r.URL.Query().Get("prefix"), store)
				return
			}
			w.WriteHeader(http.StatusOK)
			return
		}

		key := parts[2]
		switch r.Method {
		case http.MethodPut:
			data, _ := io.ReadAll(r.Body)
			store.put(key, data)
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			data, ok := store.get(key)
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`<?xml version="1.0"?><Error><Code>NoSuchKey</Code></Error>`))
				return
			}
			w.Write(data)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
}

func writeList(w http.ResponseWriter, bucket, prefix string, store *mockStore) {
	res := listResult{Name: bucket, Prefix: prefix, MaxKeys: 1000}
	for _, k := range store.keys() {
		if strings.HasPrefix(k, prefix) {
			data, _ := store.get(k)
			res.Contents = append(res.Contents, listContent{Key: k, Size: int64(len(data))})
		}
	}
	res.KeyCount = len(res.Contents)
	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(res)
}

type mockStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *mockStore) put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

func (m *mockStore) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.objects[key]
	return d, ok
}

func (m *mockStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func newTestBackend(t *testing.T, prefix string) *Backend {
	t.Helper()
	srv := mockS3Server()
	t.Cleanup(srv.Close)

	b, err := NewFactory(context.Background(), map[string]string{
		KeyBucket:          "test-bucket",
		KeyRegion:          "us-east-1",
		KeyEndpoint:        srv.URL,
		KeyForcePathStyle:  "true",
		KeyPrefix:          prefix,
		KeyAccessKeyID:     "test",
		KeySecretAccessKey: "test",
	})
	if err != nil {
		t.Fatal(err)
	}
	return b.(*Backend)
}

func TestConformance(t *testing.T) {
	physicaltest.Run(t, func(t *testing.T) physical.Backend { return newTestBackend(t, "") })
}

func TestPrefixIsHiddenFromKeys(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t, "node-a/")
	if err := b.Put(ctx, "roscas/1.json", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	keys, err := b.List(ctx, "roscas/")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(keys, []string{"roscas/1.json"}) {
		t.Fatalf("keys = %v", keys)
	}
}

func TestIntegration(t *testing.T) {
	bucket := os.Getenv("S3_TEST_BUCKET")
	if bucket == "" {
		t.Skip("S3_TEST_BUCKET not set, skipping integration test")
	}

	b, err := NewFactory(context.Background(), map[string]string{
		KeyBucket: bucket,
		KeyPrefix: "test/",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	ctx := context.Background()
	if err := b.Put(ctx, "roscas/it.json", []byte("integration")); err != nil {
		t.Fatal(err)
	}
	got, err := b.Get(ctx, "roscas/it.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "integration" {
		t.Fatalf("got %q", got)
	}
}

func TestNewFactoryMissingBucket(t *testing.T) {
	if _, err := NewFactory(context.Background(), map[string]string{}); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}

func TestNewFactoryInvalidForcePathStyle(t *testing.T) {
	srv := mockS3Server()
	defer srv.Close()

	_, err := NewFactory(context.Background(), map[string]string{
		KeyBucket:          "test-bucket",
		KeyEndpoint:        srv.URL,
		KeyForcePathStyle:  "not-a-bool",
		KeyAccessKeyID:     "test",
		KeySecretAccessKey: "test",
	})
	if err == nil {
		t.Fatal("expected error for invalid force_path_style")
	}
}

func TestNewFactoryOptionErrors(t *testing.T) {
	srv := mockS3Server()
	defer srv.Close()

	for key, value := range map[string]string{KeyChecksums: "always", KeyEncryption: "rot13"} {
		t.Run(key, func(t *testing.T) {
			_, err := NewFactory(context.Background(), map[string]string{
				KeyBucket:          "test-bucket",
				KeyEndpoint:        srv.URL,
				KeyForcePathStyle:  "true",
				KeyAccessKeyID:     "test",
				KeySecretAccessKey: "test",
				key:                value,
			})
			if err == nil || !strings.Contains(err.Error(), key) {
				t.Fatalf("err = %v, want a %s error", err, key)
			}
		})
	}
}

func TestPutWithEncryption(t *testing.T) {
	var sse string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			sse = r.Header.Get("X-Amz-Server-Side-Encryption")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewFactory(context.Background(), map[string]string{
		KeyBucket:          "test-bucket",
		KeyEndpoint:        srv.URL,
		KeyForcePathStyle:  "true",
		KeyAccessKeyID:     "test",
		KeySecretAccessKey: "test",
		KeyEncryption:      "AES256",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Put(context.Background(), "roscas/1.json", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	if sse != "AES256" {
		t.Fatalf("sse header = %q", sse)
	}
}
