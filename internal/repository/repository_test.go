package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windfall/storyspeak/internal/client"
)

type item struct {
	BaseEntity
	Value int
}

func TestInMemoryRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository[*item]()

	require.NoError(t, repo.Create(ctx, &item{BaseEntity: BaseEntity{ID: "a"}, Value: 1}))
	assert.ErrorIs(t, repo.Create(ctx, &item{BaseEntity: BaseEntity{ID: "a"}}), ErrAlreadyExists)

	got, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Value)

	require.NoError(t, repo.Update(ctx, &item{BaseEntity: BaseEntity{ID: "a"}, Value: 2}))
	got, _ = repo.GetByID(ctx, "a")
	assert.Equal(t, 2, got.Value)

	assert.ErrorIs(t, repo.Update(ctx, &item{BaseEntity: BaseEntity{ID: "b"}}), ErrNotFound)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, 1, repo.Count())

	require.NoError(t, repo.Delete(ctx, "a"))
	assert.ErrorIs(t, repo.Delete(ctx, "a"), ErrNotFound)
	_, err = repo.GetByID(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryRepository_DeleteWhere(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository[*item]()
	for i := range 5 {
		require.NoError(t, repo.Create(ctx, &item{BaseEntity: BaseEntity{ID: fmt.Sprint(i)}, Value: i}))
	}

	removed := repo.DeleteWhere(ctx, func(it *item) bool { return it.Value%2 == 0 })
	assert.Len(t, removed, 3)
	assert.Equal(t, 2, repo.Count())
}

func TestInMemoryRepository_Concurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository[*item]()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprint(i)
			_ = repo.Create(ctx, &item{BaseEntity: BaseEntity{ID: id}})
			_, _ = repo.GetByID(ctx, id)
			_, _ = repo.GetAll(ctx)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, repo.Count())
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"A Day at the Park!", "A Day at the Park"},
		{"공원에서의 하루 (1)", "공원에서의 하루 1"},
		{"café/lunch?", "caflunch"},
		{"!!!", DefaultDocumentTitle},
		{"", DefaultDocumentTitle},
		{"ㅋㅋ", DefaultDocumentTitle},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeTitle(tt.in))
		})
	}
}

func TestDocumentName(t *testing.T) {
	day := time.Date(2026, 3, 7, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-07_A Day at the Park.pdf", DocumentName("A Day at the Park!", day))
	assert.Equal(t, "2026-03-07_Lesson.pdf", DocumentName("", day))
}

func TestCleanDocumentName(t *testing.T) {
	name, err := CleanDocumentName("../../etc/lesson.pdf")
	require.NoError(t, err)
	assert.Equal(t, "lesson.pdf", name)

	name, err = CleanDocumentName(`C:\tmp\Lesson.PDF`)
	require.NoError(t, err)
	assert.Equal(t, "Lesson.PDF", name)

	for _, bad := range []string{"", "notes.txt", ".pdf", "/", "dir/"} {
		_, err := CleanDocumentName(bad)
		assert.Error(t, err, bad)
	}
}

func TestLocalDocumentStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "pdfs")
	store, err := NewLocalDocumentStore(dir, "/api/v1/pdfs/")
	require.NoError(t, err)

	older, err := store.Save(ctx, "2026-01-01_Old.pdf", []byte("%PDF-old"))
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/pdfs/2026-01-01_Old.pdf", older.URL)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, older.Name), past, past))

	_, err = store.Save(ctx, "2026-01-02_New.pdf", []byte("%PDF-new"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	docs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "2026-01-02_New.pdf", docs[0].Name)
	assert.Equal(t, "2026-01-01_Old.pdf", docs[1].Name)

	data, err := store.Get(ctx, "2026-01-02_New.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-new"), data)

	_, err = store.Get(ctx, "missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Save(ctx, "evil.exe", []byte("x"))
	assert.Error(t, err)
}

type fakeBucket struct {
	objects map[string][]byte
	infos   []client.ObjectInfo
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}}
}

func (f *fakeBucket) UploadR2Object(_ context.Context, key string, data []byte, _ string) (string, error) {
	f.objects[key] = data
	return "https://cdn.example.com/" + key, nil
}

func (f *fakeBucket) GetR2Object(_ context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, client.ErrObjectNotFound
	}
	return data, nil
}

func (f *fakeBucket) ListR2Objects(context.Context, string) ([]client.ObjectInfo, error) {
	return f.infos, nil
}

func TestR2DocumentStore(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	store := &R2DocumentStore{bucket: bucket, prefix: "pdfs/", urlOf: func(k string) string { return "https://cdn.example.com/" + k }}

	doc, err := store.Save(ctx, "a.pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/pdfs/a.pdf", doc.URL)
	assert.Contains(t, bucket.objects, "pdfs/a.pdf")

	_, err = store.Get(ctx, "b.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	now := time.Now()
	bucket.infos = []client.ObjectInfo{
		{Key: "pdfs/old.pdf", LastModified: now.Add(-time.Hour)},
		{Key: "pdfs/new.pdf", LastModified: now},
		{Key: "pdfs/nested/x.pdf", LastModified: now},
		{Key: "pdfs/readme.md", LastModified: now},
	}
	docs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "new.pdf", docs[0].Name)
	assert.Equal(t, "old.pdf", docs[1].Name)
}

type fakeGCS struct {
	objects map[string][]byte
	err     error
}

func (f *fakeGCS) UploadReader(_ context.Context, name, _ string, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	data, _ := io.ReadAll(r)
	f.objects[name] = data
	return "gs://bucket/" + name, nil
}

func (f *fakeGCS) Download(_ context.Context, name string) ([]byte, error) {
	data, ok := f.objects[name]
	if !ok {
		return nil, client.ErrObjectNotFound
	}
	return data, nil
}

func (f *fakeGCS) List(_ context.Context, prefix string) ([]client.ObjectInfo, error) {
	var out []client.ObjectInfo
	for k, v := range f.objects {
		out = append(out, client.ObjectInfo{Key: k, Size: int64(len(v))})
	}
	return out, nil
}

func TestGCSDocumentStore(t *testing.T) {
	ctx := context.Background()
	bucket := &fakeGCS{objects: map[string][]byte{}}
	store := &GCSDocumentStore{bucket: bucket, prefix: "pdfs/", baseURL: "/api/v1/pdfs"}

	doc, err := store.Save(ctx, "lesson.pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/pdfs/lesson.pdf", doc.URL)

	data, err := store.Get(ctx, "lesson.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), data)

	docs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, int64(4), docs[0].Size)

	bucket.err = errors.New("quota")
	_, err = store.Save(ctx, "other.pdf", []byte("x"))
	assert.Error(t, err)
}
