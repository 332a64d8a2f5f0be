package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/windfall/storyspeak/internal/client"
)

const (
	// DefaultDocumentTitle replaces a title with no usable characters.
	DefaultDocumentTitle = "Lesson"

	documentExt         = ".pdf"
	documentContentType = "application/pdf"
)

// Document describes a stored lesson PDF.
type Document struct {
	Name       string    `json:"filename"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
	URL        string    `json:"url"`
}

// DocumentStore saves and lists lesson PDFs.
type DocumentStore interface {
	Save(ctx context.Context, name string, data []byte) (*Document, error)
	// List returns stored documents, newest first.
	List(ctx context.Context) ([]Document, error)
	Get(ctx context.Context, name string) ([]byte, error)
}

// SanitizeTitle keeps ASCII letters, digits, Hangul syllables and
// whitespace. An empty result becomes DefaultDocumentTitle.
func SanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r >= '가' && r <= '힣':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(r)
		}
	}
	out := b.String()
	if strings.TrimSpace(out) == "" {
		return DefaultDocumentTitle
	}
	return out
}

// DocumentName builds the file name for a lesson exported on day.
func DocumentName(title string, day time.Time) string {
	return fmt.Sprintf("%s_%s%s", day.Format("2006-01-02"), SanitizeTitle(title), documentExt)
}

// CleanDocumentName reduces an uploaded name to its base name and checks
// the extension.
func CleanDocumentName(name string) (string, error) {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if base == "." || base == "/" || base == "" || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if !strings.EqualFold(path.Ext(base), documentExt) {
		return "", fmt.Errorf("file %q is not a PDF", name)
	}
	return base, nil
}

func isDocument(name string) bool {
	return strings.EqualFold(path.Ext(name), documentExt)
}

func sortNewestFirst(docs []Document) {
	slices.SortStableFunc(docs, func(a, b Document) int {
		if c := b.ModifiedAt.Compare(a.ModifiedAt); c != 0 {
			return c
		}
		return strings.Compare(b.Name, a.Name)
	})
}

// LocalDocumentStore keeps documents in a directory.
type LocalDocumentStore struct {
	dir     string
	baseURL string
}

// NewLocalDocumentStore creates the directory if needed. baseURL prefixes
// document names in returned URLs.
func NewLocalDocumentStore(dir, baseURL string) (*LocalDocumentStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create document dir: %w", err)
	}
	return &LocalDocumentStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalDocumentStore) url(name string) string {
	return s.baseURL + "/" + url.PathEscape(name)
}

func (s *LocalDocumentStore) Save(ctx context.Context, name string, data []byte) (*Document, error) {
	name, err := CleanDocumentName(name)
	if err != nil {
		return nil, err
	}
	p := filepath.Join(s.dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("stat document: %w", err)
	}
	return &Document{Name: name, Size: info.Size(), ModifiedAt: info.ModTime(), URL: s.url(name)}, nil
}

func (s *LocalDocumentStore) List(ctx context.Context) ([]Document, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read document dir: %w", err)
	}
	docs := make([]Document, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isDocument(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		docs = append(docs, Document{Name: e.Name(), Size: info.Size(), ModifiedAt: info.ModTime(), URL: s.url(e.Name())})
	}
	sortNewestFirst(docs)
	return docs, nil
}

func (s *LocalDocumentStore) Get(ctx context.Context, name string) ([]byte, error) {
	name, err := CleanDocumentName(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return data, nil
}

// objectBucket is the part of client.CloudflareClient the R2 store uses.
type objectBucket interface {
	UploadR2Object(ctx context.Context, key string, data []byte, contentType string) (string, error)
	GetR2Object(ctx context.Context, key string) ([]byte, error)
	ListR2Objects(ctx context.Context, prefix string) ([]client.ObjectInfo, error)
}

// R2DocumentStore keeps documents in a Cloudflare R2 bucket.
type R2DocumentStore struct {
	bucket objectBucket
	prefix string
	urlOf  func(key string) string
}

// NewR2DocumentStore stores documents under prefix in c's bucket.
func NewR2DocumentStore(c *client.CloudflareClient, prefix string) *R2DocumentStore {
	return &R2DocumentStore{bucket: c, prefix: prefix, urlOf: c.ObjectURL}
}

func (s *R2DocumentStore) Save(ctx context.Context, name string, data []byte) (*Document, error) {
	name, err := CleanDocumentName(name)
	if err != nil {
		return nil, err
	}
	link, err := s.bucket.UploadR2Object(ctx, s.prefix+name, data, documentContentType)
	if err != nil {
		return nil, err
	}
	return &Document{Name: name, Size: int64(len(data)), ModifiedAt: time.Now(), URL: link}, nil
}

func (s *R2DocumentStore) List(ctx context.Context) ([]Document, error) {
	objects, err := s.bucket.ListR2Objects(ctx, s.prefix)
	if err != nil {
		return nil, err
	}
	return objectsToDocuments(objects, s.prefix, s.urlOf), nil
}

func (s *R2DocumentStore) Get(ctx context.Context, name string) ([]byte, error) {
	name, err := CleanDocumentName(name)
	if err != nil {
		return nil, err
	}
	data, err := s.bucket.GetR2Object(ctx, s.prefix+name)
	if errors.Is(err, client.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}

// gcsBucket is the part of client.StorageClient the GCS store uses.
type gcsBucket interface {
	UploadReader(ctx context.Context, objectName, contentType string, reader io.Reader) (string, error)
	Download(ctx context.Context, objectName string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]client.ObjectInfo, error)
}

// GCSDocumentStore keeps documents in a Google Cloud Storage bucket. URLs
// point at the service's download route since objects are private.
type GCSDocumentStore struct {
	bucket  gcsBucket
	prefix  string
	baseURL string
}

// NewGCSDocumentStore stores documents under prefix in c's bucket.
func NewGCSDocumentStore(c *client.StorageClient, prefix, baseURL string) *GCSDocumentStore {
	return &GCSDocumentStore{bucket: c, prefix: prefix, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *GCSDocumentStore) urlOf(key string) string {
	return s.baseURL + "/" + url.PathEscape(strings.TrimPrefix(key, s.prefix))
}

func (s *GCSDocumentStore) Save(ctx context.Context, name string, data []byte) (*Document, error) {
	name, err := CleanDocumentName(name)
	if err != nil {
		return nil, err
	}
	if _, err := s.bucket.UploadReader(ctx, s.prefix+name, documentContentType, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return &Document{Name: name, Size: int64(len(data)), ModifiedAt: time.Now(), URL: s.urlOf(s.prefix + name)}, nil
}

func (s *GCSDocumentStore) List(ctx context.Context) ([]Document, error) {
	objects, err := s.bucket.List(ctx, s.prefix)
	if err != nil {
		return nil, err
	}
	return objectsToDocuments(objects, s.prefix, s.urlOf), nil
}

func (s *GCSDocumentStore) Get(ctx context.Context, name string) ([]byte, error) {
	name, err := CleanDocumentName(name)
	if err != nil {
		return nil, err
	}
	data, err := s.bucket.Download(ctx, s.prefix+name)
	if errors.Is(err, client.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}

func objectsToDocuments(objects []client.ObjectInfo, prefix string, urlOf func(string) string) []Document {
	docs := make([]Document, 0, len(objects))
	for _, o := range objects {
		name := strings.TrimPrefix(o.Key, prefix)
		if name == "" || strings.Contains(name, "/") || !isDocument(name) {
			continue
		}
		docs = append(docs, Document{Name: name, Size: o.Size, ModifiedAt: o.LastModified, URL: urlOf(o.Key)})
	}
	sortNewestFirst(docs)
	return docs
}
