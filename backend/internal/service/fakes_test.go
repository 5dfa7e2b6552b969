package service

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	internal_errors "github.com/blogmedia/blogmedia/backend/internal/errors"
	"github.com/blogmedia/blogmedia/shared/domain"
)

// --- In-memory store for media tests ---

// memStore implements FileRegistry, AssociationStore, PostChecker and
// PostStorage with the same constraints the database enforces.
type memStore struct {
	mu           sync.Mutex
	nextId       int64
	files        map[domain.FileId]domain.FileAsset
	associations map[domain.AssociationId]domain.Association
	posts        map[domain.PostId]domain.Post

	// files being reaped; inserts for them wait like on a locked row
	reaping map[domain.FileId]chan struct{}

	// hooks run before the store answers, for failure injection
	beforeReapFunc   func(id domain.FileId) error
	deleteFileFunc   func(id domain.FileId) error
	beforeInsertFunc func()
	insertWaitFunc   func(id domain.FileId)
	existsCalls      int
	insertCalls      int
}

func newMemStore() *memStore {
	return &memStore{
		files:        make(map[domain.FileId]domain.FileAsset),
		associations: make(map[domain.AssociationId]domain.Association),
		posts:        make(map[domain.PostId]domain.Post),
		reaping:      make(map[domain.FileId]chan struct{}),
	}
}

func (m *memStore) id() int64 {
	m.nextId++
	return m.nextId
}

func (m *memStore) addFile(url string, age time.Duration) domain.FileAsset {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	file := domain.FileAsset{
		Id:               id,
		OriginalFilename: url,
		StorageKey:       "key/" + url,
		PublicURL:        url,
		ContentType:      "image/jpeg",
		ByteSize:         100,
		UploadKind:       domain.UploadInlineImage,
		Version:          1,
		CreatedAt:        time.Now().Add(-age),
	}
	m.files[id] = file
	return file
}

func (m *memStore) addPost(html string) domain.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	post := domain.Post{Id: m.id(), Title: "t", HTMLBody: html, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.posts[post.Id] = post
	return post
}

func (m *memStore) hasFile(id domain.FileId) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[id]
	return ok
}

// FileRegistry

func (m *memStore) FindByPublicURL(ctx context.Context, url string) (*domain.FileAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.files {
		if f.PublicURL == url {
			file := f
			return &file, nil
		}
	}
	return nil, &internal_errors.FileNotFoundError{URL: url}
}

func (m *memStore) FindByID(ctx context.Context, id domain.FileId) (*domain.FileAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return nil, &internal_errors.FileNotFoundError{Id: id}
	}
	return &f, nil
}

func (m *memStore) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.FileAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.FileAsset
	for _, f := range m.files {
		if f.CreatedAt.Before(cutoff) && !m.referencedLocked(f.Id) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (m *memStore) Delete(ctx context.Context, id domain.FileId) error {
	if m.deleteFileFunc != nil {
		if err := m.deleteFileFunc(id); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[id]; !ok {
		return &internal_errors.FileNotFoundError{Id: id}
	}
	if m.referencedLocked(id) {
		return io.ErrUnexpectedEOF // stands in for the foreign key violation
	}
	delete(m.files, id)
	return nil
}

// DeleteIfUnreferenced holds the file like a row lock while deleteObject
// runs. A cancelled ctx after deleteObject counts as a failed commit.
func (m *memStore) DeleteIfUnreferenced(ctx context.Context, id domain.FileId, deleteObject func(ctx context.Context) error) error {
	if m.beforeReapFunc != nil {
		if err := m.beforeReapFunc(id); err != nil {
			return err
		}
	}
	m.mu.Lock()
	if _, ok := m.files[id]; !ok {
		m.mu.Unlock()
		return &internal_errors.FileNotFoundError{Id: id}
	}
	if m.referencedLocked(id) {
		m.mu.Unlock()
		return internal_errors.ErrFileReferenced
	}
	released := make(chan struct{})
	m.reaping[id] = released
	m.mu.Unlock()

	err := deleteObject(ctx)
	if err == nil && m.deleteFileFunc != nil {
		err = m.deleteFileFunc(id)
	}
	if err == nil {
		err = ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reaping, id)
	close(released)
	if err != nil {
		return err
	}
	delete(m.files, id)
	return nil
}

func (m *memStore) CreateFile(ctx context.Context, file domain.FileAsset) (domain.FileAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file.Id = m.id()
	file.Version = 1
	for _, f := range m.files {
		if f.OriginalFilename == file.OriginalFilename && f.Version >= file.Version {
			prev := f.Id
			file.Version = f.Version + 1
			file.PreviousVersionId = &prev
		}
	}
	file.CreatedAt = time.Now()
	m.files[file.Id] = file
	return file, nil
}

func (m *memStore) referencedLocked(id domain.FileId) bool {
	for _, a := range m.associations {
		if a.FileId == id {
			return true
		}
	}
	return false
}

// AssociationStore

func (m *memStore) Exists(ctx context.Context, postId domain.PostId, fileId domain.FileId, kind domain.ReferenceKind) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existsCalls++
	return m.existsLocked(postId, fileId, kind), nil
}

func (m *memStore) existsLocked(postId domain.PostId, fileId domain.FileId, kind domain.ReferenceKind) bool {
	for _, a := range m.associations {
		if a.PostId == postId && a.FileId == fileId && a.ReferenceKind == kind {
			return true
		}
	}
	return false
}

func (m *memStore) Insert(ctx context.Context, postId domain.PostId, fileId domain.FileId, kind domain.ReferenceKind) (domain.AssociationId, error) {
	if m.beforeInsertFunc != nil {
		m.beforeInsertFunc()
	}
	m.mu.Lock()
	for {
		released, ok := m.reaping[fileId]
		if !ok {
			break
		}
		m.mu.Unlock()
		if m.insertWaitFunc != nil {
			m.insertWaitFunc(fileId)
		}
		<-released
		m.mu.Lock()
	}
	defer m.mu.Unlock()
	m.insertCalls++
	// posts the store never saw are accepted so tests can use bare ids
	if post, ok := m.posts[postId]; ok && post.Deleted {
		return 0, &internal_errors.PostNotFoundError{PostId: postId}
	}
	if m.existsLocked(postId, fileId, kind) {
		return 0, &internal_errors.DuplicateAssociationError{PostId: postId, FileId: fileId, Kind: kind}
	}
	if _, ok := m.files[fileId]; !ok {
		return 0, &internal_errors.FileNotFoundError{Id: fileId}
	}
	a := domain.Association{Id: m.id(), PostId: postId, FileId: fileId, ReferenceKind: kind, CreatedAt: time.Now()}
	m.associations[a.Id] = a
	return a.Id, nil
}

func (m *memStore) ListByPost(ctx context.Context, postId domain.PostId) ([]domain.Association, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Association{}
	for _, a := range m.associations {
		if a.PostId == postId {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (m *memStore) ListByFile(ctx context.Context, fileId domain.FileId) ([]domain.Association, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Association{}
	for _, a := range m.associations {
		if a.FileId == fileId {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) DeleteAllByPost(ctx context.Context, postId domain.PostId) ([]domain.FileId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[domain.FileId]bool{}
	out := []domain.FileId{}
	for id, a := range m.associations {
		if a.PostId != postId {
			continue
		}
		delete(m.associations, id)
		if !seen[a.FileId] {
			seen[a.FileId] = true
			out = append(out, a.FileId)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// PostChecker and PostStorage

func (m *memStore) PostExists(ctx context.Context, id domain.PostId) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	return ok && !p.Deleted, nil
}

func (m *memStore) CreatePost(ctx context.Context, title domain.PostTitle, htmlBody string, thumbnailURL *string) (domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post := domain.Post{Id: m.id(), Title: title, HTMLBody: htmlBody, ThumbnailURL: thumbnailURL, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.posts[post.Id] = post
	return post, nil
}

func (m *memStore) UpdatePost(ctx context.Context, id domain.PostId, title domain.PostTitle, htmlBody string, thumbnailURL *string) (domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok || post.Deleted {
		return domain.Post{}, &internal_errors.PostNotFoundError{PostId: id}
	}
	post.Title, post.HTMLBody, post.ThumbnailURL, post.UpdatedAt = title, htmlBody, thumbnailURL, time.Now()
	m.posts[id] = post
	return post, nil
}

func (m *memStore) GetPost(ctx context.Context, id domain.PostId) (domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok || post.Deleted {
		return domain.Post{}, &internal_errors.PostNotFoundError{PostId: id}
	}
	return post, nil
}

func (m *memStore) SoftDeletePost(ctx context.Context, id domain.PostId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok || post.Deleted {
		return &internal_errors.PostNotFoundError{PostId: id}
	}
	post.Deleted = true
	m.posts[id] = post
	return nil
}

// --- Object storage mock ---

type MockObjectStorage struct {
	mu          sync.Mutex
	objects     map[string][]byte
	deleteFunc  func(key string) error
	putFunc     func(key string) error
	deleteCalls []string
}

func newMockObjectStorage() *MockObjectStorage {
	return &MockObjectStorage{objects: make(map[string][]byte)}
}

func (m *MockObjectStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.putFunc != nil {
		if err := m.putFunc(key); err != nil {
			return err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *MockObjectStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, internal_errors.NotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MockObjectStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	m.deleteCalls = append(m.deleteCalls, key)
	m.mu.Unlock()
	if m.deleteFunc != nil {
		if err := m.deleteFunc(key); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MockObjectStorage) deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleteCalls...)
}

// --- Publisher mock ---

type MockPublisher struct {
	mu          sync.Mutex
	publishFunc func(job domain.MediaJob) error
	jobs        []domain.MediaJob
}

func (m *MockPublisher) Publish(ctx context.Context, job domain.MediaJob) error {
	m.mu.Lock()
	m.jobs = append(m.jobs, job)
	m.mu.Unlock()
	if m.publishFunc != nil {
		return m.publishFunc(job)
	}
	return nil
}

func (m *MockPublisher) published() []domain.MediaJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.MediaJob(nil), m.jobs...)
}
