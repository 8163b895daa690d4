package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"push-dispatcher/internal/domain"
	"push-dispatcher/internal/infra/metrics"
)

// Bucket — операции над бакетом, нужные для удаления файлов пользователя.
type Bucket interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// FileStore удаляет загруженные пользователем файлы по префиксу users/<uid>/.
type FileStore struct {
	bucket Bucket
}

var _ domain.FileStore = (*FileStore)(nil)

// NewFileStore создаёт хранилище поверх бакета.
func NewFileStore(bucket Bucket) *FileStore {
	return &FileStore{bucket: bucket}
}

// UserPrefix возвращает префикс объектов пользователя.
func UserPrefix(userID string) string {
	return "users/" + userID + "/"
}

// DeleteUserFiles удаляет все объекты пользователя и возвращает число удалённых.
// Ошибка удаления одного объекта не останавливает удаление остальных.
func (s *FileStore) DeleteUserFiles(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, errors.New("storage: empty user id")
	}
	names, err := s.bucket.List(ctx, UserPrefix(userID))
	if err != nil {
		return 0, fmt.Errorf("storage: list objects: %w", err)
	}
	deleted := 0
	var errs []error
	for _, name := range names {
		if err := s.bucket.Delete(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
			continue
		}
		deleted++
	}
	return deleted, errors.Join(errs...)
}

// GCSBucket реализует Bucket через cloud.google.com/go/storage.
type GCSBucket struct {
	handle *gcs.BucketHandle
	name   string
}

// NewGCSBucket оборачивает BucketHandle, полученный из Firebase Storage.
func NewGCSBucket(handle *gcs.BucketHandle, name string) *GCSBucket {
	return &GCSBucket{handle: handle, name: name}
}

// List возвращает имена объектов с префиксом.
func (b *GCSBucket) List(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	it := b.handle.Objects(ctx, &gcs.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			metrics.ObserveNetworkRequest("firebase_storage", "list", b.name, start, err)
			return nil, err
		}
		names = append(names, attrs.Name)
	}
	metrics.ObserveNetworkRequest("firebase_storage", "list", b.name, start, nil)
	return names, nil
}

// Delete удаляет объект; отсутствующий объект не считается ошибкой.
func (b *GCSBucket) Delete(ctx context.Context, name string) error {
	start := time.Now()
	err := b.handle.Object(name).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		err = nil
	}
	metrics.ObserveNetworkRequest("firebase_storage", "delete", b.name, start, err)
	return err
}
