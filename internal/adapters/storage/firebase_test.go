package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubBucket struct {
	objects []string
	failOn  string
	deleted []string
}

func (b *stubBucket) List(_ context.Context, prefix string) ([]string, error) {
	var out []string
	for _, name := range b.objects {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out, nil
}

func (b *stubBucket) Delete(_ context.Context, name string) error {
	if name == b.failOn {
		return errors.New("permission denied")
	}
	b.deleted = append(b.deleted, name)
	return nil
}

func TestDeleteUserFilesOnlyTouchesUserPrefix(t *testing.T) {
	bucket := &stubBucket{objects: []string{
		"users/u1/avatar.png",
		"users/u1/posts/1.jpg",
		"users/u10/avatar.png",
		"public/banner.png",
	}}
	store := NewFileStore(bucket)

	deleted, err := store.DeleteUserFiles(context.Background(), "u1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if deleted != 2 || len(bucket.deleted) != 2 {
		t.Fatalf("ожидали удаление 2 объектов, получили %v", bucket.deleted)
	}
	for _, name := range bucket.deleted {
		if !strings.HasPrefix(name, "users/u1/") {
			t.Fatalf("удалён чужой объект %s", name)
		}
	}
}

func TestDeleteUserFilesContinuesAfterFailure(t *testing.T) {
	bucket := &stubBucket{
		objects: []string{"users/u1/a", "users/u1/b", "users/u1/c"},
		failOn:  "users/u1/b",
	}
	deleted, err := NewFileStore(bucket).DeleteUserFiles(context.Background(), "u1")
	if err == nil {
		t.Fatalf("ожидали ошибку удаления")
	}
	if deleted != 2 {
		t.Fatalf("ожидали 2 удалённых объекта, получили %d", deleted)
	}
}

func TestDeleteUserFilesRejectsEmptyUser(t *testing.T) {
	if _, err := NewFileStore(&stubBucket{}).DeleteUserFiles(context.Background(), ""); err == nil {
		t.Fatalf("ожидали ошибку для пустого uid")
	}
}
