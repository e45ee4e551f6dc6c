package session

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "data", "sessions.bolt"))
	if err != nil {
		t.Fatalf("Не удалось открыть хранилище: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSetGet(t *testing.T) {
	store := openTestStore(t)

	doc := UploadedDocument{
		Filename:    "lease.pdf",
		UploadedAt:  time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC),
		ProcessedAt: "2026-10-19T10:00:05",
	}

	if err := store.Set("s1", KeyUploadedDocument, doc); err != nil {
		t.Fatalf("Set вернул ошибку: %v", err)
	}

	var got UploadedDocument
	if err := store.Get("s1", KeyUploadedDocument, &got); err != nil {
		t.Fatalf("Get вернул ошибку: %v", err)
	}

	if got.Filename != doc.Filename || !got.UploadedAt.Equal(doc.UploadedAt) || got.ProcessedAt != doc.ProcessedAt {
		t.Errorf("Значение не совпадает: %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	store := openTestStore(t)

	var got UploadedDocument
	if err := store.Get("nobody", KeyUploadedDocument, &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("Ожидалась ErrNotFound для неизвестной сессии, получено %v", err)
	}

	store.Set("s1", "other", "x")
	if err := store.Get("s1", KeyUploadedDocument, &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("Ожидалась ErrNotFound для неизвестного ключа, получено %v", err)
	}
}

func TestDrop(t *testing.T) {
	store := openTestStore(t)

	store.Set("s1", KeyUploadedDocument, UploadedDocument{Filename: "a.pdf"})
	store.Set("s2", KeyUploadedDocument, UploadedDocument{Filename: "b.pdf"})

	if err := store.Drop("s2"); err != nil {
		t.Fatalf("Drop вернул ошибку: %v", err)
	}
	if err := store.Drop("missing"); err != nil {
		t.Errorf("Drop неизвестной сессии не должен падать: %v", err)
	}

	var got UploadedDocument
	if err := store.Get("s2", KeyUploadedDocument, &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("После Drop ожидалась ErrNotFound, получено %v", err)
	}

	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count вернул ошибку: %v", err)
	}
	if count != 1 {
		t.Errorf("Ожидалась 1 сессия, получено %d", count)
	}
}

func TestExpire(t *testing.T) {
	store := openTestStore(t)

	store.Set("idle", KeyUploadedDocument, UploadedDocument{Filename: "a.pdf"})
	store.Set("touched", KeyUploadedDocument, UploadedDocument{Filename: "b.pdf"})

	cutoff := time.Now()
	time.Sleep(5 * time.Millisecond)

	if err := store.Touch("touched"); err != nil {
		t.Fatalf("Touch вернул ошибку: %v", err)
	}
	if err := store.Touch("unknown"); err != nil {
		t.Fatalf("Touch неизвестной сессии не должен падать: %v", err)
	}

	n, err := store.Expire(cutoff)
	if err != nil {
		t.Fatalf("Expire вернул ошибку: %v", err)
	}
	if n != 1 {
		t.Errorf("Ожидалось удаление 1 сессии, удалено %d", n)
	}

	var got UploadedDocument
	if err := store.Get("idle", KeyUploadedDocument, &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("Просроченная сессия должна быть удалена, получено %v", err)
	}
	if err := store.Get("touched", KeyUploadedDocument, &got); err != nil || got.Filename != "b.pdf" {
		t.Errorf("Продленная сессия должна остаться: %+v, %v", got, err)
	}

	count, _ := store.Count()
	if count != 1 {
		t.Errorf("Touch не должен создавать сессии, получено %d", count)
	}
}

// Данные переживают переоткрытие файла
func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.bolt")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Не удалось открыть хранилище: %v", err)
	}
	store.Set("s1", KeyUploadedDocument, UploadedDocument{Filename: "kept.pdf"})
	store.Close()

	store, err = Open(path)
	if err != nil {
		t.Fatalf("Не удалось переоткрыть хранилище: %v", err)
	}
	defer store.Close()

	var got UploadedDocument
	if err := store.Get("s1", KeyUploadedDocument, &got); err != nil || got.Filename != "kept.pdf" {
		t.Errorf("Ожидался kept.pdf, получено %+v (%v)", got, err)
	}
}

func TestNewID(t *testing.T) {
	if NewID() == NewID() {
		t.Error("NewID должен генерировать уникальные ID")
	}
}
