// Package session хранит данные сессии между страницами мастера.
// Каждой сессии соответствует вложенный bucket в файле bbolt.
package session

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// CookieName имя cookie с ID сессии
const CookieName = "lv_session"

// KeyUploadedDocument ключ метаданных загруженного документа
const KeyUploadedDocument = "uploadedDocument"

var ErrNotFound = errors.New("session value not found")

var sessionsBucket = []byte("sessions")

// служебный ключ с временем последнего обращения (UnixNano)
var lastSeenKey = []byte("_last_seen")

// UploadedDocument то, что мастер помнит о загрузке
type UploadedDocument struct {
	Filename    string    `json:"filename"`
	UploadedAt  time.Time `json:"uploaded_at"`
	Message     string    `json:"message,omitempty"`
	ProcessedAt string    `json:"processed_at,omitempty"`
}

// Store хранилище сессий в bbolt
type Store struct {
	db *bolt.DB
}

// NewID генерирует ID новой сессии
func NewID() string {
	return uuid.New().String()
}

// Open открывает (или создает) файл хранилища
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог хранилища: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть хранилище сессий: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать bucket сессий: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Set сохраняет значение как JSON
func (s *Store) Set(sessionID, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("ошибка сериализации значения: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(sessionsBucket).CreateBucketIfNotExists([]byte(sessionID))
		if err != nil {
			return err
		}
		if err := b.Put(lastSeenKey, stamp(time.Now())); err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// Get читает значение в out; ErrNotFound, если его нет
func (s *Store) Get(sessionID, key string, out interface{}) error {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket).Bucket([]byte(sessionID))
		if b == nil {
			return ErrNotFound
		}
		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// v валиден только внутри транзакции
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("ошибка парсинга значения сессии: %w", err)
	}
	return nil
}

// Touch продлевает жизнь существующей сессии; новых bucket не создает
func (s *Store) Touch(sessionID string) error {
	return s.db.Batch(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket).Bucket([]byte(sessionID))
		if b == nil {
			return nil
		}
		return b.Put(lastSeenKey, stamp(time.Now()))
	})
}

// Drop удаляет сессию целиком
func (s *Store) Drop(sessionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		err := tx.Bucket(sessionsBucket).DeleteBucket([]byte(sessionID))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

// Count количество сессий
func (s *Store) Count() (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).ForEachBucket(func(k []byte) error {
			count++
			return nil
		})
	})
	return count, err
}

// Expire удаляет сессии без обращений после cutoff.
// Сессия без отметки времени считается просроченной.
func (s *Store) Expire(cutoff time.Time) (int, error) {
	var expired [][]byte
	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(sessionsBucket)
		err := root.ForEachBucket(func(k []byte) error {
			v := root.Bucket(k).Get(lastSeenKey)
			if len(v) != 8 || int64(binary.BigEndian.Uint64(v)) < cutoff.UnixNano() {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		// удалять bucket внутри ForEachBucket нельзя
		for _, k := range expired {
			if err := root.DeleteBucket(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(expired), nil
}

func stamp(t time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.UnixNano()))
	return buf
}
