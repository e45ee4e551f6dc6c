package consult

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hajimehoshi/go-mp3"
)

// AudioPathPrefix путь, по которому отдаются сохраненные ответы
const AudioPathPrefix = "/audio/"

// MessageInvalidAudio текст ошибки для пользователя
const MessageInvalidAudio = "Invalid audio data"

var ErrInvalidAudio = errors.New("invalid audio data")

// Clip синтезированный ответ бэкенда
type Clip struct {
	ID        string
	Data      []byte
	MIMEType  string
	Duration  time.Duration // 0, если поток не удалось разобрать как MP3
	CreatedAt time.Time
}

// URL адрес клипа для <audio src>
func (c *Clip) URL() string {
	return AudioPathPrefix + c.ID
}

// DecodeAudio декодирует base64 ответа в байты audio/mpeg.
// Длительность определяется через go-mp3; не-MP3 поток не считается ошибкой.
func DecodeAudio(encoded string) (*Clip, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, ErrInvalidAudio
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidAudio
	}

	return &Clip{
		Data:     data,
		MIMEType: "audio/mpeg",
		Duration: mp3Duration(data),
	}, nil
}

func mp3Duration(data []byte) time.Duration {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0
	}

	// Выход декодера - 16-bit стерео, 4 байта на сэмпл
	length := dec.Length()
	rate := dec.SampleRate()
	if length <= 0 || rate <= 0 {
		return 0
	}
	return time.Duration(length) * time.Second / time.Duration(rate*4)
}

// AudioStore хранит клипы до отзыва; аналог object URL в браузере
type AudioStore struct {
	mu    sync.RWMutex
	clips map[string]*Clip
}

func NewAudioStore() *AudioStore {
	return &AudioStore{clips: make(map[string]*Clip)}
}

// Put сохраняет клип и присваивает ему ID
func (s *AudioStore) Put(clip *Clip) *Clip {
	clip.ID = uuid.New().String()
	clip.CreatedAt = time.Now()

	s.mu.Lock()
	s.clips[clip.ID] = clip
	s.mu.Unlock()
	return clip
}

func (s *AudioStore) Get(id string) (*Clip, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clip, ok := s.clips[id]
	return clip, ok
}

// Revoke освобождает клип; пустой или неизвестный ID игнорируется
func (s *AudioStore) Revoke(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	delete(s.clips, id)
	s.mu.Unlock()
}

func (s *AudioStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clips)
}
