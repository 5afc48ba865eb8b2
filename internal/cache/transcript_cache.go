package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/a2v/audio2video-back/internal/domain"
)

type Entry struct {
	Segments  []domain.TranscriptSegment
	CreatedAt time.Time
	ExpiresAt time.Time
}

type Config struct {
	TTL        time.Duration
	MaxEntries int
}

// TranscriptCache memoizes transcription results keyed by audio content.
// Re-uploads of the same audio skip the transcription pass entirely.
type TranscriptCache struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	ttl        time.Duration
	maxEntries int
}

func NewTranscriptCache(config Config) *TranscriptCache {
	if config.TTL <= 0 {
		config.TTL = time.Hour
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 256
	}
	return &TranscriptCache{
		entries:    make(map[string]Entry),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
	}
}

func (c *TranscriptCache) Get(signature string) ([]domain.TranscriptSegment, bool) {
	c.mu.RLock()
	entry, exists := c.entries[signature]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if time.Now().UTC().After(entry.ExpiresAt) {
		c.mu.Lock()
		delete(c.entries, signature)
		c.mu.Unlock()
		return nil, false
	}
	return cloneSegments(entry.Segments), true
}

func (c *TranscriptCache) Set(signature string, segments []domain.TranscriptSegment) {
	now := time.Now().UTC()
	entry := Entry{
		Segments:  cloneSegments(segments),
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[signature] = entry
}

// FileSignature hashes the file contents together with the transcription
// language, so the same audio transcribed in another language never
// collides.
func FileSignature(path string, language string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio for signature: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hash audio: %w", err)
	}
	hasher.Write([]byte("||" + language))
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (c *TranscriptCache) evictOldest() {
	if len(c.entries) == 0 {
		return
	}

	type pair struct {
		key   string
		value Entry
	}
	pairs := make([]pair, 0, len(c.entries))
	for key, value := range c.entries {
		pairs = append(pairs, pair{key: key, value: value})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].value.CreatedAt.Before(pairs[j].value.CreatedAt)
	})
	delete(c.entries, pairs[0].key)
}

func cloneSegments(segments []domain.TranscriptSegment) []domain.TranscriptSegment {
	return append([]domain.TranscriptSegment(nil), segments...)
}
