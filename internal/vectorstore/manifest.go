package vectorstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// manifestFile is the chunk index persisted alongside the chromem data.
const manifestFile = "chunks.json"

// manifest tracks the metadata of every chunk in a store. chromem-go has no
// document enumeration API, so listing and per-document deletes are driven
// from this index. It is persisted as JSON and rewritten atomically on every
// mutation.
type manifest struct {
	mu     sync.RWMutex
	path   string
	chunks map[string]ChunkInfo
}

type manifestState struct {
	Version int                  `json:"version"`
	Chunks  map[string]ChunkInfo `json:"chunks"`
}

// loadManifest reads the manifest under dir, starting empty when the file
// does not exist yet.
func loadManifest(dir string) (*manifest, error) {
	m := &manifest{
		path:   filepath.Join(dir, manifestFile),
		chunks: make(map[string]ChunkInfo),
	}

	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading chunk manifest: %w", err)
	}

	var state manifestState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing chunk manifest %s: %w", m.path, err)
	}
	if state.Chunks != nil {
		m.chunks = state.Chunks
	}

	return m, nil
}

// add records chunks and persists.
func (m *manifest) add(chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range chunks {
		m.chunks[c.ID] = ChunkInfo{
			ID:          c.ID,
			DocumentID:  c.DocumentID,
			Title:       c.Title,
			FileType:    c.FileType,
			ChunkIndex:  c.ChunkIndex,
			TotalChunks: c.TotalChunks,
			CreatedAt:   c.CreatedAt,
		}
	}
	return m.save()
}

// removeChunk drops one chunk by ID, reporting whether it was present.
func (m *manifest) removeChunk(chunkID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chunks[chunkID]; !ok {
		return false, nil
	}
	delete(m.chunks, chunkID)
	if err := m.save(); err != nil {
		return false, err
	}
	return true, nil
}

// removeDocument drops every chunk of documentID and returns their IDs.
func (m *manifest) removeDocument(documentID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, info := range m.chunks {
		if info.DocumentID == documentID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	for _, id := range ids {
		delete(m.chunks, id)
	}
	if err := m.save(); err != nil {
		return nil, err
	}
	return ids, nil
}

// clear drops all chunks and persists.
func (m *manifest) clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chunks = make(map[string]ChunkInfo)
	return m.save()
}

// list returns all chunk entries ordered by document and chunk index.
func (m *manifest) list() []ChunkInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ChunkInfo, 0, len(m.chunks))
	for _, info := range m.chunks {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out
}

// documents aggregates chunks into per-document summaries, newest first.
func (m *manifest) documents() []DocumentInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byDoc := make(map[string]*DocumentInfo)
	for _, info := range m.chunks {
		doc, ok := byDoc[info.DocumentID]
		if !ok {
			byDoc[info.DocumentID] = &DocumentInfo{
				DocumentID: info.DocumentID,
				Title:      info.Title,
				FileType:   info.FileType,
				ChunkCount: 1,
				CreatedAt:  info.CreatedAt,
			}
			continue
		}
		doc.ChunkCount++
	}

	out := make([]DocumentInfo, 0, len(byDoc))
	for _, doc := range byDoc {
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	return out
}

// count returns the number of indexed chunks.
func (m *manifest) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

// save writes the manifest via a temp file rename. Caller holds the lock.
func (m *manifest) save() error {
	data, err := json.MarshalIndent(manifestState{Version: 1, Chunks: m.chunks}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding chunk manifest: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing chunk manifest: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replacing chunk manifest: %w", err)
	}
	return nil
}
