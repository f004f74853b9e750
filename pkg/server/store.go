package server

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gilchrisn/hsne-clustering-service/pkg/hsne"
)

type storedHierarchy struct {
	hierarchy *hsne.Hierarchy
	info      HierarchyInfo
}

// hierarchyStore keeps parsed hierarchies in memory, keyed by a generated id.
type hierarchyStore struct {
	mu      sync.RWMutex
	entries map[string]*storedHierarchy
}

func newHierarchyStore() *hierarchyStore {
	return &hierarchyStore{entries: make(map[string]*storedHierarchy)}
}

func (s *hierarchyStore) add(name string, h *hsne.Hierarchy) HierarchyInfo {
	info := describe(h)
	info.ID = uuid.NewString()
	info.Name = name
	info.UploadedAt = time.Now().UTC()

	s.mu.Lock()
	s.entries[info.ID] = &storedHierarchy{hierarchy: h, info: info}
	s.mu.Unlock()
	return info
}

func (s *hierarchyStore) get(id string) (*storedHierarchy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("hierarchy not found: %s", id)
	}
	return e, nil
}

func (s *hierarchyStore) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[id]
	delete(s.entries, id)
	return ok
}

// list returns all hierarchies, oldest first.
func (s *hierarchyStore) list() []HierarchyInfo {
	s.mu.RLock()
	out := make([]HierarchyInfo, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.info)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UploadedAt.Before(out[j].UploadedAt)
	})
	return out
}

func (s *hierarchyStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func describe(h *hsne.Hierarchy) HierarchyInfo {
	info := HierarchyInfo{
		NumPoints: h.TopScale().Size(),
		NumScales: h.NumScales(),
	}
	for _, s := range h.Scales() {
		si := ScaleInfo{Scale: s.Number(), Size: s.Size(), NNZ: s.TransitionMatrix().NNZ()}
		if sub, ok := s.(*hsne.SubScale); ok {
			si.AreaOfInfluence = sub.AreaOfInfluence().NNZ()
		}
		info.Scales = append(info.Scales, si)
	}
	return info
}
