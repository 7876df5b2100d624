package database

import (
	"errors"
	"sync"

	"github.com/coder/hnsw"
	"github.com/google/uuid"

	"github.com/presensia/presensia/internal/face"
)

// TemplateIndex wraps an in-memory HNSW graph over active face templates for
// O(log N) similarity search. The graph is keyed by a compact int64 node id;
// idToTemplate maps back to the template. Retired templates are removed from
// the map only, since HNSW does not support true deletion, and filtered out
// of search results by lookup.
type TemplateIndex struct {
	graph        *hnsw.Graph[int64]
	idToTemplate map[int64]*FaceTemplate
	templateToID map[uuid.UUID]int64
	nextID       int64
	mu           sync.RWMutex
}

// NewTemplateIndex creates a new empty template index.
func NewTemplateIndex() *TemplateIndex {
	return &TemplateIndex{
		idToTemplate: make(map[int64]*FaceTemplate),
		templateToID: make(map[uuid.UUID]int64),
	}
}

func newTemplateGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with the given templates.
func (idx *TemplateIndex) Build(templates []FaceTemplate) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.idToTemplate = make(map[int64]*FaceTemplate, len(templates))
	idx.templateToID = make(map[uuid.UUID]int64, len(templates))
	idx.nextID = 0

	if len(templates) == 0 {
		idx.graph = nil
		return nil
	}

	g := newTemplateGraph()
	for i := range templates {
		tpl := &templates[i]
		if len(tpl.Embedding) == 0 || !tpl.IsActive {
			continue
		}
		idx.nextID++
		g.Add(hnsw.MakeNode(idx.nextID, tpl.Embedding))
		idx.idToTemplate[idx.nextID] = tpl
		idx.templateToID[tpl.ID] = idx.nextID
	}

	idx.graph = g
	return nil
}

// Search returns the top-k candidates for the query, best first. Distances
// from the graph are recomputed as cosine similarity against the node's own
// embedding so retired nodes never leak stale scores.
func (idx *TemplateIndex) Search(query []float32, k int) ([]TemplateCandidate, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.graph == nil {
		return nil, errors.New("template index not initialized")
	}

	neighbors := idx.graph.Search(query, k)
	candidates := make([]TemplateCandidate, 0, len(neighbors))
	for _, n := range neighbors {
		tpl, ok := idx.idToTemplate[n.Key]
		if !ok {
			continue // retired after indexing
		}
		candidates = append(candidates, TemplateCandidate{
			TemplateID: tpl.ID,
			EmployeeID: tpl.EmployeeID,
			Score:      face.CosineSimilarity(query, n.Value),
		})
	}
	return candidates, nil
}

// Upsert replaces the employee's template in the index. The previous node is
// retired from the lookup map; the new embedding gets a fresh node.
func (idx *TemplateIndex) Upsert(tpl *FaceTemplate) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.templateToID[tpl.ID]; ok {
		delete(idx.idToTemplate, old)
	}
	if len(tpl.Embedding) == 0 || !tpl.IsActive {
		delete(idx.templateToID, tpl.ID)
		return
	}

	if idx.graph == nil {
		idx.graph = newTemplateGraph()
	}
	idx.nextID++
	idx.graph.Add(hnsw.MakeNode(idx.nextID, tpl.Embedding))
	idx.idToTemplate[idx.nextID] = tpl
	idx.templateToID[tpl.ID] = idx.nextID
}

// Count returns the number of live templates in the index.
func (idx *TemplateIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.idToTemplate)
}

// IsEmpty reports whether the index holds no live templates.
func (idx *TemplateIndex) IsEmpty() bool {
	return idx.Count() == 0
}
