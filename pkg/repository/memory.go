package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/dermalens/dermalens/pkg/model"
)

// Memory implements Repository in memory. A single mutex provides the
// document-level atomicity the interface requires.
type Memory struct {
	mu           sync.RWMutex
	histories    map[model.HistoryID]*model.History
	explanations map[model.HistoryID]*model.Explanation
}

// NewMemory creates an in-memory repository
func NewMemory() *Memory {
	return &Memory{
		histories:    make(map[model.HistoryID]*model.History),
		explanations: make(map[model.HistoryID]*model.Explanation),
	}
}

func copyHistory(h *model.History) *model.History {
	c := *h
	if h.Probabilities != nil {
		c.Probabilities = make(map[string]float64, len(h.Probabilities))
		for k, v := range h.Probabilities {
			c.Probabilities[k] = v
		}
	}
	return &c
}

func copyEntry(e *model.ExplanationEntry) *model.ExplanationEntry {
	c := *e
	return &c
}

func (m *Memory) CreateHistory(ctx context.Context, history *model.History) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.histories[history.ID]; ok {
		return goerr.New("history already exists", goerr.V("history_id", history.ID))
	}
	m.histories[history.ID] = copyHistory(history)
	return nil
}

func (m *Memory) GetHistory(ctx context.Context, id model.HistoryID) (*model.History, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history, ok := m.histories[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrHistoryNotFound, "no such history", goerr.V("history_id", id))
	}
	return copyHistory(history), nil
}

func (m *Memory) ListHistoriesByUser(ctx context.Context, userID model.UserID) ([]*model.History, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var histories []*model.History
	for _, h := range m.histories {
		if h.UserID == userID {
			histories = append(histories, copyHistory(h))
		}
	}
	sort.Slice(histories, func(i, j int) bool {
		return histories[i].CreatedAt.After(histories[j].CreatedAt)
	})
	return histories, nil
}

func (m *Memory) DeleteHistory(ctx context.Context, id model.HistoryID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.histories[id]; !ok {
		return 0, nil
	}
	delete(m.histories, id)
	return 1, nil
}

func (m *Memory) UpsertEntry(ctx context.Context, historyID model.HistoryID, entry *model.ExplanationEntry) (*model.ExplanationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// The parent check and the entry swap happen under one lock: an upsert
	// racing a history deletion either commits before it or fails here.
	if _, ok := m.histories[historyID]; !ok {
		return nil, goerr.Wrap(model.ErrHistoryNotFound, "cannot upsert entry without history", goerr.V("history_id", historyID))
	}

	doc, ok := m.explanations[historyID]
	if !ok {
		doc = &model.Explanation{
			HistoryID: historyID,
			Entries:   make(map[model.Method]*model.ExplanationEntry),
		}
		m.explanations[historyID] = doc
	}

	var prev *model.ExplanationEntry
	if old, ok := doc.Entries[entry.Method]; ok {
		prev = copyEntry(old)
	}
	doc.Entries[entry.Method] = copyEntry(entry)

	return prev, nil
}

func (m *Memory) GetExplanation(ctx context.Context, historyID model.HistoryID) (*model.Explanation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.explanations[historyID]
	if !ok {
		return nil, goerr.Wrap(model.ErrExplanationNotFound, "no explanations for history", goerr.V("history_id", historyID))
	}

	out := &model.Explanation{
		HistoryID: historyID,
		Entries:   make(map[model.Method]*model.ExplanationEntry, len(doc.Entries)),
	}
	for method, entry := range doc.Entries {
		out.Entries[method] = copyEntry(entry)
	}
	return out, nil
}

func (m *Memory) DeleteExplanation(ctx context.Context, historyID model.HistoryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.explanations, historyID)
	return nil
}
