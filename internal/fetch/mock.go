package fetch

import (
	"context"
	"sync"

	"stockhist/internal/stock"
)

// MockSource returns scripted results for testing and development.
type MockSource struct {
	mu sync.Mutex

	// Respond produces the result for a query. Nil yields an empty
	// successful result.
	Respond func(q stock.Query) *Result

	// Queries records every fetch in call order.
	Queries []stock.Query
}

func (m *MockSource) Fetch(_ context.Context, q stock.Query) *Result {
	m.mu.Lock()
	m.Queries = append(m.Queries, q)
	respond := m.Respond
	m.mu.Unlock()

	if respond == nil {
		return &Result{Query: q}
	}
	res := respond(q)
	if res == nil {
		res = &Result{Query: q}
	}
	return res
}
