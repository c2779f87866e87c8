package detector

import "github.com/betbot/lagbot/internal/domain"

// CycleQuotes 一个周期内保留下来的市场快照
type CycleQuotes map[string]domain.Quote

// QuoteHistory 定长 FIFO，最旧的在前；Len() 永远不超过 MaxLength
type QuoteHistory struct {
	maxLength int
	cycles    []CycleQuotes
}

func NewQuoteHistory(maxLength int) *QuoteHistory {
	if maxLength <= 0 {
		maxLength = 1
	}
	return &QuoteHistory{
		maxLength: maxLength,
		cycles:    make([]CycleQuotes, 0, maxLength+1),
	}
}

// Push 追加一个周期；达到容量时淘汰最旧的
func (h *QuoteHistory) Push(c CycleQuotes) {
	h.cycles = append(h.cycles, c)
	if len(h.cycles) > h.maxLength {
		copy(h.cycles, h.cycles[1:])
		h.cycles[len(h.cycles)-1] = nil
		h.cycles = h.cycles[:len(h.cycles)-1]
	}
}

func (h *QuoteHistory) Len() int       { return len(h.cycles) }
func (h *QuoteHistory) MaxLength() int { return h.maxLength }

// Lookup 返回第 i 个周期（0 = 最旧）中该市场的快照
func (h *QuoteHistory) Lookup(i int, market string) (domain.Quote, bool) {
	if i < 0 || i >= len(h.cycles) {
		return domain.Quote{}, false
	}
	q, ok := h.cycles[i][market]
	return q, ok
}
