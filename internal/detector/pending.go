package detector

// PendingSignals 已触发市场的抑制窗口：market -> 剩余周期数
type PendingSignals struct {
	m map[string]int
}

func NewPendingSignals() *PendingSignals {
	return &PendingSignals{m: make(map[string]int)}
}

func (p *PendingSignals) Has(market string) bool {
	_, ok := p.m[market]
	return ok
}

// Mark 标记市场为待定，cycles 个保留周期内不再触发
func (p *PendingSignals) Mark(market string, cycles int) {
	p.m[market] = cycles
}

// Decrement 剩余周期减一，到 0 时移除
func (p *PendingSignals) Decrement(market string) {
	n, ok := p.m[market]
	if !ok {
		return
	}
	n--
	if n <= 0 {
		delete(p.m, market)
		return
	}
	p.m[market] = n
}

func (p *PendingSignals) Remaining(market string) int { return p.m[market] }
func (p *PendingSignals) Len() int                    { return len(p.m) }

// Snapshot 返回副本
func (p *PendingSignals) Snapshot() map[string]int {
	out := make(map[string]int, len(p.m))
	for k, v := range p.m {
		out[k] = v
	}
	return out
}
