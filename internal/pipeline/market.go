package pipeline

import (
	"strings"
	"sync"
)

const (
	neutralMarketContext = "市场情绪中性，等待方向选择"
	maxHotLabels         = 5
)

// MarketContext supplies the market backdrop sent with each classification
// request: the manual override when set, else the most recent hot sectors,
// else a neutral default.
type MarketContext struct {
	mu     sync.Mutex
	manual string
	hot    []string
}

func NewMarketContext(manual string) *MarketContext {
	return &MarketContext{manual: strings.TrimSpace(manual)}
}

func (m *MarketContext) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.manual != "" {
		return m.manual
	}
	if len(m.hot) > 0 {
		return "近期热点: " + strings.Join(m.hot, " | ")
	}
	return neutralMarketContext
}

// Remember pushes labels to the front of the hot list, newest first,
// dropping repeats and anything past the label limit.
func (m *MarketContext) Remember(labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var fresh []string
	seen := make(map[string]bool)
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		fresh = append(fresh, l)
	}
	for _, l := range m.hot {
		if !seen[l] {
			seen[l] = true
			fresh = append(fresh, l)
		}
	}
	if len(fresh) > maxHotLabels {
		fresh = fresh[:maxHotLabels]
	}
	m.hot = fresh
}

func (m *MarketContext) Hot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.hot...)
}
