package pipeline

import (
	"strings"
	"testing"
)

func TestMarketContextDefaults(t *testing.T) {
	m := NewMarketContext("")
	if got := m.Current(); got != neutralMarketContext {
		t.Fatalf("got %q, want neutral default", got)
	}

	m.Remember("半导体设备", "存储芯片")
	if got := m.Current(); got != "近期热点: 半导体设备 | 存储芯片" {
		t.Fatalf("unexpected context: %q", got)
	}
}

func TestMarketContextManualWins(t *testing.T) {
	m := NewMarketContext("  冰点期，缩量  ")
	m.Remember("锂电池")
	if got := m.Current(); got != "冰点期，缩量" {
		t.Fatalf("manual override should win, got %q", got)
	}
}

func TestMarketContextRememberOrderAndLimit(t *testing.T) {
	m := NewMarketContext("")
	m.Remember("a", "b", "c")
	m.Remember("d", "a", "", "d")
	m.Remember("e", "f")

	got := strings.Join(m.Hot(), ",")
	if got != "e,f,d,a,b" {
		t.Fatalf("got %q, want %q", got, "e,f,d,a,b")
	}
}
