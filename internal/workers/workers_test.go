package workers

import (
	"runtime"
	"testing"
)

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      int
		expected int
	}{
		{name: "unset uses default", value: "", def: 16, expected: 16},
		{name: "valid override", value: "4", def: 16, expected: 4},
		{name: "zero ignored", value: "0", def: 16, expected: 16},
		{name: "negative ignored", value: "-3", def: 16, expected: 16},
		{name: "garbage ignored", value: "many", def: 32, expected: 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("WORKERS_TEST_VALUE", tt.value)
			if got := FromEnv("WORKERS_TEST_VALUE", tt.def); got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestScanAndFilmDefaults(t *testing.T) {
	t.Setenv(envScan, "")
	t.Setenv(envFilm, "")
	if got := Scan(); got != DefaultScan {
		t.Errorf("Expected Scan()=%d, got %d", DefaultScan, got)
	}
	if got := Film(); got != DefaultFilm {
		t.Errorf("Expected Film()=%d, got %d", DefaultFilm, got)
	}

	t.Setenv(envScan, "3")
	if got := Scan(); got != 3 {
		t.Errorf("Expected Scan()=3 with override, got %d", got)
	}
}

func TestCount(t *testing.T) {
	availableCPU := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		minExpect  int
		maxExpect  int
	}{
		{name: "one per CPU", multiplier: 1.0, minExpect: 1, maxExpect: availableCPU},
		{name: "two per CPU", multiplier: 2.0, minExpect: 1, maxExpect: availableCPU * 2},
		{name: "limit applied", multiplier: 2.0, limit: 2, minExpect: 1, maxExpect: 2},
		{name: "tiny multiplier floors at one", multiplier: 0.0001, minExpect: 1, maxExpect: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Count(tt.multiplier, tt.limit)
			if got < tt.minExpect || got > tt.maxExpect {
				t.Errorf("Count(%v, %d) = %d, want [%d, %d]", tt.multiplier, tt.limit, got, tt.minExpect, tt.maxExpect)
			}
		})
	}
}

func TestCap(t *testing.T) {
	tests := []struct {
		n, limit, expected int
	}{
		{16, 4, 4},
		{2, 4, 2},
		{16, 0, 16},
		{0, 4, 1},
	}
	for _, tt := range tests {
		if got := Cap(tt.n, tt.limit); got != tt.expected {
			t.Errorf("Cap(%d, %d) = %d, want %d", tt.n, tt.limit, got, tt.expected)
		}
	}
}
