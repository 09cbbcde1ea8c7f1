package upload

import "testing"

func TestRouteThreshold(t *testing.T) {
	const threshold = 80 * 1024 * 1024

	tests := []struct {
		name string
		size int64
		want Transport
	}{
		{"small file", 1024, TransportDirect},
		{"just under threshold", threshold - 1, TransportDirect},
		{"exactly at threshold", threshold, TransportChunked},
		{"above threshold", threshold + 1, TransportChunked},
		{"empty file", 0, TransportDirect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Route(tt.size, threshold); got != tt.want {
				t.Fatalf("Route(%d, %d) = %q, want %q", tt.size, threshold, got, tt.want)
			}
		})
	}
}
