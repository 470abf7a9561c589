package quorum

import "testing"

func TestSize(t *testing.T) {
	tests := []struct {
		name     string
		slots    [][]byte
		expected int
	}{
		{
			name:     "all three agree",
			slots:    [][]byte{[]byte("a"), []byte("a"), []byte("a")},
			expected: 3,
		},
		{
			name:     "split two one",
			slots:    [][]byte{[]byte("a"), []byte("a"), []byte("b")},
			expected: 2,
		},
		{
			name:     "no agreement",
			slots:    [][]byte{[]byte("a"), []byte("b"), []byte("c")},
			expected: 1,
		},
		{
			name:     "missing slots ignored",
			slots:    [][]byte{[]byte("a"), nil, []byte("a")},
			expected: 2,
		},
		{
			name:     "all absent",
			slots:    [][]byte{nil, nil, nil},
			expected: 0,
		},
		{
			name:     "empty vector",
			slots:    nil,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Size(tt.slots)
			if result != tt.expected {
				t.Errorf("Size(%v) = %d, want %d", tt.slots, result, tt.expected)
			}
		})
	}
}

func TestThreshold(t *testing.T) {
	tests := []struct {
		n        int
		expected int
	}{
		{n: 3, expected: 2},
		{n: 1, expected: 1},
		{n: 5, expected: 3},
		{n: 4, expected: 3},
	}

	for _, tt := range tests {
		if got := Threshold(tt.n); got != tt.expected {
			t.Errorf("Threshold(%d) = %d, want %d", tt.n, got, tt.expected)
		}
	}
}
