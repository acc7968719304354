package loop

import (
	"testing"
	"testing/quick"
)

func TestDecideBranch(t *testing.T) {
	tests := []struct {
		name     string
		runCount int
		target   int
		expected int
	}{
		{"below target", 2, 3, NormalBranch},
		{"at target", 3, 3, NormalBranch},
		{"one over target", 4, 3, OverrunBranch},
		{"zero target, one run", 1, 0, OverrunBranch},
		{"zero target, no runs", 0, 0, NormalBranch},
		{"far over target", 100, 1, OverrunBranch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecideBranch(tt.runCount, tt.target); got != tt.expected {
				t.Errorf("DecideBranch(%d, %d) = %d, want %d", tt.runCount, tt.target, got, tt.expected)
			}
		})
	}
}

func TestDecideBranch_Exhaustive(t *testing.T) {
	for target := 0; target <= 32; target++ {
		for run := 0; run <= 32; run++ {
			got := DecideBranch(run, target)
			want := NormalBranch
			if run > target {
				want = OverrunBranch
			}
			if got != want {
				t.Fatalf("DecideBranch(%d, %d) = %d, want %d", run, target, got, want)
			}
		}
	}
}

func TestDecideBranch_Property(t *testing.T) {
	property := func(run, target uint32) bool {
		got := DecideBranch(int(run), int(target))
		if run <= target {
			return got == NormalBranch
		}
		return got == OverrunBranch
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 5000}); err != nil {
		t.Error(err)
	}
}
