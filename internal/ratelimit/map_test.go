package ratelimit

import (
	"testing"
	"time"
)

func TestMapIsRateLimited(t *testing.T) {
	future := Deadline(time.Now().Add(time.Minute))
	past := Deadline(time.Now().Add(-time.Minute))

	tests := []struct {
		name string
		m    Map
		c    Category
		want bool
	}{
		{"empty map", Map{}, CategoryError, false},
		{"future entry", Map{CategoryError: future}, CategoryError, true},
		{"expired entry", Map{CategoryError: past}, CategoryError, false},
		{"other category", Map{CategoryError: future}, CategoryTransaction, false},
		{"global entry limits all", Map{CategoryAll: future}, CategoryTransaction, true},
		{"expired global", Map{CategoryAll: past}, CategoryError, false},
		{"global outlives category", Map{CategoryAll: future, CategoryError: past}, CategoryError, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := tt.m.IsRateLimited(tt.c)
			if got != tt.want {
				t.Errorf("IsRateLimited(%v) = %v, want %v", tt.c, got, tt.want)
			}
		})
	}
}

func TestMapDeadline(t *testing.T) {
	early := Deadline(time.Unix(100, 0))
	late := Deadline(time.Unix(200, 0))

	m := Map{CategoryAll: late, CategoryError: early}
	if got := m.Deadline(CategoryError); !got.Equal(late) {
		t.Errorf("Deadline should pick the later of category and global: got %v, want %v", got, late)
	}

	m = Map{CategoryAll: early, CategoryError: late}
	if got := m.Deadline(CategoryError); !got.Equal(late) {
		t.Errorf("got %v, want %v", got, late)
	}
}

func TestMapMergeOverwrites(t *testing.T) {
	early := Deadline(time.Unix(100, 0))
	late := Deadline(time.Unix(200, 0))

	// A later update always overwrites the prior value for a key, even when
	// the new deadline is earlier: the server's latest word is authoritative.
	m := Map{CategoryError: late}
	m.Merge(Map{CategoryError: early})
	if got := m[CategoryError]; !got.Equal(early) {
		t.Errorf("Merge must overwrite, not max-merge: got %v, want %v", got, early)
	}

	m.Merge(Map{CategoryTransaction: late})
	if got := m[CategoryTransaction]; !got.Equal(late) {
		t.Errorf("Merge must add new keys: got %v, want %v", got, late)
	}
	if got := m[CategoryError]; !got.Equal(early) {
		t.Errorf("Merge must leave unrelated keys alone: got %v, want %v", got, early)
	}
}
