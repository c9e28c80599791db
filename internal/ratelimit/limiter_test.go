package ratelimit

import (
	"net/http"
	"sync"
	"testing"
)

func TestLimiterUpdateFromHeader(t *testing.T) {
	l := NewLimiter()
	if l.IsLimited(CategoryError) {
		t.Fatal("new limiter should not be limited")
	}

	l.UpdateFromHeader("60:error")
	if !l.IsLimited(CategoryError) {
		t.Error("error category should be limited")
	}
	if l.IsLimited(CategoryTransaction) {
		t.Error("transaction category should not be limited")
	}

	// A later update replaces the stored deadline even when it is earlier.
	l.UpdateFromHeader("0:error")
	if l.IsLimited(CategoryError) {
		t.Error("zero-second limit expires immediately")
	}
}

func TestLimiterGlobal(t *testing.T) {
	l := NewLimiter()
	l.UpdateGlobal(60)
	for _, c := range []Category{CategoryError, CategoryTransaction, CategoryMonitor} {
		if !l.IsLimited(c) {
			t.Errorf("global limit should cover %v", c)
		}
	}
}

func TestLimiterUpdateFromResponse(t *testing.T) {
	l := NewLimiter()
	h := make(http.Header)
	h.Set("X-Sentry-Rate-Limits", "60:transaction")
	l.UpdateFromResponse(&http.Response{StatusCode: http.StatusOK, Header: h})

	if !l.IsLimited(CategoryTransaction) {
		t.Error("transaction category should be limited")
	}
	if l.IsLimited(CategoryError) {
		t.Error("error category should not be limited")
	}
}

func TestLimiterConcurrentAccess(t *testing.T) {
	l := NewLimiter()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.UpdateFromHeader("60:error")
		}()
		go func() {
			defer wg.Done()
			l.IsLimited(CategoryError)
		}()
	}
	wg.Wait()
	if !l.IsLimited(CategoryError) {
		t.Error("error category should be limited")
	}
}
