// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAdvance(t *testing.T) {
	fake := Fake(epoch)
	if got := fake.Now(); !got.Equal(epoch) {
		t.Fatalf("Now = %v, want %v", got, epoch)
	}
	if got := fake.Advance(3 * time.Second); !got.Equal(epoch.Add(3 * time.Second)) {
		t.Errorf("Advance returned %v", got)
	}
	if got := fake.Now(); !got.Equal(epoch.Add(3 * time.Second)) {
		t.Errorf("Now after Advance = %v", got)
	}
}

func TestFakeSet(t *testing.T) {
	fake := Fake(epoch)
	target := epoch.Add(-time.Hour)
	fake.Set(target)
	if got := fake.Now(); !got.Equal(target) {
		t.Errorf("Now = %v, want %v", got, target)
	}
}

func TestFakeConcurrentAdvance(t *testing.T) {
	fake := Fake(epoch)
	var group sync.WaitGroup
	for range 50 {
		group.Add(1)
		go func() {
			defer group.Done()
			fake.Advance(time.Millisecond)
			_ = fake.Now()
		}()
	}
	group.Wait()
	if got := fake.Now(); !got.Equal(epoch.Add(50 * time.Millisecond)) {
		t.Errorf("Now = %v, want %v", got, epoch.Add(50*time.Millisecond))
	}
}

func TestRealMovesForward(t *testing.T) {
	real := Real()
	first := real.Now()
	if real.Now().Before(first) {
		t.Error("real clock went backwards")
	}
}
