package ratelimit

import "testing"

func TestAllowExhaustsBucket(t *testing.T) {
	l := New()
	for i := 0; i < 3; i++ {
		if !l.Allow("client-1", 3, 0.0001) {
			t.Fatalf("request %d should be allowed within capacity", i)
		}
	}
	if l.Allow("client-1", 3, 0.0001) {
		t.Fatal("request beyond capacity should be denied")
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l := New()
	for i := 0; i < 3; i++ {
		l.Allow("client-1", 3, 0.0001)
	}
	if !l.Allow("client-2", 3, 0.0001) {
		t.Fatal("a fresh key must have a full bucket")
	}
}
