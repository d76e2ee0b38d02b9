package util

import (
	"testing"
	"time"
)

func TestLRUCache_PutGet(t *testing.T) {
	cache, err := NewWithConfig[string, int](CacheConfig{Capacity: 2})
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}

	cache.Put("a", 1)
	cache.Put("b", 2)

	if v, ok := cache.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}

	// "a" was just touched, so inserting "c" must evict "b".
	cache.Put("c", 3)
	if _, ok := cache.Get("b"); ok {
		t.Error("Expected b to be evicted")
	}
	if v, ok := cache.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) after eviction = %d, %v; want 1, true", v, ok)
	}
}

func TestLRUCache_Remove(t *testing.T) {
	cache, _ := NewWithConfig[string, int](CacheConfig{Capacity: 4})
	cache.Put("a", 1)
	cache.Remove("a")
	if _, ok := cache.Get("a"); ok {
		t.Error("Expected a to be gone after Remove")
	}
	if cache.Len() != 0 {
		t.Errorf("Expected empty cache, got %d entries", cache.Len())
	}
}

func TestLRUCache_TTL(t *testing.T) {
	cache, _ := NewWithConfig[string, int](CacheConfig{Capacity: 4, TTL: 20 * time.Millisecond})
	cache.Put("a", 1)

	if _, ok := cache.Get("a"); !ok {
		t.Fatal("Expected a before expiry")
	}
	time.Sleep(30 * time.Millisecond)
	if _, ok := cache.Get("a"); ok {
		t.Error("Expected a to expire")
	}
}

func TestLRUCache_InvalidCapacity(t *testing.T) {
	if _, err := NewWithConfig[string, int](CacheConfig{Capacity: 0}); err == nil {
		t.Error("Expected error for zero capacity")
	}
}
