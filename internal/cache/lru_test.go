package cache

import "testing"

func TestLRU_PutGet(t *testing.T) {
	c := NewLRU[string](2)
	c.Put("a", "1")
	v, ok := c.Get("a")
	if !ok || v != "1" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}
}

func TestLRU_Miss(t *testing.T) {
	c := NewLRU[string](2)
	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss")
	}
	if c.Misses() != 1 {
		t.Errorf("Misses: got %d, want 1", c.Misses())
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[string](2)
	c.Put("a", "1")
	c.Put("b", "2")
	c.Get("a") // a is now most-recent
	c.Put("c", "3")

	if c.Exists("b") {
		t.Error("expected b evicted")
	}
	if !c.Exists("a") || !c.Exists("c") {
		t.Error("expected a and c resident")
	}
	if c.Evictions() != 1 {
		t.Errorf("Evictions: got %d, want 1", c.Evictions())
	}
}

func TestLRU_PutExistingKey_MovesToFront(t *testing.T) {
	c := NewLRU[string](2)
	c.Put("a", "1")
	c.Put("b", "2")
	c.Put("a", "updated")
	c.Put("c", "3")

	if c.Exists("b") {
		t.Error("expected b evicted, a was refreshed by re-put")
	}
	v, _ := c.Get("a")
	if v != "updated" {
		t.Errorf("Get(a): got %q, want updated", v)
	}
}

func TestLRU_Erase(t *testing.T) {
	c := NewLRU[string](2)
	c.Put("a", "1")
	c.Erase("a")
	if c.Exists("a") {
		t.Error("expected a erased")
	}
}

func TestLRU_Items(t *testing.T) {
	c := NewLRU[string](3)
	c.Put("a", "1")
	c.Put("b", "2")
	items := c.Items()
	if len(items) != 2 || items["a"] != "1" || items["b"] != "2" {
		t.Errorf("unexpected items: %v", items)
	}
}

func TestLRU_ZeroCapacity_NeverEvicts(t *testing.T) {
	c := NewLRU[string](0)
	for i := 0; i < 10; i++ {
		c.Put(string(rune('a'+i)), "x")
	}
	if c.Len() != 10 {
		t.Errorf("Len: got %d, want 10", c.Len())
	}
}
