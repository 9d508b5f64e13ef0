package index

import (
	"testing"

	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

func buildIndex() *Index {
	ix := New(2, types.FirstUserCol)
	ix.Update([]byte("apple"), 100)
	ix.Update([]byte("banana"), 200)
	ix.Update([]byte("cherry"), 300)
	ix.Update([]byte("cherry"), 310) // duplicate key, distinct offset
	ix.MarkSynced()
	return ix
}

func TestSetRangeEQReturnsOnlyMatches(t *testing.T) {
	ix := buildIndex()
	c := ix.SetRange([]byte("cherry"), types.OpEQ)
	var offs []types.Off
	for {
		o, ok := c.Next()
		if !ok {
			break
		}
		offs = append(offs, o)
	}
	if len(offs) != 2 || offs[0] != 300 || offs[1] != 310 {
		t.Fatalf("got %v", offs)
	}
}

func TestSetRangeGTSkipsEqual(t *testing.T) {
	ix := buildIndex()
	c := ix.SetRange([]byte("banana"), types.OpGT)
	o, ok := c.Next()
	if !ok || o != 300 {
		t.Fatalf("got %v %v", o, ok)
	}
}

func TestSetRangeLTStopsBeforeKey(t *testing.T) {
	ix := buildIndex()
	c := ix.SetRange([]byte("cherry"), types.OpLT)
	var offs []types.Off
	for {
		o, ok := c.Next()
		if !ok {
			break
		}
		offs = append(offs, o)
	}
	if len(offs) != 2 || offs[0] != 100 || offs[1] != 200 {
		t.Fatalf("got %v", offs)
	}
}

func TestUpdateMarksUnsynced(t *testing.T) {
	ix := buildIndex()
	if !ix.Synced() {
		t.Fatalf("expected synced after MarkSynced")
	}
	ix.Update([]byte("date"), 400)
	if ix.Synced() {
		t.Fatalf("expected Update to clear the synced flag")
	}
}

func TestPositionCacheRoundTrip(t *testing.T) {
	ix := buildIndex()
	ix.CachePosition("joinkey-1", 2)
	pos, ok := ix.CachedPosition("joinkey-1")
	if !ok || pos != 2 {
		t.Fatalf("got %v %v", pos, ok)
	}
	if _, ok := ix.CachedPosition("nope"); ok {
		t.Fatalf("expected a miss for an unset key")
	}
}
