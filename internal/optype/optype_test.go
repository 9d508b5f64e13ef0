package optype

import (
	"testing"

	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

func TestStringEQ(t *testing.T) {
	cmp := Lookup(types.TypeVarChar, types.OpEQ)
	if r := cmp([]byte("abc"), []byte("abc")); !r.Bool() {
		t.Fatalf("expected equal strings to compare TRUE, got %v", r)
	}
	if r := cmp([]byte("abc"), []byte("abd")); r.Bool() {
		t.Fatalf("expected unequal strings to compare FALSE, got %v", r)
	}
}

func TestStringOrderedRegions(t *testing.T) {
	lt := Lookup(types.TypeVarChar, types.OpLT)
	if r := lt([]byte("a"), []byte("b")); r != RegionTrueLow {
		t.Fatalf("a < b: got %v, want RegionTrueLow", r)
	}
	if r := lt([]byte("b"), []byte("a")); r != RegionFalseHigh {
		t.Fatalf("b < a: got %v, want RegionFalseHigh (upper bound)", r)
	}
}

func TestLikePrefix(t *testing.T) {
	if !Like("foo%", "foobar") {
		t.Fatalf("expected foo%%  to match foobar")
	}
	if Like("foo%", "barfoo") {
		t.Fatalf("did not expect foo%% to match barfoo")
	}
	if !Like("FOO%", "foobar") {
		t.Fatalf("expected LIKE to be case-insensitive")
	}
}

func TestLikeSingleCharWildcard(t *testing.T) {
	if !Like("f_o", "foo") {
		t.Fatalf("expected f_o to match foo")
	}
	if Like("f_o", "fooo") {
		t.Fatalf("did not expect f_o to match fooo")
	}
}

func TestSameCaseInsensitive(t *testing.T) {
	same := Lookup(types.TypeVarChar, types.OpSame)
	if r := same([]byte("ABC"), []byte("abc")); !r.Bool() {
		t.Fatalf("expected SAME to ignore case")
	}
}

func TestNullNeverTrue(t *testing.T) {
	eq := Lookup(types.TypeVarChar, types.OpEQ)
	if r := eq(nil, []byte("x")); r.Bool() {
		t.Fatalf("NULL should never satisfy EQ")
	}
}

func TestIntOrdering(t *testing.T) {
	enc := func(v int32) []byte {
		b := make([]byte, 4)
		b[0] = byte(v >> 24)
		b[1] = byte(v >> 16)
		b[2] = byte(v >> 8)
		b[3] = byte(v)
		return b
	}
	lt := Lookup(types.TypeInt, types.OpLT)
	if r := lt(enc(1), enc(2)); !r.Bool() {
		t.Fatalf("expected 1 < 2")
	}
	if r := lt(enc(2), enc(1)); r.Bool() {
		t.Fatalf("did not expect 2 < 1")
	}
}

func TestUnknownTypeIsNotApplicable(t *testing.T) {
	cmp := Lookup(types.TypeUnknown, types.OpEQ)
	if r := cmp([]byte("x"), []byte("x")); r != RegionNA {
		t.Fatalf("expected RegionNA for TypeUnknown, got %v", r)
	}
}
