package dbengine

import "testing"

func TestCompareJSONTypeOrdering(t *testing.T) {
	ordered := []string{
		`null`,
		`false`,
		`true`,
		`1`,
		`2`,
		`"a"`,
		`"b"`,
		`[1]`,
		`[1,2]`,
		`{"a":1}`,
		`{"b":1}`,
	}
	for i := 0; i < len(ordered)-1; i++ {
		if c := compareJSON(ordered[i], ordered[i+1]); c >= 0 {
			t.Errorf("expected %s < %s, got cmp=%d", ordered[i], ordered[i+1], c)
		}
	}
}

func TestCompareJSONEqual(t *testing.T) {
	if c := compareJSON(`{"a":1,"b":2}`, `{"b":2,"a":1}`); c != 0 {
		t.Errorf("expected key-order-independent equality, got %d", c)
	}
}

func TestCompareJSONStringsUnicodeOrder(t *testing.T) {
	if c := compareJSON(`"9-x"`, `"10-y"`); c <= 0 {
		t.Errorf(`expected "9-x" > "10-y" under code-point order, got %d`, c)
	}
}

func TestCompareJSONArraysLexicographic(t *testing.T) {
	if c := compareJSON(`[1,2]`, `[1,3]`); c >= 0 {
		t.Errorf("expected [1,2] < [1,3], got %d", c)
	}
	if c := compareJSON(`[1]`, `[1,0]`); c >= 0 {
		t.Errorf("expected shorter prefix array to sort first, got %d", c)
	}
}
