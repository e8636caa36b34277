package anchor

import (
	"testing"

	"annotation-service/backend/internal/ot/delta"
)

func TestCalculateIndexChange(t *testing.T) {
	cases := []struct {
		name string
		d    delta.Delta
		want IndexChange
	}{
		{"nil delta", nil, IndexChange{}},
		{"no leading retain", delta.Delta{delta.Insert("ab")}, IndexChange{Index: 0, Change: 2}},
		{"insert", delta.Delta{delta.Retain(4), delta.Insert("xyz")}, IndexChange{Index: 4, Change: 3}},
		{"delete", delta.Delta{delta.Retain(4), delta.Delete(2)}, IndexChange{Index: 4, Change: -2}},
		{"zero length delete", delta.Delta{delta.Retain(4), delta.Delete(0)}, IndexChange{Index: 4}},
		{"embed", delta.Delta{delta.Retain(1), delta.InsertEmbed("loading-image", "", 3)}, IndexChange{Index: 1, Change: 3}},
	}
	for _, tc := range cases {
		if got := CalculateIndexChange(tc.d); got != tc.want {
			t.Errorf("%s: CalculateIndexChange() = %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestAdjustIndex(t *testing.T) {
	cases := []struct {
		name    string
		current int
		ic      IndexChange
		want    int
	}{
		{"insert after start", 3, IndexChange{Index: 5, Change: 4}, 3},
		{"insert at start", 5, IndexChange{Index: 5, Change: 4}, 9},
		{"insert before start", 8, IndexChange{Index: 5, Change: 4}, 12},
		{"delete far after", 2, IndexChange{Index: 10, Change: -3}, 2},
		{"delete boundary", 7, IndexChange{Index: 10, Change: -3}, 4},
		{"delete before start", 20, IndexChange{Index: 10, Change: -3}, 17},
		{"replace equal", 20, IndexChange{Index: 10, Change: 0}, 20},
		{"delete to negative", 2, IndexChange{Index: 0, Change: -5}, -3},
	}
	for _, tc := range cases {
		if got := AdjustIndex(tc.current, tc.ic); got != tc.want {
			t.Errorf("%s: AdjustIndex(%d, %+v) = %d, want %d", tc.name, tc.current, tc.ic, got, tc.want)
		}
	}
}

func TestAdjustIndex_EqualLengthReplaceKeepsEverything(t *testing.T) {
	d := delta.Delta{delta.Retain(3), delta.Delete(4), delta.Insert("abcd")}
	ic := CalculateIndexChange(d)
	for start := 0; start < 50; start++ {
		if got := AdjustIndex(start, ic); got != start {
			t.Fatalf("AdjustIndex(%d) = %d, want unchanged", start, got)
		}
	}
}

func TestAdjustIndex_Insertion(t *testing.T) {
	const at, n = 10, 6
	ic := CalculateIndexChange(delta.Delta{delta.Retain(at), delta.Insert("abcdef")})
	for start := 0; start < 40; start++ {
		want := start
		if start >= at {
			want = start + n
		}
		if got := AdjustIndex(start, ic); got != want {
			t.Fatalf("AdjustIndex(%d) = %d, want %d", start, got, want)
		}
	}
}

func TestAdjustIndex_Deletion(t *testing.T) {
	const at, n = 20, 5
	ic := CalculateIndexChange(delta.Delta{delta.Retain(at), delta.Delete(n)})
	for start := 0; start < 60; start++ {
		got := AdjustIndex(start, ic)
		switch {
		case start < at-n:
			// 删除点之前足够远
			if got != start {
				t.Fatalf("AdjustIndex(%d) = %d, want unchanged", start, got)
			}
		case start >= at+n:
			if got != start-n {
				t.Fatalf("AdjustIndex(%d) = %d, want %d", start, got, start-n)
			}
		default:
			// 保守规则：净删除时从 Index+Change（这里是 at-n）开始的起点都左移 n，
			// 所以 [at-n, at) 里删除点之前的批注也会跟着平移，这不是 bug
			if got != start-n {
				t.Fatalf("AdjustIndex(%d) = %d, want %d", start, got, start-n)
			}
		}
	}
}
