package delta

import (
	"encoding/json"
	"testing"
)

func TestLeadingRetain(t *testing.T) {
	cases := []struct {
		name string
		d    Delta
		want int
	}{
		{"nil", nil, 0},
		{"empty", Delta{}, 0},
		{"insert first", Delta{Insert("a")}, 0},
		{"retain first", Delta{Retain(7), Insert("a")}, 7},
		{"negative retain", Delta{Retain(-3), Delete(1)}, 0},
	}
	for _, tc := range cases {
		if got := tc.d.LeadingRetain(); got != tc.want {
			t.Errorf("%s: LeadingRetain() = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestChangeLength(t *testing.T) {
	cases := []struct {
		name string
		d    Delta
		want int
	}{
		{"nil", nil, 0},
		{"insert text", Delta{Retain(2), Insert("héllo")}, 5},
		{"delete", Delta{Retain(2), Delete(4)}, -4},
		{"replace equal", Delta{Retain(1), Delete(3), Insert("abc")}, 0},
		{"embed width", Delta{Retain(5), InsertEmbed("loading-image", "", 3)}, 3},
		{"embed default width", Delta{{Kind: KindInsert, Embed: &Embed{Type: "image"}}}, 1},
		{"zero length", Delta{Retain(4), Delete(0)}, 0},
	}
	for _, tc := range cases {
		if got := tc.d.ChangeLength(); got != tc.want {
			t.Errorf("%s: ChangeLength() = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestDecodeClientDelta(t *testing.T) {
	raw := `[{"kind":"retain","count":3},{"kind":"insert","embed":{"type":"image","value":"https://x/img.png"}},{"kind":"delete","count":2}]`
	var d Delta
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if d.LeadingRetain() != 3 {
		t.Fatalf("LeadingRetain() = %d, want 3", d.LeadingRetain())
	}
	if d.ChangeLength() != -1 {
		t.Fatalf("ChangeLength() = %d, want -1", d.ChangeLength())
	}
}
