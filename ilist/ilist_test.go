package ilist

import (
	"testing"
)

type testEntry struct {
	Entry
	value int
}

func values(l *List) []int {
	var out []int
	for e := l.Front(); e != nil; e = e.Next() {
		out = append(out, e.(*testEntry).value)
	}
	return out
}

func TestPushRemove(t *testing.T) {
	for _, test := range []struct {
		name   string
		remove []int
		want   []int
	}{
		{"none", nil, []int{1, 2, 3}},
		{"middle", []int{1}, []int{1, 3}},
		{"head", []int{0}, []int{2, 3}},
		{"tail", []int{2}, []int{1, 2}},
		{"all", []int{1, 0, 2}, nil},
	} {
		t.Run(test.name, func(t *testing.T) {
			var l List
			entries := []*testEntry{{value: 1}, {value: 2}, {value: 3}}
			for _, e := range entries {
				l.PushBack(e)
			}

			for _, i := range test.remove {
				l.Remove(entries[i])
			}

			got := values(&l)
			if len(got) != len(test.want) {
				t.Fatalf("list = %v, want %v", got, test.want)
			}
			for i := range got {
				if got[i] != test.want[i] {
					t.Fatalf("list = %v, want %v", got, test.want)
				}
			}

			// The list stays usable at both ends
			l.PushBack(&testEntry{value: 4})
			if got := values(&l); got[len(got)-1] != 4 {
				t.Fatalf("PushBack after Remove: list = %v", got)
			}
		})
	}
}
