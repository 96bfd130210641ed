package hub

import "testing"

func TestRingEvictsOldestFirst(t *testing.T) {
	r := newRing(3)
	for seq := int64(1); seq <= 5; seq++ {
		r.push(Event{Seq: seq})
	}

	if r.len() != 3 {
		t.Fatalf("len = %d, want 3", r.len())
	}
	got := r.after(0, 10)
	want := []int64{3, 4, 5}
	for i, seq := range want {
		if got[i].Seq != seq {
			t.Fatalf("after(0) = %v, want seqs %v", got, want)
		}
	}
}

func TestRingAfterOutOfRange(t *testing.T) {
	r := newRing(4)
	r.push(Event{Seq: 1})
	r.push(Event{Seq: 2})

	if got := r.after(2, 10); len(got) != 0 {
		t.Fatalf("after(2) returned %d events, want 0", len(got))
	}
	if got := r.after(0, 0); got != nil {
		t.Fatalf("limit 0 returned %v, want nil", got)
	}
}
