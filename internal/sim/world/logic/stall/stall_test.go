package stall

import "testing"

func TestAge(t *testing.T) {
	if got := Age(13, 10); got != 3 {
		t.Fatalf("Age(13,10)=%d", got)
	}
	if got := Age(10, 10); got != 0 {
		t.Fatalf("Age(10,10)=%d", got)
	}
	if got := Age(5, 10); got != 0 {
		t.Fatalf("future record should be fresh, got %d", got)
	}
}

func TestStalledIsStrict(t *testing.T) {
	if Stalled(12, 10, 2) {
		t.Fatalf("age == stuckLimit must not stall")
	}
	if !Stalled(13, 10, 2) {
		t.Fatalf("age > stuckLimit must stall")
	}
}

func TestInGraceWindow(t *testing.T) {
	const stuck, delay = 2, 4
	for age, want := range map[uint64]bool{0: false, 2: false, 3: true, 4: true, 5: false, 100: false} {
		if got := InGrace(100+age, 100, stuck, delay); got != want {
			t.Fatalf("InGrace(age=%d)=%v want %v", age, got, want)
		}
	}
}
