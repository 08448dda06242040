package tasks

import "testing"

func TestNextStep(t *testing.T) {
	var nilTask *MovementTask
	if _, ok := nilTask.NextStep(); ok {
		t.Fatalf("nil task should have no next step")
	}

	mt := &MovementTask{Path: []Vec2i{{X: 1, Y: 0}, {X: 2, Y: 0}}, Cursor: 1}
	next, ok := mt.NextStep()
	if !ok || next != (Vec2i{X: 2, Y: 0}) {
		t.Fatalf("next=%+v ok=%v", next, ok)
	}

	mt.Cursor = 2
	if _, ok := mt.NextStep(); ok {
		t.Fatalf("exhausted path should have no next step")
	}

	mt.ClearPath()
	if mt.Path != nil || mt.Cursor != 0 || mt.PathTick != 0 {
		t.Fatalf("path not cleared: %+v", mt)
	}
}
