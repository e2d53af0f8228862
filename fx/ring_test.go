package fx

import (
	"testing"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
)

func frameSeq(start, n int) pulsar.AudioBuffer {
	buf := make(pulsar.AudioBuffer, n)
	for i := range buf {
		v := float32(start + i)
		buf[i] = [2]float32{v, -v}
	}
	return buf
}

func TestSnapshotMostRecentOldestFirst(t *testing.T) {
	r := newCaptureRing(8)
	r.Write(frameSeq(0, 6))  // 0..5
	r.Write(frameSeq(6, 4))  // 6..9, wraps, ring now holds 2..9
	dst := make(pulsar.AudioBuffer, 4)
	n := r.SnapshotInto(dst, 4, false)
	if n != 4 {
		t.Fatalf("snapshot wrote %d frames, want 4", n)
	}
	for i, want := range []float32{6, 7, 8, 9} {
		if dst[i][0] != want {
			t.Fatalf("frame %d = %v, want %v", i, dst[i][0], want)
		}
	}
}

func TestSnapshotReversed(t *testing.T) {
	r := newCaptureRing(8)
	r.Write(frameSeq(0, 5))
	dst := make(pulsar.AudioBuffer, 3)
	r.SnapshotInto(dst, 3, true)
	for i, want := range []float32{4, 3, 2} {
		if dst[i][0] != want {
			t.Fatalf("reversed frame %d = %v, want %v", i, dst[i][0], want)
		}
	}
}

func TestSnapshotClampsToFilled(t *testing.T) {
	r := newCaptureRing(16)
	r.Write(frameSeq(0, 3))
	dst := make(pulsar.AudioBuffer, 8)
	if n := r.SnapshotInto(dst, 8, false); n != 3 {
		t.Fatalf("snapshot of a barely-filled ring wrote %d frames, want 3", n)
	}
}

func TestSnapshotDoesNotAliasRing(t *testing.T) {
	r := newCaptureRing(8)
	r.Write(frameSeq(0, 8))
	dst := make(pulsar.AudioBuffer, 8)
	r.SnapshotInto(dst, 8, false)
	want := dst.Clone()

	// keep writing; the snapshot must be immune to it
	for i := 0; i < 4; i++ {
		r.Write(frameSeq(100+8*i, 8))
	}
	for i := range dst {
		if dst[i] != want[i] {
			t.Fatalf("ring writes leaked into snapshot at frame %d: %v != %v", i, dst[i], want[i])
		}
	}
}
