package command

import (
	"testing"
	"time"
)

func TestIDGeneratorMonotonic(t *testing.T) {
	g := NewIDGenerator(1, time.Now())
	prev := g.Next()
	for i := 0; i < 1000; i++ {
		id := g.Next()
		if id <= prev {
			t.Fatalf("ids not increasing: %x then %x", prev, id)
		}
		prev = id
	}
}

func TestIDGeneratorDistinctNodes(t *testing.T) {
	now := time.Now()
	g1 := NewIDGenerator(1, now)
	g2 := NewIDGenerator(2, now)

	seen := make(map[uint64]struct{})
	for i := 0; i < 100; i++ {
		for _, g := range []*IDGenerator{g1, g2} {
			id := g.Next()
			if _, dup := seen[id]; dup {
				t.Fatalf("duplicate id %x across nodes", id)
			}
			seen[id] = struct{}{}
		}
	}
}

func TestIDGeneratorConcurrent(t *testing.T) {
	g := NewIDGenerator(3, time.Now())
	const workers, perWorker = 8, 200

	ids := make(chan uint64, workers*perWorker)
	for w := 0; w < workers; w++ {
		go func() {
			for i := 0; i < perWorker; i++ {
				ids <- g.Next()
			}
		}()
	}

	seen := make(map[uint64]struct{}, workers*perWorker)
	for i := 0; i < workers*perWorker; i++ {
		id := <-ids
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %x", id)
		}
		seen[id] = struct{}{}
	}
}
