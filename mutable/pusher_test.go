package mutable_test

import (
	"sync"
	"testing"

	"pipelined.dev/mix/mutable"
)

func TestPusher(t *testing.T) {
	p := mutable.NewPusher()
	ctx1 := mutable.Mutable()
	var wakes int
	q := mutable.NewQueue(func() { wakes++ })
	p.AddDestination(ctx1, q)

	var order []int
	p.Push(
		ctx1.Mutate(func() { order = append(order, 1) }),
		ctx1.Mutate(func() { order = append(order, 2) }),
	)
	p.Push(ctx1.Mutate(func() { order = append(order, 3) }))
	assertEqual(t, "wakes", wakes, 2)
	assertEqual(t, "not applied", len(order), 0)

	applied := q.Drain()
	assertEqual(t, "applied", applied, 3)
	assertEqual(t, "order", order, []int{1, 2, 3})
	assertEqual(t, "drained", q.Drain(), 0)

	assertPanic(t, func() {
		ctx2 := mutable.Mutable()
		p.Push(ctx2.Mutate(func() {}))
	})
	p.RemoveDestination(ctx1)
	assertPanic(t, func() {
		p.Push(ctx1.Mutate(func() {}))
	})
}

func TestQueueDrainsNested(t *testing.T) {
	q := mutable.NewQueue(nil)
	var v int
	q.Push(func() {
		v++
		q.Push(func() { v *= 10 })
	})
	assertEqual(t, "applied", q.Drain(), 2)
	assertEqual(t, "value", v, 10)
}

func TestQueueConcurrentPush(t *testing.T) {
	q := mutable.NewQueue(nil)
	var (
		wg sync.WaitGroup
		v  int
	)
	wg.Add(10)
	for i := 0; i < 10; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(func() { v++ })
			}
		}()
	}
	wg.Wait()
	q.Drain()
	assertEqual(t, "value", v, 1000)
}
