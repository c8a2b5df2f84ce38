/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package runqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunQueueConsistency(t *testing.T) {
	var i int32

	var wg sync.WaitGroup
	fn := func() {
		i++
		wg.Done()
	}

	rq := New("test", nil)

	for i := 0; i < 2000; i++ {
		wg.Add(1)
		rq.Run(fn)
		if i%2 == 1 {
			time.Sleep(time.Microsecond * 100)
		}
	}
	wg.Wait()

	require.Equal(t, int32(2000), i)
}

func TestRunQueueOrder(t *testing.T) {
	var got []int
	rq := New("test", nil)
	for i := 0; i < 100; i++ {
		i := i
		rq.Run(func() { got = append(got, i) })
	}
	c := make(chan struct{})
	rq.Stop(func() { close(c) })
	<-c

	require.Len(t, got, 100)
	for i := range got {
		require.Equal(t, i, got[i])
	}
}

func TestRunQueueStop(t *testing.T) {
	fn := func() {
		time.Sleep(time.Millisecond * 200)
	}
	rq := New("test", nil)
	rq.Run(fn)

	c := make(chan struct{})
	rq.Stop(func() { close(c) })

	select {
	case <-c:
	case <-time.NewTimer(time.Second).C:
		require.Fail(t, "close channel timeout")
	}

	// stopped queues discard new operations
	ran := make(chan struct{}, 1)
	rq.Run(func() { ran <- struct{}{} })
	select {
	case <-ran:
		require.Fail(t, "operation run after stop")
	case <-time.After(time.Millisecond * 50):
	}
}

func TestRunQueuePanic(t *testing.T) {
	panicked := make(chan interface{}, 1)
	rq := New("test", func(_ string, err interface{}, _ []byte) {
		panicked <- err
	})
	rq.Run(func() { panic("boom") })

	done := make(chan struct{})
	rq.Run(func() { close(done) })

	require.Equal(t, "boom", <-panicked)
	<-done
}
