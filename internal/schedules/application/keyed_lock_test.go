package application_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshields/caseplan/internal/schedules/application"
)

func TestKeyedLocksSerialisesSameKey(t *testing.T) {
	locks := application.NewKeyedLocks()

	const workers = 20
	var counter int
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			unlock := locks.Lock("A1234BC")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
}

func TestKeyedLocksIndependentKeys(t *testing.T) {
	locks := application.NewKeyedLocks()

	unlockA := locks.Lock("A1234BC")

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("B5678CD")
		unlock()
		close(done)
	}()

	// A held lock on one person must not block another person.
	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "lock on a different key blocked")
	}
	unlockA()
}

func TestKeyedLocksReacquireAfterRelease(t *testing.T) {
	locks := application.NewKeyedLocks()

	unlock := locks.Lock("A1234BC")
	unlock()

	unlock = locks.Lock("A1234BC")
	unlock()
}
