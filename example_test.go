package foundation_test

import (
	"fmt"
	"time"

	"github.com/zeus-go/foundation"
)

// ExampleNewRegistry demonstrates the basic usage with only one import.
func ExampleNewRegistry() {
	reg, err := foundation.NewRegistry(nil, foundation.RegistryOptions{})
	if err != nil {
		panic(err)
	}
	defer reg.Close()

	pool := reg.DefaultPool()
	latch := foundation.NewLatch(3)
	results := foundation.NewMutexObject(0)

	for i := 1; i <= 3; i++ {
		pool.CommitTask(func() {
			results.With(func(sum *int) { *sum += i })
			latch.CountDown()
		})
	}
	latch.Wait()

	fmt.Println("sum:", results.Load())

	// Output:
	// sum: 6
}

// ExampleCommit demonstrates collecting a value computed on a pool thread.
func ExampleCommit() {
	pool, err := foundation.NewThreadPool(foundation.PoolOptions{Name: "example", CoreSize: 1})
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	f := foundation.Commit(pool, func() (string, error) {
		if pool.IsPoolThread() {
			return "computed on a pool thread", nil
		}
		return "computed elsewhere", nil
	})
	v, err := f.Get()
	fmt.Println(v, err)

	// Output:
	// computed on a pool thread <nil>
}

// ExampleAdvancedThread demonstrates Post and Invoke on a dedicated thread.
func ExampleAdvancedThread() {
	thread := foundation.NewAdvancedThread("worker", foundation.ThreadOptions{})
	thread.Start()
	defer thread.Stop()

	thread.Post(func() { fmt.Println("posted") })
	thread.Invoke(func() { fmt.Println("invoked") })

	// Output:
	// posted
	// invoked
}

// ExampleRelativeTimer demonstrates a periodic task that stops itself.
func ExampleRelativeTimer() {
	timer := foundation.NewRelativeTimer(foundation.TimerOptions{Name: "ticker"})
	defer timer.Stop()

	done := foundation.NewEvent()
	timer.AddPeriodTimerTask(func(count uint64) bool {
		fmt.Println("tick", count)
		if count == 2 {
			done.NotifyAll()
			return false
		}
		return true
	}, 10*time.Millisecond)
	done.Wait()

	// Output:
	// tick 0
	// tick 1
	// tick 2
}
