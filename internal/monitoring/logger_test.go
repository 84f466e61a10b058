package monitoring

import (
	"fmt"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	defer SetLogger(log.Printf)

	var got []string
	SetLogger(func(format string, v ...any) {
		got = append(got, fmt.Sprintf(format, v...))
	})
	Logf("hello %d", 1)
	Stagef("producer", "source failed: %v", "eof")
	assert.Equal(t, []string{"hello 1", "[producer] source failed: eof"}, got)

	SetLogger(nil)
	Logf("muted")
	assert.Len(t, got, 2)
}

func TestLogf_ConcurrentSwap(t *testing.T) {
	defer SetLogger(log.Printf)
	SetLogger(nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				Logf("tick %d", j)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		SetLogger(func(string, ...any) {})
	}
	wg.Wait()
}
