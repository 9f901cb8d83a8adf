package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"
)

func TestNewShutdownManager(t *testing.T) {
	logger := NewLogger(InfoLevel, nil)
	server := &http.Server{}

	sm := NewShutdownManager(logger, server, 10*time.Second)
	if sm.shutdownTimeout != 10*time.Second {
		t.Errorf("Expected timeout 10s, got %v", sm.shutdownTimeout)
	}

	// Zero timeout falls back to the default
	sm = NewShutdownManager(logger, server, 0)
	if sm.shutdownTimeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", sm.shutdownTimeout)
	}
}

func TestShutdownRunsFunctionsInRegistrationOrder(t *testing.T) {
	logger := NewLogger(ErrorLevel, nil)
	sm := NewShutdownManager(logger, nil, 5*time.Second)

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	if len(order) != 3 {
		t.Fatalf("Expected 3 functions to execute, got %d", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Errorf("Function %d ran out of order (position %d)", got, i)
		}
	}
}

func TestShutdownCollectsErrors(t *testing.T) {
	logger := NewLogger(ErrorLevel, nil)
	sm := NewShutdownManager(logger, nil, 5*time.Second)

	var ran []string
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		ran = append(ran, "first")
		return errors.New("boom")
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		ran = append(ran, "second")
		return nil
	})

	err := sm.Shutdown(context.Background())
	if err == nil {
		t.Fatal("Expected error from failing shutdown function")
	}

	// A failure must not stop later functions from running
	if len(ran) != 2 {
		t.Errorf("Expected both functions to run, got %v", ran)
	}
}

func TestShutdownStopsAtDeadline(t *testing.T) {
	logger := NewLogger(ErrorLevel, nil)
	sm := NewShutdownManager(logger, nil, 5*time.Second)

	var secondRan bool
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		secondRan = true
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := sm.Shutdown(ctx)
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if secondRan {
		t.Error("Function after the deadline should not have run")
	}
}

func TestShutdownStopsHTTPServer(t *testing.T) {
	logger := NewLogger(ErrorLevel, nil)

	server := &http.Server{Addr: "127.0.0.1:0"}
	sm := NewShutdownManager(logger, server, 5*time.Second)

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	// A shut-down server refuses further use
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("Expected ErrServerClosed, got %v", err)
	}
}

func TestRegisterShutdownFuncIsThreadSafe(t *testing.T) {
	logger := NewLogger(ErrorLevel, nil)
	sm := NewShutdownManager(logger, nil, 5*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sm.RegisterShutdownFunc(func(ctx context.Context) error { return nil })
		}()
	}
	wg.Wait()

	sm.mu.Lock()
	n := len(sm.shutdownFuncs)
	sm.mu.Unlock()
	if n != 20 {
		t.Errorf("Expected 20 registered functions, got %d", n)
	}
}

func TestShutdownEmptyFunctionList(t *testing.T) {
	logger := NewLogger(ErrorLevel, nil)
	sm := NewShutdownManager(logger, nil, time.Second)

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Errorf("Empty shutdown should succeed, got %v", err)
	}
}

func TestShutdownManyQuickFunctions(t *testing.T) {
	logger := NewLogger(ErrorLevel, nil)
	sm := NewShutdownManager(logger, nil, 5*time.Second)

	count := 0
	for i := 0; i < 100; i++ {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			count++
			return nil
		})
	}

	start := time.Now()
	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if count != 100 {
		t.Errorf("Expected 100 executions, got %d", count)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Shutdown took too long: %v", elapsed)
	}
}

func ExampleShutdownManager() {
	logger := NewLogger(ErrorLevel, nil)
	sm := NewShutdownManager(logger, nil, 5*time.Second)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		fmt.Println("flushed")
		return nil
	})
	_ = sm.Shutdown(context.Background())
	// Output: flushed
}
