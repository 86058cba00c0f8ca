package vm

import (
	"context"
	"io"
	"testing"

	"github.com/chazu/cellvm/pkg/bytecode"
)

// ============================================================
// Execution Benchmarks
// ============================================================

func BenchmarkFactorial(b *testing.B) {
	p := factorialProgram(12)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := NewVM(p, WithOutput(io.Discard)).Run(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkStringRoundTrip(b *testing.B) {
	s := NewStack()
	payload := []byte("the quick brown fox jumps over the lazy dog")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.PushString(payload)
		if _, err := s.PopString(len(payload)); err != nil {
			b.Fatal(err)
		}
	}
}

// ============================================================
// Scheduler Benchmarks
// ============================================================

// BenchmarkPollAll measures passes over tasks that await a ready operation
func BenchmarkPollAll(b *testing.B) {
	bld := bytecode.NewBuilder()
	awaitOp(bld, "task", "NOW")
	emptyMain(bld)
	p := bld.MustBuild()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		vm := NewVM(p)
		vm.RegisterAsync("NOW", 0, readyAfter(2, 1))
		for j := 0; j < 64; j++ {
			if _, err := vm.Spawn("task"); err != nil {
				b.Fatal(err)
			}
		}
		for vm.Scheduler().Live() > 0 {
			vm.Scheduler().PollAll()
		}
	}
}
