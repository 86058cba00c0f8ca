package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/cellvm/pkg/bytecode"
	"github.com/chazu/cellvm/vm"
)

func TestExamplePrograms(t *testing.T) {
	tests := []struct {
		name   string
		args   []vm.Cell
		want   vm.Result
		output string
	}{
		{"hello", nil, vm.Result{Halted: true}, "hello world!\n"},
		{"factorial", []vm.Cell{5}, vm.Result{Value: 120, HasValue: true}, "120\n"},
		{"sleepers", nil, vm.Result{Value: 3, HasValue: true}, "2\n1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			machine := vm.NewVM(examplePrograms[tt.name](), vm.WithOutput(&out))
			machine.RegisterSleep()

			res, err := machine.Run(context.Background(), tt.args...)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res != tt.want {
				t.Errorf("Run() = %+v, want %+v", res, tt.want)
			}
			if out.String() != tt.output {
				t.Errorf("output = %q, want %q", out.String(), tt.output)
			}
		})
	}
}

func TestExamplesCommandWritesImages(t *testing.T) {
	dir := t.TempDir()
	handleExamplesCommand([]string{"-o", dir})

	for name := range examplePrograms {
		p, err := readImage(filepath.Join(dir, name+".cbor"))
		if err != nil {
			t.Errorf("readImage(%s) error = %v", name, err)
			continue
		}
		if p.Entry().Name != bytecode.EntryPoint {
			t.Errorf("%s entry = %q", name, p.Entry().Name)
		}
	}

	if _, err := readImage(filepath.Join(dir, "missing.cbor")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("readImage of a missing file error = %v", err)
	}
}
