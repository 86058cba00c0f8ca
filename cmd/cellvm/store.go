package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/chazu/cellvm/manifest"
)

// handleStoreCommand processes the `cellvm store` subcommand.
// Usage:
//
//	cellvm store put fact build/fact.cbor
//	cellvm store list
//	cellvm store rm fact
func handleStoreCommand(m *manifest.Manifest, args []string) {
	if len(args) == 0 {
		fatalf("Usage: cellvm store put <name> <image.cbor> | list | rm <name>")
	}

	s := openStore(m)
	defer s.Close()

	switch args[0] {
	case "put":
		if len(args) != 3 {
			fatalf("Usage: cellvm store put <name> <image.cbor>")
		}
		data, err := os.ReadFile(args[2])
		if err != nil {
			fatalf("Error: %v", err)
		}
		if err := s.PutImage(args[1], data); err != nil {
			fatalf("Error: %v", err)
		}
		fmt.Printf("Stored %s (%d bytes)\n", args[1], len(data))

	case "list", "ls":
		entries, err := s.List()
		if err != nil {
			fatalf("Error: %v", err)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tFUNCTIONS\tBYTES\tUPDATED")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", e.Name, e.Functions, e.Size, e.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		w.Flush()

	case "rm":
		if len(args) != 2 {
			fatalf("Usage: cellvm store rm <name>")
		}
		if err := s.Delete(args[1]); err != nil {
			fatalf("Error: %v", err)
		}

	default:
		fatalf("Unknown store command: %s", args[0])
	}
}
