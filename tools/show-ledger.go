package main

import (
	"fmt"
	"os"

	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/storage"
)

// show-ledger prints the resource ledger without loading any credentials.
//
//	go run ./tools [kind] [ledger-path]
func main() {
	var kind cloud.Kind
	if len(os.Args) > 1 && os.Args[1] != "all" {
		kind = cloud.Kind(os.Args[1])
	}
	path := os.Getenv("CLOUDBRIDGE_LEDGER")
	if len(os.Args) > 2 {
		path = os.Args[2]
	}

	store := storage.NewFileStorage(path)
	records, err := store.List(kind)
	if err != nil {
		fmt.Printf("Error loading ledger: %v\n", err)
		os.Exit(1)
	}

	if len(records) == 0 {
		fmt.Printf("No resources recorded in %s.\n", store.Path())
		return
	}

	fmt.Printf("=== %d resources in %s ===\n\n", len(records), store.Path())
	for _, rec := range records {
		fmt.Printf("%-18s %-24s %s\n", rec.Kind, rec.ID, rec.Name)
		fmt.Printf("  Ref:     %s\n", rec.Ref)
		fmt.Printf("  Created: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
		if !rec.UpdatedAt.Equal(rec.CreatedAt) {
			fmt.Printf("  Updated: %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
	}
}
