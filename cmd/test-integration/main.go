package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"slitmask/internal/instrument"
	"slitmask/internal/logging"
	"slitmask/internal/service"
	"slitmask/internal/storage"
	"slitmask/internal/watcher"
)

const fieldTargets = `t1 10 20 10 30 00.0 +20 00 00 2000 2000
t2 5 20 10 30 02.0 +20 01 00 2000 2000
t3 8 20 10 29 58.0 +19 58 30 2000 2000
s1 -1 15 10 30 20.0 +20 02 00 2000 2000
s2 -1 15 10 29 40.0 +19 57 00 2000 2000
`

const pointing = `center:
  ra: "10:30:00.0"
  dec: "+20:00:00.0"
target_list: field.coords
params:
  mask_name: smoke
  dither_space: 2.5
  minimum_alignment_stars: 2
`

func main() {
	fmt.Println("🔍 Testing storage + drop-directory import")

	work, err := os.MkdirTemp("", "slitmask-smoke-")
	if err != nil {
		log.Fatal("Failed to create work dir:", err)
	}
	defer os.RemoveAll(work)

	store, err := storage.New(filepath.Join(work, "test_integration.db"))
	if err != nil {
		log.Fatal("Failed to create storage:", err)
	}
	defer store.Close()

	logger := logging.New("info", "traditional")
	svc := service.New(instrument.Default(), store, logger)
	defer svc.Close()

	incoming := filepath.Join(work, "incoming")
	products := filepath.Join(work, "products")
	if err := os.MkdirAll(incoming, 0o755); err != nil {
		log.Fatal(err)
	}

	w, err := watcher.New(incoming, products, 200*time.Millisecond, svc, logger)
	if err != nil {
		log.Fatal("Failed to create watcher:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := w.Start(ctx); err != nil {
		log.Fatal("Failed to start watcher:", err)
	}
	defer w.Stop()
	fmt.Println("✅ Watching", incoming)

	// The target list must exist before the pointing file that names it.
	if err := os.WriteFile(filepath.Join(incoming, "field.coords"), []byte(fieldTargets), 0o644); err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(incoming, "smoke.yaml"), []byte(pointing), 0o644); err != nil {
		log.Fatal(err)
	}

	select {
	case <-ctx.Done():
		log.Fatal("Timed out waiting for import")
	case res := <-w.Results:
		if res.Err != nil {
			log.Fatal("Import failed:", res.Err)
		}
		fmt.Printf("📐 Imported %s as %s, %d products\n", filepath.Base(res.Path), res.MaskID, len(res.Products))

		view, err := svc.View(res.MaskID)
		if err != nil {
			log.Fatal("Failed to load mask:", err)
		}
		fmt.Printf("   Science slits: %d\n", view.ScienceSlits)
		fmt.Printf("   Alignment slits: %d\n", view.AlignmentSlits)
		fmt.Printf("   Total priority: %g\n", view.TotalPriority)
		fmt.Printf("   Status: %s\n", view.Status)

		events, err := store.Events(res.MaskID, 10)
		if err != nil {
			log.Fatal("Failed to read events:", err)
		}
		for _, ev := range events {
			fmt.Printf("   Event: %s %s\n", ev.EventType, ev.Detail)
		}
	}

	fmt.Println("\n✅ Test completed.")
}
