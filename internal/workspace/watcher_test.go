package workspace

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestWatcher_DebouncedBatch(t *testing.T) {
	ws := newTestWorkspace(t)

	var mu sync.Mutex
	var batches [][]string
	notify := make(chan struct{}, 8)

	w, err := NewWatcher(ws, func(changed []string) {
		mu.Lock()
		batches = append(batches, changed)
		mu.Unlock()
		notify <- struct{}{}
	})
	if err != nil {
		t.Fatal(err)
	}
	w.Start()
	defer w.Stop()

	if err := ws.Write("a.txt", "one", false); err != nil {
		t.Fatal(err)
	}
	if err := ws.Write("b.txt", "two", false); err != nil {
		t.Fatal(err)
	}

	select {
	case <-notify:
	case <-time.After(5 * time.Second):
		t.Fatal("no batch delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 {
		t.Fatalf("batches = %d, want 1 (debounce failed)", len(batches))
	}

	got := append([]string(nil), batches[0]...)
	sort.Strings(got)
	if len(got) != 2 || got[0] != "a.txt" || got[1] != "b.txt" {
		t.Errorf("batch = %v, want [a.txt b.txt]", got)
	}
}

func TestWatcher_SeesNewSubdirectories(t *testing.T) {
	ws := newTestWorkspace(t)

	notify := make(chan []string, 8)
	w, err := NewWatcher(ws, func(changed []string) {
		notify <- changed
	})
	if err != nil {
		t.Fatal(err)
	}
	w.Start()
	defer w.Stop()

	// The directory did not exist when the watcher started; it must
	// join the watch set before the file inside it appears
	if err := os.MkdirAll(filepath.Join(ws.Root(), "newdir"), 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if err := ws.Write("newdir/inner.txt", "data", false); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case changed := <-notify:
			for _, p := range changed {
				if p == "newdir/inner.txt" {
					return
				}
			}
		case <-deadline:
			t.Fatal("file in new subdirectory never reported")
		}
	}
}
