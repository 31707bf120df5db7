package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	logx "microsched/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if st != nil || err != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("unknown driver accepted")
	}
}

func TestFileStoreAppendRecent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "journal")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 1; i <= 5; i++ {
		if err := st.Append(ctx, Record{Event: "task.ran", TaskID: uint16(i), Task: fmt.Sprintf("t%d", i)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	recs, err := st.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 3 || recs[0].TaskID != 3 || recs[2].TaskID != 5 {
		t.Fatalf("Recent(3) = %+v", recs)
	}
	if recs[0].At.IsZero() {
		t.Fatalf("Append did not stamp the record")
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.Append(ctx, Record{Event: "x"}); err != ErrClosed {
		t.Fatalf("Append after Close = %v, want ErrClosed", err)
	}

	// Reopen keeps history.
	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	recs, err = st.Recent(ctx, 10)
	if err != nil || len(recs) != 5 {
		t.Fatalf("Recent after reopen = %d records, %v", len(recs), err)
	}
}

func TestFileStoreCompacts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "j.db"), Keep: 3}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	for i := 1; i <= 7; i++ {
		if err := st.Append(ctx, Record{Event: "task.ran", TaskID: uint16(i)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	// Compacted to 3 at the 6th append, then one more.
	recs, err := st.Recent(ctx, 100)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 4 || recs[0].TaskID != 4 || recs[3].TaskID != 7 {
		t.Fatalf("records after compaction = %+v", recs)
	}
}

func TestFileStoreSkipsCorruptLines(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	journal := filepath.Join(dir, "j.journal.jsonl")
	body := `{"event":"task.ran","task_id":1}` + "\n" + `{"event":"tor` + "\n"
	if err := os.WriteFile(journal, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "j")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	recs, err := st.Recent(context.Background(), 10)
	if err != nil || len(recs) != 1 || recs[0].TaskID != 1 {
		t.Fatalf("Recent = %+v, %v", recs, err)
	}
}
