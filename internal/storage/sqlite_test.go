//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"

	logx "microsched/pkg/logx"
)

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "j.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	for i := 1; i <= 4; i++ {
		if err := st.Append(ctx, Record{Event: "task.removed", TaskID: uint16(i), Reason: "completed"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	recs, err := st.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 || recs[0].TaskID != 3 || recs[1].TaskID != 4 || recs[1].Reason != "completed" {
		t.Fatalf("Recent(2) = %+v", recs)
	}
	if recs[0].Task != "" {
		t.Fatalf("NULL task decoded as %q", recs[0].Task)
	}
}
