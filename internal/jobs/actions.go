package jobs

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	logx "microsched/pkg/logx"
)

// buildAction compiles an ActionSpec. The returned func is called from a
// scheduler task and must stay short.
func (m *Manager) buildAction(name string, a ActionSpec) (func() error, error) {
	path := strings.TrimSpace(a.Path)
	switch strings.ToLower(strings.TrimSpace(a.Kind)) {
	case "", "log":
		msg := a.Message
		if msg == "" {
			msg = "job fired"
		}
		return func() error {
			m.log.Info(msg, logx.String("job", name))
			return nil
		}, nil
	case "touch":
		if path == "" {
			return nil, fmt.Errorf("%w: %s: touch needs a path", ErrInvalidJob, name)
		}
		return func() error {
			return os.WriteFile(path, []byte(m.now().Format(time.RFC3339Nano)+"\n"), 0o644)
		}, nil
	case "remove":
		if path == "" {
			return nil, fmt.Errorf("%w: %s: remove needs a path", ErrInvalidJob, name)
		}
		return func() error {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			return nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s: unknown action %q", ErrInvalidJob, name, a.Kind)
	}
}

func fileExists(path string) func() bool {
	return func() bool {
		_, err := os.Stat(path)
		return err == nil
	}
}
