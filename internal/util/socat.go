package util

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SocatManager manages lifecycle of socat-created virtual serial pairs.
type SocatManager struct {
	mu     sync.Mutex
	cmds   []*exec.Cmd
	links  []string
	closed bool
	logger *zap.Logger

	// command is the binary started for each pair.
	command string
}

// NewSocatManager initializes an empty manager.
func NewSocatManager(logger *zap.Logger) *SocatManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SocatManager{logger: logger.With(zap.String("component", "virt-serial")), command: "socat"}
}

// CreatePair starts a socat process that links two PTYs (bidirectional)
// and waits up to settle for both links to appear.
func (m *SocatManager) CreatePair(left, right string, settle time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("socat manager closed")
	}

	cmd := exec.Command(
		m.command, "-d", "-d",
		fmt.Sprintf("pty,raw,echo=0,link=%s", left),
		fmt.Sprintf("pty,raw,echo=0,link=%s", right),
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start socat: %w", err)
	}
	m.logger.Info("started socat", zap.Int("pid", cmd.Process.Pid), zap.String("left", left), zap.String("right", right))
	m.cmds = append(m.cmds, cmd)
	m.links = append(m.links, left, right)

	deadline := time.Now().Add(settle)
	for {
		if linkExists(left) && linkExists(right) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("socat links %s, %s not ready after %s", left, right, settle)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Links returns the paths of all created links.
func (m *SocatManager) Links() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.links...)
}

// Cleanup stops all socat processes and removes created links.
func (m *SocatManager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true

	for _, cmd := range m.cmds {
		if cmd.Process != nil {
			m.logger.Debug("killing socat", zap.Int("pid", cmd.Process.Pid))
			_ = cmd.Process.Kill()
			_, _ = cmd.Process.Wait()
		}
	}
	for _, path := range m.links {
		if linkExists(path) {
			_ = os.Remove(path)
		}
	}
	m.logger.Info("cleanup complete", zap.Int("pairs", len(m.links)/2))
}

func linkExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
