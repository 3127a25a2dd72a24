package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// FsBridge reads/writes files inside a running sandbox container via `docker exec`,
// scoped under a fixed container root directory.
type FsBridge struct {
	containerID string
	root        string
}

// NewFsBridge returns a bridge to the given container, rooted at root
// (e.g. "/workspace").
func NewFsBridge(containerID, root string) *FsBridge {
	return &FsBridge{containerID: containerID, root: root}
}

func (b *FsBridge) containerPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(b.root, path)
}

// ReadFile returns the contents of path as read inside the container.
func (b *FsBridge) ReadFile(ctx context.Context, path string) (string, error) {
	cp := b.containerPath(path)
	cmd := exec.CommandContext(ctx, "docker", "exec", b.containerID, "cat", cp)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("read %s: %s", cp, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("read %s: %w", cp, err)
	}
	return string(out), nil
}

// WriteFile writes content to path inside the container, creating parent
// directories as needed.
func (b *FsBridge) WriteFile(ctx context.Context, path, content string) error {
	cp := b.containerPath(path)
	mkdir := exec.CommandContext(ctx, "docker", "exec", b.containerID, "mkdir", "-p", filepath.Dir(cp))
	if err := mkdir.Run(); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(cp), err)
	}

	cmd := exec.CommandContext(ctx, "docker", "exec", "-i", b.containerID, "tee", cp)
	cmd.Stdin = strings.NewReader(content)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("write %s: %w", cp, err)
	}
	return nil
}
