// Package bootstrap loads the persona/context files from an agent's
// workspace directory and prepares them for injection into the system
// prompt.
//
// Files are plain markdown living at the root of the workspace:
//
//	AGENTS.md    — operating instructions (every session)
//	SOUL.md      — persona, tone, boundaries
//	USER.md      — user profile notes
//	IDENTITY.md  — agent name, emoji, vibe
//	TOOLS.md     — local tool notes
//	HEARTBEAT.md — periodic check tasks
//	BOOTSTRAP.md — first-run ritual, deleted by the agent after completion
//	MEMORY.md    — long-term curated memory
package bootstrap

import (
	"embed"
	"os"
	"path/filepath"
	"strings"

	"log/slog"
)

//go:embed templates/*.md
var templateFS embed.FS

const (
	AgentsFile     = "AGENTS.md"
	SoulFile       = "SOUL.md"
	ToolsFile      = "TOOLS.md"
	IdentityFile   = "IDENTITY.md"
	UserFile       = "USER.md"
	HeartbeatFile  = "HEARTBEAT.md"
	BootstrapFile  = "BOOTSTRAP.md"
	MemoryFile     = "MEMORY.md"
	MemoryAltFile  = "memory.md"
)

// standardFiles is the ordered list of bootstrap files to load into every
// non-minimal session.
var standardFiles = []string{
	AgentsFile,
	SoulFile,
	ToolsFile,
	IdentityFile,
	UserFile,
	HeartbeatFile,
	BootstrapFile,
}

// templateFiles lists the files seeded into a brand-new workspace.
// BOOTSTRAP.md is handled separately since it's only seeded once.
var templateFiles = []string{
	AgentsFile,
	SoulFile,
	ToolsFile,
	IdentityFile,
	UserFile,
	HeartbeatFile,
}

// minimalAllowlist is the set of files loaded for subagent/cron sessions,
// where a full persona dump would waste context budget.
var minimalAllowlist = map[string]bool{
	AgentsFile: true,
	ToolsFile:  true,
}

// File is a workspace bootstrap file as read from disk.
type File struct {
	Name    string
	Path    string
	Content string
	Missing bool
}

// ContextFile is the truncated form ready for system prompt injection.
type ContextFile struct {
	Path    string
	Content string
}

// LoadWorkspaceFiles reads all recognized bootstrap files from workspaceDir
// in a fixed order. Missing files are included with Missing=true.
func LoadWorkspaceFiles(workspaceDir string) []File {
	var files []File
	for _, name := range standardFiles {
		files = append(files, loadFile(workspaceDir, name))
	}

	mem := loadFile(workspaceDir, MemoryFile)
	if mem.Missing {
		mem = loadFile(workspaceDir, MemoryAltFile)
	}
	files = append(files, mem)

	return files
}

// FilterForSession trims files to the minimal allowlist for subagent/cron
// sessions; normal sessions get everything.
func FilterForSession(files []File, sessionKey string) []File {
	if !IsSubagentSession(sessionKey) && !IsCronSession(sessionKey) {
		return files
	}
	var filtered []File
	for _, f := range files {
		if minimalAllowlist[f.Name] {
			filtered = append(filtered, f)
		}
	}
	return filtered
}

// IsSubagentSession reports whether a session key (agent:{id}:{rest})
// addresses a subagent session.
func IsSubagentSession(sessionKey string) bool {
	return strings.HasPrefix(strings.ToLower(sessionRest(sessionKey)), "subagent:")
}

// IsCronSession reports whether a session key addresses a cron-triggered run.
func IsCronSession(sessionKey string) bool {
	return strings.HasPrefix(strings.ToLower(sessionRest(sessionKey)), "cron:")
}

func sessionRest(sessionKey string) string {
	parts := strings.SplitN(sessionKey, ":", 3)
	if len(parts) < 3 || parts[0] != "agent" {
		return ""
	}
	return parts[2]
}

func loadFile(dir, name string) File {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return File{Name: name, Path: path, Missing: true}
	}
	return File{Name: name, Path: path, Content: string(data)}
}

// EnsureWorkspaceFiles seeds the embedded templates into workspaceDir,
// never overwriting files that already exist. BOOTSTRAP.md is only seeded
// for a brand-new workspace (one with no AGENTS.md yet). Returns the names
// of files that were created.
func EnsureWorkspaceFiles(workspaceDir string) ([]string, error) {
	if err := os.MkdirAll(workspaceDir, 0755); err != nil {
		return nil, err
	}

	var created []string
	_, err := os.Stat(filepath.Join(workspaceDir, AgentsFile))
	isBrandNew := os.IsNotExist(err)

	for _, name := range templateFiles {
		ok, err := seedTemplate(workspaceDir, name)
		if err != nil {
			slog.Warn("bootstrap: failed to seed template", "file", name, "error", err)
			continue
		}
		if ok {
			created = append(created, name)
		}
	}

	if isBrandNew {
		ok, err := seedTemplate(workspaceDir, BootstrapFile)
		if err != nil {
			slog.Warn("bootstrap: failed to seed BOOTSTRAP.md", "error", err)
		} else if ok {
			created = append(created, BootstrapFile)
		}
	}

	return created, nil
}

func seedTemplate(workspaceDir, name string) (bool, error) {
	dstPath := filepath.Join(workspaceDir, name)

	f, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	content, err := templateFS.ReadFile(filepath.Join("templates", name))
	if err != nil {
		os.Remove(dstPath)
		return false, err
	}
	if _, err := f.Write(content); err != nil {
		return false, err
	}
	return true, nil
}
