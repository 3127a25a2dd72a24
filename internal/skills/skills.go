// Package skills loads SKILL.md files from a workspace and keeps them
// hot-reloaded so the agent's system prompt picks up edits without a
// restart.
//
// A skill is a directory containing a SKILL.md with a small YAML-ish
// frontmatter block:
//
//	---
//	name: pdf-extraction
//	description: Extract text and tables from PDF files
//	---
//	# instructions for the agent go here
package skills

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Skill describes one loaded SKILL.md.
type Skill struct {
	Name        string
	Description string
	Path        string // absolute path to SKILL.md
	Source      string // "workspace" or "global"
}

// Loader discovers skills under a workspace's skills/ directory and a
// global (cross-workspace) skills directory, merging by name with
// workspace skills taking priority. It watches both directories and
// reloads on change.
type Loader struct {
	workspaceDir string
	globalDir    string

	mu     sync.RWMutex
	skills map[string]Skill

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewLoader builds a Loader rooted at workspaceDir/skills and globalDir,
// performs an initial scan, and starts a background watcher. extraDir, if
// non-empty, is also scanned (lowest priority). Watch failures are logged
// and non-fatal — the loader falls back to whatever it loaded at startup.
func NewLoader(workspaceDir, globalDir, extraDir string) *Loader {
	l := &Loader{
		workspaceDir: workspaceDir,
		globalDir:    globalDir,
		skills:       make(map[string]Skill),
		stopCh:       make(chan struct{}),
	}
	l.reload(extraDir)
	l.startWatch(extraDir)
	return l
}

func (l *Loader) workspaceSkillsDir() string {
	if l.workspaceDir == "" {
		return ""
	}
	return filepath.Join(l.workspaceDir, "skills")
}

// reload rescans every source directory and replaces the skill set.
// Priority (lowest to highest): extraDir, global, workspace.
func (l *Loader) reload(extraDir string) {
	merged := make(map[string]Skill)

	for _, dir := range []struct {
		path   string
		source string
	}{
		{extraDir, "extra"},
		{l.globalDir, "global"},
		{l.workspaceSkillsDir(), "workspace"},
	} {
		if dir.path == "" {
			continue
		}
		for _, s := range scanDir(dir.path, dir.source) {
			merged[s.Name] = s
		}
	}

	l.mu.Lock()
	l.skills = merged
	l.mu.Unlock()
}

func scanDir(dir, source string) []Skill {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var out []Skill
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		skillPath := filepath.Join(dir, e.Name(), "SKILL.md")
		data, err := os.ReadFile(skillPath)
		if err != nil {
			continue
		}
		name, desc := parseFrontmatter(string(data))
		if name == "" {
			name = e.Name()
		}
		out = append(out, Skill{Name: name, Description: desc, Path: skillPath, Source: source})
	}
	return out
}

// parseFrontmatter extracts name/description from a "---\nkey: val\n---"
// block at the top of a SKILL.md file. Missing or malformed frontmatter
// yields empty strings — the caller falls back to the directory name.
func parseFrontmatter(content string) (name, description string) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", ""
	}
	for i := 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "---" {
			break
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "name":
			name = strings.Trim(strings.TrimSpace(val), `"'`)
		case "description":
			description = strings.Trim(strings.TrimSpace(val), `"'`)
		}
	}
	return name, description
}

func (l *Loader) startWatch(extraDir string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("skills: watcher unavailable, hot-reload disabled", "error", err)
		return
	}
	l.watcher = watcher

	for _, dir := range []string{l.workspaceSkillsDir(), l.globalDir, extraDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			slog.Warn("skills: failed to watch directory", "dir", dir, "error", err)
		}
	}

	go func() {
		for {
			select {
			case <-l.stopCh:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					l.reload(extraDir)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("skills: watcher error", "error", err)
			}
		}
	}()
}

// Close stops the background watcher.
func (l *Loader) Close() error {
	close(l.stopCh)
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

// ListSkills returns every loaded skill, names sorted for stable output.
func (l *Loader) ListSkills() []Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Skill, 0, len(l.skills))
	for _, s := range l.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FilterSkills returns the loaded skills restricted to allowList.
// nil means "all skills"; an empty (non-nil) slice means "none".
func (l *Loader) FilterSkills(allowList []string) []Skill {
	all := l.ListSkills()
	if allowList == nil {
		return all
	}
	if len(allowList) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(allowList))
	for _, name := range allowList {
		allowed[name] = true
	}
	var out []Skill
	for _, s := range all {
		if allowed[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

// BuildSummary renders the filtered skill set as an XML block suitable for
// inlining directly into the system prompt.
func (l *Loader) BuildSummary(allowList []string) string {
	filtered := l.FilterSkills(allowList)
	if len(filtered) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("<available_skills>\n")
	for _, s := range filtered {
		sb.WriteString("  <skill name=\"")
		sb.WriteString(s.Name)
		sb.WriteString("\" path=\"")
		sb.WriteString(s.Path)
		sb.WriteString("\">")
		sb.WriteString(s.Description)
		sb.WriteString("</skill>\n")
	}
	sb.WriteString("</available_skills>")
	return sb.String()
}

// Find looks up a skill by exact name.
func (l *Loader) Find(name string) (Skill, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.skills[name]
	return s, ok
}

// Search returns skills whose name or description contains query
// (case-insensitive).
func (l *Loader) Search(query string) []Skill {
	query = strings.ToLower(strings.TrimSpace(query))
	all := l.ListSkills()
	if query == "" {
		return all
	}
	var out []Skill
	for _, s := range all {
		if strings.Contains(strings.ToLower(s.Name), query) || strings.Contains(strings.ToLower(s.Description), query) {
			out = append(out, s)
		}
	}
	return out
}
