package bootstrap

const (
	// DefaultMaxCharsPerFile is the truncation ceiling applied to any single
	// bootstrap file before it's injected into the system prompt.
	DefaultMaxCharsPerFile = 20000
	// DefaultTotalMaxChars is the combined budget across all bootstrap files.
	DefaultTotalMaxChars = 24000
)

// TruncateConfig bounds how much bootstrap content gets injected into the
// system prompt, so a sprawling MEMORY.md can't blow the context budget.
type TruncateConfig struct {
	MaxCharsPerFile int
	TotalMaxChars   int
}

// BuildContextFiles converts raw workspace files into ContextFiles, dropping
// missing/empty files, truncating any single file over MaxCharsPerFile, and
// then truncating further (dropping trailing files first) to stay within
// TotalMaxChars.
func BuildContextFiles(files []File, cfg TruncateConfig) []ContextFile {
	maxPerFile := cfg.MaxCharsPerFile
	if maxPerFile <= 0 {
		maxPerFile = DefaultMaxCharsPerFile
	}
	totalMax := cfg.TotalMaxChars
	if totalMax <= 0 {
		totalMax = DefaultTotalMaxChars
	}

	var out []ContextFile
	remaining := totalMax

	for _, f := range files {
		if f.Missing || f.Content == "" {
			continue
		}
		content := f.Content
		if len(content) > maxPerFile {
			content = content[:maxPerFile] + "\n...[truncated]"
		}
		if remaining <= 0 {
			break
		}
		if len(content) > remaining {
			content = content[:remaining] + "\n...[truncated]"
		}
		out = append(out, ContextFile{Path: f.Name, Content: content})
		remaining -= len(content)
	}

	return out
}
