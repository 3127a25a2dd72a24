// Package directives parses the inline [[...]] control tags an agent's
// streamed text may carry — reply targeting, silence, and media attachments —
// without waiting for the full response to land.
//
// Recognized tags: reply_to:<id>, reply_to_current, silent, image:<url>,
// audio:<url>, video:<url>, file:<url>, audio_as_voice. Anything else inside
// double brackets is left in the text untouched; it's the model's content,
// not a directive we understand.
package directives

import "strings"

// DefaultSilentToken is the bare-text fallback for silence: a reply whose
// entire (trimmed) text is exactly this token is treated the same as an
// explicit [[silent]] tag. Kept for providers/prompts that haven't been
// migrated to the tag form yet.
const DefaultSilentToken = "NO_REPLY"

// Result is what Accumulator.Consume hands back for one chunk. Fields other
// than Text are sticky: once a directive is seen, every subsequent Result
// for the run continues to report it, so a caller that only looks at the
// latest Result always sees the full accumulated state.
type Result struct {
	Text           string
	MediaURL       string
	MediaURLs      []string
	ReplyToID      string
	ReplyToCurrent bool
	ReplyToTag     bool
	AudioAsVoice   bool
	IsSilent       bool
}

// Accumulator parses directive tags out of a stream of text chunks. It is
// not safe for concurrent use; create one per agent run.
type Accumulator struct {
	silentToken string
	pending     string

	replyToID      string
	replyToCurrent bool
	audioAsVoice   bool
	isSilent       bool
	mediaURLs      []string
}

// New returns an Accumulator using DefaultSilentToken for bare-text silence.
func New() *Accumulator {
	return &Accumulator{silentToken: DefaultSilentToken}
}

// NewWithSilentToken returns an Accumulator using a custom bare-text silence
// token instead of DefaultSilentToken. An empty token disables the bare-text
// check; only the [[silent]] tag will mark a run silent.
func NewWithSilentToken(token string) *Accumulator {
	return &Accumulator{silentToken: token}
}

// Consume feeds the next chunk of streamed text through the accumulator.
// On isFinal, any buffered unterminated tag tail is flushed back as plain
// text instead of held. Returns nil when there is nothing to deliver: empty
// text, no media, and the run has been marked silent.
func (a *Accumulator) Consume(rawChunk string, isFinal bool) *Result {
	buf := a.pending + rawChunk
	a.pending = ""

	text, stash := a.scan(buf)
	if isFinal {
		text += stash
	} else {
		a.pending = stash
	}

	if a.silentToken != "" {
		if trimmed := strings.TrimSpace(text); trimmed != "" && trimmed == a.silentToken {
			a.isSilent = true
			text = ""
		}
	}

	res := &Result{
		Text:           text,
		ReplyToID:      a.replyToID,
		ReplyToCurrent: a.replyToCurrent,
		ReplyToTag:     a.replyToID != "" || a.replyToCurrent,
		AudioAsVoice:   a.audioAsVoice,
		IsSilent:       a.isSilent,
	}
	if len(a.mediaURLs) > 0 {
		res.MediaURL = a.mediaURLs[0]
		res.MediaURLs = append([]string(nil), a.mediaURLs...)
	}

	if res.Text == "" && res.MediaURL == "" && a.isSilent {
		return nil
	}
	return res
}

// scan walks buf for [[...]] tags, applying recognized ones to the
// accumulator's state and stripping them from the returned text. If buf ends
// with an unterminated "[[", everything from that point on is returned as
// stash instead of text, for the caller to prepend to the next chunk.
func (a *Accumulator) scan(buf string) (text, stash string) {
	var sb strings.Builder
	i := 0
	for i < len(buf) {
		idx := strings.Index(buf[i:], "[[")
		if idx < 0 {
			sb.WriteString(buf[i:])
			break
		}
		start := i + idx
		sb.WriteString(buf[i:start])

		end := strings.Index(buf[start:], "]]")
		if end < 0 {
			stash = buf[start:]
			return sb.String(), stash
		}

		tagEnd := start + end + 2
		tag := strings.TrimSpace(buf[start+2 : start+end])
		if !a.apply(tag) {
			sb.WriteString(buf[start:tagEnd])
		}
		i = tagEnd
	}
	return sb.String(), ""
}

// apply interprets a single tag's content, mutating accumulator state.
// Returns false for unrecognized tags, which the caller writes back as text.
func (a *Accumulator) apply(tag string) bool {
	switch {
	case tag == "silent":
		a.isSilent = true
	case tag == "reply_to_current":
		a.replyToCurrent = true
	case tag == "audio_as_voice":
		a.audioAsVoice = true
	case strings.HasPrefix(tag, "reply_to:"):
		a.replyToID = strings.TrimSpace(strings.TrimPrefix(tag, "reply_to:"))
	case strings.HasPrefix(tag, "image:"):
		a.mediaURLs = append(a.mediaURLs, strings.TrimSpace(strings.TrimPrefix(tag, "image:")))
	case strings.HasPrefix(tag, "audio:"):
		a.mediaURLs = append(a.mediaURLs, strings.TrimSpace(strings.TrimPrefix(tag, "audio:")))
	case strings.HasPrefix(tag, "video:"):
		a.mediaURLs = append(a.mediaURLs, strings.TrimSpace(strings.TrimPrefix(tag, "video:")))
	case strings.HasPrefix(tag, "file:"):
		a.mediaURLs = append(a.mediaURLs, strings.TrimSpace(strings.TrimPrefix(tag, "file:")))
	default:
		return false
	}
	return true
}
