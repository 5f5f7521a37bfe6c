package loop

import (
	"bufio"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// transcriptScanBuffer sizes the line scanner for transcript entries;
// assistant turns with large tool results can run to megabytes.
const transcriptScanBuffer = 8 * 1024 * 1024

// LastAssistantText returns the text of the most recent assistant turn in
// a session transcript. The transcript is JSON Lines; each entry either is
// a message or wraps one under "message". Text content may be a plain
// string or an array of typed blocks, in which case the text blocks are
// concatenated. A missing or unreadable transcript yields "": promise
// detection then simply finds nothing, which is the safe direction for a
// loop decision.
func LastAssistantText(path string) string {
	if path == "" {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	var last string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), transcriptScanBuffer)
	for sc.Scan() {
		line := sc.Bytes()
		if !gjson.ValidBytes(line) {
			continue
		}
		entry := gjson.ParseBytes(line)
		msg := entry.Get("message")
		if !msg.Exists() {
			msg = entry
		}
		if msg.Get("role").String() != "assistant" {
			continue
		}
		if text := messageText(msg.Get("content")); text != "" {
			last = text
		}
	}
	return last
}

// messageText flattens a message content value to plain text.
func messageText(content gjson.Result) string {
	switch {
	case content.Type == gjson.String:
		return content.String()
	case content.IsArray():
		var parts []string
		content.ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() == "text" {
				parts = append(parts, block.Get("text").String())
			}
			return true
		})
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}
