package restreamer

import "strings"

// Classify splits raw pipeline output into free-text lines and key=value
// status fields. A line is a status field only if splitting it on '=' yields
// exactly two non-empty fragments; everything else stays free text. Repeated
// keys keep the last value seen, since the transcoder re-emits its progress
// counters periodically.
func Classify(lines []string) (freeText []string, status map[string]string) {
	status = make(map[string]string)
	for _, line := range lines {
		if !strings.Contains(line, "=") {
			freeText = append(freeText, line)
			continue
		}

		fragments := nonEmpty(strings.Split(line, "="))
		if len(fragments) != 2 {
			freeText = append(freeText, line)
			continue
		}
		status[strings.TrimSpace(fragments[0])] = strings.TrimSpace(fragments[1])
	}
	return freeText, status
}

func nonEmpty(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
