// Package mentions implements mention extraction from document markup and
// the reconciliation of mention changes into share grants and notifications.
package mentions

import (
	"regexp"
	"strings"
)

// Mention markers are data-mention-id attributes embedded in the HTML by the
// editor, e.g. <span data-mention-id="usr_42">@Avery</span>. A regex scan is
// deliberate: content may be partial or malformed and must never fail
// extraction.
var mentionAttr = regexp.MustCompile(`data-mention-id\s*=\s*(?:"([^"]*)"|'([^']*)')`)

// Extract returns the set of user ids mentioned in content. Duplicates
// collapse, empty or whitespace-only ids are discarded, and the input is
// never mutated. Order follows first appearance.
func Extract(content string) []string {
	if content == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, match := range mentionAttr.FindAllStringSubmatch(content, -1) {
		id := match[1]
		if id == "" {
			id = match[2]
		}
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// HasMention reports whether content contains at least one mention marker.
func HasMention(content string) bool {
	return len(Extract(content)) > 0
}
