// Package versions holds the pure computations of the version subsystem:
// word/character counts, change classification, summary synthesis and the
// structured diff between two version records.
package versions

import (
	"fmt"
	"regexp"
	"strings"

	"quill/api/internal/store"
)

const (
	ChangeCreated    = "created"
	ChangeUpdated    = "updated"
	ChangeTitle      = "title_changed"
	ChangeContent    = "content_changed"
	ChangeVisibility = "visibility_changed"
)

// Snapshot is the document state a new version captures.
type Snapshot struct {
	Title      string
	Content    string
	Visibility string
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Counts derives the word and character counts of content. Words are
// whitespace-delimited tokens after stripping markup tags; the character
// count is the raw length including tags.
func Counts(content string) (wordCount, characterCount int) {
	characterCount = len(content)
	stripped := tagPattern.ReplaceAllString(content, " ")
	wordCount = len(strings.Fields(stripped))
	return wordCount, characterCount
}

// Classify names the change between the previous version and the next
// snapshot: created when there is no previous version, '<field>_changed'
// when exactly one field differs, updated otherwise.
func Classify(prev *store.Version, next Snapshot) string {
	if prev == nil {
		return ChangeCreated
	}
	var changed []string
	if prev.Title != next.Title {
		changed = append(changed, ChangeTitle)
	}
	if prev.Content != next.Content {
		changed = append(changed, ChangeContent)
	}
	if prev.Visibility != next.Visibility {
		changed = append(changed, ChangeVisibility)
	}
	if len(changed) == 1 {
		return changed[0]
	}
	return ChangeUpdated
}

// Summarize builds a human-readable change summary from the diff between
// prev and next. Callers with an explicit summary use that verbatim instead.
func Summarize(prev *store.Version, next Snapshot) string {
	if prev == nil {
		return "Initial version"
	}

	var parts []string
	if prev.Title != next.Title {
		parts = append(parts, "Title changed")
	}
	if prev.Content != next.Content {
		nextWords, _ := Counts(next.Content)
		switch delta := nextWords - prev.WordCount; {
		case delta > 0:
			parts = append(parts, fmt.Sprintf("Added %d words", delta))
		case delta < 0:
			parts = append(parts, fmt.Sprintf("Removed %d words", -delta))
		default:
			parts = append(parts, "Content modified")
		}
	}
	if prev.Visibility != next.Visibility {
		parts = append(parts, "Visibility changed to "+next.Visibility)
	}
	if len(parts) == 0 {
		return "Minor changes"
	}
	return strings.Join(parts, ", ")
}

// FieldDiff reports one field's old and new values across a comparison.
type FieldDiff struct {
	Old     string `json:"old"`
	New     string `json:"new"`
	Changed bool   `json:"changed"`
}

// Diff is the structured comparison of two version records. Deltas are
// signed v2 - v1; v1 may be the newer of the two.
type Diff struct {
	Title              FieldDiff     `json:"title"`
	Content            FieldDiff     `json:"content"`
	Visibility         FieldDiff     `json:"visibility"`
	WordCountDiff      int           `json:"wordCountDiff"`
	CharacterCountDiff int           `json:"characterCountDiff"`
	From               store.Version `json:"from"`
	To                 store.Version `json:"to"`
}

func BuildDiff(v1, v2 store.Version) Diff {
	return Diff{
		Title:              fieldDiff(v1.Title, v2.Title),
		Content:            fieldDiff(v1.Content, v2.Content),
		Visibility:         fieldDiff(v1.Visibility, v2.Visibility),
		WordCountDiff:      v2.WordCount - v1.WordCount,
		CharacterCountDiff: v2.CharacterCount - v1.CharacterCount,
		From:               v1,
		To:                 v2,
	}
}

func fieldDiff(oldValue, newValue string) FieldDiff {
	return FieldDiff{Old: oldValue, New: newValue, Changed: oldValue != newValue}
}
