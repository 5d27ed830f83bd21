package extract

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"goldbox/internal/compact"
	"goldbox/internal/sanitize"
)

// Speaker selector precedence: current markup uses a title/subtitle
// pairing, older markup a single message-sender element.
var (
	titleClasses    = []string{"title", "message-sender"}
	subtitleClasses = []string{"subtitle", "message-flavor"}
)

// Role words recognized when a compound "Name+Role" speaker string has no
// structural separation.
var speakerRoles = []string{"GM", "DM", "NPC", "Player"}

// ChatMessage extracts the speaker and the first paragraph of content
// from a parsed chat-message fragment. Paragraphs nested inside a card
// description are skipped so plain-message content never duplicates card
// content.
func ChatMessage(doc *html.Node) (map[string]any, error) {
	fields := make(map[string]any)

	title := textByClasses(doc, titleClasses)
	subtitle := textByClasses(doc, subtitleClasses)

	switch {
	case title != "" && subtitle != "":
		fields[compact.KeySpeaker] = title
		fields[compact.KeyAuthor] = subtitle
	case title != "":
		name, role := splitSpeaker(title)
		fields[compact.KeySpeaker] = name
		if role != "" {
			fields[compact.KeyAuthor] = role
		}
	}

	if content := firstParagraph(doc); content != "" {
		fields[compact.KeyContent] = content
	}

	if len(fields) == 0 {
		// Bare fragments still translate: fall back to the full text.
		if text := sanitize.NodeText(doc); text != "" {
			fields[compact.KeyContent] = text
		} else {
			return nil, fieldError("chat-message", errors.New("empty message"))
		}
	}

	return fields, nil
}

// firstParagraph returns the text of the first <p> outside any card
// description, or "" when the message has no paragraph at all.
func firstParagraph(doc *html.Node) string {
	for _, p := range sanitize.FindAllByTag(doc, "p") {
		if sanitize.InsideClass(p, "card-description") || sanitize.InsideClass(p, "chat-card") {
			continue
		}
		if text := sanitize.NodeText(p); text != "" {
			return text
		}
	}
	return ""
}

// splitSpeaker heuristically splits a compound speaker string into name
// and role when the markup offers no structural separation. Handled
// shapes: "Ragnar (GM)", "Ragnar GM", "RagnarGM".
func splitSpeaker(s string) (name, role string) {
	s = strings.TrimSpace(s)

	// "Name (Role)"
	if open := strings.LastIndex(s, "("); open > 0 && strings.HasSuffix(s, ")") {
		inner := strings.TrimSpace(s[open+1 : len(s)-1])
		for _, r := range speakerRoles {
			if strings.EqualFold(inner, r) {
				return strings.TrimSpace(s[:open]), r
			}
		}
	}

	// "Name Role" with a recognized trailing role word
	if idx := strings.LastIndexFunc(s, unicode.IsSpace); idx > 0 {
		tail := s[idx+1:]
		for _, r := range speakerRoles {
			if strings.EqualFold(tail, r) {
				return strings.TrimSpace(s[:idx]), r
			}
		}
	}

	// "NameRole" glued together, e.g. "AgnesGM"
	for _, r := range speakerRoles {
		if len(s) > len(r) && strings.HasSuffix(s, r) {
			head := s[:len(s)-len(r)]
			if last := rune(head[len(head)-1]); unicode.IsLower(last) {
				return head, r
			}
		}
	}

	return s, ""
}
