// Package links finds article URLs in channel posts.
package links

import (
	"regexp"

	"github.com/valentinpelus/linkbrief/pkg/types"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// First returns the first http(s) URL in text. Reachability is not checked.
func First(text string) (string, bool) {
	match := urlPattern.FindString(text)
	if match == "" {
		return "", false
	}
	return match, true
}

// FromMessage extracts the first URL from a message's text, or its caption
// when the post carries media.
func FromMessage(msg *types.Message) (string, bool) {
	if msg == nil {
		return "", false
	}
	if url, ok := First(msg.Text); ok {
		return url, true
	}
	return First(msg.Caption)
}
