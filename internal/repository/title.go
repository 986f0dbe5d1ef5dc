package repository

// titleMaxLen is the number of characters kept when deriving a title.
const titleMaxLen = 30

// DeriveTitle builds a title from a note body: the first 30 characters, cut
// back to the last space in that window when the body was longer, so a word
// is not split. A space in the first position does not count.
func DeriveTitle(body string) string {
	runes := []rune(body)
	if len(runes) <= titleMaxLen {
		return body
	}
	title := runes[:titleMaxLen]
	for i := len(title) - 1; i > 0; i-- {
		if title[i] == ' ' {
			return string(title[:i])
		}
	}
	return string(title)
}
