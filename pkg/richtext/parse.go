package richtext

import (
	"log/slog"
	"strings"
	"unicode"
)

const (
	linkLabelLimit   = 30
	githubLabelLimit = 20
	debugPreviewLen  = 50
)

// matcher tries to recognise one construct starting exactly at pos. On
// success it returns the span and the index just past the match.
type matcher func(line []rune, pos int) (Span, int, bool)

// matchers is ordered by precedence: at every scan position the first
// matcher that succeeds wins, and markers never nest.
var matchers = []matcher{
	matchDoubleBold,
	matchSingleBold,
	delimited('_', Style{Italic: true}),
	delimited('~', Style{Strike: true}),
	delimited('`', Style{Code: true}),
	matchBracketLink,
	matchBareURL,
	matchEmoji,
	matchBroadcast,
	matchMention,
}

// Parse converts markdown-like chat text into ordered spans.
//
// Parse never fails. Empty or whitespace-only input yields a single space
// span so callers always have something to send.
func Parse(text string) []Span {
	if strings.TrimSpace(text) == "" {
		return []Span{Plain(" ")}
	}

	slog.Default().Debug("Parsing message text", "component", "richtext", "preview", preview(text))

	lines := strings.Split(text, "\n")
	spans := make([]Span, 0, len(lines)*2)

	for idx, line := range lines {
		content := line
		if isBulletLine(line) {
			if idx > 0 && !startsLikeBullet(lines[idx-1]) {
				spans = append(spans, Newline())
			}
			content = strings.TrimLeftFunc(line, func(r rune) bool {
				return unicode.IsSpace(r) || r == '•' || r == '-'
			})
		}

		spans = append(spans, parseLine(content)...)

		if idx < len(lines)-1 {
			spans = append(spans, Newline())
		}
	}

	if len(spans) == 0 {
		return []Span{Plain(text)}
	}
	return spans
}

func parseLine(content string) []Span {
	line := []rune(content)
	var spans []Span

	plainStart := 0
	pos := 0
	for pos < len(line) {
		span, end, ok := matchAt(line, pos)
		if !ok {
			pos++
			continue
		}
		if pos > plainStart {
			spans = append(spans, Plain(string(line[plainStart:pos])))
		}
		spans = append(spans, span)
		pos = end
		plainStart = end
	}
	if plainStart < len(line) {
		spans = append(spans, Plain(string(line[plainStart:])))
	}

	return spans
}

func matchAt(line []rune, pos int) (Span, int, bool) {
	for _, match := range matchers {
		if span, end, ok := match(line, pos); ok {
			return span, end, true
		}
	}
	return Span{}, 0, false
}

// isBulletLine accepts "•" or "- " as a list marker after leading whitespace.
func isBulletLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "•") {
		return true
	}
	return strings.HasPrefix(trimmed, "-") && len(trimmed) > 1 && trimmed[1] == ' '
}

// startsLikeBullet is the looser check applied to the previous line: a bare
// leading dash counts.
func startsLikeBullet(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "•") || strings.HasPrefix(trimmed, "-")
}

// scanUntil returns the index of the first marker at or after from, or len(line).
func scanUntil(line []rune, from int, marker rune) int {
	for i := from; i < len(line); i++ {
		if line[i] == marker {
			return i
		}
	}
	return len(line)
}

func matchDoubleBold(line []rune, pos int) (Span, int, bool) {
	if pos+1 >= len(line) || line[pos] != '*' || line[pos+1] != '*' {
		return Span{}, 0, false
	}
	end := scanUntil(line, pos+2, '*')
	if end == pos+2 || end+1 >= len(line) || line[end+1] != '*' {
		return Span{}, 0, false
	}
	return Styled(string(line[pos+2:end]), Style{Bold: true}), end + 2, true
}

// matchSingleBold requires inner text that neither starts nor ends with
// whitespace and a closing asterisk not followed by another asterisk.
func matchSingleBold(line []rune, pos int) (Span, int, bool) {
	if line[pos] != '*' {
		return Span{}, 0, false
	}
	end := scanUntil(line, pos+1, '*')
	if end >= len(line) || end == pos+1 {
		return Span{}, 0, false
	}
	inner := line[pos+1 : end]
	if unicode.IsSpace(inner[0]) || unicode.IsSpace(inner[len(inner)-1]) {
		return Span{}, 0, false
	}
	if end+1 < len(line) && line[end+1] == '*' {
		return Span{}, 0, false
	}
	return Styled(string(inner), Style{Bold: true}), end + 1, true
}

func delimited(marker rune, style Style) matcher {
	return func(line []rune, pos int) (Span, int, bool) {
		if line[pos] != marker {
			return Span{}, 0, false
		}
		end := scanUntil(line, pos+1, marker)
		if end >= len(line) || end == pos+1 {
			return Span{}, 0, false
		}
		return Styled(string(line[pos+1:end]), style), end + 1, true
	}
}

// schemeLen returns the length of an http:// or https:// prefix at pos.
func schemeLen(line []rune, pos int) int {
	for _, scheme := range []string{"https://", "http://"} {
		if hasPrefixAt(line, pos, scheme) {
			return len(scheme)
		}
	}
	return 0
}

func hasPrefixAt(line []rune, pos int, prefix string) bool {
	i := pos
	for _, r := range prefix {
		if i >= len(line) || line[i] != r {
			return false
		}
		i++
	}
	return true
}

// closingAngle finds the last '>' in line[from:] before the next '<'.
func closingAngle(line []rune, from int) int {
	stop := scanUntil(line, from, '<')
	for i := stop - 1; i >= from; i-- {
		if line[i] == '>' {
			return i
		}
	}
	return -1
}

// matchBracketLink handles <url|label> and <url>.
func matchBracketLink(line []rune, pos int) (Span, int, bool) {
	if line[pos] != '<' {
		return Span{}, 0, false
	}
	scheme := schemeLen(line, pos+1)
	if scheme == 0 {
		return Span{}, 0, false
	}

	urlStart := pos + 1
	urlEnd := urlStart + scheme
	for urlEnd < len(line) && line[urlEnd] != '|' && line[urlEnd] != '>' {
		urlEnd++
	}
	if urlEnd == urlStart+scheme {
		return Span{}, 0, false
	}
	url := string(line[urlStart:urlEnd])

	if urlEnd < len(line) && line[urlEnd] == '|' {
		labelEnd := scanUntil(line, urlEnd+1, '>')
		if labelEnd > urlEnd+1 && labelEnd < len(line) {
			closing := closingAngle(line, labelEnd)
			return Link(url, string(line[urlEnd+1:labelEnd])), closing + 1, true
		}
	}

	closing := closingAngle(line, urlEnd)
	if closing < 0 {
		return Span{}, 0, false
	}
	return Link(url, url), closing + 1, true
}

func matchBareURL(line []rune, pos int) (Span, int, bool) {
	scheme := schemeLen(line, pos)
	if scheme == 0 {
		return Span{}, 0, false
	}
	end := pos + scheme
	for end < len(line) && !unicode.IsSpace(line[end]) && line[end] != '<' && line[end] != '>' {
		end++
	}
	if end == pos+scheme {
		return Span{}, 0, false
	}
	url := string(line[pos:end])
	return Link(url, bareURLLabel(url)), end, true
}

// bareURLLabel shortens a raw URL for display. GitHub pull and issue links
// keep their last two path segments ("pull/487"), other GitHub links keep
// the final segment, everything else is cut to 30 characters.
func bareURLLabel(url string) string {
	if strings.Contains(url, "github.com") {
		if strings.Contains(url, "/pull/") || strings.Contains(url, "/issues/") {
			parts := strings.Split(strings.TrimRight(url, "/"), "/")
			if len(parts) >= 2 {
				return parts[len(parts)-2] + "/" + parts[len(parts)-1]
			}
			return url
		}
		parts := strings.Split(url, "/")
		return truncate(parts[len(parts)-1], githubLabelLimit)
	}

	if len([]rune(url)) > linkLabelLimit {
		return truncate(url, linkLabelLimit) + "..."
	}
	return url
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func isEmojiRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
}

func matchEmoji(line []rune, pos int) (Span, int, bool) {
	if line[pos] != ':' {
		return Span{}, 0, false
	}
	end := pos + 1
	for end < len(line) && isEmojiRune(line[end]) {
		end++
	}
	if end == pos+1 || end >= len(line) || line[end] != ':' {
		return Span{}, 0, false
	}
	return Emoji(string(line[pos+1 : end])), end + 1, true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// matchBroadcast only fires on a whole word, so "@heresy" stays a mention.
func matchBroadcast(line []rune, pos int) (Span, int, bool) {
	if line[pos] != '@' {
		return Span{}, 0, false
	}
	for _, scope := range []string{BroadcastHere, BroadcastChannel, BroadcastEveryone} {
		if !hasPrefixAt(line, pos+1, scope) {
			continue
		}
		end := pos + 1 + len(scope)
		if end < len(line) && isWordRune(line[end]) {
			return Span{}, 0, false
		}
		return Broadcast(scope), end, true
	}
	return Span{}, 0, false
}

func isHandleRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
		r == '_' || r == '.' || r == '-'
}

// matchMention renders @username as bold text; no user lookup is available.
func matchMention(line []rune, pos int) (Span, int, bool) {
	if line[pos] != '@' {
		return Span{}, 0, false
	}
	end := pos + 1
	for end < len(line) && isHandleRune(line[end]) {
		end++
	}
	if end == pos+1 {
		return Span{}, 0, false
	}
	return Styled(string(line[pos:end]), Style{Bold: true}), end, true
}

func preview(text string) string {
	return truncate(text, debugPreviewLen)
}
