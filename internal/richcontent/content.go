// Package richcontent extracts mentions, emoji, and URL-stem metadata from
// raw message text (spec.md §6). Implemented with the stdlib regexp
// package: no example repo in the retrieval pack ships a mention/emoji
// extraction library, and this is a small closed-form grammar better
// expressed directly than through a general parser dependency (see
// DESIGN.md for the full justification).
package richcontent

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	userMentionRe    = regexp.MustCompile(`<@(\d+)>`)
	roleMentionRe    = regexp.MustCompile(`<@&(\d+)>`)
	channelMentionRe = regexp.MustCompile(`<#(\d+)>`)
	customEmojiRe    = regexp.MustCompile(`<(a?):([^:<>]*):(\d+)>`)
	urlRe            = regexp.MustCompile(`(https?://[^\s<>]+|www\.[^\s<>]+)`)
	unicodeEmojiRe   = regexp.MustCompile(`[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}\x{2190}-\x{21FF}\x{2B00}-\x{2BFF}]`)
)

// Extraction holds everything pulled out of a piece of text. It maps
// directly onto canonical.Content's slice fields.
type Extraction struct {
	UsersMentioned       []uint64
	ChannelsMentioned    []uint64
	RolesMentioned       []uint64
	EmojisUsed           []string
	CustomEmojisUsed     []uint64
	CustomEmojiNamesUsed []string
	URLStems             []string
}

// Extract scans text once and returns every mention/emoji/URL-stem it
// contains. It is idempotent on the emitted ID/stem sets: re-running
// Extract over the same text (or over text reconstructed from the
// extraction) yields the same sets, since extraction never mutates or
// strips the source text.
func Extract(text string) Extraction {
	var ex Extraction

	ex.UsersMentioned = dedupSortedUint64(matchUint64(userMentionRe, text, 1))
	ex.RolesMentioned = dedupSortedUint64(matchUint64(roleMentionRe, text, 1))
	ex.ChannelsMentioned = dedupSortedUint64(matchUint64(channelMentionRe, text, 1))

	customIDs := make([]uint64, 0)
	names := make([]string, 0)
	for _, m := range customEmojiRe.FindAllStringSubmatch(text, -1) {
		id, err := strconv.ParseUint(m[3], 10, 64)
		if err != nil {
			continue
		}
		customIDs = append(customIDs, id)
		if m[2] != "" {
			names = append(names, m[2])
		}
	}
	ex.CustomEmojisUsed = dedupSortedUint64(customIDs)
	ex.CustomEmojiNamesUsed = dedupSortedStrings(names)

	ex.EmojisUsed = dedupSortedStrings(unicodeEmojiRe.FindAllString(text, -1))

	urls := urlRe.FindAllString(text, -1)
	stemSet := make(map[string]struct{})
	for _, u := range urls {
		for _, stem := range urlStems(u) {
			stemSet[stem] = struct{}{}
		}
	}
	ex.URLStems = dedupSortedStrings(keys(stemSet))

	return ex
}

// ExtractURLs returns the raw matched URL substrings (used by scenario (c)
// in spec.md §8, which checks both the URL list and the stem list).
func ExtractURLs(text string) []string {
	return urlRe.FindAllString(text, -1)
}

// urlStems implements the URL-stem expansion rule: given host a.b.c.tld,
// emit every hierarchical suffix of length >= 2 labels: {c.tld, b.c.tld,
// a.b.c.tld}.
func urlStems(rawURL string) []string {
	host := hostOf(rawURL)
	if host == "" {
		return nil
	}
	labels := strings.Split(host, ".")
	var stems []string
	for start := 0; start < len(labels); start++ {
		suffix := labels[start:]
		if len(suffix) < 2 {
			break
		}
		stems = append(stems, strings.Join(suffix, "."))
	}
	return stems
}

func hostOf(rawURL string) string {
	s := rawURL
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	if idx := strings.IndexAny(s, "/?#"); idx >= 0 {
		s = s[:idx]
	}
	if idx := strings.Index(s, "@"); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, ":"); idx >= 0 {
		// strip a trailing :port, but not an IPv6-ish host (none expected here)
		if _, err := strconv.Atoi(s[idx+1:]); err == nil {
			s = s[:idx]
		}
	}
	return s
}

// WriteUserMention formats a user mention in the upstream platform's
// syntax, the inverse of the userMentionRe extraction.
func WriteUserMention(id uint64) string { return fmt.Sprintf("<@%d>", id) }

// WriteRoleMention formats a role mention.
func WriteRoleMention(id uint64) string { return fmt.Sprintf("<@&%d>", id) }

// WriteChannelMention formats a channel mention.
func WriteChannelMention(id uint64) string { return fmt.Sprintf("<#%d>", id) }

// WriteCustomEmoji formats a custom emoji reference; name may be empty.
func WriteCustomEmoji(animated bool, name string, id uint64) string {
	a := ""
	if animated {
		a = "a"
	}
	return fmt.Sprintf("<%s:%s:%d>", a, name, id)
}

func matchUint64(re *regexp.Regexp, text string, group int) []uint64 {
	var out []uint64
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		id, err := strconv.ParseUint(m[group], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

func dedupSortedUint64(in []uint64) []uint64 {
	if len(in) == 0 {
		return nil
	}
	set := make(map[uint64]struct{}, len(in))
	for _, v := range in {
		set[v] = struct{}{}
	}
	out := make([]uint64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func dedupSortedStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(in))
	for _, v := range in {
		set[v] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
