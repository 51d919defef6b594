package normalizer

import (
	"fmt"
	"strconv"

	"github.com/architus/gateway-logs-pipeline/internal/jsonpath"
)

// Static JSON paths, compiled once at package init (spec.md §4.4) and
// shared across the processors that read the same shape of the gateway
// `.d` payload. Upstream snowflake IDs arrive as JSON strings (they exceed
// float64 precision), so asUint64 parses a string, not a number.

func asUint64(v interface{}) (uint64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("normalizer: expected string-encoded id, got %T", v)
	}
	return strconv.ParseUint(s, 10, 64)
}

func asString(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("normalizer: expected string, got %T", v)
	}
	return s, nil
}

func asBool(v interface{}) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("normalizer: expected bool, got %T", v)
	}
	return b, nil
}

func asUint16(v interface{}) (uint16, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("normalizer: expected string-encoded discriminator, got %T", v)
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}

func asUint64Slice(v interface{}) ([]uint64, error) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("normalizer: expected array, got %T", v)
	}
	out := make([]uint64, 0, len(arr))
	for _, item := range arr {
		id, err := asUint64(item)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

var (
	pathUserID           = jsonpath.MustCompile("user.id")
	pathUserUsername     = jsonpath.MustCompile("user.username")
	pathUserDiscriminator = jsonpath.MustCompile("user.discriminator")
	pathJoinedAt         = jsonpath.MustCompile("joined_at")

	pathMessageID    = jsonpath.MustCompile("id")
	pathChannelID    = jsonpath.MustCompile("channel_id")
	pathContent      = jsonpath.MustCompile("content")
	pathAuthorID     = jsonpath.MustCompile("author.id")
	pathAuthorName   = jsonpath.MustCompile("author.username")
	pathAuthorBot    = jsonpath.MustCompile("author.bot")
	pathWebhookID    = jsonpath.MustCompile("webhook_id")

	pathIDsBulk = jsonpath.MustCompile("ids")

	pathEmojiID   = jsonpath.MustCompile("emoji.id")
	pathEmojiName = jsonpath.MustCompile("emoji.name")
	pathMsgID2    = jsonpath.MustCompile("message_id")
	pathUserID2   = jsonpath.MustCompile("user_id")

	pathInteractionID   = jsonpath.MustCompile("id")
	pathInteractionType = jsonpath.MustCompile("type")
	pathInteractionUser = jsonpath.MustCompile("member.user.id")
)
