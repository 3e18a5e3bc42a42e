package collector

import (
	"errors"
	"regexp"
	"strings"

	"github.com/user/signalhub/internal/storage"
)

// ErrUnclassifiable means the owning community carries neither a public nor a
// private tag, so no visibility can be derived. Records from such a community
// are never emitted.
var ErrUnclassifiable = errors.New("community has neither public nor private tag")

const (
	TagPublic  = "public"
	TagPrivate = "private"
)

var (
	resoniteWord = regexp.MustCompile(`(?i)\bresonite\b`)
	vrchatWord   = regexp.MustCompile(`(?i)\bvrchat\b`)

	// Metadata directives are full lines of the form +key:value inside a
	// record's description. They are parsed into tags and stripped from the
	// stored text.
	directiveLine = regexp.MustCompile(`^\+([a-z_]+):(.*)$`)
)

// Classify derives the tag set for one raw record and returns it together
// with the description cleaned of metadata directives.
//
// Visibility is secure by default: a public community can mark single records
// private via its private channel, a private community can mark single
// records public via its public channel, and every ambiguous case resolves to
// private. A community tagged with both public and private is treated as
// private unless the record arrives on the configured public channel.
func Classify(raw RawSignal, community *storage.Community) ([]string, string, error) {
	tags := make([]string, 0, 8)
	for _, t := range storage.SplitTags(community.Tags) {
		if t == TagPublic || t == TagPrivate {
			continue
		}
		tags = append(tags, t)
	}

	haystack := raw.Name + "\n" + raw.Description + "\n" + raw.Location + "\n" + raw.ChannelID
	if resoniteWord.MatchString(haystack) {
		tags = append(tags, "resonite")
	}
	if vrchatWord.MatchString(haystack) {
		tags = append(tags, "vrchat")
	}

	visibility, err := classifyVisibility(raw, community)
	if err != nil {
		return nil, "", err
	}
	tags = append(tags, visibility)

	description, directiveTags := extractDirectives(raw.Description)
	tags = append(tags, directiveTags...)

	return dedupeTags(tags), description, nil
}

func classifyVisibility(raw RawSignal, community *storage.Community) (string, error) {
	isPublic := community.HasTag(TagPublic)
	isPrivate := community.HasTag(TagPrivate)

	switch {
	case isPublic && isPrivate:
		if community.PublicChannelID != "" && raw.ChannelID == community.PublicChannelID {
			return TagPublic, nil
		}
		return TagPrivate, nil
	case isPublic:
		if community.PrivateChannelID != "" && raw.ChannelID == community.PrivateChannelID {
			return TagPrivate, nil
		}
		return TagPublic, nil
	case isPrivate:
		if community.PublicChannelID != "" && raw.ChannelID == community.PublicChannelID {
			return TagPublic, nil
		}
		return TagPrivate, nil
	default:
		return "", ErrUnclassifiable
	}
}

// extractDirectives parses +key:value lines out of a description. A
// +language:a,b line yields lang:a and lang:b tags; a +tags:x,y line yields x
// and y verbatim. Matched lines are removed from the returned text.
func extractDirectives(description string) (string, []string) {
	var tags []string
	var kept []string
	for _, line := range strings.Split(description, "\n") {
		m := directiveLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			kept = append(kept, line)
			continue
		}
		key, value := m[1], m[2]
		switch key {
		case "language":
			for _, code := range strings.Split(value, ",") {
				code = strings.TrimSpace(code)
				if code != "" {
					tags = append(tags, "lang:"+code)
				}
			}
		case "tags":
			for _, tag := range strings.Split(value, ",") {
				tag = strings.TrimSpace(tag)
				if tag != "" {
					tags = append(tags, tag)
				}
			}
		default:
			// Unknown directives are stripped but produce nothing.
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n")), tags
}

func dedupeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
