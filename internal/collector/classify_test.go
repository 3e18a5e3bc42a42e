package collector

import (
	"errors"
	"testing"

	"github.com/user/signalhub/internal/storage"
)

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

func TestClassifyVisibility(t *testing.T) {
	cases := []struct {
		name          string
		communityTags string
		privateChan   string
		publicChan    string
		eventChan     string
		want          string
	}{
		{
			name:          "private community stays private",
			communityTags: "private",
			eventChan:     "123",
			want:          TagPrivate,
		},
		{
			name:          "public community defaults public",
			communityTags: "public",
			privateChan:   "999",
			eventChan:     "123",
			want:          TagPublic,
		},
		{
			name:          "public community private channel match",
			communityTags: "public",
			privateChan:   "999",
			eventChan:     "999",
			want:          TagPrivate,
		},
		{
			name:          "private community public channel match",
			communityTags: "private",
			publicChan:    "42",
			eventChan:     "42",
			want:          TagPublic,
		},
		{
			name:          "mixed tags default private",
			communityTags: "public,private",
			eventChan:     "123",
			want:          TagPrivate,
		},
		{
			name:          "mixed tags public channel match",
			communityTags: "public,private",
			publicChan:    "42",
			eventChan:     "42",
			want:          TagPublic,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			community := &storage.Community{
				Tags:             tc.communityTags,
				PrivateChannelID: tc.privateChan,
				PublicChannelID:  tc.publicChan,
			}
			tags, _, err := Classify(RawSignal{Name: "Meetup", ChannelID: tc.eventChan}, community)
			if err != nil {
				t.Fatalf("Classify failed: %v", err)
			}
			if !hasTag(tags, tc.want) {
				t.Errorf("Expected tag %q, got %v", tc.want, tags)
			}
			other := TagPrivate
			if tc.want == TagPrivate {
				other = TagPublic
			}
			if hasTag(tags, other) {
				t.Errorf("Got both visibility tags: %v", tags)
			}
		})
	}
}

func TestClassifyFailsClosed(t *testing.T) {
	community := &storage.Community{Tags: "resonite"}
	_, _, err := Classify(RawSignal{Name: "Meetup"}, community)
	if !errors.Is(err, ErrUnclassifiable) {
		t.Fatalf("Expected ErrUnclassifiable, got %v", err)
	}
}

func TestClassifyPlatformDetection(t *testing.T) {
	community := &storage.Community{Tags: "public"}

	tags, _, err := Classify(RawSignal{
		Name:        "Resonite game night",
		Description: "Also streamed to VRChat viewers",
	}, community)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if !hasTag(tags, "resonite") || !hasTag(tags, "vrchat") {
		t.Errorf("Expected both platform tags, got %v", tags)
	}

	// Word-boundary match only: no tag for substrings of other words.
	tags, _, err = Classify(RawSignal{Name: "resonitex launch"}, community)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if hasTag(tags, "resonite") {
		t.Errorf("Expected no resonite tag for %q, got %v", "resonitex", tags)
	}
}

func TestClassifyCarriesCommunityTags(t *testing.T) {
	community := &storage.Community{Tags: "public,gaming,lang:en"}
	tags, _, err := Classify(RawSignal{Name: "Meetup"}, community)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if !hasTag(tags, "gaming") || !hasTag(tags, "lang:en") {
		t.Errorf("Expected community tags carried over, got %v", tags)
	}
}

func TestClassifyDirectives(t *testing.T) {
	community := &storage.Community{Tags: "public"}
	raw := RawSignal{
		Name:        "Meetup",
		Description: "Join us tonight!\n+language:fr,de\n+tags:karaoke\nBring friends.",
	}

	tags, description, err := Classify(raw, community)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	for _, want := range []string{"lang:fr", "lang:de", "karaoke"} {
		if !hasTag(tags, want) {
			t.Errorf("Expected tag %q, got %v", want, tags)
		}
	}
	if description != "Join us tonight!\nBring friends." {
		t.Errorf("Directives not stripped from description: %q", description)
	}
}
