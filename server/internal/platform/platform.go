package platform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vidfetch/vidfetch/server/internal"
)

type Platform string

const (
	YouTube     Platform = "youtube"
	Instagram   Platform = "instagram"
	Facebook    Platform = "facebook"
	Unsupported Platform = "unsupported"
)

type rule struct {
	platform Platform
	pattern  *regexp.Regexp
}

// order matters: the first matching rule wins
var rules = []rule{
	{
		platform: YouTube,
		pattern: regexp.MustCompile(
			`^(https?://)?(www\.|m\.|music\.)?(youtube|youtu|youtube-nocookie)\.(com|be)/` +
				`(watch\?v=|embed/|v/|shorts/|live/|.+\?v=)?([^&=%\?]{11})`,
		),
	},
	{
		platform: Instagram,
		pattern:  regexp.MustCompile(`^(https?://)?(www\.)?instagram\.com/(p|reel|reels|tv)/[A-Za-z0-9_-]+`),
	},
	{
		platform: Facebook,
		pattern:  regexp.MustCompile(`^(https?://)?(www\.|m\.|web\.)?(facebook\.com|fb\.watch)/.+`),
	},
}

var youtubeIdPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[?&]v=([0-9A-Za-z_-]{11})(?:[&#]|$)`),
	regexp.MustCompile(`youtu\.be/([0-9A-Za-z_-]{11})(?:[?&#/]|$)`),
	regexp.MustCompile(`/(?:embed|v|shorts|live)/([0-9A-Za-z_-]{11})(?:[?&#/]|$)`),
}

// Classify maps a raw url to the platform able to serve it.
func Classify(url string) Platform {
	url = strings.TrimSpace(url)
	for _, r := range rules {
		if r.pattern.MatchString(url) {
			return r.platform
		}
	}
	return Unsupported
}

func (p Platform) Supported() bool { return p != Unsupported && p != "" }

func (p Platform) String() string { return string(p) }

// ExtractVideoID returns the stable YouTube video identifier of url.
func ExtractVideoID(url string) (string, error) {
	url = strings.TrimSpace(url)
	for _, re := range youtubeIdPatterns {
		if m := re.FindStringSubmatch(url); len(m) == 2 {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("%w: %s", internal.ErrUnrecognizedURLShape, url)
}
