package formats

import (
	"testing"

	"github.com/vidfetch/vidfetch/server/internal/platform"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds  int64
		expected string
	}{
		{0, "0:00"},
		{45, "0:45"},
		{600, "10:00"},
		{3599, "59:59"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
	}

	for _, test := range tests {
		if got := FormatDuration(test.seconds); got != test.expected {
			t.Errorf("FormatDuration(%d) = %s, expected %s", test.seconds, got, test.expected)
		}
	}
}

func TestFormatViews(t *testing.T) {
	tests := []struct {
		views    int64
		expected string
	}{
		{1234567, "1,234,567"},
		{999, "999"},
		{0, "Unknown"},
		{-1, "Unknown"},
	}

	for _, test := range tests {
		if got := FormatViews(test.views); got != test.expected {
			t.Errorf("FormatViews(%d) = %s, expected %s", test.views, got, test.expected)
		}
	}
}

func TestFormatFilesize(t *testing.T) {
	tests := []struct {
		size     int64
		expected string
	}{
		{0, "Unknown"},
		{512, "512.0 B"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
		{2 * 1024 * 1024 * 1024 * 1024, "2.0 TB"},
	}

	for _, test := range tests {
		if got := FormatFilesize(test.size); got != test.expected {
			t.Errorf("FormatFilesize(%d) = %s, expected %s", test.size, got, test.expected)
		}
	}
}

func TestNormalizeDedupesResolutions(t *testing.T) {
	raw := []FormatOption{
		{Selector: "22", Label: "720p", Kind: KindVideo, Height: 720},
		{Selector: "18", Label: "360p", Kind: KindVideo, Height: 360},
		{Selector: "136", Label: "720p", Kind: KindVideoOnly, Height: 720},
		{Selector: "137", Label: "1080p", Kind: KindVideoOnly, Height: 1080},
		{Selector: "134", Label: "360p", Kind: KindVideoOnly, Height: 360},
	}

	got := Normalize(raw, 3)

	expected := []string{"137", "22", "18"}
	if len(got) != len(expected) {
		t.Fatalf("expected %d formats, got %d: %+v", len(expected), len(got), got)
	}
	for i, sel := range expected {
		if got[i].Selector != sel {
			t.Errorf("position %d: expected selector %s, got %s", i, sel, got[i].Selector)
		}
	}
}

func TestNormalizeKeepsTopAudio(t *testing.T) {
	raw := []FormatOption{
		{Selector: "139", Kind: KindAudio, Bitrate: 48},
		{Selector: "251", Kind: KindAudio, Bitrate: 160},
		{Selector: "140", Kind: KindAudio, Bitrate: 128},
		{Selector: "250", Kind: KindAudio, Bitrate: 70},
		{Selector: "18", Kind: KindVideo, Height: 360},
	}

	got := Normalize(raw, 3)
	sels := []string{}
	for _, f := range got {
		sels = append(sels, f.Selector)
	}

	expected := []string{"18", "251", "140", "250"}
	if len(sels) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, sels)
	}
	for i := range expected {
		if sels[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, sels)
		}
	}

	single := Normalize(raw, 1)
	if len(single) != 2 || single[1].Selector != "251" {
		t.Errorf("expected only the best audio stream to survive, got %+v", single)
	}
}

func TestNormalizeUnknownQualityLast(t *testing.T) {
	raw := []FormatOption{
		{Selector: "sd", Label: "sd", Kind: KindVideo},
		{Selector: "hd", Label: "hd", Kind: KindVideo},
		{Selector: "a", Kind: KindAudio},
		{Selector: "720", Label: "720p", Kind: KindVideo, Height: 720},
	}

	got := Normalize(raw, 1)

	if got[0].Selector != "720" {
		t.Errorf("expected numeric quality first, got %s", got[0].Selector)
	}
	for _, f := range got[1:] {
		if f.quality() > 0 {
			t.Errorf("expected only unknown quality formats after the first, got %+v", f)
		}
	}
}

func TestFind(t *testing.T) {
	opts := []FormatOption{
		{Selector: "hd", Platform: platform.Facebook},
		{Selector: "sd", Platform: platform.Facebook},
	}

	if f, ok := Find(opts, "sd"); !ok || f.Selector != "sd" {
		t.Errorf("expected to find sd, got %+v %v", f, ok)
	}
	if _, ok := Find(opts, "missing"); ok {
		t.Error("expected missing selector not to be found")
	}
}
