package downloaders

import (
	"errors"
	"testing"

	"github.com/kkdai/youtube/v2"
	"github.com/vidfetch/vidfetch/server/internal"
	"github.com/vidfetch/vidfetch/server/internal/formats"
	"github.com/vidfetch/vidfetch/server/internal/platform"
)

func TestBuildFilename(t *testing.T) {
	tests := []struct {
		title    string
		format   formats.FormatOption
		ext      string
		expected string
	}{
		{"My Video", formats.FormatOption{Label: "720p", Kind: formats.KindVideo}, "mp4", "My Video_720p.mp4"},
		{"What? Why: <now>", formats.FormatOption{Label: "360p", Kind: formats.KindVideo}, ".webm", "What Why now_360p.webm"},
		{"Song", formats.FormatOption{Label: "Audio Only", Kind: formats.KindAudio}, "m4a", "Song_audio.m4a"},
		{"a/b\\c", formats.FormatOption{Label: "1080p", Kind: formats.KindVideoOnly}, "", "abc_1080p.mp4"},
	}

	for _, test := range tests {
		if got := BuildFilename(test.title, test.format, test.ext); got != test.expected {
			t.Errorf("BuildFilename(%q) = %q, expected %q", test.title, got, test.expected)
		}
	}
}

func TestComputePercent(t *testing.T) {
	tests := []struct {
		progress Progress
		percent  int
		ok       bool
	}{
		{Progress{DownloadedBytes: 50, TotalBytes: 200}, 25, true},
		{Progress{DownloadedBytes: 199, TotalBytes: 200}, 99, true},
		{Progress{DownloadedBytes: 10, Percentage: " 42.7%"}, 42, true},
		{Progress{Percentage: "NA"}, 0, false},
		{Progress{}, 0, false},
	}

	for _, test := range tests {
		percent, ok := ComputePercent(test.progress)
		if percent != test.percent || ok != test.ok {
			t.Errorf("ComputePercent(%+v) = (%d, %v), expected (%d, %v)",
				test.progress, percent, ok, test.percent, test.ok)
		}
	}
}

func TestValidSelector(t *testing.T) {
	for _, s := range []string{"22", "hd", "dash-1234v", "137+140"} {
		if !validSelector(s) {
			t.Errorf("expected %q to be a valid selector", s)
		}
	}
	for _, s := range []string{"", "--exec", "a b", "x;rm -rf", "${HOME}"} {
		if validSelector(s) {
			t.Errorf("expected %q to be rejected", s)
		}
	}
}

func TestJSONLogConsumer(t *testing.T) {
	var got []Progress

	c := NewJSONLogConsumer(func(p Progress) { got = append(got, p) })

	c.ParseLogEntry([]byte(`{"downloaded":"1024","total":"NA","estimate":"4096","percentage":" 25.0%"}`))
	c.ParseLogEntry([]byte(`[download] Destination: something`))
	c.ParseLogEntry([]byte(`{"filepath":"/tmp/abc.mp4"}`))

	if len(got) != 1 {
		t.Fatalf("expected 1 progress event, got %d", len(got))
	}
	if got[0].DownloadedBytes != 1024 || got[0].TotalBytes != 4096 {
		t.Errorf("unexpected progress %+v", got[0])
	}
	if c.FilePath() != "/tmp/abc.mp4" {
		t.Errorf("expected file path to be recorded, got %q", c.FilePath())
	}
}

func TestToFormatOption(t *testing.T) {
	audio, ok := toFormatOption(ytdlpFormat{FormatID: "a1", VCodec: "none", ACodec: "mp4a", ABR: 128}, platform.Instagram)
	if !ok || audio.Kind != formats.KindAudio || audio.Bitrate != 128 {
		t.Errorf("unexpected audio option %+v", audio)
	}

	videoOnly, ok := toFormatOption(ytdlpFormat{FormatID: "v1", VCodec: "avc1", ACodec: "none", Height: 720}, platform.Instagram)
	if !ok || videoOnly.Kind != formats.KindVideoOnly || videoOnly.Label != "720p" {
		t.Errorf("unexpected video only option %+v", videoOnly)
	}

	muxed, ok := toFormatOption(ytdlpFormat{FormatID: "hd", VCodec: "avc1", ACodec: "mp4a", FilesizeApprox: 42}, platform.Facebook)
	if !ok || muxed.Kind != formats.KindVideo || muxed.Label != "hd" || muxed.SizeBytes != 42 {
		t.Errorf("unexpected muxed option %+v", muxed)
	}

	if _, ok := toFormatOption(ytdlpFormat{FormatID: "sb0", VCodec: "none", ACodec: "none"}, platform.Facebook); ok {
		t.Error("expected storyboard format to be skipped")
	}
}

func TestItagOption(t *testing.T) {
	progressive := itagOption(&youtube.Format{ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, QualityLabel: "360p", Height: 360, AudioChannels: 2})
	if progressive.Kind != formats.KindVideo || progressive.Selector != "18" || progressive.Ext != "mp4" {
		t.Errorf("unexpected progressive option %+v", progressive)
	}

	audio := itagOption(&youtube.Format{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, AverageBitrate: 129000})
	if audio.Kind != formats.KindAudio || audio.Bitrate != 129 || audio.Ext != "mp4" {
		t.Errorf("unexpected audio option %+v", audio)
	}

	adaptive := itagOption(&youtube.Format{ItagNo: 137, MimeType: `video/mp4; codecs="avc1.640028"`, QualityLabel: "1080p", Height: 1080})
	if adaptive.Kind != formats.KindVideoOnly {
		t.Errorf("unexpected adaptive option %+v", adaptive)
	}
}

func TestBackendsFor(t *testing.T) {
	yt := NewYouTubeDownloader()
	generic := NewGenericDownloader("")
	b := NewBackends(yt, generic)

	if p, backend, err := b.For("https://youtu.be/dQw4w9WgXcQ"); err != nil || p != platform.YouTube || backend != Backend(yt) {
		t.Errorf("expected youtube backend, got %v %v %v", p, backend, err)
	}
	if _, backend, err := b.For("https://fb.watch/abc/"); err != nil || backend != Backend(generic) {
		t.Errorf("expected generic backend, got %v %v", backend, err)
	}
	if _, _, err := b.For("https://example.com/video"); !errors.Is(err, internal.ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL, got %v", err)
	}
}
