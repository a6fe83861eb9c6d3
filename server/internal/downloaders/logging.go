package downloaders

import (
	"encoding/json"
	"strconv"
	"strings"
)

// templates handed to yt-dlp, one JSON object per line.
// Every value is quoted since yt-dlp prints NA for unknown numbers.
const progressTemplate = `download:
{
	"downloaded":"%(progress.downloaded_bytes)s",
	"total":"%(progress.total_bytes)s",
	"estimate":"%(progress.total_bytes_estimate)s",
	"percentage":"%(progress._percent_str)s"
}`

const postprocessTemplate = `postprocess:
{
	"filepath":"%(info.filepath)s"
}`

type progressLine struct {
	Downloaded string `json:"downloaded"`
	Total      string `json:"total"`
	Estimate   string `json:"estimate"`
	Percentage string `json:"percentage"`
}

type postprocessLine struct {
	FilePath string `json:"filepath"`
}

// JSONLogConsumer turns the stdout of the downloader into progress events.
type JSONLogConsumer struct {
	onProgress ProgressFunc
	filePath   string
}

func NewJSONLogConsumer(onProgress ProgressFunc) *JSONLogConsumer {
	return &JSONLogConsumer{onProgress: onProgress}
}

func (j *JSONLogConsumer) ParseLogEntry(entry []byte) {
	var raw map[string]string
	if err := json.Unmarshal(entry, &raw); err != nil {
		return
	}

	if _, ok := raw["filepath"]; ok {
		var pp postprocessLine
		if err := json.Unmarshal(entry, &pp); err == nil && pp.FilePath != "" && pp.FilePath != "NA" {
			j.filePath = pp.FilePath
		}
		return
	}

	var p progressLine
	if err := json.Unmarshal(entry, &p); err != nil {
		return
	}

	total := parseBytes(p.Total)
	if total <= 0 {
		total = parseBytes(p.Estimate)
	}

	if j.onProgress != nil {
		j.onProgress(Progress{
			DownloadedBytes: parseBytes(p.Downloaded),
			TotalBytes:      total,
			Percentage:      p.Percentage,
		})
	}
}

// FilePath is the last final path reported by a postprocessor.
func (j *JSONLogConsumer) FilePath() string { return j.filePath }

func parseBytes(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "NA" || s == "None" {
		return 0
	}

	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(v)
	}
	return 0
}
