package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const defaultProbeTimeout = 5 * time.Second

// ErrNoAudioStream is returned by Probe for containers without audio.
var ErrNoAudioStream = errors.New("audio: no audio stream found")

// Info describes a media file as reported by ffprobe.
type Info struct {
	Filename    string
	Title       string
	Artist      string
	Album       string
	DurationSec float64
	SampleRate  int
	Channels    int
	BitDepth    int
	Format      string
}

// Label is a human-readable name for registrations: "Artist - Title" when
// the file is tagged, otherwise the file name without extension.
func (i *Info) Label() string {
	switch {
	case i.Title != "" && i.Artist != "":
		return i.Artist + " - " + i.Title
	case i.Title != "":
		return i.Title
	default:
		return strings.TrimSuffix(i.Filename, filepath.Ext(i.Filename))
	}
}

type ffprobeOutput struct {
	Format struct {
		Duration string            `json:"duration"`
		Format   string            `json:"format_name"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	CodecType     string `json:"codec_type"`
	SampleRate    string `json:"sample_rate"`
	Channels      int    `json:"channels"`
	BitsPerSample int    `json:"bits_per_sample"`
}

// Probe runs ffprobe on path.
func Probe(ctx context.Context, path string) (*Info, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultProbeTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(
		ctx,
		"ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffprobe %s: %w", filepath.Base(path), err)
	}
	return parseProbe(path, out)
}

func parseProbe(path string, out []byte) (*Info, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var stream *ffprobeStream
	for i := range probe.Streams {
		if probe.Streams[i].CodecType == "audio" {
			stream = &probe.Streams[i]
			break
		}
	}
	if stream == nil {
		return nil, ErrNoAudioStream
	}

	duration, _ := strconv.ParseFloat(probe.Format.Duration, 64)
	sampleRate, _ := strconv.Atoi(stream.SampleRate)

	info := &Info{
		Filename:    filepath.Base(path),
		DurationSec: duration,
		SampleRate:  sampleRate,
		Channels:    stream.Channels,
		BitDepth:    stream.BitsPerSample,
		Format:      probe.Format.Format,
	}
	// ffprobe reports tag keys in whatever case the container used
	for k, v := range probe.Format.Tags {
		switch strings.ToLower(k) {
		case "title":
			info.Title = strings.TrimSpace(v)
		case "artist":
			info.Artist = strings.TrimSpace(v)
		case "album":
			info.Album = strings.TrimSpace(v)
		}
	}
	return info, nil
}
