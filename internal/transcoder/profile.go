// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcoder

import "time"

// FeederYTDLP pipes `yt-dlp -o - <url>` into ffmpeg's stdin.
const FeederYTDLP = "ytdlp"

// Profile is a fixed transcoding recipe.
type Profile struct {
	Name        string
	ContentType string

	// InputArgs go before -i, OutputArgs after it. The output target is always pipe:1.
	InputArgs  []string
	OutputArgs []string

	// ChunkSize is the read size of the relay for this profile.
	ChunkSize int

	// AutoRestart makes the relay respawn the process after exit or stall.
	AutoRestart bool
	// RestartDelay is the pause between generations when AutoRestart is set.
	RestartDelay time.Duration

	// Feeder selects an optional upstream stage ("" or FeederYTDLP).
	Feeder string
}

// Video is the low-bandwidth MPEG-TS profile: 256x144 at 15 fps, 40k H.264, 16k mono AAC.
func Video() Profile {
	return Profile{
		Name:        "video",
		ContentType: "video/mp2t",
		OutputArgs: []string{
			"-vf", "scale=256:144",
			"-r", "15",
			"-c:v", "libx264",
			"-preset", "ultrafast",
			"-tune", "zerolatency",
			"-b:v", "40k",
			"-maxrate", "40k",
			"-bufsize", "240k",
			"-g", "30",
			"-c:a", "aac",
			"-b:a", "16k",
			"-ac", "1",
			"-f", "mpegts",
		},
		ChunkSize:    1024,
		RestartDelay: time.Second,
	}
}

// Audio is the audio-only ADTS profile: AAC-LC 40k mono 44.1 kHz, band-limited for speech.
// It reconnects at the input level and restarts indefinitely.
func Audio() Profile {
	return Profile{
		Name:        "audio",
		ContentType: "audio/aac",
		InputArgs: []string{
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
			"-timeout", "15000000",
			"-user_agent", "Mozilla",
		},
		OutputArgs: []string{
			"-vn",
			"-ac", "1",
			"-ar", "44100",
			"-c:a", "aac",
			"-profile:a", "aac_low",
			"-b:a", "40k",
			"-af", "highpass=f=100,lowpass=f=8000",
			"-fflags", "nobuffer",
			"-flags", "low_delay",
			"-flush_packets", "1",
			"-f", "adts",
		},
		ChunkSize:    4096,
		AutoRestart:  true,
		RestartDelay: time.Second,
	}
}

// StdinInput is the ffmpeg input name for media piped from a feeder.
const StdinInput = "pipe:0"

// Args builds the ffmpeg argument vector reading from input and writing to stdout.
// Network input options are dropped when reading from stdin.
func (p Profile) Args(input string) []string {
	args := make([]string, 0, 8+len(p.InputArgs)+len(p.OutputArgs))
	args = append(args, "-hide_banner", "-loglevel", "warning")
	if input != StdinInput {
		args = append(args, "-nostdin")
		args = append(args, p.InputArgs...)
	}
	args = append(args, "-i", input)
	args = append(args, p.OutputArgs...)
	return append(args, "pipe:1")
}
