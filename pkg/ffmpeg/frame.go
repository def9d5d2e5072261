package ffmpeg

import (
	"context"
	"time"
)

// FrameOptions configures single frame extraction.
type FrameOptions struct {
	Binary   string        // Executable to run (default: ffmpeg from PATH)
	Offset   time.Duration // Where to extract from (default: 1s)
	MaxWidth int           // Maximum width, 0 keeps the source width
	Quality  int           // JPEG quality 1-31, lower is better (default: 2)
}

// DefaultFrameOffset is the seek position used when FrameOptions.Offset is zero.
const DefaultFrameOffset = time.Second

// FrameCommand builds the command that extracts one still image from input.
func FrameCommand(input, output string, opts *FrameOptions) *Command {
	if opts == nil {
		opts = &FrameOptions{}
	}
	offset := opts.Offset
	if offset == 0 {
		offset = DefaultFrameOffset
	}
	quality := opts.Quality
	if quality == 0 {
		quality = 2
	}

	return NewCommand(input, output,
		Binary(opts.Binary),
		LogLevel("error"),
		Seek(offset),
		Frames(1),
		Quality(quality),
		ScaleWidth(opts.MaxWidth),
		NoAudio,
	)
}

// ExtractFrame extracts a single frame as an image and returns the ffmpeg logs.
func ExtractFrame(ctx context.Context, input, output string, opts *FrameOptions) RunResult {
	return FrameCommand(input, output, opts).RunCapture(ctx)
}
