package recording

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/streamvault/streamvault-go/internal/apperrors"
	"github.com/streamvault/streamvault-go/internal/logging"
)

// SegmentHandle is an open segment file accepting muxed-transport-
// stream bytes until Close finalizes it.
type SegmentHandle interface {
	Write(p []byte) (int, error)
	Close() error
}

// SegmentBackend opens a new segment file at path for the given muxer.
type SegmentBackend interface {
	Open(ctx context.Context, path string, muxer Muxer) (SegmentHandle, error)
}

// FFmpegBackend stands in for splitmuxsink: each segment is its own
// ffmpeg subprocess remuxing the incoming mpegts byte stream into the
// target container, fed over stdin.
type FFmpegBackend struct {
	BinaryPath string
	Logger     *logging.Logger
}

// NewFFmpegBackend constructs a FFmpegBackend with the standard binary name.
func NewFFmpegBackend(logger *logging.Logger) *FFmpegBackend {
	return &FFmpegBackend{BinaryPath: "ffmpeg", Logger: logger}
}

func (b *FFmpegBackend) binary() string {
	if b.BinaryPath == "" {
		return "ffmpeg"
	}
	return b.BinaryPath
}

// Open spawns the subprocess for one segment. For MP4 this uses
// fragmented-mp4 flags so an interrupted file is still playable up to
// the last flushed sample (robust muxing); Matroska is resilient to
// interruption by construction.
func (b *FFmpegBackend) Open(ctx context.Context, path string, muxer Muxer) (SegmentHandle, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.Recording("recording.backend.open", apperrors.RecordingIO, "create segment directory", err)
	}

	args := []string{"-nostdin", "-loglevel", "error", "-f", "mpegts", "-i", "pipe:0", "-c", "copy"}
	switch muxer {
	case MuxerMP4:
		args = append(args, "-movflags", "+frag_keyframe+empty_moov+default_base_moof", path)
	case MuxerMKV:
		args = append(args, "-f", "matroska", path)
	default:
		return nil, apperrors.Recording("recording.backend.open", apperrors.RecordingInvalidConfig, "unsupported muxer", nil)
	}

	cmd := exec.CommandContext(ctx, b.binary(), args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, apperrors.Recording("recording.backend.open", apperrors.RecordingElementCreation, "create stdin pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, apperrors.Recording("recording.backend.open", apperrors.RecordingStateChangeError, "start encoder process", err)
	}

	return &ffmpegSegmentHandle{cmd: cmd, stdin: stdin}, nil
}

type ffmpegSegmentHandle struct {
	cmd   *exec.Cmd
	stdin interface {
		Write([]byte) (int, error)
		Close() error
	}
}

func (h *ffmpegSegmentHandle) Write(p []byte) (int, error) {
	return h.stdin.Write(p)
}

// Close finalizes the segment: closing stdin signals end-of-input, and
// Wait blocks until the muxer has flushed headers/index. Callers that
// need this off the live path run Close in a separate goroutine.
func (h *ffmpegSegmentHandle) Close() error {
	if err := h.stdin.Close(); err != nil {
		_ = h.cmd.Wait()
		return err
	}
	return h.cmd.Wait()
}
