package ffmpeg

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"math/bits"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/image/draw"

	"github.com/jmylchreest/docweave/internal/capability"
)

// MediaProbeAdapter implements capability.MediaProbe on top of Prober,
// converting its simplified StreamInfo into the orchestrator's ProbeResult.
type MediaProbeAdapter struct {
	prober *Prober
}

func NewMediaProbeAdapter(ffprobePath string) *MediaProbeAdapter {
	return &MediaProbeAdapter{prober: NewProber(ffprobePath)}
}

func (a *MediaProbeAdapter) Probe(ctx context.Context, sourcePath string) (*capability.ProbeResult, error) {
	info, err := a.prober.ProbeSimple(ctx, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", sourcePath, err)
	}
	return &capability.ProbeResult{
		DurationSec:  time.Duration(info.Duration) * time.Millisecond,
		Width:        info.VideoWidth,
		Height:       info.VideoHeight,
		AudioPresent: info.AudioCodec != "",
		Container:    info.ContainerFormat,
	}, nil
}

// TranscodeAdapter implements capability.Transcoder on top of
// CommandBuilder, producing the low-fps/low-resolution analysis proxy and
// the mono 16kHz audio extraction of §4.1 steps 1-3.
type TranscodeAdapter struct {
	ffmpegPath string
	prober     *Prober
	hwaccel    string
}

func NewTranscodeAdapter(ffmpegPath, ffprobePath, hwaccel string) *TranscodeAdapter {
	return &TranscodeAdapter{ffmpegPath: ffmpegPath, prober: NewProber(ffprobePath), hwaccel: hwaccel}
}

func (a *TranscodeAdapter) BuildProxy(ctx context.Context, sourcePath, proxyPath string, fps, longEdgePx int) error {
	builder := NewCommandBuilder(a.ffmpegPath).
		Overwrite().
		Input(sourcePath).
		VideoFilter(fmt.Sprintf("fps=%d,scale='if(gt(iw,ih),%d,-2)':'if(gt(iw,ih),-2,%d)'", fps, longEdgePx, longEdgePx)).
		VideoCodec("libx264").
		VideoPreset("veryfast").
		AudioCodec("aac").
		Output(proxyPath)

	if a.hwaccel != "" {
		builder = builder.HWAccel(a.hwaccel)
	}

	if err := builder.Build().Run(ctx); err != nil {
		return fmt.Errorf("building analysis proxy: %w", err)
	}
	return nil
}

func (a *TranscodeAdapter) ExtractAudio(ctx context.Context, sourcePath, audioPath string) error {
	info, err := a.prober.ProbeSimple(ctx, sourcePath)
	if err != nil {
		return fmt.Errorf("probing for audio extraction: %w", err)
	}
	if info.AudioCodec == "" {
		return capability.ErrNoAudioTrack
	}

	cmd := NewCommandBuilder(a.ffmpegPath).
		Overwrite().
		Input(sourcePath).
		OutputArgs("-vn", "-ac", "1", "-ar", "16000").
		AudioCodec("pcm_s16le").
		Output(audioPath).
		Build()

	if err := cmd.Run(ctx); err != nil {
		return fmt.Errorf("extracting audio: %w", err)
	}
	return nil
}

// FrameExtractAdapter implements capability.FrameExtractor: one full-res
// still per requested timestamp, with an optional perceptual-hash dedup
// pass (§4.5, SPEC_FULL.md §11's golang.org/x/image/draw wiring).
type FrameExtractAdapter struct {
	ffmpegPath     string
	prober         *Prober
	dedupThreshold int // max Hamming distance (over a 64-bit average hash) to call two frames duplicates; 0 disables dedup
}

func NewFrameExtractAdapter(ffmpegPath, ffprobePath string, dedupThreshold int) *FrameExtractAdapter {
	return &FrameExtractAdapter{ffmpegPath: ffmpegPath, prober: NewProber(ffprobePath), dedupThreshold: dedupThreshold}
}

func (a *FrameExtractAdapter) Extract(ctx context.Context, sourcePath string, outDir string, timestampsSec []float64) ([]capability.Keyframe, error) {
	info, err := a.prober.ProbeSimple(ctx, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("probing for frame extraction: %w", err)
	}
	durationSec := float64(info.Duration) / 1000.0

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating keyframe output dir: %w", err)
	}

	frames := make([]capability.Keyframe, 0, len(timestampsSec))
	hashes := make([]uint64, 0, len(timestampsSec))

	for i, ts := range timestampsSec {
		clamped := ts
		if clamped < 0 {
			clamped = 0
		}
		if durationSec > 0 && clamped >= durationSec {
			clamped = durationSec - 0.01
			if clamped < 0 {
				clamped = 0
			}
		}

		name := fmt.Sprintf("frame_%d_t%ss.jpg", i, strconv.FormatFloat(clamped, 'f', 2, 64))
		path := filepath.Join(outDir, name)

		cmd := NewCommandBuilder(a.ffmpegPath).
			Overwrite().
			InputArgs("-ss", strconv.FormatFloat(clamped, 'f', 3, 64)).
			Input(sourcePath).
			OutputArgs("-frames:v", "1", "-q:v", "2").
			Output(path).
			Build()
		if err := cmd.Run(ctx); err != nil {
			return nil, fmt.Errorf("extracting keyframe at %.2fs: %w", clamped, err)
		}

		keep := true
		var hash uint64
		if a.dedupThreshold > 0 {
			hash, err = averageHash(path)
			if err != nil {
				return nil, fmt.Errorf("hashing keyframe at %.2fs: %w", clamped, err)
			}
			for _, prior := range hashes {
				if bits.OnesCount64(hash^prior) <= a.dedupThreshold {
					keep = false
					break
				}
			}
		}
		if !keep {
			_ = os.Remove(path)
			continue
		}
		hashes = append(hashes, hash)
		frames = append(frames, capability.Keyframe{
			TimestampSec: clamped,
			Path:         path,
			Label:        name,
		})
	}

	return frames, nil
}

// averageHash computes a 64-bit average hash over an 8x8 grayscale
// downscale (draw.ApproxBiLinear), the cheap perceptual fingerprint
// SPEC_FULL.md's dependency table names for keyframe dedup: bit i is 1 if
// pixel i is at or above the mean grayscale value.
func averageHash(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	src, err := jpeg.Decode(f)
	if err != nil {
		return 0, fmt.Errorf("decoding keyframe for hashing: %w", err)
	}

	const side = 8
	dst := image.NewGray(image.Rect(0, 0, side, side))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var sum int
	for _, px := range dst.Pix {
		sum += int(px)
	}
	mean := sum / (side * side)

	var hash uint64
	for i, px := range dst.Pix {
		if int(px) >= mean {
			hash |= 1 << uint(i)
		}
	}
	return hash, nil
}
