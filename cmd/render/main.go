// Command render runs the render pipeline locally without publishing. It
// renders either a scene manifest with its assets or a single still image
// over an audio track.
//
//	render --manifest scenes.json --asset intro=intro.jpg --asset clip=clip.mp4 --audio bed.mp3 --out out.mp4
//	render --image cover.png --audio track.mp3 --duration 60 --out out.mp4
package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"mediafactory/internal/composition"
	"mediafactory/internal/config"
	"mediafactory/internal/ffmpeg"
	"mediafactory/internal/pkg/logger"
	"mediafactory/internal/ports"
)

var mediaTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".aac":  "audio/aac",
	".m4a":  "audio/mp4",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
}

func main() {
	_ = godotenv.Load()

	var (
		manifestPath = flag.String("manifest", "", "scene manifest (JSON)")
		assets       = flag.StringArray("asset", nil, "asset as id=path, repeatable")
		imagePath    = flag.String("image", "", "still image for a single image video")
		duration     = flag.Int("duration", 0, "duration in seconds of a single image video")
		audioPath    = flag.String("audio", "", "audio track")
		out          = flag.String("out", "output.mp4", "output file")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{}).LogFatal("failed to load configuration", err)
	}
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      "text",
		Output:      os.Stderr,
		ServiceName: cfg.Log.Service,
	}).WithComponent("render-cli")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	invoker := ffmpeg.NewExecInvoker(cfg.Render.FFmpegPath, log)
	if err := ffmpeg.CheckBinary(ctx, invoker); err != nil {
		log.LogFatal("ffmpeg is not available", err, "binary", invoker.Binary())
	}

	if *audioPath == "" {
		log.LogFatal("--audio is required", nil)
	}

	start := time.Now()
	switch {
	case *manifestPath != "":
		err = renderComposition(ctx, cfg, log, invoker, *manifestPath, *assets, *audioPath, *out)
	case *imagePath != "":
		err = ffmpeg.NewSimpleRenderer(invoker, log).Render(ctx, *imagePath, *audioPath, *duration, *out)
	default:
		log.LogFatal("one of --manifest or --image is required", nil)
	}
	if err != nil {
		log.LogFatal("render failed", err)
	}

	log.Info("render completed", "out", *out, "duration_ms", time.Since(start).Milliseconds())
}

func renderComposition(ctx context.Context, cfg *config.Config, log *logger.Logger, invoker ffmpeg.Invoker, manifestPath string, assetFlags []string, audioPath, out string) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}
	raw, err := composition.ParseManifest(data)
	if err != nil {
		return err
	}

	parts := make(map[string]*ports.Part, len(assetFlags))
	paths := make(map[string]string, len(assetFlags))
	for _, a := range assetFlags {
		id, path, ok := strings.Cut(a, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" || path == "" {
			return fmt.Errorf("invalid --asset %q, expected id=path", a)
		}
		part, err := filePart(id, path)
		if err != nil {
			return err
		}
		parts[id] = part
		paths[id] = path
	}

	prober := ffmpeg.NewProber(invoker, cfg.Render.TempDir, log)
	manifest, err := composition.NewNormalizer(prober).Normalize(ctx, raw, parts)
	if err != nil {
		return err
	}
	plan, err := composition.Compile(manifest, paths, audioPath)
	if err != nil {
		return err
	}

	log.Info("rendering composition",
		"preset", string(plan.Preset),
		"scenes", len(plan.Scenes),
		"total_sec", plan.TotalDurationSec,
		"crossfade", plan.HasCrossfade(),
	)
	return ffmpeg.NewCompositionRenderer(invoker, cfg.Render.TempDir, log).Render(ctx, plan, out)
}

func filePart(id, path string) (*ports.Part, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	contentType, ok := mediaTypes[ext]
	if !ok {
		contentType = mime.TypeByExtension(ext)
	}
	return &ports.Part{
		Name:        "asset." + id,
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Size:        st.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}
