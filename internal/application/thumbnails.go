package application

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"thirdcoast.systems/edits/internal/config"
	"thirdcoast.systems/edits/internal/db"
	"thirdcoast.systems/edits/internal/storage"
	"thirdcoast.systems/edits/internal/thumbnail"
)

// NewMediaStorage opens the local media root.
func NewMediaStorage(conf config.Config) (*storage.Local, error) {
	st, err := storage.NewLocal(conf.Media.Root, conf.Media.URLPrefix)
	if err != nil {
		return nil, fmt.Errorf("open media storage: %w", err)
	}
	slog.Info("media storage ready", "root", st.Root(), "url_prefix", conf.Media.URLPrefix)
	return st, nil
}

// NewThumbnailProcessor resolves ffmpeg once and wires the deriver.
// A missing binary is not fatal: every attempt then reports binary_not_found.
func NewThumbnailProcessor(conf config.Config, dbc *db.DatabaseConnection, st storage.Storage, reg prometheus.Registerer) *thumbnail.Processor {
	ffmpegPath, err := conf.ResolveFFmpeg()
	if err != nil {
		slog.Error("ffmpeg not found, thumbnails will not be derived", "error", err)
		ffmpegPath = conf.Thumbnail.FFmpegPath
	} else {
		slog.Info("using ffmpeg", "path", ffmpegPath)
	}

	q := db.New(dbc)
	deriver := thumbnail.NewDeriver(thumbnail.Config{
		FFmpegPath: ffmpegPath,
		Timeout:    conf.Thumbnail.Timeout,
		TempDir:    conf.Thumbnail.TempDir,
		MaxWidth:   conf.Thumbnail.MaxWidth,
	}, st, q,
		thumbnail.WithSourceChecker(thumbnail.NewHTTPSourceChecker(conf.Thumbnail.Timeout)),
		thumbnail.WithMetrics(thumbnail.NewMetrics(reg)),
		thumbnail.WithLogger(slog.Default().With("component", "thumbnail")),
	)
	return thumbnail.NewProcessor(deriver, q, nil)
}

// NewThumbnailDispatcher builds the dispatcher selected by THUMBNAIL_DISPATCH.
// processor is only used in inline mode. The returned close func releases the
// kafka writer and is never nil.
func NewThumbnailDispatcher(conf config.Config, dbc *db.DatabaseConnection, processor *thumbnail.Processor) (thumbnail.Dispatcher, func() error, error) {
	noop := func() error { return nil }
	switch conf.Thumbnail.Dispatch {
	case config.DispatchInline:
		return thumbnail.NewInlineDispatcher(processor), noop, nil
	case config.DispatchPostgres:
		return thumbnail.NewPostgresDispatcher(db.New(dbc), nil), noop, nil
	case config.DispatchKafka:
		w := thumbnail.NewKafkaWriter(conf.Kafka.Brokers, conf.Kafka.Topic)
		return thumbnail.NewKafkaDispatcher(w, nil), w.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown thumbnail dispatch %q", conf.Thumbnail.Dispatch)
	}
}
