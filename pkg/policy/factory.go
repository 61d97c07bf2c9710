package policy

import (
	"log/slog"

	"github.com/mercator-hq/warden/pkg/config"
	"github.com/mercator-hq/warden/pkg/evidence/recorder"
	"github.com/mercator-hq/warden/pkg/policy/engine"
	"github.com/mercator-hq/warden/pkg/policy/engine/source"
	"github.com/mercator-hq/warden/pkg/processing/content"
	"github.com/mercator-hq/warden/pkg/rulesengine"
	"github.com/mercator-hq/warden/pkg/streamfilter"
)

// Factory returns an engine factory for the engine manager: each call
// loads the policy file (or directory) at configPath into a fresh
// interpreter engine generation. rec may be nil to skip evidence
// recording.
func Factory(gwCfg *config.Config, rec *recorder.Recorder, logger *slog.Logger) func(configPath string) (rulesengine.Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(configPath string) (rulesengine.Engine, error) {
		fileSource := source.NewFileSource(configPath, logger)
		eval, err := engine.NewInterpreterEngine(engine.DefaultEngineConfig(), fileSource, logger)
		if err != nil {
			return nil, err
		}

		analyzer := content.NewAnalyzer(&gwCfg.Processing.Content)

		return New(eval, analyzer, Config{
			Recorder: rec,
			RequestBuffering: rulesengine.BufferConfig{
				Mode:  bufferingMode(gwCfg.Buffering.RequestMode),
				Limit: gwCfg.Buffering.RequestLimit,
			},
			ResponseBuffering: rulesengine.BufferConfig{
				Mode:  bufferingMode(gwCfg.Buffering.ResponseMode),
				Limit: gwCfg.Buffering.ResponseLimit,
			},
		}, logger), nil
	}
}

// bufferingMode maps the configuration's mode names onto the stream
// filter's enum. Unknown names fall back to write-through.
func bufferingMode(name string) streamfilter.BufferingMode {
	switch name {
	case "all":
		return streamfilter.BufferAll
	case "flush_all":
		return streamfilter.BufferFlushAll
	case "flush_part":
		return streamfilter.BufferFlushPart
	default:
		return streamfilter.NoBuf
	}
}
