package flowsource

import (
	"context"
	"fmt"
	"strings"

	"github.com/hpcloud/tail"
	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/aegiscore/api/schemas"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TailConfig configures a TailSource.
type TailConfig struct {
	Path string
	// Follow keeps reading as the file grows and survives rotation.
	Follow bool
	// FromStart reads existing content instead of only new lines.
	FromStart bool
}

// TailSource reads JSON-lines flow records from a file, the way a sensor or
// flow exporter appends them. Lines that do not decode are logged and dropped.
type TailSource struct {
	cfg TailConfig
	log *zap.Logger
}

// NewTailSource creates a TailSource.
func NewTailSource(cfg TailConfig, logger *zap.Logger) *TailSource {
	return &TailSource{cfg: cfg, log: logger.Named("flowsource")}
}

// Flows implements schemas.FlowSource. The channel closes when ctx ends or,
// without Follow, at end of file.
func (s *TailSource) Flows(ctx context.Context) (<-chan schemas.FlowRecord, error) {
	whence := 2
	if s.cfg.FromStart {
		whence = 0
	}
	t, err := tail.TailFile(s.cfg.Path, tail.Config{
		Follow:    s.cfg.Follow,
		ReOpen:    s.cfg.Follow,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: whence},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to tail %s: %w", s.cfg.Path, err)
	}

	out := make(chan schemas.FlowRecord)
	go func() {
		defer close(out)
		defer func() {
			_ = t.Stop()
			t.Cleanup()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-t.Lines:
				if !ok {
					return
				}
				if line.Err != nil {
					s.log.Warn("Error reading flow file", zap.Error(line.Err))
					continue
				}
				rec, ok := s.decode(line.Text)
				if !ok {
					continue
				}
				select {
				case out <- rec:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *TailSource) decode(text string) (schemas.FlowRecord, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return schemas.FlowRecord{}, false
	}
	var rec schemas.FlowRecord
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		s.log.Warn("Dropping undecodable flow line.", zap.Error(err))
		return schemas.FlowRecord{}, false
	}
	return rec, true
}
