// Package logger builds the process-wide zap logger from configuration.
package logger

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New 根据 logger.level / logger.format 构建 zap.Logger。
// 日志写到 stderr，stdout 留给命令输出 (例如 bv cat)
func New(v *viper.Viper) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(v.GetString("logger.level")))
	if err != nil {
		return nil, fmt.Errorf("invalid logger.level: %w", err)
	}

	format := v.GetString("logger.format")
	switch format {
	case "console", "json":
	default:
		return nil, fmt.Errorf("invalid logger.format %q (want console or json)", format)
	}

	c := zap.NewProductionConfig()
	c.Level = zap.NewAtomicLevelAt(level)
	c.Encoding = format
	c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	c.OutputPaths = []string{"stderr"}
	c.Sampling = nil

	log, err := c.Build(
		zap.AddStacktrace(zap.NewAtomicLevelAt(zap.FatalLevel)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}
	return log, nil
}
