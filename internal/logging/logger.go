package logging

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.Logger
}

func NewLogger(level string) (*Logger, error) {
	config := zap.NewProductionConfig()

	// Parse log level
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{logger}, nil
}

// NewNop returns a logger that discards everything. Handy in tests.
func NewNop() *Logger {
	return &Logger{zap.NewNop()}
}

// WithOperation returns a child logger tagged with the operation name and
// a fresh operation id, so all lines emitted by one repository operation
// can be correlated.
func (l *Logger) WithOperation(name string) *zap.Logger {
	return l.With(
		zap.String("operation", name),
		zap.String("op_id", uuid.New().String()),
	)
}
