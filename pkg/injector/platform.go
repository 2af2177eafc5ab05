package injector

import "go.uber.org/zap"

// Platform identifies the hosting environment and receives log lines.
type Platform interface {
	Name() string
	Log(message string)
}

// Boundary reads the current bytes of a class from the live environment
// and replaces its definition. Names are binary class names.
type Boundary interface {
	ReadClass(name string) ([]byte, error)
	InjectClass(name string, data []byte, offset, length int) error
}

// LogPlatform is a Platform that writes to a zap logger.
type LogPlatform struct {
	name string
	log  *zap.SugaredLogger
}

// NewLogPlatform returns a platform with the given name.
func NewLogPlatform(name string, log *zap.SugaredLogger) *LogPlatform {
	return &LogPlatform{name: name, log: log}
}

func (p *LogPlatform) Name() string {
	return p.name
}

func (p *LogPlatform) Log(message string) {
	p.log.Info(message)
}
