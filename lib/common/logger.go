package common

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/mattn/go-isatty"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// numlogLogger implements the ILogger interface with custom formatting
type numlogLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *numlogLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *numlogLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log(debugLabel, format, args...)
	}
}

func (l *numlogLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log(infoLabel, format, args...)
	}
}

func (l *numlogLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log(warnLabel, format, args...)
	}
}

func (l *numlogLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log(errorLabel, format, args...)
	}
}

func (l *numlogLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

// log formats and writes a log message. this internal helper is used by the public methods
func (l *numlogLogger) log(level levelLabel, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%s | %-10s | %s", level.render(), l.name, message)
}

// --------------------------------------------------------------------------
// Level labels (colorized on terminals)
// --------------------------------------------------------------------------

type levelLabel struct {
	text  string
	color *color.Color
}

var (
	debugLabel = levelLabel{"DEBUG", color.New(color.FgHiBlack)}
	infoLabel  = levelLabel{"INFO", color.New(color.FgGreen)}
	warnLabel  = levelLabel{"WARN", color.New(color.FgYellow)}
	errorLabel = levelLabel{"ERROR", color.New(color.FgRed, color.Bold)}

	// colorOutput is decided once, stdout does not change while running
	colorOutput = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
)

// render pads the label before coloring so the columns stay aligned
func (l levelLabel) render() string {
	padded := fmt.Sprintf("%-5s", l.text)
	if !colorOutput {
		return padded
	}
	l.color.EnableColor()
	return l.color.Sprint(padded)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger implements the dragonboat logger.Factory
func CreateLogger(pkgName string) logger.ILogger {
	// Create standard logger with custom flags
	stdLogger := log.New(os.Stdout, "", log.Ldate|log.Ltime)

	return &numlogLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: stdLogger,
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// LoggerNames lists the loggers used by the numlog packages
var LoggerNames = []string{
	"transport",
	"protocol",
	"writer",
	"stats",
	"server",
	"client",
}

var factoryOnce sync.Once

// InitLoggers installs the custom logger factory (once per process) and sets
// the level of all numlog loggers
func InitLoggers(level string) error {
	logLevel, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	// Set as the global logger factory for Dragonboat
	factoryOnce.Do(func() {
		logger.SetLoggerFactory(CreateLogger)
	})

	for _, name := range LoggerNames {
		logger.GetLogger(name).SetLevel(logLevel)
	}
	return nil
}
