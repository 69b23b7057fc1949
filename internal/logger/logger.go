// Package logger provides the process-wide structured logger.
package logger

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"
	"time"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *logrus.Logger
	once   sync.Once
)

// Fields is a set of structured log fields.
type Fields = logrus.Fields

// New returns the shared logger, building it on first use. Outside APP_ENV=test
// output is also written to a rotated file under DARTCAM_LOG_DIR (default ./storage/logs).
func New() *logrus.Logger {
	once.Do(func() {
		logger = logrus.New()
		logger.SetLevel(levelFromEnv())

		logger.SetFormatter(&formatter.Formatter{
			NoColors:        os.Getenv("DARTCAM_LOG_NOCOLOR") == "true",
			TimestampFormat: "02 Jan 06 - 15:04:05",
			HideKeys:        false,
			CallerFirst:     true,
			CustomCallerFormatter: func(f *runtime.Frame) string {
				s := strings.Split(f.Function, ".")
				funcName := s[len(s)-1]
				return fmt.Sprintf(" \x1b[%dm[%s:%d][%s()]", 34, path.Base(f.File), f.Line, funcName)
			},
		})

		writers := []io.Writer{os.Stderr}
		if os.Getenv("APP_ENV") != "test" {
			dir := os.Getenv("DARTCAM_LOG_DIR")
			if dir == "" {
				dir = "./storage/logs"
			}
			writers = append(writers, &lumberjack.Logger{
				Filename:   fmt.Sprintf("%s/dartcam-%s.log", dir, time.Now().Format("2006-01-02")),
				LocalTime:  true,
				Compress:   true,
				MaxSize:    50,
				MaxAge:     7,
				MaxBackups: 3,
			})
		}

		logger.SetOutput(io.MultiWriter(writers...))
		logger.SetReportCaller(true)
	})
	return logger
}

func levelFromEnv() logrus.Level {
	lvl, err := logrus.ParseLevel(os.Getenv("DARTCAM_LOG_LEVEL"))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Std adapts the shared logger to a *log.Logger for libraries that want one.
func Std(prefix string) *stdlog.Logger {
	return stdlog.New(New().WriterLevel(logrus.InfoLevel), prefix, 0)
}

func entry(fields Fields) *logrus.Entry {
	if fields == nil {
		fields = Fields{}
	}
	return New().WithFields(fields)
}

func Debug(fields Fields, msg string) { entry(fields).Debug(msg) }

func Info(fields Fields, msg string) { entry(fields).Info(msg) }

func Warn(fields Fields, msg string) { entry(fields).Warn(msg) }

func Error(fields Fields, msg string) { entry(fields).Error(msg) }

func Fatal(fields Fields, msg string) { entry(fields).Fatal(msg) }
