package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Logger 全局日志实例。InitLogger 之前只把警告以上级别写到标准错误
var Logger = newLogger(os.Stderr, logrus.WarnLevel)

var (
	filesMu sync.Mutex
	files   []*os.File
)

type LogConfig struct {
	ErrorLogPath string
	InfoLogPath  string
	LogLevel     string
}

// Formatter 单行输出：时间、级别缩写、调用位置、消息、按名称排序的字段
type Formatter struct {
	TimestampFormat string
}

func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	layout := f.TimestampFormat
	if layout == "" {
		layout = "2006/01/02 15:04:05.000"
	}
	var b strings.Builder
	b.WriteString(entry.Time.Format(layout))
	b.WriteString(" [")
	b.WriteString(levelTag(entry.Level))
	b.WriteString("] ")
	b.WriteString(caller())
	b.WriteString(" ")
	b.WriteString(entry.Message)

	names := make([]string, 0, len(entry.Data))
	for name := range entry.Data {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, " %s=%v", name, entry.Data[name])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func levelTag(level logrus.Level) string {
	tag := strings.ToUpper(level.String())
	if len(tag) > 4 {
		tag = tag[:4]
	}
	return tag
}

// caller 第一个不属于 logrus 和本包的栈帧
func caller() string {
	pcs := make([]uintptr, 24)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.Function, "sirupsen/logrus") &&
			!strings.HasSuffix(frame.File, "/logger/logger.go") {
			fn := frame.Function
			if i := strings.LastIndexByte(fn, '/'); i >= 0 {
				fn = fn[i+1:]
			}
			return fmt.Sprintf("%s:%d(%s)", filepath.Base(frame.File), frame.Line, fn)
		}
		if !more {
			return "???"
		}
	}
}

// ParseLogLevel 解析日志级别，无法识别时取 info
func ParseLogLevel(level string) logrus.Level {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	parsed, err := logrus.ParseLevel(name)
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

func newLogger(out io.Writer, level logrus.Level) *logrus.Logger {
	return &logrus.Logger{
		Out:       out,
		Formatter: &Formatter{},
		Hooks:     make(logrus.LevelHooks),
		Level:     level,
		ExitFunc:  os.Exit,
	}
}

// fileHook 把指定级别的日志追加到文件
type fileHook struct {
	levels    []logrus.Level
	out       io.Writer
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level { return h.levels }

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.out.Write(line)
	return err
}

// InitLogger 按配置重新设置全局日志：控制台输出到标准错误，
// InfoLogPath 收集所有启用级别，ErrorLogPath 只收集警告及以上。
// 原地修改 Logger，之前取得的 WithComponent 入口随之生效。
// 文件打不开时返回错误，Logger 保持不变
func InitLogger(config LogConfig) error {
	level := ParseLogLevel(config.LogLevel)
	hooks := make(logrus.LevelHooks)

	var opened []*os.File
	attach := func(path string, levels []logrus.Level) error {
		if path == "" {
			return nil
		}
		f, err := openLogFile(path)
		if err != nil {
			return err
		}
		opened = append(opened, f)
		hooks.Add(&fileHook{levels: levels, out: f, formatter: Logger.Formatter})
		return nil
	}
	if err := attach(config.InfoLogPath, logrus.AllLevels[:level+1]); err != nil {
		closeFiles(opened)
		return err
	}
	if err := attach(config.ErrorLogPath, logrus.AllLevels[:logrus.WarnLevel+1]); err != nil {
		closeFiles(opened)
		return err
	}

	filesMu.Lock()
	previous := files
	files = opened
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(level)
	Logger.ReplaceHooks(hooks)
	filesMu.Unlock()
	closeFiles(previous)
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "log directory for %s", path)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

func closeFiles(fs []*os.File) {
	for _, f := range fs {
		_ = f.Close()
	}
}

// WithComponent 带组件名的日志入口，索引各层用它输出结构化字段
func WithComponent(name string) *logrus.Entry {
	return Logger.WithField("component", name)
}

func Debugf(format string, args ...any) { Logger.Debugf(format, args...) }
func Infof(format string, args ...any)  { Logger.Infof(format, args...) }
func Warnf(format string, args ...any)  { Logger.Warnf(format, args...) }
func Errorf(format string, args ...any) { Logger.Errorf(format, args...) }
