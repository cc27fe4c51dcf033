package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	jerrors "github.com/juju/errors"
	"github.com/pelletier/go-toml"
	"gopkg.in/ini.v1"

	"github.com/zhukovaskychina/xmysql-index/logger"
	"github.com/zhukovaskychina/xmysql-index/server/index/codec"
	"github.com/zhukovaskychina/xmysql-index/server/index/measure"
	"github.com/zhukovaskychina/xmysql-index/server/index/page"
)

// DefaultConfigFile 未指定 -configPath 时尝试加载的文件
const DefaultConfigFile = "conf/index.ini"

const (
	ProviderMemory = "memory"
	ProviderStream = "stream"
)

var ConfigPath string

type CommandLineArgs struct {
	ConfigPath string
}

/*
[index]
leaf_page_size   = 64
inner_page_size  = 32
measures         = count,sum,min,max

[storage]
provider         = stream
data_file        = data/index.xidx
cache_pages      = 1024
page_compression = snappy

[logs]
log_error = /var/log/xindex/error.log
log_infos = /var/log/xindex/index.log
log_level = info
*/
type Cfg struct {
	Raw *ini.File

	// index
	LeafPageSize  int      `default:"64" yaml:"leaf_page_size" json:"leaf_page_size,omitempty"`
	InnerPageSize int      `default:"32" yaml:"inner_page_size" json:"inner_page_size,omitempty"`
	Measures      []string `default:"count,sum,min,max" yaml:"measures" json:"measures,omitempty"`

	// storage
	Provider        string `default:"memory" yaml:"provider" json:"provider,omitempty"`
	DataFile        string `default:"data/index.xidx" yaml:"data_file" json:"data_file,omitempty"`
	CachePages      int64  `default:"1024" yaml:"cache_pages" json:"cache_pages,omitempty"`
	PageCompression string `default:"none" yaml:"page_compression" json:"page_compression,omitempty"`

	// logs
	LogError string `default:"" yaml:"log_error" json:"log_error,omitempty"`
	LogInfos string `default:"" yaml:"log_infos" json:"log_infos,omitempty"`
	LogLevel string `default:"info" yaml:"log_level" json:"log_level,omitempty"`
}

func NewCfg() *Cfg {
	return &Cfg{
		Raw:             ini.Empty(),
		LeafPageSize:    64,
		InnerPageSize:   32,
		Measures:        []string{"count", "sum", "min", "max"},
		Provider:        ProviderMemory,
		DataFile:        "data/index.xidx",
		CachePages:      1024,
		PageCompression: "none",
		LogLevel:        "info",
	}
}

// Load 读取 args 指定的配置文件并校验。.toml 后缀按 TOML 解析，其余按 ini 解析；
// 未指定路径且默认文件不存在时使用默认值
func (cfg *Cfg) Load(args *CommandLineArgs) (*Cfg, error) {
	setHomePath(args)
	src, err := cfg.loadConfiguration(args)
	if err != nil {
		return nil, err
	}
	if err := cfg.parseIndexCfg(src); err != nil {
		return nil, jerrors.Annotate(err, "section [index]")
	}
	if err := cfg.parseStorageCfg(src); err != nil {
		return nil, jerrors.Annotate(err, "section [storage]")
	}
	cfg.parseLogsCfg(src)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setHomePath(args *CommandLineArgs) {
	if args.ConfigPath != "" {
		ConfigPath = args.ConfigPath
		return
	}
	ConfigPath, _ = filepath.Abs(".")
}

func (cfg *Cfg) loadConfiguration(args *CommandLineArgs) (source, error) {
	configFile := DefaultConfigFile
	if args.ConfigPath != "" {
		configFile = args.ConfigPath
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if args.ConfigPath != "" {
			return nil, jerrors.NotFoundf("config file %s", configFile)
		}
		logger.Debugf("配置文件不存在: %s，使用默认配置", configFile)
		return iniSource{file: cfg.Raw}, nil
	}

	if strings.EqualFold(filepath.Ext(configFile), ".toml") {
		tree, err := toml.LoadFile(configFile)
		if err != nil {
			return nil, jerrors.Annotatef(err, "parse %s", configFile)
		}
		logger.Debugf("成功加载配置文件: %s", configFile)
		return tomlSource{tree: tree}, nil
	}

	parsedFile, err := ini.Load(configFile)
	if err != nil {
		return nil, jerrors.Annotatef(err, "parse %s", configFile)
	}
	cfg.Raw = parsedFile
	logger.Debugf("成功加载配置文件: %s", configFile)
	return iniSource{file: parsedFile}, nil
}

func (cfg *Cfg) parseIndexCfg(src source) error {
	leaf, err := src.Int("index.leaf_page_size", int64(cfg.LeafPageSize))
	if err != nil {
		return err
	}
	inner, err := src.Int("index.inner_page_size", int64(cfg.InnerPageSize))
	if err != nil {
		return err
	}
	cfg.LeafPageSize = int(leaf)
	cfg.InnerPageSize = int(inner)
	cfg.Measures = src.Strings("index.measures", cfg.Measures)
	return nil
}

func (cfg *Cfg) parseStorageCfg(src source) error {
	cfg.Provider = strings.ToLower(src.String("storage.provider", cfg.Provider))
	cfg.DataFile = src.String("storage.data_file", cfg.DataFile)
	cfg.PageCompression = strings.ToLower(src.String("storage.page_compression", cfg.PageCompression))

	cachePages, err := src.Int("storage.cache_pages", cfg.CachePages)
	if err != nil {
		return err
	}
	cfg.CachePages = cachePages
	return nil
}

func (cfg *Cfg) parseLogsCfg(src source) {
	cfg.LogError = src.String("logs.log_error", cfg.LogError)
	cfg.LogInfos = src.String("logs.log_infos", cfg.LogInfos)

	logLevel := strings.ToLower(src.String("logs.log_level", cfg.LogLevel))
	switch logLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
		cfg.LogLevel = logLevel
	default:
		logger.Warnf("无效的日志级别 '%s', 使用默认级别 'info'", logLevel)
		cfg.LogLevel = "info"
	}
}

// Validate 检查取值范围，错误可以用 jerrors.IsNotValid 判断
func (cfg *Cfg) Validate() error {
	if cfg.LeafPageSize < page.MinPageSize {
		return jerrors.NotValidf("leaf_page_size %d (minimum %d)", cfg.LeafPageSize, page.MinPageSize)
	}
	if cfg.InnerPageSize < page.MinPageSize {
		return jerrors.NotValidf("inner_page_size %d (minimum %d)", cfg.InnerPageSize, page.MinPageSize)
	}
	seen := make(map[string]bool, len(cfg.Measures))
	for _, name := range cfg.Measures {
		if _, err := measure.ByName[int64](name, nil); err != nil {
			return jerrors.NotValidf("measure %q", name)
		}
		if seen[name] {
			return jerrors.NotValidf("duplicate measure %q", name)
		}
		seen[name] = true
	}
	switch cfg.Provider {
	case ProviderMemory:
	case ProviderStream:
		if cfg.DataFile == "" {
			return jerrors.NotValidf("empty data_file for stream provider")
		}
	default:
		return jerrors.NotValidf("provider %q", cfg.Provider)
	}
	if cfg.CachePages <= 0 {
		return jerrors.NotValidf("cache_pages %d", cfg.CachePages)
	}
	if _, err := cfg.Compression(); err != nil {
		return jerrors.NotValidf("page_compression %q", cfg.PageCompression)
	}
	return nil
}

// Compression 页面压缩算法
func (cfg *Cfg) Compression() (codec.Compression, error) {
	return codec.ParseCompression(cfg.PageCompression)
}

// source 以 "section.key" 访问配置项
type source interface {
	String(key, defaultValue string) string
	Int(key string, defaultValue int64) (int64, error)
	Strings(key string, defaultValue []string) []string
}

type iniSource struct {
	file *ini.File
}

func (s iniSource) key(key string) (*ini.Key, bool) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) < 2 {
		return nil, false
	}
	section, err := s.file.GetSection(parts[0])
	if err != nil || !section.HasKey(parts[1]) {
		return nil, false
	}
	return section.Key(parts[1]), true
}

func (s iniSource) String(key, defaultValue string) string {
	k, ok := s.key(key)
	if !ok {
		return defaultValue
	}
	value := strings.TrimSpace(k.String())
	if value == "" {
		return defaultValue
	}
	return value
}

func (s iniSource) Int(key string, defaultValue int64) (int64, error) {
	k, ok := s.key(key)
	if !ok {
		return defaultValue, nil
	}
	v, err := k.Int64()
	if err != nil {
		return 0, jerrors.NotValidf("%s = %q", key, k.String())
	}
	return v, nil
}

func (s iniSource) Strings(key string, defaultValue []string) []string {
	k, ok := s.key(key)
	if !ok {
		return defaultValue
	}
	return splitList(k.Strings(","))
}

type tomlSource struct {
	tree *toml.Tree
}

func (s tomlSource) String(key, defaultValue string) string {
	if v, ok := s.tree.Get(key).(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return defaultValue
}

func (s tomlSource) Int(key string, defaultValue int64) (int64, error) {
	switch v := s.tree.Get(key).(type) {
	case nil:
		return defaultValue, nil
	case int64:
		return v, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, jerrors.NotValidf("%s = %q", key, v)
		}
		return n, nil
	default:
		return 0, jerrors.NotValidf("%s of type %T", key, v)
	}
}

func (s tomlSource) Strings(key string, defaultValue []string) []string {
	switch v := s.tree.Get(key).(type) {
	case string:
		return splitList(strings.Split(v, ","))
	case []string:
		return splitList(v)
	case []interface{}:
		values := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				values = append(values, str)
			}
		}
		return splitList(values)
	}
	return defaultValue
}

func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
