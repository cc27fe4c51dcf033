package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/zhukovaskychina/xmysql-index/logger"
	"github.com/zhukovaskychina/xmysql-index/server/conf"
	"github.com/zhukovaskychina/xmysql-index/server/index/codec"
	"github.com/zhukovaskychina/xmysql-index/server/index/measure"
	"github.com/zhukovaskychina/xmysql-index/server/index/page"
	"github.com/zhukovaskychina/xmysql-index/server/index/provider"
	"github.com/zhukovaskychina/xmysql-index/server/index/tree"
)

const help = `
******************************************************************************************
* xindex: 带度量的有序索引
*帮助:
*1. -- help
*2. -- configPath   指定 index.ini / index.toml 配置文件
*3. -- count        写入的条目数
*4. -- inspect      只打开已有的索引文件并校验，不写入
*5. -- seed         工作负载的随机种子
******************************************************************************************
`

// statsSource 两种提供者都暴露的统计
type statsSource interface {
	Stats() *provider.Stats
}

func main() {
	var (
		configPath string
		count      int
		inspect    bool
		seed       int64
	)
	flag.StringVar(&configPath, "configPath", "", "配置文件路径")
	flag.IntVar(&count, "count", 10000, "写入的条目数")
	flag.BoolVar(&inspect, "inspect", false, "只校验已有索引")
	flag.Int64Var(&seed, "seed", time.Now().UnixNano(), "随机种子")
	flag.Usage = func() { fmt.Fprint(os.Stderr, help) }
	flag.Parse()

	cfg, err := conf.NewCfg().Load(&conf.CommandLineArgs{ConfigPath: configPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.InitLogger(logger.LogConfig{
		ErrorLogPath: cfg.LogError,
		InfoLogPath:  cfg.LogInfos,
		LogLevel:     cfg.LogLevel,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, count, inspect, seed); err != nil {
		logger.Errorf("%+v", err)
		os.Exit(1)
	}
}

func run(cfg *conf.Cfg, count int, inspect bool, seed int64) error {
	opts, err := indexOptions(cfg)
	if err != nil {
		return err
	}
	store, err := openProvider(cfg, opts)
	if err != nil {
		return err
	}
	ix, err := tree.New[int64, int64](store)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer func() {
		if err := ix.Close(); err != nil {
			logger.Errorf("关闭索引失败: %v", err)
		}
	}()

	if !inspect {
		if err := workload(ix, count, seed); err != nil {
			return err
		}
		if err := ix.Flush(); err != nil {
			return errors.Wrap(err, "flush")
		}
	}
	if err := ix.Check(); err != nil {
		return errors.Wrap(err, "consistency check")
	}
	report(ix, store)
	return nil
}

func indexOptions(cfg *conf.Cfg) (page.Options[int64, int64], error) {
	projection := func(v int64) decimal.Decimal { return decimal.New(v, 0) }
	measures := make([]measure.Measure[int64], 0, len(cfg.Measures))
	for _, name := range cfg.Measures {
		m, err := measure.ByName[int64](name, projection)
		if err != nil {
			return page.Options[int64, int64]{}, err
		}
		measures = append(measures, m)
	}
	return page.Options[int64, int64]{
		Comparer:  compareInt64,
		Extractor: func(v int64) int64 { return v },
		LeafSize:  cfg.LeafPageSize,
		InnerSize: cfg.InnerPageSize,
		Measures:  measures,
	}, nil
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func openProvider(cfg *conf.Cfg, opts page.Options[int64, int64]) (page.Provider[int64, int64], error) {
	if cfg.Provider == conf.ProviderMemory {
		m, err := provider.NewMemory(opts)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	compression, err := cfg.Compression()
	if err != nil {
		return nil, err
	}
	s, err := provider.OpenStream(opts, provider.StreamOptions[int64, int64]{
		Path:        cfg.DataFile,
		CachePages:  cfg.CachePages,
		Compression: compression,
		Keys:        codec.Int64Serializer{},
		Items:       codec.Int64Serializer{},
	})
	if err != nil {
		return nil, err
	}
	logger.Debugf("stream provider %s, compression=%s", s.Path(), compression)
	return s, nil
}

// workload 乱序写入 count 个条目，删除其中约四分之一，再覆盖写约八分之一未删除的条目
func workload(ix *tree.Index[int64, int64], count int, seed int64) error {
	rnd := rand.New(rand.NewSource(seed))
	base := ix.Len()
	start := time.Now()
	for _, i := range rnd.Perm(count) {
		if _, err := ix.Upsert(base + int64(i)); err != nil {
			return errors.Wrapf(err, "upsert %d", base+int64(i))
		}
	}
	perm := rnd.Perm(count)
	removed := 0
	for _, i := range perm[:count/4] {
		if _, err := ix.Remove(base + int64(i)); err != nil {
			return errors.Wrapf(err, "remove %d", base+int64(i))
		}
		removed++
	}
	overwritten := 0
	for _, i := range perm[count/4 : count/4+count/8] {
		replaced, err := ix.Upsert(base + int64(i))
		if err != nil {
			return errors.Wrapf(err, "overwrite %d", base+int64(i))
		}
		if !replaced {
			return errors.Errorf("overwrite %d inserted a new entry", base+int64(i))
		}
		overwritten++
	}
	logger.Infof("写入 %d 条, 删除 %d 条, 覆盖 %d 条, 耗时 %v", count, removed, overwritten, time.Since(start))
	return nil
}

func report(ix *tree.Index[int64, int64], store page.Provider[int64, int64]) {
	fmt.Printf("items:  %d\n", ix.Len())
	fmt.Printf("height: %d\n", ix.Height())
	if results, err := ix.Measures(); err == nil {
		fmt.Printf("measures: %s\n", results)
	}
	if s, ok := store.(statsSource); ok {
		snap := s.Stats().Snapshot()
		fmt.Printf("pages created=%d released=%d reads=%d writes=%d hit_ratio=%.2f avg_read_ns=%.0f\n",
			snap.CreatedPages, snap.ReleasedPages, snap.PageReads, snap.PageWrites,
			s.Stats().GetHitRatio(), s.Stats().GetAvgReadLatency())
	}
}
