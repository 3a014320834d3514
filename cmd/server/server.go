// Package server wires the whole stack behind the HTTP API: config, logger,
// fetch client, MySQL store, fan-out engine, downloader, gin service.
package server

import (
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/windvane/booksource/engine"
	"github.com/windvane/booksource/fetch"
	"github.com/windvane/booksource/generator"
	"github.com/windvane/booksource/limiter"
	"github.com/windvane/booksource/log"
	"github.com/windvane/booksource/pipeline"
	"github.com/windvane/booksource/proxy"
	"github.com/windvane/booksource/service"
	"github.com/windvane/booksource/store"
)

var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "run the book source api server.",
	Long:  "run the book source api server.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		Run()
	},
}

func init() {
	ServerCmd.Flags().StringVar(
		&configPath, "config", "config.toml", "set config file path")

	ServerCmd.Flags().StringVar(
		&listenAddr, "http", "", "override the configured HTTP listen address")
}

var configPath string
var listenAddr string

func Run() {
	cfg := viper.New()
	cfg.SetConfigFile(configPath)
	cfg.SetConfigType("toml")
	setDefaults(cfg)
	if err := cfg.ReadInConfig(); err != nil {
		panic(err)
	}

	// log
	logLevel := log.ParseLevel(cfg.GetString("logLevel"))
	var plugin log.Plugin
	if path := cfg.GetString("logFile"); path != "" {
		var closer io.Closer
		plugin, closer = log.NewFilePlugin(path, logLevel)
		defer closer.Close()
	} else {
		plugin = log.NewStdoutPlugin(logLevel)
	}
	logger := log.NewLogger(plugin)
	logger.Info("log init end")
	zap.ReplaceGlobals(logger)

	// fetcher
	proxyURLs := cfg.GetStringSlice("fetcher.proxy")
	timeout := cfg.GetInt("fetcher.timeout")
	logger.Sugar().Info("proxy list: ", proxyURLs, " timeout: ", timeout)
	fetchOpts := []fetch.Option{
		fetch.WithTimeout(time.Duration(timeout) * time.Millisecond),
		fetch.WithLogger(logger.Named("fetch")),
	}
	if len(proxyURLs) > 0 {
		p, err := proxy.RoundRobin(proxyURLs...)
		if err != nil {
			logger.Error("round robin proxy failed", zap.Error(err))
		} else {
			fetchOpts = append(fetchOpts, fetch.WithProxy(p))
		}
	}
	client := fetch.NewClient(fetchOpts...)

	// storage
	nodeID := int64(1)
	if ip, err := generator.LocalIP(); err == nil {
		nodeID = generator.NodeID(ip)
	} else {
		logger.Warn("local ip lookup failed, falling back to node id 1", zap.Error(err))
	}
	st, err := store.New(
		store.WithDSN(cfg.GetString("storage.sqlURL")),
		store.WithLogger(logger.Named("store")),
		store.WithNodeID(nodeID),
	)
	if err != nil {
		logger.Error("open store failed", zap.Error(err))
		panic(err)
	}
	defer st.Close()
	logger.Info("mysql store ready", zap.Int64("node_id", nodeID))

	// extraction pipeline
	pipelineOpts := []pipeline.Option{
		pipeline.WithLogger(logger.Named("pipeline")),
		pipeline.WithDebug(cfg.GetBool("pipeline.debug")),
	}
	if ms := cfg.GetInt("pipeline.scriptTimeout"); ms > 0 {
		pipelineOpts = append(pipelineOpts, pipeline.WithScriptTimeout(time.Duration(ms)*time.Millisecond))
	}
	x := pipeline.New(client, pipelineOpts...)

	searcher := engine.New(x,
		engine.WithLogger(logger.Named("engine")),
		engine.WithMaxPages(cfg.GetInt("search.maxPages")),
		engine.WithMinPageResults(cfg.GetInt("search.minPageResults")),
	)

	downloadOpts := []engine.Option{
		engine.WithLogger(logger.Named("download")),
		engine.WithDownloadDir(cfg.GetString("download.dir")),
		engine.WithFlushEvery(cfg.GetInt("download.flushEvery")),
		engine.WithProgressStore(st),
	}
	if ms := cfg.GetInt("download.delay"); ms > 0 {
		pacer := rate.NewLimiter(limiter.Per(1, time.Duration(ms)*time.Millisecond), 1)
		downloadOpts = append(downloadOpts, engine.WithPacer(pacer))
	}
	downloader := engine.NewDownloader(x, downloadOpts...)

	srv := service.New(
		service.WithLogger(logger.Named("http")),
		service.WithSourceStore(st),
		service.WithLibraryStore(st),
		service.WithCache(store.NewCompiledCache()),
		service.WithExtractor(x),
		service.WithSearcher(searcher),
		service.WithDownloadManager(downloader),
		service.WithFetcher(client),
	)

	addr := listenAddr
	if addr == "" {
		addr = cfg.GetString("server.addr")
	}
	if err := srv.Run(addr); err != nil {
		logger.Fatal("http server stopped", zap.Error(err))
	}
}

func setDefaults(cfg *viper.Viper) {
	cfg.SetDefault("logLevel", "INFO")
	cfg.SetDefault("server.addr", ":8080")
	cfg.SetDefault("fetcher.timeout", 5000)
	cfg.SetDefault("search.maxPages", 3)
	cfg.SetDefault("search.minPageResults", 5)
	cfg.SetDefault("download.dir", "downloads")
	cfg.SetDefault("download.flushEvery", 10)
	cfg.SetDefault("download.delay", 1000)
}
