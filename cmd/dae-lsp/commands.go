package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"daelsp/internal/config"
	"daelsp/internal/dae"
	"daelsp/internal/server"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var (
	stdioFlag   bool
	wsAddr      string
	logfile     string
	verbosity   int
	configPath  string
	versionFlag bool
	debugRPC    bool

	// exitCode is what the process exits with once the command returns.
	exitCode int

	rootCmd = &cobra.Command{
		Use:           "dae-lsp",
		Short:         "Language server for dae configuration files",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.NoArgs,
		RunE:          runServer,
	}

	checkCmd = &cobra.Command{
		Use:   "check FILE...",
		Short: "Print the diagnostics of dae files and exit 1 when any is an error",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCheck,
	}
)

func init() {
	flags := rootCmd.Flags()
	flags.BoolVar(&stdioFlag, "stdio", false, "serve one session over stdin and stdout (the default)")
	flags.StringVar(&wsAddr, "ws", "", "serve WebSocket sessions on this address instead of stdio")
	rootCmd.MarkFlagsMutuallyExclusive("stdio", "ws")
	flags.BoolVar(&versionFlag, "version", false, "print the version and exit")
	flags.BoolVar(&debugRPC, "debug-rpc", false, "log every JSON-RPC message")

	persistent := rootCmd.PersistentFlags()
	persistent.StringVar(&logfile, "logfile", "", "path to the log file (default stderr)")
	persistent.CountVarP(&verbosity, "verbose", "v", "log more, repeat for debug output")
	persistent.StringVar(&configPath, "config", "", "YAML file with server defaults")

	rootCmd.AddCommand(checkCmd)
}

func configureLogging() {
	var path *string
	if logfile != "" {
		path = &logfile
	}
	commonlog.Configure(1+verbosity, path)
}

func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	f, err := os.Open(configPath)
	if err != nil {
		return config.Config{}, err
	}
	defer f.Close()
	return config.LoadFromYAML(f)
}

func runServer(cmd *cobra.Command, args []string) error {
	if versionFlag {
		fmt.Printf("dae-lsp version %s\n", Version)
		return nil
	}
	configureLogging()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config %s: %w", configPath, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(dae.Language{}, cfg)
	srv.Debug = debugRPC
	if !stdioFlag && wsAddr != "" {
		return srv.RunWebSocket(ctx, wsAddr)
	}
	exitCode = srv.RunStdio(ctx)
	return nil
}
