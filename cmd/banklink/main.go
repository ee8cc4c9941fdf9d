package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openbanklink/banklink/pkg/config"
	"github.com/openbanklink/banklink/pkg/logger"
	"github.com/openbanklink/banklink/pkg/provider"
	"github.com/openbanklink/banklink/pkg/scheduler"
	"github.com/openbanklink/banklink/pkg/sealbox"
	"github.com/openbanklink/banklink/pkg/server"
	"github.com/openbanklink/banklink/pkg/storage"
	"github.com/openbanklink/banklink/pkg/sync"
	"github.com/openbanklink/banklink/pkg/token"
)

var (
	cfgFile string
	port    string
	verbose bool
	once    bool
)

var rootCmd = &cobra.Command{
	Use:   "banklink",
	Short: "Open-banking account linking and synchronization",
	Long:  "banklink links a bank account through an OAuth open-banking provider and keeps a deduplicated local view of its accounts and transactions",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server for the link and sync flows",
	Run:   runServe,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run synchronization from the locally stored session",
	Run:   runSync,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.json", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	serveCmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides config)")
	syncCmd.Flags().BoolVar(&once, "once", false, "Run a single sync pass and exit")

	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		log.Printf("Failed to bind config flag: %v", err)
	}
	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		log.Printf("Failed to bind verbose flag: %v", err)
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
}

func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		log.Printf("Failed to load config from %s, using defaults: %v", cfgFile, err)
		cfg = config.DefaultConfig()
		cfg.ApplyEnv()
	}
	return cfg
}

func runServe(cmd *cobra.Command, args []string) {
	if verbose {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	cfg := loadConfig()
	if port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			log.Fatalf("Invalid port %q", port)
		}
		cfg.Port = p
	}

	srv, err := server.NewServer(cfg, verbose)
	if err != nil {
		log.Fatalf("Failed to build server: %v", err)
	}

	log.Printf("Starting banklink on port %d (%s environment)", cfg.Port, cfg.Provider.Environment)
	if err := srv.Echo().Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

func runSync(cmd *cobra.Command, args []string) {
	if verbose {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	cfg := loadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	codec, err := sealbox.NewCodec(cfg.EncryptionSecret)
	if err != nil {
		log.Fatalf("Failed to initialize sealed box: %v", err)
	}

	var slots storage.SlotStore
	if cfg.Storage.Type == "file" && cfg.Storage.FilePath != "" {
		slots, err = storage.NewFileSlots(cfg.Storage.FilePath)
		if err != nil {
			log.Fatalf("Failed to open slot store: %v", err)
		}
	} else {
		log.Printf("WARNING: using in-memory slot storage; the linked session will not survive this process")
		slots = storage.NewMemorySlots()
	}

	providerClient := provider.NewClient(cfg.Provider)
	runLogger := logger.NewRunLogger(cfg.LogDir)
	engine := sync.NewEngine(providerClient, runLogger)
	store := token.NewStore(slots, codec)

	sched := scheduler.New(store, providerClient, engine, snapshotPrinter(), runLogger)

	if once || cfg.Sync.Schedule == "" {
		if err := sched.RunOnce(context.Background()); err != nil {
			log.Fatalf("Sync failed: %v", err)
		}
		return
	}

	if err := sched.Start(cfg.Sync.Schedule); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	log.Printf("Sync scheduler running with schedule %q", cfg.Sync.Schedule)
	select {}
}

// snapshotPrinter writes each snapshot's headline numbers to the log. Real
// deployments replace this with a consumer that persists the snapshot.
func snapshotPrinter() scheduler.Consumer {
	return scheduler.ConsumerFunc(func(ctx context.Context, snapshot *sync.Snapshot) error {
		log.Printf("Synchronized %d accounts, %d transactions", len(snapshot.Accounts), len(snapshot.Transactions))
		return nil
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
