package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hashicorp/logutils"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ftl/hamshack/config"
)

var (
	version   string = "develop"
	gitCommit string = "-"
	buildTime string = "-"
)

var rootFlags = struct {
	configFile string
	pprof      bool
	debug      bool
}{}

var rootCmd = &cobra.Command{
	Use:   "hamshack",
	Short: "HamShack - a spectrum display and spot hub for your shack",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&rootFlags.configFile, "config", "", "config file (default is ./hamshack.yaml or $HOME/.config/hamshack/hamshack.yaml)")
	rootCmd.PersistentFlags().BoolVar(&rootFlags.pprof, "pprof", false, "enable pprof")
	rootCmd.PersistentFlags().BoolVar(&rootFlags.debug, "debug", false, "enable debug logging")

	rootCmd.PersistentFlags().MarkHidden("pprof")
}

func initConfig() {
	v := viper.GetViper()
	config.Setup(v)

	if rootFlags.configFile != "" {
		v.SetConfigFile(rootFlags.configFile)
	} else {
		v.SetConfigName("hamshack")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if configDir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(configDir, "hamshack"))
		}
	}

	err := v.ReadInConfig()
	if _, notFound := err.(viper.ConfigFileNotFoundError); err != nil && !notFound {
		log.Fatalf("cannot read config file: %v", err)
	}
}

// bindFlags binds each flag of the given command to the configuration key of the same name in the given section.
func bindFlags(flags *pflag.FlagSet, section string, keys map[string]string) {
	for flagName, key := range keys {
		err := viper.BindPFlag(section+"."+key, flags.Lookup(flagName))
		if err != nil {
			log.Fatalf("cannot bind flag %s: %v", flagName, err)
		}
	}
}

func setupLogging() {
	minLevel := "INFO"
	if rootFlags.debug {
		minLevel = "DEBUG"
	}
	log.SetOutput(&logutils.LevelFilter{
		Levels:   []logutils.LogLevel{"DEBUG", "INFO", "ERROR"},
		MinLevel: logutils.LogLevel(minLevel),
		Writer:   os.Stderr,
	})
}

func runWithCtx(f func(ctx context.Context, cfg *config.Config, cmd *cobra.Command, args []string)) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		setupLogging()
		log.Printf("[INFO] HamShack Version %s", formatVersion())

		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			log.Fatalf("invalid configuration: %v", err)
		}
		if used := viper.ConfigFileUsed(); used != "" {
			log.Printf("[DEBUG] using config file %s", used)
		}

		if rootFlags.pprof {
			go func() {
				log.Printf("[INFO] starting pprof on http://localhost:6060/debug/pprof")
				log.Printf("[ERROR] %v", http.ListenAndServe("localhost:6060", nil))
			}()
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
		go handleCancelation(signals, cancel)

		f(ctx, cfg, cmd, args)
	}
}

func formatVersion() string {
	if gitCommit == "-" && buildTime == "-" {
		return version
	}
	return fmt.Sprintf("%s_%s_%s", version, gitCommit, buildTime)
}

func handleCancelation(signals <-chan os.Signal, cancel context.CancelFunc) {
	count := 0
	for range signals {
		count++
		if count == 1 {
			cancel()
		} else {
			log.Fatal("hard shutdown")
		}
	}
}
