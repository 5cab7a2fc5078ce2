package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hb-chen/skillgate/internal/config"
	"github.com/hb-chen/skillgate/pkg/logger"
)

var (
	cfgFile, logLevel, logPath string
	stderr, debug              bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "skillgate",
	Short: "Secure command-execution gateway",
	Long: `skillgate maps named skills to predefined binaries, validates every
caller-supplied value against the skill's schema, runs the binary without a
shell and records each execution in a ledger.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		readErr := initConfig(cmd)

		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if err := initLogger(cfg.Log.Path, cfg.Log.Level, cfg.Log.Debug, stderr); err != nil {
			return err
		}

		if readErr != nil {
			logger.Warnf("Config file not found: %v", readErr)
		} else {
			logger.Infof("Using config file: %s", config.Viper().ConfigFileUsed())
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&stderr, "stderr", "e", false, "log to stderr")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "log level: DEBUG, INFO, WARN, ERROR, FATAL, PANIC")
	rootCmd.PersistentFlags().StringVar(&logPath, "log-path", "./log", "log file path")
}

// initConfig resets the config, binds flags and reads the config file and
// environment. The returned error only reports a missing or unreadable file.
func initConfig(cmd *cobra.Command) error {
	config.Init()
	v := config.Viper()

	flags := cmd.Flags()
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.path", flags.Lookup("log-path"))
	_ = v.BindPFlag("log.debug", flags.Lookup("debug"))
	for key, name := range commandFlags[cmd.Name()] {
		if f := flags.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// Search config in current directory and configs directory
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	return v.ReadInConfig()
}

// commandFlags maps, per subcommand, config keys to the flags overriding them.
var commandFlags = map[string]map[string]string{}

func bindFlags(command string, keys map[string]string) {
	commandFlags[command] = keys
}

const logCallerSkip = 1

func initLogger(path, level string, debug, e bool) error {
	writer := getLogWriter(path)
	if e {
		stderrWriter, _, err := zap.Open("stderr")
		if err != nil {
			return err
		}
		writer = stderrWriter
	}

	logLevel := zapcore.InfoLevel
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		return err
	}
	if debug {
		logLevel = zapcore.DebugLevel
	}

	encoder := getLogEncoder(debug, e)
	core := zapcore.NewCore(encoder, writer, logLevel)
	zapLogger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(logCallerSkip))

	logger.ReplaceLogger(zapLogger)

	return nil
}

func getLogEncoder(debug, e bool) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	if debug && e {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeCaller = zapcore.FullCallerEncoder
	}

	return zapcore.NewConsoleEncoder(encoderConfig)
}

func getLogWriter(path string) zapcore.WriteSyncer {
	path = strings.TrimRight(path, "/")
	lumberJackLogger := &lumberjack.Logger{
		Filename:   path + "/skillgate.log",
		MaxSize:    10,   // megabytes
		MaxBackups: 10,   // number of backups
		MaxAge:     30,   // days
		Compress:   true, // compress old files
	}
	return zapcore.AddSync(lumberJackLogger)
}
