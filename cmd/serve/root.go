package serve

import (
	"fmt"
	"strings"

	cmdUtil "github.com/ValentinKolb/eKV/cmd/util"
	"github.com/ValentinKolb/eKV/lib/store"
	"github.com/ValentinKolb/eKV/rpc/common"
	"github.com/ValentinKolb/eKV/rpc/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the eKV server",
		Long:    `Start the eKV server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is EKV_<flag> (e.g. EKV_ENDPOINT=0.0.0.0:1234)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:1234", cmdUtil.WrapString("The address on which the server will listen (host:port)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The address on which Prometheus metrics will be exposed (host:port). Empty disables the metrics endpoint"))

	key = "read-buffer"
	ServeCmd.PersistentFlags().Int(key, 64, cmdUtil.WrapString("How many KB one readiness event may read from a connection. Larger values favor throughput, smaller values favor fairness between connections"))

	key = "handler"
	ServeCmd.PersistentFlags().String(key, "store", cmdUtil.WrapString("The request handler to serve (store, echo). The echo handler is for framing diagnostics only"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.ReadBufferSize = viper.GetInt("read-buffer") * 1024
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	return nil
}

// run starts the eKV server
func run(_ *cobra.Command, _ []string) error {
	common.InitLoggers(*serveCmdConfig)

	// parse the handler
	var handler server.HandleFunc
	switch viper.GetString("handler") {
	case "store":
		handler = server.NewStoreHandler(store.New())
	case "echo":
		handler = server.NewEchoHandler()
	default:
		return fmt.Errorf("invalid handler %s", viper.GetString("handler"))
	}

	serv := server.NewKVServer(
		*serveCmdConfig,
		handler,
	)

	return serv.Serve()
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("ekv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
