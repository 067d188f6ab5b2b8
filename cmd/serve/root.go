package serve

import (
	cmdUtil "github.com/ValentinKolb/numlog/cmd/util"
	"github.com/ValentinKolb/numlog/lib/common"
	"github.com/ValentinKolb/numlog/lib/server"
	"github.com/ValentinKolb/numlog/lib/writer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the numlog server",
		Long:    `Start the numlog server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is NUMLOG_<flag> (e.g. NUMLOG_MAX_CONNECTIONS=10)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	cmdUtil.SetupConnectionFlags(ServeCmd)

	key := "max-connections"
	ServeCmd.Flags().Int(key, 5, cmdUtil.WrapString("Number of clients served concurrently. Connections beyond this limit are closed right after they are accepted"))

	key = "status-interval-seconds"
	ServeCmd.Flags().Int(key, 10, cmdUtil.WrapString("Interval in seconds between two status reports"))

	key = "log-path"
	ServeCmd.Flags().String(key, "numbers.log", cmdUtil.WrapString("File every unique number is written to. The file is truncated on start"))

	key = "flush-every"
	ServeCmd.Flags().Int(key, writer.DefaultFlushEvery, cmdUtil.WrapString("Flush the log file after this many writes even if more numbers are queued"))

	key = "read-buffer"
	ServeCmd.Flags().Int(key, 0, cmdUtil.WrapString("Size of the socket receive buffer in KB (0 keeps the OS default)"))

	key = "metrics-endpoint"
	ServeCmd.Flags().String(key, "", cmdUtil.WrapString("Address of the prometheus metrics endpoint (e.g. localhost:9100). Empty disables the endpoint"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	transportType, endpoint, err := cmdUtil.GetEndpoint()
	if err != nil {
		return err
	}

	serveCmdConfig.Transport = transportType
	serveCmdConfig.Endpoint = endpoint
	serveCmdConfig.MaxConnections = viper.GetInt("max-connections")
	serveCmdConfig.ReadBufferSize = viper.GetInt("read-buffer") * 1024
	serveCmdConfig.LogPath = viper.GetString("log-path")
	serveCmdConfig.FlushEvery = viper.GetInt("flush-every")
	serveCmdConfig.StatusIntervalSecond = viper.GetInt("status-interval-seconds")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if err := serveCmdConfig.Validate(); err != nil {
		return err
	}

	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// run starts the numlog server and blocks until it is stopped
func run(_ *cobra.Command, _ []string) error {
	t, err := cmdUtil.GetServerTransport(serveCmdConfig.Transport)
	if err != nil {
		return err
	}

	sink, err := writer.OpenFileSink(serveCmdConfig.LogPath)
	if err != nil {
		return err
	}

	s := server.NewServer(*serveCmdConfig, t, sink)

	return s.Serve()
}
