package client

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ValentinKolb/numlog/cmd/util"
	"github.com/ValentinKolb/numlog/lib/client"
	"github.com/ValentinKolb/numlog/lib/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	clientCmdConfig = &common.ClientConfig{}
	ClientCmd       = &cobra.Command{
		Use:     "client",
		Short:   "Stream random numbers to a numlog server",
		Long:    `Open one or more connections to a numlog server and send random 9-digit numbers over each of them. With --terminate the server is stopped once all numbers are sent. Environment variables use the format NUMLOG_<flag> (e.g. NUMLOG_CONNECTIONS=4)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	cmdUtil.SetupConnectionFlags(ClientCmd)

	key := "number"
	ClientCmd.Flags().Int(key, 10_000_000, cmdUtil.WrapString("Number of values to send per connection"))

	key = "connections"
	ClientCmd.Flags().Int(key, 1, cmdUtil.WrapString("Number of concurrent connections"))

	key = "terminate"
	ClientCmd.Flags().Bool(key, false, cmdUtil.WrapString("Send the terminate command after all values are sent"))

	key = "retries"
	ClientCmd.Flags().Int(key, 3, cmdUtil.WrapString("How many times to try to connect"))

	key = "timeout"
	ClientCmd.Flags().Int(key, 5, cmdUtil.WrapString("Connect timeout in seconds"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	transportType, endpoint, err := cmdUtil.GetEndpoint()
	if err != nil {
		return err
	}

	clientCmdConfig.Transport = transportType
	clientCmdConfig.Endpoint = endpoint
	clientCmdConfig.ValuesPerConnection = viper.GetInt("number")
	clientCmdConfig.Connections = viper.GetInt("connections")
	clientCmdConfig.Terminate = viper.GetBool("terminate")
	clientCmdConfig.RetryCount = viper.GetInt("retries")
	clientCmdConfig.TimeoutSecond = viper.GetInt("timeout")

	if err := clientCmdConfig.Validate(); err != nil {
		return err
	}

	return common.InitLoggers(viper.GetString("log-level"))
}

func run(_ *cobra.Command, _ []string) error {
	t, err := cmdUtil.GetClientTransport(clientCmdConfig.Transport)
	if err != nil {
		return err
	}

	// SIGINT ends the run, the connections are closed
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := client.NewGenerator(*clientCmdConfig, t, nil).Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("sent %d values in %s\n", result.Sent, result.Duration)
	return nil
}
