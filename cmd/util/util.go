package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/ValentinKolb/numlog/lib/common"
	"github.com/ValentinKolb/numlog/lib/transport"
	"github.com/ValentinKolb/numlog/lib/transport/tcp"
	"github.com/ValentinKolb/numlog/lib/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (e.g. NUMLOG_PORT)
	EnvPrefix = "numlog"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes viper read NUMLOG_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// SetupConnectionFlags adds the flags selecting the server address to a command
func SetupConnectionFlags(cmd *cobra.Command) {
	key := "transport"
	cmd.Flags().String(key, string(common.TransportTCP), WrapString("Transport to use (tcp, unix)"))

	key = "host"
	cmd.Flags().String(key, "127.0.0.1", WrapString("Host of the server (tcp only)"))

	key = "port"
	cmd.Flags().Int(key, 4000, WrapString("Port of the server (tcp only)"))

	key = "socket-path"
	cmd.Flags().String(key, "/tmp/numlog.sock", WrapString("Path of the socket file (unix only)"))

	key = "log-level"
	cmd.Flags().String(key, "info", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// GetEndpoint builds the address of the server from the connection flags
func GetEndpoint() (common.TransportType, string, error) {
	transportType, err := common.ParseTransportType(viper.GetString("transport"))
	if err != nil {
		return "", "", err
	}

	switch transportType {
	case common.TransportUnix:
		path := viper.GetString("socket-path")
		if path == "" {
			return "", "", fmt.Errorf("socket path must not be empty")
		}
		return transportType, path, nil
	default:
		port := viper.GetInt("port")
		if port < 1 || port > 65535 {
			return "", "", fmt.Errorf("port must be between 1 and 65535, got %d", port)
		}
		return transportType, net.JoinHostPort(viper.GetString("host"), strconv.Itoa(port)), nil
	}
}

// GetServerTransport creates the server transport for the given type
func GetServerTransport(transportType common.TransportType) (transport.IServerTransport, error) {
	switch transportType {
	case common.TransportTCP:
		return tcp.NewTCPServerTransport(), nil
	case common.TransportUnix:
		return unix.NewUnixServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", transportType)
	}
}

// GetClientTransport creates the client transport for the given type
func GetClientTransport(transportType common.TransportType) (transport.IClientTransport, error) {
	switch transportType {
	case common.TransportTCP:
		return tcp.NewTCPClientTransport(), nil
	case common.TransportUnix:
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", transportType)
	}
}
