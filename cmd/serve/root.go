package serve

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/ops"
	"github.com/ValentinKolb/dDoc/lib/session"
	"github.com/ValentinKolb/dDoc/lib/store/mongostore"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/serializer"
	"github.com/ValentinKolb/dDoc/rpc/server"
	"github.com/ValentinKolb/dDoc/rpc/transport"
	"github.com/ValentinKolb/dDoc/rpc/transport/http"
	"github.com/ValentinKolb/dDoc/rpc/transport/stdio"
	"github.com/ValentinKolb/dDoc/rpc/transport/tcp"
	"github.com/ValentinKolb/dDoc/rpc/transport/unix"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// closeTimeout bounds closing the session on shutdown
const closeTimeout = 5 * time.Second

var (
	// Version is reported to MCP clients, set by the root command
	Version = "dev"

	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start the dDoc server",
		Long: `Start the dDoc server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DDOC_<flag> (e.g. DDOC_MONGO_URL=mongodb://db:27017).

With the stdio transport (default) the server speaks the Model Context Protocol on stdin and stdout, every operation is offered as a tool. The http, tcp and unix transports serve the dDoc RPC protocol used by the docs and admin commands.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "transport"
	ServeCmd.Flags().String(key, "stdio", cmdUtil.WrapString("transport to serve (stdio, http, tcp, unix)"))

	key = "mongo-url"
	ServeCmd.Flags().String(key, session.DefaultAddress, cmdUtil.WrapString("The MongoDB connection string used when a call does not name one"))

	key = "timeout"
	ServeCmd.Flags().Int64(key, 30, cmdUtil.WrapString("Timeout of a single call in seconds (0 disables the timeout)"))

	key = "endpoint"
	ServeCmd.Flags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/ddoc.sock, ...). Ignored for stdio"))

	key = "workers"
	ServeCmd.Flags().Int(key, 64, cmdUtil.WrapString("Maximum number of concurrent requests per connection (tcp and unix)"))

	key = "max-pool-size"
	ServeCmd.Flags().Uint64(key, 0, cmdUtil.WrapString("Maximum size of the MongoDB connection pool (0 keeps the driver default)"))

	key = "log-level"
	ServeCmd.Flags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error). Logs are written to stderr"))

	key = "transport-write-buffer"
	ServeCmd.Flags().Int(key, 512, cmdUtil.WrapString("The size of the write buffer for the transport (in KB, only for tcp and unix)"))

	key = "transport-read-buffer"
	ServeCmd.Flags().Int(key, 512, cmdUtil.WrapString("The size of the read buffer for the transport (in KB, only for tcp and unix)"))

	key = "transport-tcp-nodelay"
	ServeCmd.Flags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "transport-tcp-keepalive"
	ServeCmd.Flags().Int(key, 0, cmdUtil.WrapString("The keepalive interval in seconds (only for tcp)"))

	key = "transport-tcp-linger"
	ServeCmd.Flags().Int(key, -1, cmdUtil.WrapString("The linger time in seconds (only for tcp, negative keeps the OS default)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	serveCmdConfig.Transport = common.ServerTransportConfig{
		Name:           viper.GetString("transport"),
		Endpoint:       viper.GetString("endpoint"),
		WorkersPerConn: viper.GetInt("workers"),
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
		},
	}
	serveCmdConfig.Serializer = viper.GetString("serializer")
	serveCmdConfig.MongoURL = viper.GetString("mongo-url")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.TimeoutSecond < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if serveCmdConfig.Transport.Name != "stdio" && serveCmdConfig.Transport.Endpoint == "" {
		return fmt.Errorf("an endpoint is required for the %s transport", serveCmdConfig.Transport.Name)
	}

	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// run starts the dDoc server and closes the session once it stops
func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connector := mongostore.NewConnector(mongostore.Options{MaxPoolSize: viper.GetUint64("max-pool-size")})
	sess := session.New(connector, serveCmdConfig.MongoURL)
	defer closeSession(sess)

	dispatcher := server.NewDispatcher(
		ops.NewDefaultRegistry(),
		sess,
		time.Duration(serveCmdConfig.TimeoutSecond)*time.Second,
	)

	if serveCmdConfig.Transport.Name == "stdio" {
		server.Logger.Infof(serveCmdConfig.String())
		return stdio.Serve(ctx, dispatcher, Version)
	}

	s, err := serializer.New(serveCmdConfig.Serializer)
	if err != nil {
		return err
	}

	t, err := newTransport(serveCmdConfig.Transport.Name, dispatcher)
	if err != nil {
		return err
	}

	return server.NewRPCServer(*serveCmdConfig, t, s, dispatcher).Serve(ctx)
}

// newTransport parses the transport name. The http transport additionally serves
// the metrics and the operation catalogue.
func newTransport(name string, dispatcher *server.Dispatcher) (transport.IRPCServerTransport, error) {
	switch name {
	case "http":
		return http.NewHttpServerTransport(
			http.WithHandler("GET /metrics", server.MetricsHandler()),
			http.WithHandler("GET /operations", server.OperationsHandler(dispatcher)),
		), nil
	case "tcp":
		return tcp.NewTCPDefaultServerTransport(), nil
	case "unix":
		return unix.NewUnixDefaultServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s (expected one of: stdio, http, tcp, unix)", name)
	}
}

func closeSession(sess *session.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := sess.Close(ctx); err != nil {
		server.Logger.Warningf("failed to close session: %v", err)
	}
}
