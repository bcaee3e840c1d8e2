package admin

import (
	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcClient *client.Client

	// AdminCommands represents the admin command group
	AdminCommands = &cobra.Command{
		Use:               "admin",
		Short:             "Manage the connection, databases, collections and indexes of a dDoc server",
		PersistentPreRunE: setupClient,
		PersistentPostRun: closeClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the admin commands
	util.SetupRPCClientFlags(AdminCommands)
	AdminCommands.PersistentFlags().Bool("json", false, util.WrapString("Print the structured result as JSON instead of the summary"))

	// Add subcommands
	AdminCommands.AddCommand(connectCmd)
	AdminCommands.AddCommand(closeCmd)
	AdminCommands.AddCommand(statusCmd)
	AdminCommands.AddCommand(pingCmd)
	AdminCommands.AddCommand(databasesCmd)
	AdminCommands.AddCommand(collectionsCmd)
	AdminCommands.AddCommand(createCollectionCmd)
	AdminCommands.AddCommand(dropCollectionCmd)
	AdminCommands.AddCommand(createDatabaseCmd)
	AdminCommands.AddCommand(dropDatabaseCmd)
	AdminCommands.AddCommand(indexesCmd)
	AdminCommands.AddCommand(operationsCmd)
}

// setupClient initializes the RPC client
func setupClient(cmd *cobra.Command, _ []string) (err error) {
	rpcClient, err = util.NewClient(cmd)
	return err
}

func closeClient(_ *cobra.Command, _ []string) {
	if rpcClient != nil {
		_ = rpcClient.Close()
	}
}
