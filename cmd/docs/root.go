package docs

import (
	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcClient *client.Client

	// DocumentCommands represents the document command group
	DocumentCommands = &cobra.Command{
		Use:               "docs",
		Short:             "Work with documents and collections of a dDoc server",
		PersistentPreRunE: setupClient,
		PersistentPostRun: closeClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the document commands
	util.SetupRPCClientFlags(DocumentCommands)
	DocumentCommands.PersistentFlags().Bool("json", false, util.WrapString("Print the structured result as JSON instead of the summary"))

	// Add subcommands
	DocumentCommands.AddCommand(callCmd)
	DocumentCommands.AddCommand(insertCmd)
	DocumentCommands.AddCommand(findCmd)
	DocumentCommands.AddCommand(countCmd)
	DocumentCommands.AddCommand(updateCmd)
	DocumentCommands.AddCommand(deleteCmd)
	DocumentCommands.AddCommand(distinctCmd)
	DocumentCommands.AddCommand(aggregateCmd)
	DocumentCommands.AddCommand(perfTestCmd)
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
