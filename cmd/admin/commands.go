package admin

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/ops"
	"github.com/spf13/cobra"
)

var (
	connectCmd = &cobra.Command{
		Use:   "connect [url]",
		Short: "Connects the server to MongoDB, replacing the current connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return util.Call(cmd, rpcClient, ops.OpConnect, util.Params{"url": args[0]})
		},
	}
	closeCmd = &cobra.Command{
		Use:   "close",
		Short: "Closes the connection of the server, later calls fail until connect is used",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return util.Call(cmd, rpcClient, ops.OpCloseConnection, nil)
		},
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Shows the connection state of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return util.Call(cmd, rpcClient, ops.OpConnectionStatus, nil)
		},
	}
	pingCmd = &cobra.Command{
		Use:   "ping",
		Short: "Checks that MongoDB answers (connects lazily if needed)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return util.Call(cmd, rpcClient, ops.OpPing, nil)
		},
	}
	databasesCmd = &cobra.Command{
		Use:   "databases",
		Short: "Lists all databases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return util.Call(cmd, rpcClient, ops.OpListDatabases, nil)
		},
	}
	collectionsCmd = &cobra.Command{
		Use:   "collections [db]",
		Short: "Lists the collections of a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return util.Call(cmd, rpcClient, ops.OpListCollections, util.Params{"db": args[0]})
		},
	}
	createCollectionCmd = &cobra.Command{
		Use:   "create-collection [db] [collection]",
		Short: "Creates a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return util.Call(cmd, rpcClient, ops.OpCreateCollection, util.Params{"db": args[0], "collection": args[1]})
		},
	}
	dropCollectionCmd = &cobra.Command{
		Use:   "drop-collection [db] [collection]",
		Short: "Drops a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return util.Call(cmd, rpcClient, ops.OpDropCollection, util.Params{"db": args[0], "collection": args[1]})
		},
	}
	createDatabaseCmd = &cobra.Command{
		Use:   "create-database [db]",
		Short: "Creates a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return util.Call(cmd, rpcClient, ops.OpCreateDatabase, util.Params{"db": args[0]})
		},
	}
	dropDatabaseCmd = &cobra.Command{
		Use:   "drop-database [db]",
		Short: "Drops a database with all its collections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return util.Call(cmd, rpcClient, ops.OpDropDatabase, util.Params{"db": args[0]})
		},
	}
	indexesCmd = &cobra.Command{
		Use:   "indexes [db] [collection]",
		Short: "Lists the indexes of a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return util.Call(cmd, rpcClient, ops.OpListIndexes, util.Params{"db": args[0], "collection": args[1]})
		},
	}
	operationsCmd = &cobra.Command{
		Use:   "operations",
		Short: "Lists the operations the server offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalogue, err := rpcClient.Operations(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				raw, err := json.Marshal(catalogue)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), util.Indent(raw))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, op := range catalogue {
				fmt.Fprintf(w, "%s\t%s\n", op.Name, op.Description)
			}
			return w.Flush()
		},
	}
)
