package docs

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/ops"
	"github.com/spf13/cobra"
)

var (
	callCmd = &cobra.Command{
		Use:   "call [operation] [params]",
		Short: "Calls any operation with a JSON parameter object (- reads it from stdin)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params json.RawMessage
			if len(args) == 2 {
				arg, err := util.StdinOrArg(args[1])
				if err != nil {
					return err
				}
				if params, err = util.JSONArg("params", arg); err != nil {
					return err
				}
			}
			return util.Call(cmd, rpcClient, args[0], params)
		},
	}
	insertCmd = &cobra.Command{
		Use:   "insert [db] [collection] [document...]",
		Short: "Inserts one or more JSON documents",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			documents := make([]json.RawMessage, 0, len(args)-2)
			for _, arg := range args[2:] {
				document, err := util.JSONArg("document", arg)
				if err != nil {
					return err
				}
				documents = append(documents, document)
			}
			params := target(args)
			if len(documents) == 1 {
				params["document"] = documents[0]
				return util.Call(cmd, rpcClient, ops.OpInsertDocument, params)
			}
			params["documents"] = documents
			return util.Call(cmd, rpcClient, ops.OpInsertDocuments, params)
		},
	}
	findCmd = &cobra.Command{
		Use:   "find [db] [collection] [query]",
		Short: "Finds documents matching a JSON query",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := target(args)
			if err := optionalJSON(params, "query", args, 2); err != nil {
				return err
			}
			for _, key := range []string{"projection", "sort"} {
				if v, _ := cmd.Flags().GetString(key); v != "" {
					raw, err := util.JSONArg(key, v)
					if err != nil {
						return err
					}
					params[key] = raw
				}
			}
			if one, _ := cmd.Flags().GetBool("one"); one {
				return util.Call(cmd, rpcClient, ops.OpFindDocument, params)
			}
			if limit, _ := cmd.Flags().GetInt64("limit"); limit > 0 {
				params["limit"] = limit
			}
			if skip, _ := cmd.Flags().GetInt64("skip"); skip > 0 {
				params["skip"] = skip
			}
			return util.Call(cmd, rpcClient, ops.OpFindDocuments, params)
		},
	}
	countCmd = &cobra.Command{
		Use:   "count [db] [collection] [query]",
		Short: "Counts documents matching a JSON query",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := target(args)
			if err := optionalJSON(params, "query", args, 2); err != nil {
				return err
			}
			return util.Call(cmd, rpcClient, ops.OpCountDocuments, params)
		},
	}
	updateCmd = &cobra.Command{
		Use:   "update [db] [collection] [filter] [update]",
		Short: "Updates the first (or with --many every) document matching the filter",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := target(args)
			if err := optionalJSON(params, "filter", args, 2); err != nil {
				return err
			}
			if err := optionalJSON(params, "update", args, 3); err != nil {
				return err
			}
			if upsert, _ := cmd.Flags().GetBool("upsert"); upsert {
				params["upsert"] = true
			}
			op := ops.OpUpdateDocument
			if many, _ := cmd.Flags().GetBool("many"); many {
				op = ops.OpUpdateDocuments
			}
			return util.Call(cmd, rpcClient, op, params)
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [db] [collection] [filter]",
		Short: "Deletes the first (or with --many every) document matching the filter",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := target(args)
			if err := optionalJSON(params, "filter", args, 2); err != nil {
				return err
			}
			op := ops.OpDeleteDocument
			if many, _ := cmd.Flags().GetBool("many"); many {
				op = ops.OpDeleteDocuments
			}
			return util.Call(cmd, rpcClient, op, params)
		},
	}
	distinctCmd = &cobra.Command{
		Use:   "distinct [db] [collection] [field] [query]",
		Short: "Lists the distinct values of a field",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := target(args)
			params["field"] = args[2]
			if err := optionalJSON(params, "query", args, 3); err != nil {
				return err
			}
			return util.Call(cmd, rpcClient, ops.OpDistinctValues, params)
		},
	}
	aggregateCmd = &cobra.Command{
		Use:   "aggregate [db] [collection] [pipeline]",
		Short: "Runs a JSON aggregation pipeline (- reads it from stdin)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg, err := util.StdinOrArg(args[2])
			if err != nil {
				return err
			}
			pipeline, err := util.JSONArg("pipeline", arg)
			if err != nil {
				return err
			}
			params := target(args)
			params["pipeline"] = pipeline
			return util.Call(cmd, rpcClient, ops.OpAggregate, params)
		},
	}
)

func init() {
	findCmd.Flags().Int64("limit", 0, util.WrapString("Maximum number of documents to return (0 returns all)"))
	findCmd.Flags().Int64("skip", 0, util.WrapString("Number of documents to skip"))
	findCmd.Flags().String("sort", "", util.WrapString("JSON sort document, e.g. '{\"total\": -1}'"))
	findCmd.Flags().String("projection", "", util.WrapString("JSON projection document"))
	findCmd.Flags().Bool("one", false, util.WrapString("Return only the first matching document"))

	updateCmd.Flags().Bool("many", false, util.WrapString("Update every matching document"))
	updateCmd.Flags().Bool("upsert", false, util.WrapString("Insert a document if nothing matches"))

	deleteCmd.Flags().Bool("many", false, util.WrapString("Delete every matching document"))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// target returns the parameter bag addressing the collection given by the first two args
func target(args []string) util.Params {
	return util.Params{"db": args[0], "collection": args[1]}
}

// optionalJSON sets params[key] to the JSON argument at index i if it was given
func optionalJSON(params util.Params, key string, args []string, i int) error {
	if len(args) <= i {
		return nil
	}
	raw, err := util.JSONArg(key, args[i])
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	params[key] = raw
	return nil
}
