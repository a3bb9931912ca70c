package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/vrsandeep/transdoc-go/internal/models"
)

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage remote-model API keys",
	}

	var apiType string
	add := &cobra.Command{
		Use:   "add <key> <base-url>",
		Short: "Store a new API key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			key, err := app.Store().CreateApiKey(args[0], args[1], apiType)
			if err != nil {
				return fmt.Errorf("create key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added key %d (%s)\n", key.ID, key.MaskedKey())
			return nil
		},
	}
	add.Flags().StringVar(&apiType, "type", models.APITypeOpenAI, "api type: openai or gemini")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			keys, err := app.Store().ListApiKeys()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKEY\tTYPE\tBASE URL\tCALLS\tLAST ERROR")
			for _, k := range keys {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n", k.ID, k.MaskedKey(), k.APIType, k.BaseURL, k.Counter, k.LastErrorMessage)
			}
			return w.Flush()
		},
	}

	remove := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid key id %q", args[0])
			}
			app, err := openApp()
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Store().DeleteApiKey(id)
		},
	}

	cmd.AddCommand(add, list, remove)
	return cmd
}

func collectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Manage document collections",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			coll, err := app.Store().CreateCollection(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created collection %d\n", coll.ID)
			return nil
		},
	})
	return cmd
}

// renderTable writes tab-separated rows under header.
func renderTable(cmd *cobra.Command, header string, rows [][]any) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, header)
	for _, row := range rows {
		for i, col := range row {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, col)
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}
