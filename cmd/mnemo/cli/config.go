package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mnemo/internal/secret"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage stored settings such as API keys",
	}

	var sealed bool
	setCmd := &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			db, err := openDB(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			if sealed {
				box, err := secret.NewBox()
				if err != nil {
					return err
				}
				if value, err = box.Seal(value); err != nil {
					return err
				}
			}
			if err := db.SetConfig(key, value); err != nil {
				return fmt.Errorf("failed to set config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved: %s\n", key)
			return nil
		},
	}
	setCmd.Flags().BoolVar(&sealed, "secret", false, "Encrypt the value at rest")

	getCmd := &cobra.Command{
		Use:   "get [key]",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			val, err := db.GetConfig(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case val == "":
				fmt.Fprintln(out, "(not set)")
			case secret.IsSealed(val):
				box, err := secret.NewBox()
				if err != nil {
					return err
				}
				plain, err := box.Open(val)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, secret.Mask(plain))
			default:
				fmt.Fprintln(out, val)
			}
			return nil
		},
	}

	cmd.AddCommand(setCmd, getCmd)
	return cmd
}
