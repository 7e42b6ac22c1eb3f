package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	secretsmanager "github.com/Keeper-Security/secrets-manager-sub005"
)

func bindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bind",
		Short: "bind this device using the one-time token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sm, err := newClient()
			if err != nil {
				return err
			}
			if err := sm.Bind(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("device bound")
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list records visible to this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sm, err := newClient()
			if err != nil {
				return err
			}
			tree, err := sm.GetSecrets(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "UID\tTYPE\tTITLE")
			for _, rec := range tree.Records {
				if rec.DecodeError != nil {
					fmt.Fprintf(w, "%s\t-\t(undecodable: %v)\n", rec.UID, rec.DecodeError)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", rec.UID, rec.Type, rec.Title)
			}
			return w.Flush()
		},
	}
}

func getCmd() *cobra.Command {
	var byTitle bool
	cmd := &cobra.Command{
		Use:   "get <uid|title>",
		Short: "print one record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sm, err := newClient()
			if err != nil {
				return err
			}
			var rec *secretsmanager.Record
			if byTitle {
				rec, err = sm.GetSecretByTitle(cmd.Context(), args[0])
			} else {
				rec, err = sm.GetSecret(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(struct {
				UID      string                  `json:"uid"`
				Title    string                  `json:"title"`
				Type     string                  `json:"type"`
				Notes    string                  `json:"notes,omitempty"`
				Revision int64                   `json:"revision"`
				Fields   []*secretsmanager.Field `json:"fields,omitempty"`
				Custom   []*secretsmanager.Field `json:"custom,omitempty"`
			}{rec.UID, rec.Title, rec.Type, rec.Notes, rec.Revision, rec.Fields, rec.Custom}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&byTitle, "title", false, "look the record up by title instead of uid")
	return cmd
}

func notationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notation <query>",
		Short: "resolve a keeper:// query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sm, err := newClient()
			if err != nil {
				return err
			}
			value, err := sm.Notation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		},
	}
}

func fileCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "file <uid> <name>",
		Short: "download a record attachment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sm, err := newClient()
			if err != nil {
				return err
			}
			rec, err := sm.GetSecret(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			f := rec.FileByName(args[1])
			if f == nil {
				return fmt.Errorf("record %s has no file %q", rec.UID, args[1])
			}
			data, err := sm.DownloadFile(cmd.Context(), f)
			if err != nil {
				return err
			}
			dest := output
			if dest == "" {
				dest = f.Name
			}
			if dest == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(dest, data, 0o600); err != nil {
				return err
			}
			fmt.Printf("wrote %d bytes to %s\n", len(data), dest)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination path, - for stdout")
	return cmd
}

func totpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "totp <query>",
		Short: "generate the current TOTP code for a keeper:// query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sm, err := newClient()
			if err != nil {
				return err
			}
			code, err := sm.TOTPCode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s  (%ds left)\n", code.Value, int(code.TimeLeft.Seconds()))
			return nil
		},
	}
}
