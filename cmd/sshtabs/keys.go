package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/sshtabs/internal/appconfig"
	"pkt.systems/sshtabs/internal/sshkeys"
	"pkt.systems/sshtabs/schema"
)

func newKeysCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage ssh keys for profiles",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.AddCommand(newKeysGenerateCmd(&cfgPath))
	return cmd
}

func newKeysGenerateCmd(cfgPath *string) *cobra.Command {
	var keyType, out, profileRef string
	var bits int
	cmd := &cobra.Command{
		Use:   "generate <name>",
		Short: "Generate a key pair and optionally attach it to a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(*cfgPath)
			if err != nil {
				return err
			}
			path := out
			if path == "" {
				path, err = sshkeys.DefaultPath(cfg.StateDir, args[0], keyType)
				if err != nil {
					return err
				}
			}
			pair, err := sshkeys.Generate(path, keyType, bits, "sshtabs:"+args[0], pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "private key: %s\n", pair.PrivatePath)
			_, _ = fmt.Fprintf(w, "public key: %s\n", pair.AuthorizedKey)
			if profileRef == "" {
				return nil
			}
			store, err := openProfiles(cfg, pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			if err := store.LoadErr(); err != nil {
				return err
			}
			p, err := findProfile(store.List(), profileRef)
			if err != nil {
				return err
			}
			keyPath := pair.PrivatePath
			if _, err := store.Update(p.ID, schema.ProfileFields{KeyPath: &keyPath}); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(w, "attached to profile: %s\n", p.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyType, "type", "t", sshkeys.KeyTypeEd25519, "key type (ed25519 or rsa)")
	cmd.Flags().IntVarP(&bits, "bits", "b", sshkeys.DefaultRSABits, "key size when using rsa")
	cmd.Flags().StringVarP(&out, "out", "o", "", "private key path (default under state_dir/keys)")
	cmd.Flags().StringVar(&profileRef, "profile", "", "profile name or id to attach the key to")
	return cmd
}
