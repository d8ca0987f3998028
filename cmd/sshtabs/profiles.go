package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/kryptograf/keymgmt"
	"pkt.systems/pslog"
	"pkt.systems/sshtabs/internal/appconfig"
	"pkt.systems/sshtabs/internal/profiles"
	"pkt.systems/sshtabs/schema"
)

func newProfilesCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage saved connection profiles",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	cmd.AddCommand(newProfilesListCmd(&cfgPath))
	cmd.AddCommand(newProfilesAddCmd(&cfgPath))
	cmd.AddCommand(newProfilesRemoveCmd(&cfgPath))

	return cmd
}

func loadProfiles(cmd *cobra.Command, cfgPath string) (*profiles.Store, error) {
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	store, err := openProfiles(cfg, pslog.Ctx(cmd.Context()))
	if err != nil {
		return nil, err
	}
	if err := store.LoadErr(); err != nil {
		return nil, err
	}
	return store, nil
}

func newProfilesListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadProfiles(cmd, *cfgPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range store.List() {
				_, _ = fmt.Fprintf(out, "%s\t%s@%s\t%s\n", p.Name, p.Username, p.Addr(), authSummary(p.Credential))
			}
			return nil
		},
	}
}

func authSummary(c schema.Credential) string {
	var parts []string
	if c.HasKey() {
		parts = append(parts, "key:"+c.KeyPath)
	}
	if c.Password != "" {
		parts = append(parts, "password")
	}
	if len(parts) == 0 {
		return "agent"
	}
	return strings.Join(parts, ",")
}

func newProfilesAddCmd(cfgPath *string) *cobra.Command {
	var host, user, keyPath string
	var port int
	var passwordFromStdin, askPassword bool
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := resolveProfilePassword(cmd, passwordFromStdin, askPassword)
			if err != nil {
				return err
			}
			store, err := loadProfiles(cmd, *cfgPath)
			if err != nil {
				return err
			}
			saved, err := store.Add(schema.Profile{
				Name:       args[0],
				Host:       host,
				Port:       port,
				Username:   user,
				Credential: schema.Credential{Password: password, KeyPath: keyPath},
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added profile: %s (%s@%s)\n", saved.Name, saved.Username, saved.Addr())
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "host name or address")
	cmd.Flags().IntVarP(&port, "port", "p", schema.DefaultPort, "ssh port")
	cmd.Flags().StringVarP(&user, "user", "u", schema.DefaultUsername, "login user")
	cmd.Flags().StringVarP(&keyPath, "key", "i", "", "private key file")
	cmd.Flags().BoolVar(&passwordFromStdin, "password-from-stdin", false, "read password from stdin")
	cmd.Flags().BoolVar(&askPassword, "ask-password", false, "prompt for a password")
	return cmd
}

func resolveProfilePassword(cmd *cobra.Command, fromStdin, ask bool) (string, error) {
	if fromStdin && ask {
		return "", errors.New("choose one of --password-from-stdin or --ask-password")
	}
	if fromStdin {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", err
		}
		pass := strings.TrimRight(string(data), "\r\n")
		if pass == "" {
			return "", errors.New("password from stdin is empty")
		}
		return pass, nil
	}
	if !ask {
		return "", nil
	}
	pass, err := keymgmt.PromptPassphrase(cmd.InOrStdin(), "Password: ", cmd.ErrOrStderr())
	if err != nil {
		return "", err
	}
	if len(pass) == 0 {
		return "", errors.New("password is empty")
	}
	return string(pass), nil
}

func newProfilesRemoveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <name|id>",
		Aliases: []string{"remove"},
		Short:   "Remove a profile",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadProfiles(cmd, *cfgPath)
			if err != nil {
				return err
			}
			p, err := findProfile(store.List(), args[0])
			if err != nil {
				return err
			}
			if err := store.Remove(p.ID); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed profile: %s\n", p.Name)
			return nil
		},
	}
}

// findProfile matches by id first, then by unique name.
func findProfile(list []schema.Profile, ref string) (schema.Profile, error) {
	ref = strings.TrimSpace(ref)
	var byName []schema.Profile
	for _, p := range list {
		if string(p.ID) == ref {
			return p, nil
		}
		if p.Name == ref {
			byName = append(byName, p)
		}
	}
	switch len(byName) {
	case 0:
		return schema.Profile{}, fmt.Errorf("%w: %s", schema.ErrProfileNotFound, ref)
	case 1:
		return byName[0], nil
	default:
		return schema.Profile{}, fmt.Errorf("profile name %q is ambiguous; use the id", ref)
	}
}
