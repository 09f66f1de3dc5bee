package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate identity and prekeys and store them securely",
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := appCtx.Init()
			if err != nil {
				return err
			}
			n, err := appCtx.Keys.AvailablePreKeys()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Identity ready.\nFingerprint: %s\nOne-time prekeys: %d\n", fp, n)
			return nil
		},
	}
}

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print identity fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := appCtx.Protocol.Fingerprint()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fingerprint: %s\n", fp)
			return nil
		},
	}
}

func bundleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bundle",
		Short: "Print the current prekey bundle as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := appCtx.Protocol.CurrentPreKeyBundle()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(b)
		},
	}
}

func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Rotate keys if due and publish the bundle to the directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if appCtx.Directory == nil {
				return fmt.Errorf("no directory configured. use --directory")
			}
			if err := appCtx.Refresh(cmd.Context()); err != nil {
				return err
			}
			n, err := appCtx.Directory.PreKeyCount(cmd.Context(), appCtx.Self)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %s with %d one-time prekeys\n", appCtx.Self, n)
			return nil
		},
	}
}
