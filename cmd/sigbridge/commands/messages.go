package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sigbridge/internal/app"
	"sigbridge/internal/domain"
)

// sessionCmd establishes a session from a bundle file, or from the directory
// when none is given.
func sessionCmd() *cobra.Command {
	var bundlePath string
	cmd := &cobra.Command{
		Use:   "session <peer>",
		Short: "Establish a secure session with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := app.ParsePeer(args[0])
			if err != nil {
				return err
			}
			if bundlePath == "" {
				if err := appCtx.Protocol.InitiateSession(cmd.Context(), peer); err != nil {
					return err
				}
			} else {
				var b domain.PreKeyBundle
				if err := readJSON(bundlePath, &b); err != nil {
					return err
				}
				if err := appCtx.Protocol.EstablishSession(peer, b); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session established with %s\n", peer)
			return nil
		},
	}
	cmd.Flags().StringVar(&bundlePath, "bundle", "", "bundle JSON file (- for stdin) instead of the directory")
	return cmd
}

func encryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <peer> <message>",
		Short: "Encrypt a message for a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := app.ParsePeer(args[0])
			if err != nil {
				return err
			}
			msg, err := appCtx.Protocol.Encrypt(cmd.Context(), peer, []byte(args[1]))
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(msg)
		},
	}
}

func decryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <peer> <file|->",
		Short: "Decrypt a ciphertext produced by encrypt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := app.ParsePeer(args[0])
			if err != nil {
				return err
			}
			var msg domain.CipherMessage
			if err := readJSON(args[1], &msg); err != nil {
				return err
			}
			pt, err := appCtx.Protocol.Decrypt(peer, msg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", peer, pt)
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <peer>",
		Short: "Forget the session with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := app.ParsePeer(args[0])
			if err != nil {
				return err
			}
			if err := appCtx.Protocol.ResetSession(peer); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session with %s reset\n", peer)
			return nil
		},
	}
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			peers, err := appCtx.Protocol.Sessions()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range peers {
				info, err := appCtx.Protocol.SessionStatus(p)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-24s %-12s epoch=%d updated=%s\n",
					p, info.Status, info.Epoch, info.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func readJSON(path string, out any) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
