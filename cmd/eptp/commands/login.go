package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"eptp/internal/crypto"
	"eptp/internal/domain"
	"eptp/internal/util/memzero"
)

// login: derive the identity key and persist credentials for re-login.
func loginCmd() *cobra.Command {
	var phrase string

	cmd := &cobra.Command{
		Use:   "login [user-id]",
		Short: "Log in with a user ID and secret phrase",
		Long: `Log in with a user ID and secret phrase.

With no arguments, re-derives the identity from the stored credentials.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, secret, err := resolveLogin(wire.Credentials, args, phrase)
			if err != nil {
				return err
			}

			key := crypto.DeriveIdentityKey(userID, secret)
			fp := crypto.Fingerprint(key)
			memzero.Zero(key)

			if err := wire.Credentials.SaveCredentials(domain.Credentials{
				UserID:       userID,
				SecretPhrase: secret,
			}); err != nil {
				return err
			}
			fmt.Printf("Logged in as %s.\nFingerprint: %s\n", userID, fp)
			return nil
		},
	}
	cmd.Flags().StringVarP(&phrase, "phrase", "p", "", "secret phrase (omit to reuse the stored one)")
	return cmd
}

// resolveLogin works out the effective login from the command input,
// falling back to stored credentials for the silent re-login paths.
func resolveLogin(store domain.CredentialStore, args []string, phrase string) (domain.UserID, string, error) {
	creds, ok, err := store.LoadCredentials()
	if err != nil {
		return "", "", err
	}

	if len(args) == 0 {
		if !ok {
			return "", "", fmt.Errorf("no stored login. run eptp login <user-id> -p <phrase>")
		}
		if phrase == "" {
			phrase = creds.SecretPhrase
		}
		return creds.UserID, phrase, nil
	}

	userID, err := domain.ParseUserID(args[0])
	if err != nil {
		return "", "", err
	}
	if phrase == "" {
		if !ok || creds.UserID != userID {
			return "", "", fmt.Errorf("secret phrase required (-p)")
		}
		phrase = creds.SecretPhrase
	}
	return userID, phrase, nil
}
