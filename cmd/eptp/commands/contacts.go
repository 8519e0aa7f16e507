package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func contactsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contacts",
		Short: "List conversations with their latest message",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, ok, err := wire.Credentials.LoadCredentials()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("not logged in. run eptp login first")
			}

			contacts, err := wire.Messages.Contacts(creds.UserID)
			if err != nil {
				return err
			}
			if len(contacts) == 0 {
				fmt.Println("No conversations yet.")
				return nil
			}
			for _, c := range contacts {
				when := time.UnixMilli(c.LastMessageTime).Format("2006-01-02 15:04")
				fmt.Printf("%s  %s  %s\n", c.ID, when, c.LastMessage)
			}
			return nil
		},
	}
}
