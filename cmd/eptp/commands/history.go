package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"eptp/internal/domain"
)

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <user-id>",
		Short: "Print the stored history of one conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, ok, err := wire.Credentials.LoadCredentials()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("not logged in. run eptp login first")
			}
			partner, err := domain.ParseUserID(args[0])
			if err != nil {
				return err
			}

			msgs, err := wire.Messages.History(domain.CanonicalChatID(creds.UserID, partner))
			if err != nil {
				return err
			}
			for _, m := range msgs {
				when := time.UnixMilli(m.Timestamp).Format("15:04:05")
				body := m.Payload
				if m.Type == domain.MessageImage {
					body = fmt.Sprintf("[image, %d bytes]", len(m.Payload))
				}
				fmt.Printf("%s [%s] (%s) %s\n", when, m.From, m.Status, body)
			}
			return nil
		},
	}
}
