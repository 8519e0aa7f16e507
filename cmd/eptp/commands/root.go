package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"eptp/internal/app"
)

var (
	home     string
	relayURL string
	wire     *app.Wire
)

func Execute() error {
	root := &cobra.Command{
		Use:   "eptp",
		Short: "Peer-to-peer encrypted chat CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".eptp")
			}
			var err error
			wire, err = app.NewWire(app.Config{Home: home, RelayURL: relayURL})
			return err
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.eptp)")
	root.PersistentFlags().StringVar(&relayURL, "relay", "ws://127.0.0.1:8080/ws", "relay websocket URL")

	root.AddCommand(loginCmd(), chatCmd(), contactsCmd(), historyCmd())
	return root.Execute()
}
