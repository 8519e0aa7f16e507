package commands

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"eptp/internal/domain"
	"eptp/internal/peer"
	"eptp/internal/session"
)

const secureTimeout = 30 * time.Second

// chat: connect to a partner (or wait for one) and talk over an encrypted
// channel until /quit or the channel dies.
func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [user-id]",
		Short: "Open an encrypted chat with a peer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, ok, err := wire.Credentials.LoadCredentials()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("not logged in. run eptp login first")
			}

			channels := make(chan *session.Session, 1)
			orch, sig, err := wire.Connect(creds.UserID, func(orch *peer.Orchestrator) {
				orch.OnIncoming(func(partner domain.UserID) {
					fmt.Printf("Connection request from %s\n", partner)
				})
				orch.OnState(func(partner domain.UserID, st peer.State) {
					fmt.Printf("[%s] %s\n", partner, st)
				})
				orch.OnChannel(func(partner domain.UserID, ch domain.Channel) {
					select {
					case channels <- session.New(creds.UserID, partner, ch, wire.Messages):
					default:
						_ = ch.Close()
					}
				})
			})
			if err != nil {
				return err
			}
			defer sig.Close()
			defer orch.Close()

			ctx := cmd.Context()
			if len(args) == 1 {
				partner, err := domain.ParseUserID(args[0])
				if err != nil {
					return err
				}
				if err := orch.Connect(ctx, partner); err != nil {
					return err
				}
			} else {
				fmt.Println("Waiting for an incoming connection...")
			}

			var sess *session.Session
			select {
			case sess = <-channels:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer sess.Close()

			done := make(chan struct{})
			sess.OnClosed(func(err error) {
				fmt.Printf("Connection lost: %v\n", err)
				close(done)
			})
			sess.OnMessage(func(m domain.Message) {
				if m.Type == domain.MessageImage {
					fmt.Printf("[%s] sent an image (%d bytes)\n", m.From, len(m.Payload))
				} else {
					fmt.Printf("[%s] %s\n", m.From, m.Payload)
				}
				// The conversation is on screen, so confirm it was seen.
				_ = sess.MarkDisplayed(m)
			})
			if err := sess.Start(); err != nil {
				return err
			}
			secCtx, cancel := context.WithTimeout(ctx, secureTimeout)
			defer cancel()
			if err := sess.WaitSecured(secCtx); err != nil {
				return fmt.Errorf("secure session: %w", err)
			}
			fmt.Println("Session secured. Type a message, /img <file> to send an image, /quit to leave.")

			lines := make(chan string)
			go func() {
				defer close(lines)
				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					lines <- scanner.Text()
				}
			}()

			for {
				select {
				case <-done:
					return nil
				case <-ctx.Done():
					return nil
				case line, open := <-lines:
					if !open {
						return nil
					}
					if err := handleLine(sess, line); err != nil {
						if err == errQuit {
							return nil
						}
						fmt.Printf("error: %v\n", err)
					}
				}
			}
		},
	}
}

var errQuit = fmt.Errorf("quit")

func handleLine(sess *session.Session, line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil
	case line == "/quit":
		return errQuit
	case strings.HasPrefix(line, "/img "):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/img "))
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		_, err = sess.SendImage(base64.StdEncoding.EncodeToString(data))
		return err
	default:
		_, err := sess.SendText(line)
		return err
	}
}
