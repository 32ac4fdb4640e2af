package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/RichardoC/padchat/internal/app"
	"github.com/RichardoC/padchat/internal/dispatch"
	"github.com/RichardoC/padchat/internal/models"
)

func newSendCmd(opts *globalOptions) *cobra.Command {
	var (
		conversationID string
		timeout        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Send a message and wait for the reply",
		Long:  `Send a message to a conversation. Without --conversation a new conversation is started.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				if conversationID == "" {
					conversationID = a.Dispatcher.NewConversationID()
				}

				msg, err := a.Dispatcher.Send(cmd.Context(), dispatch.SendInput{
					ConversationID: conversationID,
					OwnerID:        opts.user,
					Text:           strings.Join(args, " "),
					Timeout:        timeout,
				})
				if err != nil {
					return err
				}
				return opts.printReply(cmd, conversationID, msg)
			})
		},
	}

	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "conversation id")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "how long to wait for the reply (default from PADCHAT_CHAT_TIMEOUT)")
	return cmd
}

func newRetryCmd(opts *globalOptions) *cobra.Command {
	var (
		conversationID string
		timeout        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Resend the last message after a failed reply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				messages, err := a.Dispatcher.Messages(cmd.Context(), opts.user, conversationID)
				if err != nil {
					return err
				}

				var last string
				for i := len(messages) - 1; i >= 0; i-- {
					if messages[i].Role == models.RoleUser {
						last = messages[i].Content
						break
					}
				}
				if last == "" {
					return fmt.Errorf("%w: nothing to retry in conversation %s", models.ErrNotFound, conversationID)
				}

				msg, err := a.Dispatcher.Retry(cmd.Context(), dispatch.RetryInput{
					ConversationID: conversationID,
					OwnerID:        opts.user,
					LastText:       last,
					Timeout:        timeout,
				})
				if err != nil {
					return err
				}
				return opts.printReply(cmd, conversationID, msg)
			})
		},
	}

	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "conversation id")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "how long to wait for the reply (default from PADCHAT_CHAT_TIMEOUT)")
	_ = cmd.MarkFlagRequired("conversation")
	return cmd
}

func (o *globalOptions) printReply(cmd *cobra.Command, conversationID string, msg models.Message) error {
	if o.outputType == "json" {
		return printJSON(cmd, struct {
			ConversationID string         `json:"conversation_id"`
			Message        models.Message `json:"message"`
		}{conversationID, msg})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "conversation: %s\n", conversationID)
	if msg.Status == models.StatusError {
		fmt.Fprintf(out, "error (%s): %s\n", msg.ErrorKind, msg.Content)
		fmt.Fprintf(out, "run `padchat retry -u %s -c %s` to try again\n", o.user, conversationID)
		return nil
	}
	fmt.Fprintln(out, msg.Content)
	return nil
}
