package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/RichardoC/padchat/internal/app"
)

func newShowCmd(opts *globalOptions) *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the messages of a conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				messages, err := a.Dispatcher.Messages(cmd.Context(), opts.user, conversationID)
				if err != nil {
					return err
				}

				if opts.outputType == "json" {
					return printJSON(cmd, messages)
				}

				rows := [][]string{}
				for _, m := range messages {
					rows = append(rows, []string{
						m.Timestamp.Format(time.DateTime),
						string(m.Role),
						string(m.Status),
						string(m.ErrorKind),
						m.Content,
					})
				}
				printTable(cmd, []string{"Time", "Role", "Status", "Error", "Content"}, rows)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "conversation id")
	_ = cmd.MarkFlagRequired("conversation")
	return cmd
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				history, err := a.Dispatcher.History(cmd.Context(), opts.user)
				if err != nil {
					return err
				}

				if opts.outputType == "json" {
					return printJSON(cmd, history)
				}

				rows := [][]string{}
				for _, h := range history {
					rows = append(rows, []string{
						h.ConversationID,
						h.Title,
						h.LastMessagePreview,
						h.LastActivity.Format(time.DateTime),
					})
				}
				printTable(cmd, []string{"Conversation", "Title", "Last Message", "Last Activity"}, rows)
				return nil
			})
		},
	}
}

func printTable(cmd *cobra.Command, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		Headers(headers...).
		Rows(rows...)

	fmt.Fprintln(cmd.OutOrStdout(), t)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
