package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/groupcast/groupcast/internal/channels"
	"github.com/groupcast/groupcast/internal/config"
	"github.com/groupcast/groupcast/internal/store"
)

func historyCmd() *cobra.Command {
	var (
		chatID string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently executed commands from the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Storage.Driver == store.DriverNone {
				fmt.Println("Audit storage is disabled (storage.driver = none).")
				return nil
			}

			audit, err := openAuditStore(cfg)
			if err != nil {
				return err
			}
			defer audit.Close()

			recs, err := audit.Recent(context.Background(), store.HistoryQuery{ChatID: chatID, Limit: limit})
			if err != nil {
				return err
			}
			printHistory(os.Stdout, recs)
			return nil
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "only show commands from this chat id")
	cmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultHistoryLimit, "maximum number of records")
	return cmd
}

func printHistory(w io.Writer, recs []store.CommandRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No commands recorded.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Started", "Chat", "Sender", "Command", "Outcome", "Targets", "Sent", "Failed", "Took", "Error"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for _, r := range recs {
		table.Append([]string{
			r.StartedAt.Local().Format(time.DateTime),
			r.ChatID,
			r.SenderID,
			r.Kind,
			string(r.Outcome),
			strconv.Itoa(r.Targets),
			strconv.Itoa(r.Sent),
			strconv.Itoa(r.Failed),
			r.Duration().Round(time.Millisecond).String(),
			channels.Truncate(r.Error, 40),
		})
	}
	table.Render()
}
