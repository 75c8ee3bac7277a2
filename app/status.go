package main

import (
	"context"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/bthode/engawa/app/database"
)

var statusColumns = []database.VideoStatus{
	database.StatusPending,
	database.StatusPendingDownload,
	database.StatusDownloaded,
	database.StatusFiltered,
	database.StatusExcluded,
	database.StatusFailed,
	database.StatusDeleted,
}

func renderStatus(ctx context.Context, subRepo database.SubscriptionRepository, videoRepo database.VideoRepository) (string, error) {
	subs, err := subRepo.ListSubscriptions(ctx)
	if err != nil {
		return "", err
	}
	counts, err := videoRepo.GetStatusCountsBySubscription(ctx)
	if err != nil {
		return "", err
	}
	return renderStatusTable(subs, counts), nil
}

func renderStatusTable(subs []database.Subscription, counts map[int64]database.StatusCounts) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := table.Row{"Subscription", "Last sync"}
	for _, s := range statusColumns {
		header = append(header, string(s))
	}
	tw.AppendHeader(header)

	for _, sub := range subs {
		lastSync := "never"
		if sub.LastSyncedAt != nil {
			lastSync = sub.LastSyncedAt.In(time.Local).Format("2006-01-02 15:04")
		}
		row := table.Row{sub.Name, lastSync}
		for _, s := range statusColumns {
			row = append(row, strconv.Itoa(counts[sub.ID][s]))
		}
		tw.AppendRow(row)
	}

	configs := []table.ColumnConfig{{Number: 1, Align: text.AlignLeft}, {Number: 2, Align: text.AlignLeft}}
	for i := range statusColumns {
		configs = append(configs, table.ColumnConfig{Number: i + 3, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
