package main

import (
	"chat-relay/internal"
	"chat-relay/repositories"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

func main() {
	// Defaults follow the relay configuration (settings.txt, then environment)
	config, err := internal.LoadFromEnviron()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	defaultLimit := 50
	if config.LimitMessages != nil {
		defaultLimit = *config.LimitMessages
	}

	dbPath := flag.String("db", config.ArchivePath, "Path to the chat archive")
	limit := flag.Int("limit", defaultLimit, "Messages per page")
	cursor := flag.String("cursor", "", "Resume after this key (printed at the end of the previous page)")
	flag.Parse()
	if *dbPath == "" {
		log.Fatal("No archive: set ARCHIVE_PATH or pass -db")
	}

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	repository := repositories.NewMessageRepository(db, logs.GetLoggerFromLevel(slog.LevelWarn), limit)
	var from *string
	if *cursor != "" {
		from = cursor
	}
	messages, next, err := repository.GetMessages(from)
	if err != nil {
		log.Fatal(err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"At", "Kind", "Author", "Lang", "Content", "ID"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, m := range messages {
		displayID := m.ID.String()
		if len(displayID) > 8 {
			displayID = displayID[:8]
		}
		table.Append([]string{
			m.At.Local().Format("2006-01-02 15:04:05"),
			m.Kind,
			m.Author,
			m.Lang,
			m.Content,
			displayID,
		})
	}
	table.Render()

	if next != nil && *next != "" && len(messages) == *limit {
		fmt.Printf("\nNext page: -cursor %s\n", *next)
	}
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		// A relay killed mid-write leaves a value log that needs truncating, which read-only mode refuses.
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).
				WithBypassLockGuard(true)
			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			_ = db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
