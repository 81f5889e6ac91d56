// Command zstdctl is a small administrative CLI for the compress/decompress
// lifecycle: enabling or disabling compression on a table's columns, and
// reporting which columns are compressed and how well they're compressing.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/sqlite-zstd/zstd-vtab/extension"
	"github.com/sqlite-zstd/zstd-vtab/lifecycle"
)

// dbConfig is embedded in every subcommand: each opens its own connection to
// the database named on the command line.
type dbConfig struct {
	Database string `long:"db" short:"d" required:"true" description:"Path to the SQLite database file"`
}

type cmdEnable struct {
	dbConfig
	Table   string   `long:"table" short:"t" required:"true" description:"Table to enable compression on"`
	Columns []string `long:"column" short:"c" description:"Column to compress (repeatable); defaults to every TEXT/CLOB column"`
}

func (c *cmdEnable) Execute(args []string) error {
	db, err := extension.Open(c.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := lifecycle.Enable(context.Background(), db, c.Table, c.Columns...); err != nil {
		return err
	}
	log.WithField("table", c.Table).Info("compression enabled")
	return nil
}

type cmdDisable struct {
	dbConfig
	Table  string `long:"table" short:"t" required:"true" description:"Table to disable compression on"`
	Column string `long:"column" short:"c" description:"Single column to disable; omit to disable the whole table"`
}

func (c *cmdDisable) Execute(args []string) error {
	db, err := extension.Open(c.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := lifecycle.Disable(context.Background(), db, c.Table, c.Column); err != nil {
		return err
	}
	log.WithField("table", c.Table).Info("compression disabled")
	return nil
}

type cmdColumns struct {
	dbConfig
	Table string `long:"table" short:"t" required:"true" description:"Table to list compressed columns of"`
}

func (c *cmdColumns) Execute(args []string) error {
	db, err := extension.Open(c.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	cols, err := lifecycle.Columns(context.Background(), db, c.Table)
	if err != nil {
		return err
	}
	fmt.Println(cols)
	return nil
}

type cmdStats struct {
	dbConfig
	Table string `long:"table" short:"t" required:"true" description:"Table to report compression stats for"`
}

func (c *cmdStats) Execute(args []string) error {
	db, err := extension.Open(c.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := lifecycle.Stats(context.Background(), db, c.Table)
	if err != nil {
		return err
	}
	fmt.Println(stats)
	return nil
}

type cmdLegacyFallback struct {
	dbConfig
	Table   string `long:"table" short:"t" required:"true" description:"Table the column belongs to"`
	Column  string `long:"column" short:"c" required:"true" description:"Compressed column to toggle"`
	Disable bool   `long:"disable" description:"Turn the fallback mode off instead of on"`
}

func (c *cmdLegacyFallback) Execute(args []string) error {
	db, err := extension.Open(c.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	enabled := !c.Disable
	if err := lifecycle.SetLegacyFallback(context.Background(), db, c.Table, c.Column, enabled); err != nil {
		return err
	}
	log.WithFields(log.Fields{"table": c.Table, "column": c.Column, "enabled": enabled}).Info("legacy fallback mode set")
	return nil
}

func main() {
	parser := flags.NewNamedParser("zstdctl", flags.Default)
	_, _ = parser.AddCommand("enable", "Enable compression on a table", "", &cmdEnable{})
	_, _ = parser.AddCommand("disable", "Disable compression on a table or column", "", &cmdDisable{})
	_, _ = parser.AddCommand("columns", "List a table's compressed columns", "", &cmdColumns{})
	_, _ = parser.AddCommand("stats", "Report compression stats for a table", "", &cmdStats{})
	_, _ = parser.AddCommand("legacy-fallback", "Toggle decode-fallback mode for pre-existing unmarked rows", "", &cmdLegacyFallback{})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		log.WithError(err).Error("zstdctl failed")
		os.Exit(1)
	}
}
