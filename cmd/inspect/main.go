package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH"`
	Prefix         string `envconfig:"INSPECT_PREFIX" default:"rooms/"`
}

func main() {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if config.BadgerFilepath == "" {
		config.BadgerFilepath = database.DefaultPath
	}
	dbPath := flag.String("db", config.BadgerFilepath, "Path to badger DB")
	prefix := flag.String("prefix", config.Prefix, "Prefix to scan (rooms/ or questions/)")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Name", "Status", "Host", "Players", "Buzz", "Last activity"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(v []byte) error {
				doc := &structpb.Struct{}
				if err := proto.Unmarshal(v, doc); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
					return nil
				}
				table.Append(row(key, doc.AsMap()))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}
	table.Render()
}

func row(key string, fields map[string]any) []string {
	str := func(name string) string {
		if v, ok := fields[name].(string); ok {
			return v
		}
		return "-"
	}
	players := "-"
	if p, ok := fields["players"].(map[string]any); ok {
		names := lo.Keys(p)
		sort.Strings(names)
		players = strings.Join(lo.Map(names, func(name string, _ int) string {
			score := 0.0
			if state, ok := p[name].(map[string]any); ok {
				score, _ = state["score"].(float64)
			}
			return name + ":" + strconv.Itoa(int(score))
		}), " ")
	}
	last := "--:--:--"
	if ms, ok := fields["lastActivity"].(float64); ok {
		last = time.UnixMilli(int64(ms)).Format("15:04:05")
	}
	name := str("name")
	if name == "-" {
		name = str("text")
	}
	return []string{key, name, str("status"), str("host"), players, str("currentPlayer"), last}
}
