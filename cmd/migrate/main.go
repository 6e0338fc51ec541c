// Command migrate applies the embedded sessiond schema migrations.
//
//	migrate up
//	migrate down
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"

	"sessiond/cmd/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	dsn := flag.String("database-url", "", "Postgres URL (defaults to $SESSIOND_DATABASE_URL)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-database-url url] up|down\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal(err)
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	url := *dsn
	if url == "" {
		url = os.Getenv("SESSIOND_DATABASE_URL")
	}

	direction := flag.Arg(0)
	if err := db.Migrate(url, direction); err != nil {
		log.Fatalf("migrate %s: %v", direction, err)
	}
	log.Printf("migrate %s: ok", direction)
}
