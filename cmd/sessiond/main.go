package main

import (
	"errors"
	"io/fs"
	"log"

	"sessiond/cmd/internal/app"

	"github.com/joho/godotenv"
)

func main() {
	// Real environment variables win over .env entries.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal(err)
	}
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
