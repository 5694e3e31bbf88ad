package main

import (
	"errors"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/nhle/portal-notify/internal/cli"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("loading .env: %v", err)
	}
	cli.Execute()
}
