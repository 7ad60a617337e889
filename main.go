package main

import (
	"fmt"
	"os"
	"strings"

	"gistlick-api/src/config"
	"gistlick-api/src/license"
	"gistlick-api/src/server"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Msg(err.Error())
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if len(os.Args) < 2 {
		server.NewServe(cfg).InitServer()
	} else {
		switch strings.ToLower(os.Args[1]) {
		case "server":
			server.NewServe(cfg).InitServer()
		case "license":
			fmt.Println(license.GenerateKey())
		default:
			fmt.Println("unsupported command")
		}
	}
}
