// Command formrelay runs the form relay chatbot.
package main

import (
	"errors"
	"io/fs"
	"log"

	"github.com/joho/godotenv"

	"github.com/m3rciful/formrelay/core/bootstrap"
	"github.com/m3rciful/formrelay/core/buildinfo"
	"github.com/m3rciful/formrelay/core/cmd"
	coreconfig "github.com/m3rciful/formrelay/core/config"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}
	log.Printf("formrelay %s", buildinfo.Version)

	err := cmd.Run(cmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig:        coreconfig.Load,
		Bootstrap: func(cfg *coreconfig.Config) (cmd.App, error) {
			return bootstrap.Run(bootstrap.Options{Config: cfg})
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
