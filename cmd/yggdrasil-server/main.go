package main

import (
	"flag"
	"log"

	"github.com/grand-thief-cash/yggdrasil/infra"
	"github.com/grand-thief-cash/yggdrasil/internal/api"

	_ "github.com/grand-thief-cash/yggdrasil/internal/registry_ext"
)

var (
	Version = "v0.1.0"
)

func main() {
	cfgPath := flag.String("config", "", "config file path (overrides APP_CONFIG)")
	env := flag.String("env", "", "runtime environment (overrides APP_ENV)")
	flag.Parse()

	api.SetVersion(Version)

	app := infra.GetApp()
	if *cfgPath != "" || *env != "" {
		app.SetConfigSource(*env, *cfgPath)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("app exited with error: %v", err)
	}
}
