package main

import (
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version  kong.VersionFlag `short:"v" help:"Show version"`
	Server   ServerCmd        `cmd:"" help:"Run the pebbles server"`
	Play     PlayCmd          `cmd:"" help:"Play against a pebbles server"`
	Local    LocalCmd         `cmd:"" help:"Play against an in-process engine"`
	Simulate SimulateCmd      `cmd:"" help:"Pit a strategy against the program over many games"`
	History  HistoryCmd       `cmd:"" help:"Show recorded games from a database"`
}

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("pebbles"),
		kong.Description("The pebbles game: take turns removing pebbles, whoever takes the last one wins"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
