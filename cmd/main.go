package main

import (
	"github.com/halcyonlabs/relay/internal/app"
	"github.com/halcyonlabs/relay/internal/config"
)

func main() {
	config.MustInit()
	app.MustNewApp().Run()
}
