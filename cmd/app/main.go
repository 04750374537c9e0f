package main

import (
	"go.uber.org/fx"

	"github.com/alexander-mattos/baileys/internal/app"
)

func main() {
	fx.New(app.CreateApp()).Run()
}
