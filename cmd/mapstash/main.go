package main

import (
	"context"
	"log"
	_ "time/tzdata" // period_timezone must resolve on minimal images

	"github.com/dalemusser/mapstash/internal/app/bootstrap"
	"github.com/dalemusser/waffle/app"
)

func main() {
	if err := app.Run(context.Background(), bootstrap.Hooks); err != nil {
		log.Fatal(err)
	}
}
