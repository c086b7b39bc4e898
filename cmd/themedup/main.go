package main

import (
	"os"

	"horse.fit/themedup/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
