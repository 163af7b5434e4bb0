package main

import "agency_backend/internal/app"

func main() {
	app.Run()
}
