package main

import app "bulkcopy/internal/app"

func main() {
	app.Main()
}
