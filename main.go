package main

import "github.com/ValentinKolb/numlog/cmd"

func main() {
	cmd.Execute()
}
