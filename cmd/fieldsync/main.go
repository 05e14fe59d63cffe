package main

import "fieldsync/cmd/fieldsync/cmd"

func main() {
	cmd.Execute()
}
