package main

import "github.com/ledgerkeep/ledgerkeep/cmd/ledgerkeep/cmd"

func main() {
	cmd.Execute()
}
