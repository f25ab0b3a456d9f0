package main

import "github.com/ehsanking/elahe-messenger/cmd"

func main() {
	cmd.Execute()
}
