package main

import "github.com/JeffersonLab/ced2gnn/cmd"

func main() {
	cmd.Execute()
}
