package main

import "github.com/ShreyashSoni/llm-semantic-book-recommender/cmd"

func main() {
	cmd.Execute()
}
