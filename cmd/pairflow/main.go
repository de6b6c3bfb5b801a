// Command pairflow runs pairs of coding agents against one repository:
// each bubble hosts an implementer and a reviewer in tmux panes, hands the
// turn back and forth through a durable envelope log, and walks a state
// machine from task brief to reviewed commit.
package main

func main() {
	Execute()
}
