// Command evchat serves and queries the EV performance chat workflow.
package main

func main() {
	Execute()
}
