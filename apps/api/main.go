package main

// TODO:
// - CSRF tokens for the cookie session
// - swagger docs of the route table
func main() {
	startWithDig()
}
