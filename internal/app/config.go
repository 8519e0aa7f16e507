package app

// Config holds runtime wiring options for building the app.
type Config struct {
	Home     string // config directory, e.g. $HOME/.eptp
	RelayURL string // relay websocket URL, e.g. ws://127.0.0.1:8080/ws
}
