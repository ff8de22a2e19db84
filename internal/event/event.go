package event

// Event names are namespaced by port so concurrent ports never collide.
const (
	prefix           = "plugin:serialport:"
	readPrefix       = prefix + "read-"
	readStringPrefix = prefix + "read-string-"
	disconnectPrefix = prefix + "disconnect-"
)

// Event is one push notification for the frontend.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload"`
}

// ReadData is the payload of the read and read-string events. Flushed is
// set only when a withheld incomplete UTF-8 tail is force-flushed.
type ReadData struct {
	Size    int    `json:"size"`
	Data    []byte `json:"data"`
	Flushed bool   `json:"flushed,omitempty"`
}

// Disconnect is the (empty) payload of the disconnect event.
type Disconnect struct{}

func ReadName(port string) string       { return readPrefix + port }
func ReadStringName(port string) string { return readStringPrefix + port }
func DisconnectName(port string) string { return disconnectPrefix + port }
