package types

// Event is a typed record emitted by the module engines during state
// transitions. Attributes hold printable values only so the stream can be
// logged or serialised without further processing.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
