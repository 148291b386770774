package apperr

// Wire is the JSON form of an error carried in an RPC reply.
type Wire struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func ToWire(err error) *Wire {
	if err == nil {
		return nil
	}
	return &Wire{Kind: KindOf(err), Message: PublicMessage(err)}
}

func (w *Wire) Err() error {
	if w == nil {
		return nil
	}
	return New(w.Kind, w.Message)
}
